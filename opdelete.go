package objstore

import "log/slog"

// Delete removes the record stored under key together with its index
// entries. Deleting a missing key succeeds.
func (s *ObjectStore) Delete(key any) (*Request[struct{}], error) {
	if err := s.check("delete", true); err != nil {
		return nil, err
	}
	keyRaw, err := encodeKey(nil, key)
	if err != nil {
		return nil, engineErrf("delete", s.name, "", nil, err, "")
	}
	return issue(s.tx, func(stx storageTx) (struct{}, error) {
		_, data, ts, err := s.buckets("delete", stx)
		if err != nil {
			return struct{}{}, err
		}
		oldRaw := data.Get(keyRaw)
		if oldRaw == nil {
			s.tx.logVerbose("db: DELETE.NOOP", slog.String("store", s.name), slog.String("key", rawKeyString(keyRaw)))
			return struct{}{}, nil
		}

		oldDoc, err := decodeDocument(oldRaw)
		if err != nil {
			// Still remove the record; stale index entries are skipped by
			// lookups because they point to a missing key.
			s.tx.db.engine.logger.Warn("db: DELETE: cannot decode old value", "store", s.name, "key", rawKeyString(keyRaw), "err", err)
		} else {
			entries := indexEntriesOf(ts, oldDoc, keyRaw)
			if err := removeIndexEntries(stx, storeBucketName(s.name), entries); err != nil {
				return struct{}{}, engineErrf("delete", s.name, "", keyRaw, err, "")
			}
		}
		if err := data.Delete(keyRaw); err != nil {
			return struct{}{}, engineErrf("delete", s.name, "", keyRaw, err, "")
		}
		s.tx.logVerbose("db: DELETE", slog.String("store", s.name), slog.String("key", rawKeyString(keyRaw)))
		return struct{}{}, nil
	}), nil
}
