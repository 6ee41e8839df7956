package objstore

import (
	"bytes"
	"log/slog"
)

// Put stores value, replacing any record with the same key. Stores with a
// key path take the key from the value; other stores need it passed
// explicitly. The request yields the record's key.
func (s *ObjectStore) Put(value any, key ...any) (*Request[any], error) {
	return s.write("put", false, value, key)
}

// Add is like Put but fails with ErrConstraint if the key already exists.
func (s *ObjectStore) Add(value any, key ...any) (*Request[any], error) {
	return s.write("add", true, value, key)
}

func (s *ObjectStore) write(op string, noOverwrite bool, value any, key []any) (*Request[any], error) {
	if err := s.check(op, true); err != nil {
		return nil, err
	}
	if len(key) > 1 {
		return nil, engineErrf(op, s.name, "", nil, ErrInvalidAccess, "at most one key allowed, got %d", len(key))
	}

	valueRaw, err := encodeValue(nil, value)
	if err != nil {
		return nil, engineErrf(op, s.name, "", nil, err, "")
	}
	doc, err := decodeDocument(valueRaw)
	if err != nil {
		return nil, engineErrf(op, s.name, "", nil, err, "")
	}

	var keyRaw []byte
	if s.keyPath != "" {
		if len(key) > 0 {
			return nil, engineErrf(op, s.name, "", nil, ErrData, "store uses in-line keys, explicit key not allowed")
		}
		keyRaw, err = doc.keyAt(s.keyPath)
	} else {
		if len(key) == 0 {
			return nil, engineErrf(op, s.name, "", nil, ErrData, "store has no key path, key required")
		}
		keyRaw, err = encodeKey(nil, key[0])
	}
	if err != nil {
		return nil, engineErrf(op, s.name, "", nil, err, "invalid key")
	}
	primaryKey, err := decodeSingleKey(keyRaw)
	if err != nil {
		return nil, engineErrf(op, s.name, "", keyRaw, err, "")
	}

	return issue(s.tx, func(stx storageTx) (any, error) {
		_, data, ts, err := s.buckets(op, stx)
		if err != nil {
			return nil, err
		}

		oldRaw := data.Get(keyRaw)
		if oldRaw != nil && noOverwrite {
			return nil, engineErrf(op, s.name, "", keyRaw, ErrConstraint, "key already exists")
		}
		if oldRaw != nil && bytes.Equal(oldRaw, valueRaw) {
			s.tx.logVerbose("db: PUT.NOOP", slog.String("store", s.name), slog.String("key", rawKeyString(keyRaw)))
			return primaryKey, nil
		}

		var oldEntries []indexEntry
		if oldRaw != nil {
			oldDoc, err := decodeDocument(oldRaw)
			if err != nil {
				return nil, engineErrf(op, s.name, "", keyRaw, err, "decoding old value")
			}
			oldEntries = indexEntriesOf(ts, oldDoc, keyRaw)
		}
		newEntries := indexEntriesOf(ts, doc, keyRaw)

		bname := storeBucketName(s.name)
		for _, ie := range newEntries {
			if !ie.unique {
				continue
			}
			ib := stx.Bucket(bname, indexBucketName(ie.index))
			if ib == nil {
				return nil, engineErrf(op, s.name, ie.index, keyRaw, ErrNotFound, "missing index bucket")
			}
			if owner := ib.Get(ie.key); owner != nil && !bytes.Equal(owner, keyRaw) {
				return nil, engineErrf(op, s.name, ie.index, ie.key, ErrConstraint, "unique index already has this key for %s", rawKeyString(owner))
			}
		}

		if err := removeIndexEntries(stx, bname, oldEntries); err != nil {
			return nil, engineErrf(op, s.name, "", keyRaw, err, "")
		}
		if err := data.Put(keyRaw, valueRaw); err != nil {
			return nil, engineErrf(op, s.name, "", keyRaw, err, "")
		}
		if err := putIndexEntries(stx, bname, newEntries, keyRaw); err != nil {
			return nil, engineErrf(op, s.name, "", keyRaw, err, "")
		}

		if oldRaw == nil {
			s.tx.logVerbose("db: ADD", slog.String("store", s.name), slog.String("key", rawKeyString(keyRaw)), slog.Int("indexed", len(newEntries)))
		} else {
			s.tx.logVerbose("db: PUT", slog.String("store", s.name), slog.String("key", rawKeyString(keyRaw)), slog.Int("indexed", len(newEntries)))
		}
		return primaryKey, nil
	}), nil
}
