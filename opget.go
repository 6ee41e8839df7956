package objstore

import (
	"bytes"
	"log/slog"
)

// Get looks up the record stored under key. A missing record is not an
// error: the request succeeds with the zero Record.
func (s *ObjectStore) Get(key any) (*Request[Record], error) {
	if err := s.check("get", false); err != nil {
		return nil, err
	}
	keyRaw, err := encodeKey(nil, key)
	if err != nil {
		return nil, engineErrf("get", s.name, "", nil, err, "")
	}
	return issue(s.tx, func(stx storageTx) (Record, error) {
		_, data, _, err := s.buckets("get", stx)
		if err != nil {
			return Record{}, err
		}
		valueRaw := data.Get(keyRaw)
		if valueRaw == nil {
			s.tx.logVerbose("db: GET.NOTFOUND", slog.String("store", s.name), slog.String("key", rawKeyString(keyRaw)))
			return Record{}, nil
		}
		rec := Record{bytes.Clone(valueRaw)}
		s.tx.logVerbose("db: GET", slog.String("store", s.name), slog.String("key", rawKeyString(keyRaw)), slog.Any("value", rec))
		return rec, nil
	}), nil
}

// Exists reports whether a record is stored under key.
func (s *ObjectStore) Exists(key any) (*Request[bool], error) {
	if err := s.check("exists", false); err != nil {
		return nil, err
	}
	keyRaw, err := encodeKey(nil, key)
	if err != nil {
		return nil, engineErrf("exists", s.name, "", nil, err, "")
	}
	return issue(s.tx, func(stx storageTx) (bool, error) {
		_, data, _, err := s.buckets("exists", stx)
		if err != nil {
			return false, err
		}
		found := data.Get(keyRaw) != nil
		s.tx.logVerbose("db: EXISTS", slog.String("store", s.name), slog.String("key", rawKeyString(keyRaw)), slog.Bool("found", found))
		return found, nil
	}), nil
}
