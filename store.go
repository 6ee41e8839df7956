package objstore

import (
	"errors"
	"fmt"
	"log/slog"
)

// ObjectStore is a handle to a store within one transaction.
type ObjectStore struct {
	tx      *Tx
	name    string
	keyPath string
}

func (s *ObjectStore) Name() string    { return s.name }
func (s *ObjectStore) KeyPath() string { return s.keyPath }
func (s *ObjectStore) Tx() *Tx         { return s.tx }

func (s *ObjectStore) IndexNames() []string {
	ts := s.tx.db.storeState(s.name)
	if ts == nil {
		return nil
	}
	s.tx.db.be.mu.RLock()
	defer s.tx.db.be.mu.RUnlock()
	return ts.indexNames()
}

func (s *ObjectStore) check(op string, write bool) error {
	if err := s.tx.check(); err != nil {
		return engineErrf(op, s.name, "", nil, err, "")
	}
	if write && s.tx.mode == ReadOnly {
		return engineErrf(op, s.name, "", nil, ErrReadOnly, "")
	}
	return nil
}

// buckets returns the store's root and data buckets along with a snapshot of
// its current state.
func (s *ObjectStore) buckets(op string, stx storageTx) (storageBucket, storageBucket, *tableState, error) {
	be := s.tx.db.be
	be.mu.RLock()
	ts := be.schema[s.name]
	if ts != nil {
		ts = ts.clone()
	}
	be.mu.RUnlock()

	bname := storeBucketName(s.name)
	root := stx.Bucket(bname, "")
	data := stx.Bucket(bname, dataBucket)
	if ts == nil || root == nil || data == nil {
		return nil, nil, nil, engineErrf(op, s.name, "", nil, ErrNotFound, "store no longer exists")
	}
	return root, data, ts, nil
}

// Count returns the number of records in the store.
func (s *ObjectStore) Count() (*Request[int], error) {
	if err := s.check("count", false); err != nil {
		return nil, err
	}
	return issue(s.tx, func(stx storageTx) (int, error) {
		_, data, _, err := s.buckets("count", stx)
		if err != nil {
			return 0, err
		}
		var n int
		c := data.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		s.tx.logVerbose("db: COUNT", slog.String("store", s.name), slog.Int("n", n))
		return n, nil
	}), nil
}

// Clear removes every record and index entry of the store.
func (s *ObjectStore) Clear() (*Request[struct{}], error) {
	if err := s.check("clear", true); err != nil {
		return nil, err
	}
	return issue(s.tx, func(stx storageTx) (struct{}, error) {
		_, _, ts, err := s.buckets("clear", stx)
		if err != nil {
			return struct{}{}, err
		}
		bname := storeBucketName(s.name)
		subs := append([]string{dataBucket}, indexBuckets(ts)...)
		for _, sub := range subs {
			if err := stx.DeleteBucket(bname, sub); err != nil && !errors.Is(err, errBucketNotFound) {
				return struct{}{}, engineErrf("clear", s.name, "", nil, err, "")
			}
			if _, err := stx.CreateBucket(bname, sub); err != nil {
				return struct{}{}, engineErrf("clear", s.name, "", nil, err, "")
			}
		}
		s.tx.logVerbose("db: CLEAR", slog.String("store", s.name))
		return struct{}{}, nil
	}), nil
}

func indexBuckets(ts *tableState) []string {
	names := ts.indexNames()
	for i, name := range names {
		names[i] = indexBucketName(name)
	}
	return names
}

func (s *ObjectStore) String() string {
	return fmt.Sprintf("%s/%s", s.tx.db.name, s.name)
}
