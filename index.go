package objstore

import (
	"bytes"
	"errors"
	"log/slog"
	"sort"
)

type IndexOptions struct {
	Unique bool
}

// Index is a handle to a secondary index within one transaction.
type Index struct {
	store   *ObjectStore
	name    string
	keyPath string
	unique  bool
}

func (idx *Index) Name() string              { return idx.name }
func (idx *Index) KeyPath() string           { return idx.keyPath }
func (idx *Index) Unique() bool              { return idx.unique }
func (idx *Index) ObjectStore() *ObjectStore { return idx.store }

// Index returns a handle to an existing index of the store.
func (s *ObjectStore) Index(name string) (*Index, error) {
	if err := s.check("index", false); err != nil {
		return nil, err
	}
	be := s.tx.db.be
	be.mu.RLock()
	var is *indexState
	if ts := be.schema[s.name]; ts != nil {
		is = ts.Indices[name]
	}
	be.mu.RUnlock()
	if is == nil {
		return nil, engineErrf("index", s.name, name, nil, ErrNotFound, "")
	}
	return &Index{store: s, name: name, keyPath: is.KeyPath, unique: is.Unique}, nil
}

// CreateIndex adds an index over keyPath and fills it from the records
// already in the store. Only allowed during an upgrade.
func (s *ObjectStore) CreateIndex(name, keyPath string, opt IndexOptions) (*Index, error) {
	if err := s.check("index.create", true); err != nil {
		return nil, err
	}
	tx := s.tx
	if tx.mode != VersionChange {
		return nil, engineErrf("index.create", s.name, name, nil, ErrInvalidState, "not in an upgrade")
	}
	if name == "" {
		return nil, engineErrf("index.create", s.name, name, nil, ErrInvalidAccess, "empty index name")
	}

	be := tx.db.be
	be.mu.RLock()
	ts := be.schema[s.name]
	var exists bool
	if ts != nil {
		exists = ts.Indices[name] != nil
	}
	be.mu.RUnlock()
	if ts == nil {
		return nil, engineErrf("index.create", s.name, name, nil, ErrNotFound, "store no longer exists")
	}
	if exists {
		return nil, engineErrf("index.create", s.name, name, nil, ErrConstraint, "index already exists")
	}

	is := &indexState{KeyPath: keyPath, Unique: opt.Unique}
	bname, iname := storeBucketName(s.name), indexBucketName(name)
	ib, err := tx.stx.CreateBucket(bname, iname)
	if err != nil {
		return nil, engineErrf("index.create", s.name, name, nil, err, "")
	}
	n, err := buildIndex(tx.stx, bname, name, is, ib)
	if err != nil {
		if derr := tx.stx.DeleteBucket(bname, iname); derr != nil {
			err = errors.Join(err, derr)
		}
		return nil, engineErrf("index.create", s.name, name, nil, err, "")
	}

	be.mu.Lock()
	updated := ts.clone()
	updated.Indices[name] = is
	err = updated.save(tx.stx)
	if err == nil {
		be.schema[s.name] = updated
	}
	be.mu.Unlock()
	if err != nil {
		return nil, engineErrf("index.create", s.name, name, nil, err, "")
	}

	tx.logVerbose("db: INDEX.CREATE", slog.String("store", s.name), slog.String("index", name), slog.String("keyPath", keyPath), slog.Bool("unique", opt.Unique), slog.Int("rows", n))
	return &Index{store: s, name: name, keyPath: keyPath, unique: opt.Unique}, nil
}

// DeleteIndex drops an index. Only allowed during an upgrade.
func (s *ObjectStore) DeleteIndex(name string) error {
	if err := s.check("index.drop", true); err != nil {
		return err
	}
	tx := s.tx
	if tx.mode != VersionChange {
		return engineErrf("index.drop", s.name, name, nil, ErrInvalidState, "not in an upgrade")
	}

	be := tx.db.be
	be.mu.Lock()
	defer be.mu.Unlock()
	ts := be.schema[s.name]
	if ts == nil || ts.Indices[name] == nil {
		return engineErrf("index.drop", s.name, name, nil, ErrNotFound, "")
	}
	if err := tx.stx.DeleteBucket(storeBucketName(s.name), indexBucketName(name)); err != nil {
		return engineErrf("index.drop", s.name, name, nil, err, "")
	}
	updated := ts.clone()
	delete(updated.Indices, name)
	if err := updated.save(tx.stx); err != nil {
		return engineErrf("index.drop", s.name, name, nil, err, "")
	}
	be.schema[s.name] = updated
	tx.logVerbose("db: INDEX.DROP", slog.String("store", s.name), slog.String("index", name))
	return nil
}

func buildIndex(stx storageTx, bname, name string, is *indexState, ib storageBucket) (int, error) {
	data := stx.Bucket(bname, dataBucket)
	if data == nil {
		return 0, ErrNotFound
	}
	ts := &tableState{Indices: map[string]*indexState{name: is}}
	var n int
	c := data.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		doc, err := decodeDocument(v)
		if err != nil {
			return n, err
		}
		for _, ie := range indexEntriesOf(ts, doc, k) {
			if ie.unique {
				if owner := ib.Get(ie.key); owner != nil && !bytes.Equal(owner, k) {
					return n, engineErrf("", "", name, ie.key, ErrConstraint, "duplicate key in unique index")
				}
			}
			if err := ib.Put(ie.key, bytes.Clone(k)); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// Get returns the first record whose index key equals key, or the zero Record.
func (idx *Index) Get(key any) (*Request[Record], error) {
	s := idx.store
	if err := s.check("index.get", false); err != nil {
		return nil, err
	}
	keyRaw, err := encodeKey(nil, key)
	if err != nil {
		return nil, engineErrf("index.get", s.name, idx.name, nil, err, "")
	}
	return issue(s.tx, func(stx storageTx) (Record, error) {
		_, data, _, err := s.buckets("index.get", stx)
		if err != nil {
			return Record{}, err
		}
		ib := stx.Bucket(storeBucketName(s.name), indexBucketName(idx.name))
		if ib == nil {
			return Record{}, engineErrf("index.get", s.name, idx.name, nil, ErrNotFound, "index no longer exists")
		}
		k, pk := ib.Cursor().Seek(keyRaw)
		if k == nil || !bytes.HasPrefix(k, keyRaw) {
			s.tx.logVerbose("db: INDEX.GET.NOTFOUND", slog.String("store", s.name), slog.String("index", idx.name), slog.String("key", rawKeyString(keyRaw)))
			return Record{}, nil
		}
		valueRaw := data.Get(pk)
		if valueRaw == nil {
			return Record{}, nil
		}
		rec := Record{bytes.Clone(valueRaw)}
		s.tx.logVerbose("db: INDEX.GET", slog.String("store", s.name), slog.String("index", idx.name), slog.String("key", rawKeyString(keyRaw)), slog.String("pk", rawKeyString(pk)))
		return rec, nil
	}), nil
}

// Count returns the number of index entries.
func (idx *Index) Count() (*Request[int], error) {
	s := idx.store
	if err := s.check("index.count", false); err != nil {
		return nil, err
	}
	return issue(s.tx, func(stx storageTx) (int, error) {
		ib := stx.Bucket(storeBucketName(s.name), indexBucketName(idx.name))
		if ib == nil {
			return 0, engineErrf("index.count", s.name, idx.name, nil, ErrNotFound, "index no longer exists")
		}
		var n int
		c := ib.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		return n, nil
	}), nil
}

// indexEntry is one row of an index bucket. Unique indexes are keyed by the
// encoded index key alone; others append the encoded primary key so that
// several records can share an index key.
type indexEntry struct {
	index  string
	key    []byte
	unique bool
}

type indexEntries []indexEntry

func (a indexEntries) Len() int      { return len(a) }
func (a indexEntries) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a indexEntries) Less(i, j int) bool {
	if a[i].index != a[j].index {
		return a[i].index < a[j].index
	}
	return bytes.Compare(a[i].key, a[j].key) < 0
}

// indexEntriesOf computes the index rows of a record. Records whose value has
// no valid key at an index's key path are left out of that index.
func indexEntriesOf(ts *tableState, doc document, primary []byte) indexEntries {
	var entries indexEntries
	for name, is := range ts.Indices {
		ik, err := doc.keyAt(is.KeyPath)
		if err != nil {
			continue
		}
		if !is.Unique {
			ik = appendRaw(ik, primary)
		}
		entries = append(entries, indexEntry{index: name, key: ik, unique: is.Unique})
	}
	sort.Sort(entries)
	return entries
}

func putIndexEntries(stx storageTx, bname string, entries indexEntries, primary []byte) error {
	for _, ie := range entries {
		ib := stx.Bucket(bname, indexBucketName(ie.index))
		if ib == nil {
			return engineErrf("", "", ie.index, nil, ErrNotFound, "missing index bucket")
		}
		if err := ib.Put(ie.key, primary); err != nil {
			return err
		}
	}
	return nil
}

func removeIndexEntries(stx storageTx, bname string, entries indexEntries) error {
	for _, ie := range entries {
		ib := stx.Bucket(bname, indexBucketName(ie.index))
		if ib == nil {
			continue
		}
		if err := ib.Delete(ie.key); err != nil {
			return err
		}
	}
	return nil
}
