package objstore

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Layout inside a backend:
//
//	_meta                 {version}
//	store:<name>          _state document, plus nested buckets:
//	    data              encoded key → MsgPack value
//	    index:<name>      encoded index key [+ encoded primary key] → encoded primary key
const (
	metaBucket        = "_meta"
	storeBucketPrefix = "store:"
	dataBucket        = "data"
	indexBucketPrefix = "index:"
)

var (
	tableStateKey = []byte("_state")
	versionKey    = []byte("version")
)

func storeBucketName(store string) string {
	return storeBucketPrefix + store
}

func indexBucketName(index string) string {
	return indexBucketPrefix + index
}

type tableState struct {
	KeyPath string                 `msgpack:"kp"`
	Indices map[string]*indexState `msgpack:"i"`
	Created time.Time              `msgpack:"t"`

	name string `msgpack:"-"`
}

type indexState struct {
	KeyPath string `msgpack:"kp"`
	Unique  bool   `msgpack:"u"`
}

func (ts *tableState) indexNames() []string {
	names := make([]string, 0, len(ts.Indices))
	for name := range ts.Indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (ts *tableState) clone() *tableState {
	c := *ts
	c.Indices = make(map[string]*indexState, len(ts.Indices))
	for k, is := range ts.Indices {
		v := *is
		c.Indices[k] = &v
	}
	return &c
}

func (ts *tableState) save(stx storageTx) error {
	raw, err := encodeValue(nil, ts)
	if err != nil {
		return err
	}
	root := stx.Bucket(storeBucketName(ts.name), "")
	if root == nil {
		return fmt.Errorf("%w: store %q", ErrNotFound, ts.name)
	}
	return root.Put(tableStateKey, raw)
}

// loadSchema reads every store's state document.
func loadSchema(stx storageTx) (map[string]*tableState, error) {
	schema := make(map[string]*tableState)
	for _, bn := range stx.BucketNames() {
		name, ok := strings.CutPrefix(bn, storeBucketPrefix)
		if !ok {
			continue
		}
		root := stx.Bucket(bn, "")
		raw := root.Get(tableStateKey)
		if raw == nil {
			return nil, fmt.Errorf("store %q: missing state", name)
		}
		ts := new(tableState)
		if err := decodeValue(raw, ts); err != nil {
			return nil, fmt.Errorf("store %q: failed to decode state: %w", name, err)
		}
		ts.name = name
		if ts.Indices == nil {
			ts.Indices = make(map[string]*indexState)
		}
		schema[name] = ts
	}
	return schema, nil
}

func loadVersion(stx storageTx) (uint64, error) {
	b := stx.Bucket(metaBucket, "")
	if b == nil {
		return 0, nil
	}
	raw := b.Get(versionKey)
	if raw == nil {
		return 0, nil
	}
	var ver uint64
	if err := decodeValue(raw, &ver); err != nil {
		return 0, err
	}
	return ver, nil
}

func saveVersion(stx storageTx, ver uint64) error {
	b, err := stx.CreateBucket(metaBucket, "")
	if err != nil {
		return err
	}
	raw, err := encodeValue(nil, ver)
	if err != nil {
		return err
	}
	return b.Put(versionKey, raw)
}
