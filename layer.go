package objstore

import (
	"log/slog"

	"github.com/andreyvit/objstore/boundary"
)

// KeyPath is the field every layer-managed table is keyed and indexed by.
const KeyPath = "id"

// Layer runs table lifecycle and record operations against whatever database
// its HandleSource currently holds. Every call opens its own transaction.
type Layer struct {
	handles  HandleSource
	logger   *slog.Logger
	boundary *boundary.Boundary
}

type LayerOptions struct {
	Logger *slog.Logger
	// Boundary reports acquisition failures; boundary.Default if nil.
	Boundary *boundary.Boundary
}

func NewLayer(handles HandleSource, opt LayerOptions) *Layer {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Boundary == nil {
		opt.Boundary = boundary.Default
	}
	return &Layer{
		handles:  handles,
		logger:   opt.Logger,
		boundary: opt.Boundary,
	}
}

type Query struct {
	Table string
	Key   any
}

type SaveType int

const (
	// SavePut inserts or overwrites.
	SavePut SaveType = iota
	// SaveAdd fails if the key already exists.
	SaveAdd
)

func (t SaveType) String() string {
	if t == SaveAdd {
		return "add"
	}
	return "put"
}

type Save struct {
	Table string
	// Key is only needed for tables without a key path.
	Key       any
	Value     any
	Type      SaveType
	OnSuccess func(key any)
	OnError   func(err error)
}

type Delete struct {
	Table     string
	Key       any
	OnSuccess func()
	OnError   func(err error)
}

// GetDatabase returns the current handle, or nil.
func (l *Layer) GetDatabase() *DB {
	return l.handles.Current()
}

// DestroyDatabase deletes the named database through the engine that owns the
// current handle. Without a handle it only logs a warning.
func (l *Layer) DestroyDatabase(name string) *Future[struct{}] {
	db := l.handles.Current()
	if db == nil {
		l.logger.Warn("objstore: no database to destroy", "db", name)
		return Resolved(struct{}{})
	}
	return db.Engine().DeleteDatabase(name)
}

// CreateTable creates a table keyed by KeyPath with a unique index of the same
// name, unless it already exists. A nil db means the current handle. It must
// run inside an upgrade of db.
func (l *Layer) CreateTable(name string, db *DB) (*ObjectStore, error) {
	if db == nil {
		db = l.handles.Current()
	}
	if db == nil {
		l.logger.Error("objstore: no database to create table in", "table", name)
		return nil, nil
	}
	if db.HasObjectStore(name) {
		return nil, nil
	}
	store, err := db.CreateObjectStore(name, StoreOptions{KeyPath: KeyPath})
	if err != nil {
		return nil, err
	}
	if _, err := store.CreateIndex(KeyPath, KeyPath, IndexOptions{Unique: true}); err != nil {
		return nil, err
	}
	return store, nil
}

// DeleteTable removes a table. Like CreateTable, it must run inside an upgrade.
func (l *Layer) DeleteTable(name string) error {
	db := l.handles.Current()
	if db == nil {
		l.logger.Error("objstore: no database to delete table from", "table", name)
		return nil
	}
	return db.DeleteObjectStore(name)
}

// GetValue reads the record stored under q.Key. The future resolves to nil
// when there is no database or no such record.
func GetValue[T any](l *Layer, q Query) *Future[*T] {
	db := l.handles.Current()
	if db == nil {
		return Resolved[*T](nil)
	}
	fut := newFuture[*T]()
	_, err := safelyCall(func() (struct{}, error) {
		store, err := l.acquire(db, q.Table, ReadOnly)
		if err != nil {
			return struct{}{}, err
		}
		req, err := store.Get(q.Key)
		if err != nil {
			return struct{}{}, err
		}
		req.Then(func(rec Record) {
			settleDecoded(fut, rec)
		}, fut.reject)
		return struct{}{}, nil
	})
	if err != nil {
		fut.reject(uncaught(err))
	}
	return fut
}

// GetLastValueFromTable reads the record with the greatest key of the given
// index, or nil if the table is empty.
func GetLastValueFromTable[T any](l *Layer, table, index string) *Future[*T] {
	db := l.handles.Current()
	if db == nil {
		return Resolved[*T](nil)
	}
	fut := newFuture[*T]()
	_, err := safelyCall(func() (struct{}, error) {
		store, err := l.acquire(db, table, ReadOnly)
		if err != nil {
			return struct{}{}, err
		}
		idx, err := boundary.HandleIndexErr(l.boundary, func() (*Index, error) {
			return store.Index(index)
		})
		if err != nil {
			return struct{}{}, err
		}
		req, err := boundary.HandleOpenCursorErr(l.boundary, func() (*Request[*Cursor], error) {
			return idx.OpenCursor(nil, Prev)
		})
		if err != nil {
			return struct{}{}, err
		}
		req.Then(func(c *Cursor) {
			if c == nil {
				fut.resolve(nil)
				return
			}
			settleDecoded(fut, c.Value())
		}, func(error) {
			fut.reject(ErrLastValueCursor)
		})
		return struct{}{}, nil
	})
	if err != nil {
		fut.reject(uncaught(err))
	}
	return fut
}

// SaveValue adds or puts s.Value. Outcomes are reported through the
// callbacks; failures before the request is issued are only logged.
func (l *Layer) SaveValue(s Save) {
	db := l.handles.Current()
	if db == nil {
		l.logger.Error("objstore: no database to save into", "table", s.Table)
		return
	}
	_, err := safelyCall(func() (struct{}, error) {
		store, err := l.acquire(db, s.Table, ReadWrite)
		if err != nil {
			return struct{}{}, err
		}
		req, err := boundary.HandleCreateErr(l.boundary, func() (*Request[any], error) {
			var key []any
			if s.Key != nil {
				key = []any{s.Key}
			}
			if s.Type == SaveAdd {
				return store.Add(s.Value, key...)
			}
			return store.Put(s.Value, key...)
		})
		if err != nil {
			return struct{}{}, err
		}
		req.Then(func(key any) {
			if s.OnSuccess != nil {
				s.OnSuccess(key)
			}
		}, func(err error) {
			if s.OnError != nil {
				s.OnError(err)
			}
		})
		return struct{}{}, nil
	})
	if err != nil {
		l.logger.Error("objstore: save failed", "table", s.Table, "type", s.Type.String(), "err", err)
	}
}

// DeleteValue deletes the record under d.Key, reporting like SaveValue.
func (l *Layer) DeleteValue(d Delete) {
	db := l.handles.Current()
	if db == nil {
		l.logger.Error("objstore: no database to delete from", "table", d.Table)
		return
	}
	_, err := safelyCall(func() (struct{}, error) {
		store, err := l.acquire(db, d.Table, ReadWrite)
		if err != nil {
			return struct{}{}, err
		}
		req, err := store.Delete(d.Key)
		if err != nil {
			return struct{}{}, err
		}
		req.Then(func(struct{}) {
			if d.OnSuccess != nil {
				d.OnSuccess()
			}
		}, func(err error) {
			if d.OnError != nil {
				d.OnError(err)
			}
		})
		return struct{}{}, nil
	})
	if err != nil {
		l.logger.Error("objstore: delete failed", "table", d.Table, "err", err)
	}
}

// acquire opens a single-table transaction and returns the table's handle.
func (l *Layer) acquire(db *DB, table string, mode Mode) (*ObjectStore, error) {
	tx, err := boundary.HandleTransactionErr(l.boundary, func() (*Tx, error) {
		return db.Transaction([]string{table}, mode)
	})
	if err != nil {
		return nil, err
	}
	return boundary.HandleTableErr(l.boundary, func() (*ObjectStore, error) {
		return tx.ObjectStore(table)
	})
}

func settleDecoded[T any](fut *Future[*T], rec Record) {
	if !rec.Exists() {
		fut.resolve(nil)
		return
	}
	v := new(T)
	if err := rec.Decode(v); err != nil {
		fut.reject(err)
		return
	}
	fut.resolve(v)
}
