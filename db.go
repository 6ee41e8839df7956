package objstore

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"
)

// DB is a connection to one database. Several connections to the same name
// share the underlying data and schema.
type DB struct {
	engine  *Engine
	be      *backend
	name    string
	version uint64
	closed  atomic.Bool
}

type StoreOptions struct {
	// KeyPath is the dotted path of the in-line key inside stored values.
	// Without one, every write has to supply its key explicitly.
	KeyPath string
}

func (db *DB) Name() string       { return db.name }
func (db *DB) Version() uint64    { return db.version }
func (db *DB) Engine() *Engine    { return db.engine }
func (db *DB) IsClosed() bool     { return db.usable() != nil }
func (db *DB) String() string     { return fmt.Sprintf("%s@%d", db.name, db.version) }
func (db *DB) ReadCount() uint64  { return db.be.ReadCount.Load() }
func (db *DB) WriteCount() uint64 { return db.be.WriteCount.Load() }

// Close releases the connection. Requests already issued still complete;
// new ones fail with ErrClosed.
func (db *DB) Close() {
	if !db.closed.CompareAndSwap(false, true) {
		return
	}
	db.engine.loop.submit(func() {
		db.engine.releaseBackend(db.be)
	})
}

func (db *DB) usable() error {
	if db.closed.Load() || db.be.deleted.Load() {
		return ErrClosed
	}
	return nil
}

// ObjectStoreNames returns the sorted names of all object stores.
func (db *DB) ObjectStoreNames() []string {
	db.be.mu.RLock()
	defer db.be.mu.RUnlock()
	names := make([]string, 0, len(db.be.schema))
	for name := range db.be.schema {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (db *DB) HasObjectStore(name string) bool {
	db.be.mu.RLock()
	defer db.be.mu.RUnlock()
	return db.be.schema[name] != nil
}

func (db *DB) storeState(name string) *tableState {
	db.be.mu.RLock()
	defer db.be.mu.RUnlock()
	return db.be.schema[name]
}

// versionChangeTx returns the running upgrade transaction if this connection owns it.
func (db *DB) versionChangeTx() *Tx {
	db.be.mu.RLock()
	defer db.be.mu.RUnlock()
	if tx := db.be.upgrade; tx != nil && tx.db == db {
		return tx
	}
	return nil
}

// CreateObjectStore adds a store. Only allowed during an upgrade.
func (db *DB) CreateObjectStore(name string, opt StoreOptions) (*ObjectStore, error) {
	if err := db.usable(); err != nil {
		return nil, err
	}
	tx := db.versionChangeTx()
	if tx == nil {
		return nil, engineErrf("create", name, "", nil, ErrInvalidState, "not in an upgrade")
	}
	if name == "" {
		return nil, engineErrf("create", name, "", nil, ErrInvalidAccess, "empty store name")
	}
	if db.HasObjectStore(name) {
		return nil, engineErrf("create", name, "", nil, ErrConstraint, "store already exists")
	}

	bname := storeBucketName(name)
	if _, err := tx.stx.CreateBucket(bname, dataBucket); err != nil {
		return nil, engineErrf("create", name, "", nil, err, "")
	}
	ts := &tableState{
		KeyPath: opt.KeyPath,
		Indices: make(map[string]*indexState),
		Created: time.Now().UTC(),
		name:    name,
	}
	if err := ts.save(tx.stx); err != nil {
		return nil, engineErrf("create", name, "", nil, err, "")
	}

	db.be.mu.Lock()
	db.be.schema[name] = ts
	db.be.mu.Unlock()
	if db.engine.verbose {
		db.engine.logger.Debug("db: CREATE", "store", name, "keyPath", opt.KeyPath)
	}
	return tx.objectStore(name, ts), nil
}

// DeleteObjectStore removes a store with all its data and indexes. Only
// allowed during an upgrade.
func (db *DB) DeleteObjectStore(name string) error {
	if err := db.usable(); err != nil {
		return err
	}
	tx := db.versionChangeTx()
	if tx == nil {
		return engineErrf("drop", name, "", nil, ErrInvalidState, "not in an upgrade")
	}
	if !db.HasObjectStore(name) {
		return engineErrf("drop", name, "", nil, ErrNotFound, "")
	}
	if err := tx.stx.DeleteBucket(storeBucketName(name), ""); err != nil {
		return engineErrf("drop", name, "", nil, err, "")
	}
	db.be.mu.Lock()
	delete(db.be.schema, name)
	db.be.mu.Unlock()
	if db.engine.verbose {
		db.engine.logger.Debug("db: DROP", "store", name)
	}
	return nil
}

// Transaction starts a transaction over the named stores. Mode must be
// ReadOnly or ReadWrite.
func (db *DB) Transaction(stores []string, mode Mode) (*Tx, error) {
	if err := db.usable(); err != nil {
		return nil, err
	}
	if mode != ReadOnly && mode != ReadWrite {
		return nil, fmt.Errorf("transaction: %w: mode %v", ErrInvalidAccess, mode)
	}
	db.be.mu.RLock()
	upgrading := db.be.upgrade != nil
	db.be.mu.RUnlock()
	if upgrading {
		return nil, fmt.Errorf("transaction: %w: upgrade in progress", ErrInvalidState)
	}
	if len(stores) == 0 {
		return nil, fmt.Errorf("transaction: %w: no stores", ErrInvalidAccess)
	}
	for _, name := range stores {
		if !db.HasObjectStore(name) {
			return nil, engineErrf("transaction", name, "", nil, ErrNotFound, "")
		}
	}
	return &Tx{db: db, mode: mode, scope: append([]string(nil), stores...)}, nil
}
