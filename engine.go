package objstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// Engine hosts named, versioned databases. Every operation of every database
// opened through an Engine runs on the Engine's single loop goroutine.
type Engine struct {
	opt      Options
	logger   *slog.Logger
	verbose  bool
	loop     *loop
	backends *xsync.MapOf[string, *backend]
	closed   atomic.Bool
}

// backend is the state shared by all connections to one database.
type backend struct {
	name string
	path string
	st   storage

	mu      sync.RWMutex
	version uint64
	schema  map[string]*tableState
	upgrade *Tx

	// loop-only
	conns int

	deleted atomic.Bool

	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
}

// UpgradeFunc migrates a database from oldVersion to newVersion. It runs on
// the engine loop inside a version-change transaction; returning an error (or
// panicking) rolls back the upgrade and fails the Open.
//
// Requests issued on tx execute immediately, but their continuations are
// delivered after the upgrade function returns.
type UpgradeFunc func(db *DB, tx *Tx, oldVersion, newVersion uint64) error

func NewEngine(opt Options) *Engine {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		opt:      opt,
		logger:   logger,
		verbose:  opt.Verbose,
		loop:     newLoop(logger),
		backends: xsync.NewMapOf[string, *backend](),
	}
}

func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Close stops the loop after running the work already queued, then closes
// every open database. Requests issued afterwards fail with ErrClosed.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.loop.close()

	var errs []error
	e.backends.Range(func(name string, be *backend) bool {
		if be.st != nil {
			if err := be.st.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
		}
		be.deleted.Store(true)
		e.backends.Delete(name)
		return true
	})
	return errors.Join(errs...)
}

// Databases lists the databases currently loaded by the engine.
func (e *Engine) Databases() []string {
	var names []string
	e.backends.Range(func(name string, _ *backend) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Open connects to the named database, creating it if needed. Version 0 opens
// the current version (1 for a new database). A version below the stored one
// fails with ErrVersion; a higher one runs upgrade first.
//
// A done ctx stops waiting, not the open itself.
func (e *Engine) Open(ctx context.Context, name string, version uint64, upgrade UpgradeFunc) (*DB, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	return call(ctx, e.loop, func() (*DB, error) {
		return e.open(name, version, upgrade)
	})
}

func (e *Engine) open(name string, version uint64, upgrade UpgradeFunc) (*DB, error) {
	be, err := e.acquireBackend(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	db := &DB{engine: e, be: be, name: name}

	be.mu.RLock()
	oldVersion := be.version
	be.mu.RUnlock()

	if version == 0 {
		version = max(oldVersion, 1)
	}
	if version < oldVersion {
		e.releaseBackend(be)
		return nil, fmt.Errorf("open %s: %w: requested %d, stored %d", name, ErrVersion, version, oldVersion)
	}
	if version > oldVersion {
		if err := e.upgrade(db, oldVersion, version, upgrade); err != nil {
			e.releaseBackend(be)
			return nil, fmt.Errorf("open %s: upgrade %d→%d: %w", name, oldVersion, version, err)
		}
	}
	db.version = version
	if e.verbose {
		e.logger.Debug("db: OPEN", "db", name, "version", version)
	}
	return db, nil
}

func (e *Engine) upgrade(db *DB, oldVersion, newVersion uint64, upgrade UpgradeFunc) (err error) {
	be := db.be
	stx, err := be.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer stx.Rollback()

	tx := &Tx{db: db, mode: VersionChange, stx: stx}
	be.mu.Lock()
	be.upgrade = tx
	be.mu.Unlock()
	defer func() {
		be.mu.Lock()
		be.upgrade = nil
		be.mu.Unlock()
		if err != nil {
			stx.Rollback()
			e.reloadSchema(be)
		}
	}()

	if upgrade != nil {
		_, err = safelyCall(func() (struct{}, error) {
			return struct{}{}, upgrade(db, tx, oldVersion, newVersion)
		})
		if err != nil {
			return err
		}
	}
	if err := saveVersion(stx, newVersion); err != nil {
		return err
	}
	if err := stx.Commit(); err != nil {
		return err
	}

	be.mu.Lock()
	be.version = newVersion
	be.mu.Unlock()
	if e.verbose {
		e.logger.Debug("db: UPGRADE", "db", be.name, "from", oldVersion, "to", newVersion)
	}
	return nil
}

// reloadSchema discards schema changes of a rolled back upgrade.
func (e *Engine) reloadSchema(be *backend) {
	schema, version, err := readSchema(be.st)
	if err != nil {
		e.logger.Error("objstore: failed to reload schema", "db", be.name, "err", err)
		return
	}
	be.mu.Lock()
	be.schema, be.version = schema, version
	be.mu.Unlock()
}

func readSchema(st storage) (map[string]*tableState, uint64, error) {
	stx, err := st.BeginTx(false)
	if err != nil {
		return nil, 0, err
	}
	defer stx.Rollback()
	schema, err := loadSchema(stx)
	if err != nil {
		return nil, 0, err
	}
	version, err := loadVersion(stx)
	if err != nil {
		return nil, 0, err
	}
	return schema, version, nil
}

// acquireBackend must run on the loop.
func (e *Engine) acquireBackend(name string) (*backend, error) {
	be, ok := e.backends.Load(name)
	if !ok {
		var path string
		var st storage
		if e.opt.inMemory() {
			st = newMemStorage()
		} else {
			if err := os.MkdirAll(e.opt.Dir, 0755); err != nil {
				return nil, err
			}
			path = filepath.Join(e.opt.Dir, databaseFileName(name))
			var err error
			st, err = openBoltStorage(path, e.opt)
			if err != nil {
				return nil, err
			}
		}
		schema, version, err := readSchema(st)
		if err != nil {
			st.Close()
			return nil, err
		}
		be = &backend{
			name:    name,
			path:    path,
			st:      st,
			schema:  schema,
			version: version,
		}
		e.backends.Store(name, be)
	}
	be.conns++
	return be, nil
}

// releaseBackend must run on the loop. File-backed databases are closed when
// their last connection goes away; in-memory ones live until deleted.
func (e *Engine) releaseBackend(be *backend) {
	be.conns--
	if be.conns > 0 || be.path == "" || be.deleted.Load() {
		return
	}
	be.deleted.Store(true)
	e.backends.Delete(be.name)
	if err := be.st.Close(); err != nil {
		e.logger.Error("objstore: failed to close database", "db", be.name, "err", err)
	}
}

// DeleteDatabase closes all connections to the named database and removes its
// data. Deleting a database that does not exist succeeds.
func (e *Engine) DeleteDatabase(name string) *Future[struct{}] {
	req := newRequest[struct{}](e.loop)
	if !e.loop.submit(func() {
		req.settle(struct{}{}, e.deleteDatabase(name))
	}) {
		req.settleDetached(ErrClosed)
	}
	return req.Future()
}

func (e *Engine) deleteDatabase(name string) error {
	if be, ok := e.backends.LoadAndDelete(name); ok {
		wasDeleted := be.deleted.Swap(true)
		if !wasDeleted {
			if err := be.st.Close(); err != nil {
				e.logger.Warn("objstore: failed to close database being deleted", "db", name, "err", err)
			}
		}
	}
	if !e.opt.inMemory() {
		path := filepath.Join(e.opt.Dir, databaseFileName(name))
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}
	if e.verbose {
		e.logger.Debug("db: DELETE", "db", name)
	}
	return nil
}

const maxFileNameStem = 64

// databaseFileName maps a database name to a file name that is safe on every
// platform and unique per name.
func databaseFileName(name string) string {
	var buf strings.Builder
	for _, r := range name {
		if buf.Len() >= maxFileNameStem {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			buf.WriteRune(r)
		default:
			buf.WriteByte('_')
		}
	}
	return fmt.Sprintf("%s-%016x.db", buf.String(), xxhash.Sum64String(name))
}
