package objstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
)

type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
	VersionChange
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	case VersionChange:
		return "versionchange"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Tx scopes requests to a set of stores. Each request issued through a
// ReadOnly or ReadWrite transaction executes and commits on its own; requests
// of a VersionChange transaction share the upgrade's storage transaction.
type Tx struct {
	db    *DB
	mode  Mode
	scope []string
	stx   storageTx
}

func (tx *Tx) DB() *DB {
	return tx.db
}

func (tx *Tx) Mode() Mode {
	return tx.mode
}

func (tx *Tx) check() error {
	if err := tx.db.usable(); err != nil {
		return err
	}
	if tx.mode == VersionChange && tx.db.versionChangeTx() != tx {
		return fmt.Errorf("%w: upgrade transaction has finished", ErrInvalidState)
	}
	return nil
}

// ObjectStore returns a handle to a store within the transaction's scope.
func (tx *Tx) ObjectStore(name string) (*ObjectStore, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	if tx.mode != VersionChange && !slices.Contains(tx.scope, name) {
		return nil, engineErrf("store", name, "", nil, ErrNotFound, "not in transaction scope")
	}
	ts := tx.db.storeState(name)
	if ts == nil {
		return nil, engineErrf("store", name, "", nil, ErrNotFound, "")
	}
	return tx.objectStore(name, ts), nil
}

func (tx *Tx) objectStore(name string, ts *tableState) *ObjectStore {
	return &ObjectStore{tx: tx, name: name, keyPath: ts.KeyPath}
}

// issue runs exec on the loop in a fresh storage transaction, or right away
// inside the upgrade's storage transaction.
func issue[T any](tx *Tx, exec func(stx storageTx) (T, error)) *Request[T] {
	req := newRequest[T](tx.db.engine.loop)
	if tx.stx != nil {
		v, err := execute(tx, exec)
		req.settle(v, err)
		return req
	}
	if !tx.db.engine.loop.submit(func() {
		v, err := execute(tx, exec)
		req.settle(v, err)
	}) {
		req.settleDetached(ErrClosed)
	}
	return req
}

// execute runs on the loop. A DB closed after issuing the request does not
// stop it; only a deleted or closed backend does.
func execute[T any](tx *Tx, exec func(stx storageTx) (T, error)) (T, error) {
	var zero T
	be := tx.db.be
	if be.deleted.Load() {
		return zero, ErrClosed
	}
	writable := tx.mode != ReadOnly
	if writable {
		be.WriteCount.Add(1)
	} else {
		be.ReadCount.Add(1)
	}

	if tx.stx != nil {
		return safelyCall(func() (T, error) {
			return exec(tx.stx)
		})
	}

	stx, err := be.st.BeginTx(writable)
	if err != nil {
		return zero, err
	}
	defer stx.Rollback()

	v, err := safelyCall(func() (T, error) {
		return exec(stx)
	})
	if err != nil {
		return zero, err
	}
	if writable {
		if err := stx.Commit(); err != nil {
			return zero, fmt.Errorf("commit: %w", err)
		}
	}
	return v, nil
}

func (tx *Tx) logVerbose(msg string, attrs ...slog.Attr) {
	e := tx.db.engine
	if !e.verbose {
		return
	}
	e.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}
