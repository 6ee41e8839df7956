package objstore

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/andreyvit/objstore/boundary"
)

type Entry struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

type layerFixture struct {
	*Layer
	engine   *Engine
	holder   *Holder
	boundary *boundary.Boundary
	logBuf   *bytes.Buffer
	boundBuf *bytes.Buffer
}

func setupLayer(t *testing.T, e *Engine, tables ...string) *layerFixture {
	t.Helper()
	f := &layerFixture{
		engine:   e,
		holder:   &Holder{},
		logBuf:   &bytes.Buffer{},
		boundBuf: &bytes.Buffer{},
	}
	f.boundary = boundary.New(boundary.Options{Logger: slog.New(slog.NewTextHandler(f.boundBuf, nil))})
	f.Layer = NewLayer(f.holder, LayerOptions{
		Logger:   slog.New(slog.NewTextHandler(f.logBuf, nil)),
		Boundary: f.boundary,
	})
	if tables != nil {
		db := openDB(t, e, "app", 1, func(db *DB, tx *Tx, oldVersion, newVersion uint64) error {
			for _, name := range tables {
				if _, err := f.CreateTable(name, db); err != nil {
					return err
				}
			}
			return nil
		})
		f.holder.Set(db)
	}
	return f
}

func (f *layerFixture) save(t *testing.T, typ SaveType, table string, value any) (any, error) {
	t.Helper()
	type outcome struct {
		key any
		err error
	}
	ch := make(chan outcome, 1)
	f.SaveValue(Save{
		Table:     table,
		Value:     value,
		Type:      typ,
		OnSuccess: func(key any) { ch <- outcome{key: key} },
		OnError:   func(err error) { ch <- outcome{err: err} },
	})
	o := <-ch
	return o.key, o.err
}

func (f *layerFixture) delete(t *testing.T, table string, key any) error {
	t.Helper()
	ch := make(chan error, 1)
	f.DeleteValue(Delete{
		Table:     table,
		Key:       key,
		OnSuccess: func() { ch <- nil },
		OnError:   func(err error) { ch <- err },
	})
	return <-ch
}

func (f *layerFixture) get(t *testing.T, table string, key any) *Entry {
	t.Helper()
	return must(GetValue[Entry](f.Layer, Query{Table: table, Key: key}).Await(testCtx(t)))
}

func (f *layerFixture) last(t *testing.T, table string) *Entry {
	t.Helper()
	return must(GetLastValueFromTable[Entry](f.Layer, table, KeyPath).Await(testCtx(t)))
}

func TestLayerWithoutDatabase(t *testing.T) {
	f := setupLayer(t, setup(t, Options{InMemory: true}))

	if f.GetDatabase() != nil {
		t.Fatalf("** GetDatabase() != nil")
	}
	if v := f.get(t, "entries", "a"); v != nil {
		t.Errorf("GetValue = %v, wanted nil", v)
	}
	if v := f.last(t, "entries"); v != nil {
		t.Errorf("GetLastValueFromTable = %v, wanted nil", v)
	}
	must(f.DestroyDatabase("app").Await(testCtx(t)))

	called := false
	f.SaveValue(Save{Table: "entries", Value: &Entry{ID: "a"}, OnSuccess: func(any) { called = true }, OnError: func(error) { called = true }})
	f.DeleteValue(Delete{Table: "entries", Key: "a", OnSuccess: func() { called = true }, OnError: func(error) { called = true }})
	if called {
		t.Errorf("** callbacks invoked without a database")
	}
	store, err := f.CreateTable("entries", nil)
	if store != nil || err != nil {
		t.Errorf("CreateTable = (%v, %v), wanted (nil, nil)", store, err)
	}
	ensure(f.DeleteTable("entries"))

	logs := f.logBuf.String()
	for _, msg := range []string{"no database to destroy", "no database to save into", "no database to delete from", "no database to create table in"} {
		if !strings.Contains(logs, msg) {
			t.Errorf("** missing log %q in:\n%s", msg, logs)
		}
	}
	for _, stage := range boundary.Stages() {
		deepEqual(t, f.boundary.Count(stage), uint64(0))
	}
}

func TestLayerRecords(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		f := setupLayer(t, e, "entries")

		deepEqual(t, f.GetDatabase().ObjectStoreNames(), []string{"entries"})
		deepEqual(t, must(readStore(t, f.GetDatabase(), "entries").Index(KeyPath)).Unique(), true)

		deepEqual(t, f.get(t, "entries", "a"), (*Entry)(nil))
		deepEqual(t, f.last(t, "entries"), (*Entry)(nil))

		key, err := f.save(t, SaveAdd, "entries", &Entry{ID: "b", Body: "first"})
		ensure(err)
		deepEqual(t, key, any("b"))
		deepEqual(t, f.get(t, "entries", "b"), &Entry{ID: "b", Body: "first"})

		_, err = f.save(t, SaveAdd, "entries", &Entry{ID: "b", Body: "again"})
		if !errors.Is(err, ErrConstraint) {
			t.Fatalf("second add: err = %v, wanted ErrConstraint", err)
		}
		deepEqual(t, f.get(t, "entries", "b"), &Entry{ID: "b", Body: "first"})

		_, err = f.save(t, SavePut, "entries", &Entry{ID: "b", Body: "second"})
		ensure(err)
		deepEqual(t, f.get(t, "entries", "b"), &Entry{ID: "b", Body: "second"})

		must(f.save(t, SavePut, "entries", &Entry{ID: "c", Body: "third"}))
		must(f.save(t, SavePut, "entries", &Entry{ID: "a", Body: "zeroth"}))
		deepEqual(t, f.last(t, "entries"), &Entry{ID: "c", Body: "third"})

		ensure(f.delete(t, "entries", "c"))
		deepEqual(t, f.get(t, "entries", "c"), (*Entry)(nil))
		deepEqual(t, f.last(t, "entries"), &Entry{ID: "b", Body: "second"})

		ensure(f.delete(t, "entries", "nope"))

		for _, stage := range boundary.Stages() {
			deepEqual(t, f.boundary.Count(stage), uint64(0))
		}
	})
}

func TestLayerCreateTableIsIdempotent(t *testing.T) {
	e := setup(t, Options{InMemory: true})
	f := setupLayer(t, e, "entries")
	must(f.save(t, SavePut, "entries", &Entry{ID: "a", Body: "kept"}))

	var created *ObjectStore
	db := openDB(t, e, "app", 2, func(db *DB, tx *Tx, oldVersion, newVersion uint64) error {
		var err error
		created, err = f.CreateTable("entries", db)
		if err != nil {
			return err
		}
		_, err = f.CreateTable("log", db)
		return err
	})
	if created != nil {
		t.Errorf("** CreateTable returned a handle for an existing table")
	}
	f.holder.Set(db)
	deepEqual(t, db.ObjectStoreNames(), []string{"entries", "log"})
	deepEqual(t, f.get(t, "entries", "a"), &Entry{ID: "a", Body: "kept"})
}

func TestLayerTableLifecycleNeedsUpgrade(t *testing.T) {
	e := setup(t, Options{InMemory: true})
	f := setupLayer(t, e, "entries")

	if _, err := f.CreateTable("other", nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("CreateTable outside upgrade: err = %v, wanted ErrInvalidState", err)
	}
	if err := f.DeleteTable("entries"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("DeleteTable outside upgrade: err = %v, wanted ErrInvalidState", err)
	}

	db := openDB(t, e, "app", 2, func(db *DB, tx *Tx, oldVersion, newVersion uint64) error {
		f.holder.Set(db)
		return f.DeleteTable("entries")
	})
	isempty(t, db.ObjectStoreNames())
}

func TestLayerStageFailures(t *testing.T) {
	e := setup(t, Options{InMemory: true})
	f := setupLayer(t, e, "entries")

	t.Run("missing table on read", func(t *testing.T) {
		_, err := GetValue[Entry](f.Layer, Query{Table: "missing", Key: "a"}).Await(testCtx(t))
		var ue *UncaughtError
		if !errors.As(err, &ue) {
			t.Fatalf("err = %v, wanted *UncaughtError", err)
		}
		if s, _ := boundary.StageOf(err); s != boundary.TransactionOpen {
			t.Fatalf("stage = %q, wanted %q", s, boundary.TransactionOpen)
		}
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, wanted ErrNotFound in chain", err)
		}
		deepEqual(t, f.boundary.Count(boundary.TransactionOpen), uint64(1))
	})

	t.Run("missing index", func(t *testing.T) {
		_, err := GetLastValueFromTable[Entry](f.Layer, "entries", "nope").Await(testCtx(t))
		if s, _ := boundary.StageOf(err); s != boundary.IndexAcquire {
			t.Fatalf("stage = %q, wanted %q (err = %v)", s, boundary.IndexAcquire, err)
		}
		deepEqual(t, f.boundary.Count(boundary.IndexAcquire), uint64(1))
	})

	t.Run("record without key", func(t *testing.T) {
		called := false
		f.SaveValue(Save{
			Table:     "entries",
			Value:     map[string]any{"body": "no id"},
			OnSuccess: func(any) { called = true },
			OnError:   func(error) { called = true },
		})
		if called {
			t.Errorf("** callbacks invoked for a save that was never issued")
		}
		deepEqual(t, f.boundary.Count(boundary.RecordCreate), uint64(1))
		if !strings.Contains(f.logBuf.String(), "save failed") {
			t.Errorf("** save failure not logged:\n%s", f.logBuf.String())
		}
	})

	t.Run("missing table on delete", func(t *testing.T) {
		f.DeleteValue(Delete{Table: "missing", Key: "a"})
		deepEqual(t, f.boundary.Count(boundary.TransactionOpen), uint64(2))
		if !strings.Contains(f.logBuf.String(), "delete failed") {
			t.Errorf("** delete failure not logged:\n%s", f.logBuf.String())
		}
	})

	lines := strings.Count(f.boundBuf.String(), "\n")
	deepEqual(t, lines, 4)
}

func TestLayerDestroyDatabase(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *Engine) {
		f := setupLayer(t, e, "entries")
		must(f.save(t, SavePut, "entries", &Entry{ID: "a"}))

		must(f.DestroyDatabase("app").Await(testCtx(t)))
		if !f.GetDatabase().IsClosed() {
			t.Fatalf("** handle still usable after destroy")
		}

		db := openDB(t, e, "app", 1, func(db *DB, tx *Tx, oldVersion, newVersion uint64) error {
			_, err := f.CreateTable("entries", db)
			return err
		})
		f.holder.Set(db)
		deepEqual(t, f.get(t, "entries", "a"), (*Entry)(nil))
	})
}

func TestHolder(t *testing.T) {
	e := setup(t, Options{InMemory: true})
	var h Holder
	if h.Current() != nil {
		t.Fatalf("** zero Holder has a handle")
	}
	a := openDB(t, e, "a", 1, nil)
	b := openDB(t, e, "b", 1, nil)
	deepEqual(t, h.Set(a), (*DB)(nil))
	deepEqual(t, h.Current(), a)
	deepEqual(t, h.Set(b), a)
	deepEqual(t, h.Current(), b)
}
