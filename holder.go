package objstore

import "sync/atomic"

// HandleSource yields the database handle the layer should use, or nil when
// no database is open.
type HandleSource interface {
	Current() *DB
}

// Holder is a HandleSource that can be set from anywhere.
type Holder struct {
	db atomic.Pointer[DB]
}

func (h *Holder) Current() *DB {
	return h.db.Load()
}

// Set replaces the held handle and returns the previous one.
func (h *Holder) Set(db *DB) *DB {
	return h.db.Swap(db)
}
