package objstore

import (
	"bytes"
	"log/slog"
)

type Direction int

const (
	Next Direction = iota
	Prev
)

func (d Direction) String() string {
	if d == Prev {
		return "prev"
	}
	return "next"
}

// Cursor is positioned on one record. Advancing it issues a new request that
// yields the next position, or nil once the range is exhausted.
type Cursor struct {
	store *ObjectStore
	index *Index
	rng   rawRange
	pos   []byte

	key        any
	primaryKey any
	value      Record
}

// Key is the store key for store cursors and the index key for index cursors.
func (c *Cursor) Key() any             { return c.key }
func (c *Cursor) PrimaryKey() any      { return c.primaryKey }
func (c *Cursor) Value() Record        { return c.value }
func (c *Cursor) Direction() Direction { return direction(c.rng.Reverse) }

func direction(reverse bool) Direction {
	if reverse {
		return Prev
	}
	return Next
}

// OpenCursor iterates the store's records within rng in key order. The
// request yields a nil *Cursor if the range holds no records.
func (s *ObjectStore) OpenCursor(rng *KeyRange, dir Direction) (*Request[*Cursor], error) {
	return s.openCursor(nil, rng, dir)
}

// OpenCursor iterates the records referenced by the index within rng, in index
// key order and then primary key order.
func (idx *Index) OpenCursor(rng *KeyRange, dir Direction) (*Request[*Cursor], error) {
	return idx.store.openCursor(idx, rng, dir)
}

func (s *ObjectStore) openCursor(idx *Index, rng *KeyRange, dir Direction) (*Request[*Cursor], error) {
	var iname string
	if idx != nil {
		iname = idx.name
	}
	if err := s.check("cursor", false); err != nil {
		return nil, err
	}
	rr, err := rng.rawRange(dir == Prev)
	if err != nil {
		return nil, engineErrf("cursor", s.name, iname, nil, err, "")
	}
	return s.step(idx, rr), nil
}

// Continue advances the cursor.
func (c *Cursor) Continue() (*Request[*Cursor], error) {
	if err := c.store.check("cursor.continue", false); err != nil {
		return nil, err
	}
	return c.store.step(c.index, c.rng.after(c.pos)), nil
}

func (s *ObjectStore) step(idx *Index, rr rawRange) *Request[*Cursor] {
	return issue(s.tx, func(stx storageTx) (*Cursor, error) {
		_, data, _, err := s.buckets("cursor", stx)
		if err != nil {
			return nil, err
		}
		b, iname := data, ""
		if idx != nil {
			iname = idx.name
			b = stx.Bucket(storeBucketName(s.name), indexBucketName(idx.name))
			if b == nil {
				return nil, engineErrf("cursor", s.name, iname, nil, ErrNotFound, "index no longer exists")
			}
		}

		var logger *slog.Logger
		if e := s.tx.db.engine; e.verbose {
			logger = e.logger
		}
		bcur := b.Cursor()
		for k, v := rr.start(bcur, logger); k != nil; k, v = rr.next(bcur) {
			cur := &Cursor{store: s, index: idx, rng: rr, pos: bytes.Clone(k)}
			if idx == nil {
				cur.key, err = decodeSingleKey(k)
				if err != nil {
					return nil, engineErrf("cursor", s.name, "", k, err, "")
				}
				cur.primaryKey = cur.key
				cur.value = Record{bytes.Clone(v)}
			} else {
				cur.key, _, err = decodeKey(k)
				if err != nil {
					return nil, engineErrf("cursor", s.name, iname, k, err, "")
				}
				cur.primaryKey, err = decodeSingleKey(v)
				if err != nil {
					return nil, engineErrf("cursor", s.name, iname, v, err, "")
				}
				valueRaw := data.Get(v)
				if valueRaw == nil {
					continue
				}
				cur.value = Record{bytes.Clone(valueRaw)}
			}
			s.tx.logVerbose("db: CURSOR", slog.String("store", s.name), slog.String("index", iname), slog.String("dir", direction(rr.Reverse).String()), slog.String("key", rawKeyString(k)))
			return cur, nil
		}
		s.tx.logVerbose("db: CURSOR.END", slog.String("store", s.name), slog.String("index", iname), slog.String("dir", direction(rr.Reverse).String()))
		return nil, nil
	})
}
