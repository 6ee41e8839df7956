package objstore

import (
	"bytes"
	"context"
	"log/slog"
)

// rawRange is a range of encoded keys. A nil bound is open.
type rawRange struct {
	Lower    []byte
	Upper    []byte
	LowerInc bool
	UpperInc bool
	Reverse  bool
}

// start positions bcur on the first key of the range in iteration order.
// Seeks are logged when logger is not nil.
func (r *rawRange) start(bcur storageCursor, logger *slog.Logger) ([]byte, []byte) {
	var k, v []byte
	if r.Reverse {
		if r.Upper != nil {
			k, v = bcur.Seek(r.Upper)
			if logger != nil {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "db: SEEK upper", hexAttr("upper", r.Upper), hexAttr("key", k))
			}
			if k == nil {
				k, v = bcur.Last()
			} else if cmp := bytes.Compare(k, r.Upper); cmp > 0 || (cmp == 0 && !r.UpperInc) {
				k, v = bcur.Prev()
			}
		} else {
			k, v = bcur.Last()
		}
	} else {
		if r.Lower != nil {
			k, v = bcur.Seek(r.Lower)
			if logger != nil {
				logger.LogAttrs(context.Background(), slog.LevelDebug, "db: SEEK lower", hexAttr("lower", r.Lower), hexAttr("key", k))
			}
			if k != nil && !r.LowerInc && bytes.Equal(k, r.Lower) {
				k, v = bcur.Next()
			}
		} else {
			k, v = bcur.First()
		}
	}
	if k != nil && r.match(k) {
		return k, v
	}
	return nil, nil
}

func (r *rawRange) next(bcur storageCursor) ([]byte, []byte) {
	var k, v []byte
	if r.Reverse {
		k, v = bcur.Prev()
	} else {
		k, v = bcur.Next()
	}
	if k != nil && r.match(k) {
		return k, v
	}
	return nil, nil
}

func (r *rawRange) match(k []byte) bool {
	if r.Lower != nil {
		cmp := bytes.Compare(k, r.Lower)
		if cmp < 0 || (cmp == 0 && !r.LowerInc) {
			return false
		}
	}
	if r.Upper != nil {
		cmp := bytes.Compare(k, r.Upper)
		if cmp > 0 || (cmp == 0 && !r.UpperInc) {
			return false
		}
	}
	return true
}

// after narrows the range to the keys following k in iteration order.
func (r rawRange) after(k []byte) rawRange {
	k = bytes.Clone(k)
	if r.Reverse {
		r.Upper, r.UpperInc = k, false
	} else {
		r.Lower, r.LowerInc = k, false
	}
	return r
}
