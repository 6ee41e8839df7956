package objstore

import (
	"bytes"
	"fmt"
	"strings"
)

// KeyRange restricts a cursor to keys between two bounds. A nil *KeyRange
// covers every key.
type KeyRange struct {
	lower, upper         any
	hasLower, hasUpper   bool
	lowerOpen, upperOpen bool
}

// Only matches exactly key.
func Only(key any) *KeyRange {
	return &KeyRange{lower: key, upper: key, hasLower: true, hasUpper: true}
}

// LowerBound matches keys above key, and key itself unless open.
func LowerBound(key any, open bool) *KeyRange {
	return &KeyRange{lower: key, hasLower: true, lowerOpen: open}
}

// UpperBound matches keys below key, and key itself unless open.
func UpperBound(key any, open bool) *KeyRange {
	return &KeyRange{upper: key, hasUpper: true, upperOpen: open}
}

func Bound(lower, upper any, lowerOpen, upperOpen bool) *KeyRange {
	return &KeyRange{
		lower: lower, upper: upper,
		hasLower: true, hasUpper: true,
		lowerOpen: lowerOpen, upperOpen: upperOpen,
	}
}

func (r *KeyRange) Lower() (any, bool) { return r.lower, r.hasLower }
func (r *KeyRange) Upper() (any, bool) { return r.upper, r.hasUpper }

// Includes reports whether key falls within the range.
func (r *KeyRange) Includes(key any) (bool, error) {
	rr, err := r.rawRange(false)
	if err != nil {
		return false, err
	}
	raw, err := encodeKey(nil, key)
	if err != nil {
		return false, err
	}
	return rr.match(raw), nil
}

// rawRange converts the bounds into encoded form. Encoded keys are prefix-free
// and a complete key is only ever followed by a kind tag, so key+0xFF sorts
// after the key and after every composite key starting with it.
func (r *KeyRange) rawRange(reverse bool) (rawRange, error) {
	rr := rawRange{Reverse: reverse}
	if r == nil {
		return rr, nil
	}
	var lower, upper []byte
	var err error
	if r.hasLower {
		lower, err = encodeKey(nil, r.lower)
		if err != nil {
			return rr, fmt.Errorf("lower bound: %w", err)
		}
		if r.lowerOpen {
			rr.Lower = append(bytes.Clone(lower), 0xFF)
		} else {
			rr.Lower = lower
		}
		rr.LowerInc = true
	}
	if r.hasUpper {
		upper, err = encodeKey(nil, r.upper)
		if err != nil {
			return rr, fmt.Errorf("upper bound: %w", err)
		}
		if r.upperOpen {
			rr.Upper = upper
		} else {
			rr.Upper = append(bytes.Clone(upper), 0xFF)
		}
		rr.UpperInc = false
	}
	if lower != nil && upper != nil {
		cmp := bytes.Compare(lower, upper)
		if cmp > 0 || (cmp == 0 && (r.lowerOpen || r.upperOpen)) {
			return rr, fmt.Errorf("%w: empty key range %v", ErrData, r)
		}
	}
	return rr, nil
}

func (r *KeyRange) String() string {
	if r == nil {
		return "(*)"
	}
	var buf strings.Builder
	if r.hasLower {
		if r.lowerOpen {
			buf.WriteByte('(')
		} else {
			buf.WriteByte('[')
		}
		buf.WriteString(formatKey(r.lower))
	} else {
		buf.WriteString("(*")
	}
	buf.WriteString(", ")
	if r.hasUpper {
		buf.WriteString(formatKey(r.upper))
		if r.upperOpen {
			buf.WriteByte(')')
		} else {
			buf.WriteByte(']')
		}
	} else {
		buf.WriteString("*)")
	}
	return buf.String()
}
