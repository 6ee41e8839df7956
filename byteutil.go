package objstore

import (
	"encoding/binary"
	"io"
)

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	return off, buf[:newLen]
}

func appendRaw(buf []byte, chunk []byte) []byte {
	n := len(chunk)
	off, buf := grow(buf, n)
	copy(buf[off:], chunk)
	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	off, buf := grow(buf, 8)
	binary.BigEndian.PutUint64(buf[off:], v)
	return buf
}

// appendEscaped appends v followed by a 00 00 terminator, escaping every 00
// byte as 00 FF. The result sorts the same way as v and is never a prefix of
// another escaped value.
func appendEscaped(buf []byte, v []byte) []byte {
	for _, b := range v {
		if b == 0 {
			buf = append(buf, 0, 0xFF)
		} else {
			buf = append(buf, b)
		}
	}
	return append(buf, 0, 0)
}

// readEscaped is the inverse of appendEscaped. It returns the unescaped value
// and the remainder of buf after the terminator.
func readEscaped(buf []byte) (v []byte, rest []byte, ok bool) {
	for i := 0; i < len(buf); i++ {
		if buf[i] != 0 {
			v = append(v, buf[i])
			continue
		}
		if i+1 >= len(buf) {
			return nil, nil, false
		}
		switch buf[i+1] {
		case 0:
			if v == nil {
				v = []byte{}
			}
			return v, buf[i+2:], true
		case 0xFF:
			v = append(v, 0)
			i++
		default:
			return nil, nil, false
		}
	}
	return nil, nil, false
}

type bytesBuilder struct {
	Buf []byte
}

var _ io.Writer = (*bytesBuilder)(nil)

func (bb *bytesBuilder) Write(b []byte) (int, error) {
	bb.Buf = appendRaw(bb.Buf, b)
	return len(b), nil
}

func (bb *bytesBuilder) WriteByte(v byte) error {
	var off int
	off, bb.Buf = grow(bb.Buf, 1)
	bb.Buf[off] = v
	return nil
}
