package objstore

import (
	"testing"
)

func TestEscaping(t *testing.T) {
	o := func(in []byte, exp string) {
		t.Helper()
		raw := appendEscaped([]byte{0xAA}, in)
		deepEqual(t, hexstr(raw), exp)

		v, rest, ok := readEscaped(append(raw[1:], 0xBB))
		if !ok {
			t.Fatalf("** readEscaped(%x) failed", raw[1:])
		}
		deepEqual(t, v, append([]byte{}, in...))
		deepEqual(t, rest, []byte{0xBB})
	}
	o(nil, "aa0000")
	o([]byte("ab"), "aa61620000")
	o([]byte{0}, "aa00ff0000")
	o([]byte{0, 0, 1}, "aa00ff00ff010000")
	o([]byte{0xFF, 0}, "aaff00ff0000")
}

func TestBytesBuilder(t *testing.T) {
	var bb bytesBuilder
	must(bb.Write([]byte("abc")))
	ensure(bb.WriteByte('d'))
	must(bb.Write(make([]byte, 40)))
	deepEqual(t, len(bb.Buf), 44)
	deepEqual(t, string(bb.Buf[:4]), "abcd")
	if cap(bb.Buf) < 44 {
		t.Errorf("** cap = %d", cap(bb.Buf))
	}
}

func TestAppendUint64(t *testing.T) {
	deepEqual(t, hexstr(appendUint64([]byte{1}, 0x0102030405060708)), "010102030405060708")
}

func TestHexstr(t *testing.T) {
	deepEqual(t, hexstr(nil), "<nil>")
	deepEqual(t, hexstr([]byte{}), "<empty>")
	deepEqual(t, hexstr([]byte{0xAB}), "ab")
	deepEqual(t, hexAttr("k", []byte{1}).Value.String(), "01")
}
