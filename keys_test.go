package objstore

import (
	"bytes"
	"errors"
	"math"
	"sort"
	"testing"
	"time"
)

func TestEncodeKeyOrder(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ordered := []any{
		math.Inf(-1),
		-1e10,
		-1,
		-0.5,
		0,
		0.5,
		1,
		uint8(2),
		1e10,
		math.Inf(1),
		time.Unix(0, 0).Add(-time.Hour),
		t0,
		t0.Add(time.Nanosecond),
		"",
		"\x00",
		"\x00\x00",
		"\x01",
		"a",
		"a\x00",
		"ab",
		"b",
		[]byte{},
		[]byte{0},
		[]byte{0, 0xFF},
		[]byte{1},
	}
	for i := 1; i < len(ordered); i++ {
		a, b := ordered[i-1], ordered[i]
		if c := must(CompareKeys(a, b)); c >= 0 {
			t.Errorf("CompareKeys(%#v, %#v) = %d, wanted < 0", a, b, c)
		}
	}
}

func TestEncodeKeyRoundTrip(t *testing.T) {
	t0 := time.Date(2024, 2, 3, 4, 5, 6, 7, time.UTC)
	o := func(in, exp any) {
		t.Helper()
		raw := mustEncodeKey(in)
		deepEqual(t, must(decodeSingleKey(raw)), exp)
	}
	o(42, 42.0)
	o(int64(-7), -7.0)
	o(float32(1.5), 1.5)
	o(math.Inf(-1), math.Inf(-1))
	o("hello", "hello")
	o("", "")
	o("a\x00b", "a\x00b")
	o([]byte{0, 1, 0}, []byte{0, 1, 0})
	o([]byte(nil), []byte{})
	o(t0, t0)
}

func TestEncodeKeyNegativeZero(t *testing.T) {
	deepEqual(t, mustEncodeKey(math.Copysign(0, -1)), mustEncodeKey(0))
}

func TestEncodeKeyLimits(t *testing.T) {
	y1600 := time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC)
	y2000 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	y2500 := time.Date(2500, 6, 1, 12, 0, 0, 999999999, time.UTC)
	ordered := []any{
		math.Inf(-1),
		-1 << 53,
		math.Copysign(0, -1),
		uint64(1) << 53,
		math.MaxFloat64,
		math.Inf(1),
		time.Date(-500, 3, 1, 0, 0, 0, 0, time.UTC),
		y1600,
		y1600.Add(time.Nanosecond),
		y2000,
		y2500,
		time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC),
		"",
	}
	for i := 1; i < len(ordered); i++ {
		a, b := ordered[i-1], ordered[i]
		if c := must(CompareKeys(a, b)); c >= 0 {
			t.Errorf("CompareKeys(%v, %v) = %d, wanted < 0", a, b, c)
		}
	}
	deepEqual(t, must(CompareKeys(math.Copysign(0, -1), 0)), 0)

	for _, d := range []time.Time{y1600, y2500, time.Date(-500, 3, 1, 0, 0, 0, 1, time.UTC)} {
		deepEqual(t, must(decodeSingleKey(mustEncodeKey(d))), any(d))
	}
	deepEqual(t, must(decodeSingleKey(mustEncodeKey(int64(-1<<53)))), any(float64(-1<<53)))
}

func TestEncodeKeyRejectsInexactIntegers(t *testing.T) {
	for _, k := range []any{int64(1<<53 + 1), int64(-1<<53 - 1), uint64(1<<53 + 1), uint64(math.MaxUint64), math.MaxInt64} {
		if _, err := encodeKey(nil, k); !errors.Is(err, ErrData) {
			t.Errorf("encodeKey(%v): err = %v, wanted ErrData", k, err)
		}
	}
	if _, err := CompareKeys(int64(1<<53), int64(1<<53+1)); !errors.Is(err, ErrData) {
		t.Errorf("CompareKeys: err = %v, wanted ErrData", err)
	}
}

func TestEncodeKeyInvalid(t *testing.T) {
	for _, k := range []any{nil, math.NaN(), struct{}{}, []int{1}, true} {
		if _, err := encodeKey(nil, k); !errors.Is(err, ErrData) {
			t.Errorf("encodeKey(%#v): err = %v, wanted ErrData", k, err)
		}
	}
}

func TestEncodedKeysArePrefixFree(t *testing.T) {
	keys := []any{"", "a", "a\x00", "ab", []byte{}, []byte{0}, 1, 2}
	for _, a := range keys {
		for _, b := range keys {
			ra, rb := mustEncodeKey(a), mustEncodeKey(b)
			if !bytes.Equal(ra, rb) && bytes.HasPrefix(rb, ra) {
				t.Errorf("%x (%#v) is a prefix of %x (%#v)", ra, a, rb, b)
			}
		}
	}
}

func TestDecodeKeyComposite(t *testing.T) {
	raw := append(mustEncodeKey("b"), mustEncodeKey(5)...)
	k, rest, err := decodeKey(raw)
	ensure(err)
	deepEqual(t, k, any("b"))
	deepEqual(t, must(decodeSingleKey(rest)), any(5.0))
	deepEqual(t, rawKeyString(raw), "b|5")

	if _, err := decodeSingleKey(raw); !errors.Is(err, ErrData) {
		t.Errorf("decodeSingleKey(composite): err = %v, wanted ErrData", err)
	}
}

func TestDecodeKeyMalformed(t *testing.T) {
	for _, raw := range [][]byte{
		nil,
		{0x99},
		{keyKindNumber, 1, 2},
		{keyKindString, 'a'},
		{keyKindString, 'a', 0, 7},
	} {
		if _, _, err := decodeKey(raw); !errors.Is(err, ErrData) {
			t.Errorf("decodeKey(%x): err = %v, wanted ErrData", raw, err)
		}
	}
}

func TestEncodedKeysSortLikeKeys(t *testing.T) {
	in := []any{"b", 3, "a", -2, []byte{9}, 10, "aa"}
	raws := make([][]byte, len(in))
	for i, k := range in {
		raws[i] = mustEncodeKey(k)
	}
	sort.Slice(raws, func(i, j int) bool { return bytes.Compare(raws[i], raws[j]) < 0 })
	var out []any
	for _, raw := range raws {
		out = append(out, must(decodeSingleKey(raw)))
	}
	deepEqual(t, out, []any{-2.0, 3.0, 10.0, "a", "aa", "b", []byte{9}})
}
