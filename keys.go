package objstore

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Encoded keys start with a kind tag so that keys of different kinds compare
// as number < date < string < binary.
const (
	keyKindNumber byte = 0x10
	keyKindDate   byte = 0x20
	keyKindString byte = 0x30
	keyKindBinary byte = 0x40
)

// dateKeyLen is the tag, the sign-flipped Unix seconds and the nanoseconds.
const dateKeyLen = 1 + 8 + 4

// normalizeKey converts a Go value into the canonical key value: all numbers
// become float64, time.Time is kept, strings and byte slices are kept.
func normalizeKey(key any) (any, error) {
	switch v := key.(type) {
	case int:
		return normalizeInt(int64(v))
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return normalizeInt(v)
	case uint:
		return normalizeUint(uint64(v))
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return normalizeUint(v)
	case float32:
		return normalizeFloat(float64(v))
	case float64:
		return normalizeFloat(v)
	case string:
		return v, nil
	case []byte:
		if v == nil {
			v = []byte{}
		}
		return v, nil
	case time.Time:
		return v, nil
	case nil:
		return nil, fmt.Errorf("%w: key is missing", ErrData)
	default:
		return nil, fmt.Errorf("%w: %T is not a valid key", ErrData, key)
	}
}

// maxExactInt is the largest magnitude an integer key can have without
// colliding with a neighbour once converted to float64.
const maxExactInt = 1 << 53

func normalizeInt(v int64) (any, error) {
	if v > maxExactInt || v < -maxExactInt {
		return nil, fmt.Errorf("%w: integer key %d is not exactly representable", ErrData, v)
	}
	return float64(v), nil
}

func normalizeUint(v uint64) (any, error) {
	if v > maxExactInt {
		return nil, fmt.Errorf("%w: integer key %d is not exactly representable", ErrData, v)
	}
	return float64(v), nil
}

func normalizeFloat(v float64) (any, error) {
	if math.IsNaN(v) {
		return nil, fmt.Errorf("%w: NaN is not a valid key", ErrData)
	}
	return v, nil
}

func encodeKey(buf []byte, key any) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	switch v := key.(type) {
	case float64:
		buf = append(buf, keyKindNumber)
		return appendUint64(buf, orderedFloatBits(v)), nil
	case time.Time:
		buf = append(buf, keyKindDate)
		buf = appendUint64(buf, uint64(v.Unix())^(1<<63))
		return binary.BigEndian.AppendUint32(buf, uint32(v.Nanosecond())), nil
	case string:
		buf = append(buf, keyKindString)
		return appendEscaped(buf, []byte(v)), nil
	case []byte:
		buf = append(buf, keyKindBinary)
		return appendEscaped(buf, v), nil
	default:
		panic("unreachable")
	}
}

func mustEncodeKey(key any) []byte {
	return must(encodeKey(nil, key))
}

func orderedFloatBits(v float64) uint64 {
	if v == 0 {
		v = 0 // -0 sorts as 0
	}
	b := math.Float64bits(v)
	if b&(1<<63) != 0 {
		return ^b
	}
	return b | (1 << 63)
}

func floatFromOrderedBits(b uint64) float64 {
	if b&(1<<63) != 0 {
		return math.Float64frombits(b &^ (1 << 63))
	}
	return math.Float64frombits(^b)
}

// decodeKey decodes one key from the start of raw and returns the remainder.
func decodeKey(raw []byte) (any, []byte, error) {
	if len(raw) == 0 {
		return nil, nil, dataErrf(raw, 0, nil, "empty key")
	}
	switch raw[0] {
	case keyKindNumber:
		if len(raw) < 9 {
			return nil, nil, dataErrf(raw, 1, nil, "truncated number key")
		}
		return floatFromOrderedBits(binary.BigEndian.Uint64(raw[1:9])), raw[9:], nil
	case keyKindDate:
		if len(raw) < dateKeyLen {
			return nil, nil, dataErrf(raw, 1, nil, "truncated date key")
		}
		sec := int64(binary.BigEndian.Uint64(raw[1:9]) ^ (1 << 63))
		nsec := binary.BigEndian.Uint32(raw[9:dateKeyLen])
		if nsec >= 1e9 {
			return nil, nil, dataErrf(raw, 9, nil, "invalid nanoseconds in date key")
		}
		return time.Unix(sec, int64(nsec)).UTC(), raw[dateKeyLen:], nil
	case keyKindString:
		v, rest, ok := readEscaped(raw[1:])
		if !ok {
			return nil, nil, dataErrf(raw, 1, nil, "malformed string key")
		}
		return string(v), rest, nil
	case keyKindBinary:
		v, rest, ok := readEscaped(raw[1:])
		if !ok {
			return nil, nil, dataErrf(raw, 1, nil, "malformed binary key")
		}
		return v, rest, nil
	default:
		return nil, nil, dataErrf(raw, 0, nil, "unknown key kind %02x", raw[0])
	}
}

func decodeSingleKey(raw []byte) (any, error) {
	k, rest, err := decodeKey(raw)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, dataErrf(raw, len(raw)-len(rest), nil, "trailing data after key")
	}
	return k, nil
}

// CompareKeys orders two keys the way the engine does.
func CompareKeys(a, b any) (int, error) {
	ra, err := encodeKey(nil, a)
	if err != nil {
		return 0, err
	}
	rb, err := encodeKey(nil, b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ra, rb), nil
}

// rawKeyString renders an encoded key (or a sequence of keys) for messages.
func rawKeyString(raw []byte) string {
	var parts []string
	for len(raw) > 0 {
		k, rest, err := decodeKey(raw)
		if err != nil {
			parts = append(parts, hex.EncodeToString(raw))
			break
		}
		parts = append(parts, formatKey(k))
		raw = rest
	}
	return strings.Join(parts, "|")
}

func formatKey(k any) string {
	switch v := k.(type) {
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case string:
		return v
	case []byte:
		return hex.EncodeToString(v)
	default:
		return fmt.Sprint(v)
	}
}
