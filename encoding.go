package objstore

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Records are stored as MsgPack. Structs use `msgpack` tags, falling back to
// `json` tags, so a key path names the encoded field.
const fallbackStructTag = "json"

func encodeValue(buf []byte, v any) ([]byte, error) {
	bb := bytesBuilder{buf}
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	enc.SetSortMapKeys(true)
	enc.SetCustomStructTag(fallbackStructTag)
	err := enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode %T using MsgPack: %v", ErrData, v, err)
	}
	return bb.Buf, nil
}

func decodeValue(buf []byte, ptr any) error {
	var r bytes.Reader
	r.Reset(buf)
	dec := msgpack.GetDecoder()
	dec.Reset(&r)
	dec.SetCustomStructTag(fallbackStructTag)
	err := dec.Decode(ptr)
	msgpack.PutDecoder(dec)
	if err != nil {
		return dataErrf(buf, 0, err, "failed to decode msgpack into %T", ptr)
	}
	return nil
}

// Record is a stored value as returned by the engine. The zero Record means
// that nothing is stored under the requested key.
type Record struct {
	raw []byte
}

// Exists reports whether the record holds a value.
func (r Record) Exists() bool {
	return r.raw != nil
}

// Raw returns the MsgPack encoding of the value.
func (r Record) Raw() []byte {
	return r.raw
}

// Decode unmarshals the value into ptr.
func (r Record) Decode(ptr any) error {
	if r.raw == nil {
		return fmt.Errorf("%w: record does not exist", ErrNotFound)
	}
	return decodeValue(r.raw, ptr)
}

func (r Record) String() string {
	if r.raw == nil {
		return "<none>"
	}
	var v any
	if err := decodeValue(r.raw, &v); err != nil {
		return fmt.Sprintf("<invalid %x>", r.raw)
	}
	return fmt.Sprint(v)
}

// document is a decoded record used to evaluate key paths.
type document struct {
	root any
}

func decodeDocument(raw []byte) (document, error) {
	var root any
	if err := decodeValue(raw, &root); err != nil {
		return document{}, err
	}
	return document{root}, nil
}

// lookup evaluates a dotted key path. An empty path yields the whole value.
func (doc document) lookup(keyPath string) (any, bool) {
	if keyPath == "" {
		return doc.root, true
	}
	cur := doc.root
	for _, comp := range strings.Split(keyPath, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[comp]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// keyAt evaluates keyPath and encodes the result as a key.
func (doc document) keyAt(keyPath string) ([]byte, error) {
	v, ok := doc.lookup(keyPath)
	if !ok {
		return nil, fmt.Errorf("%w: value has no %q", ErrData, keyPath)
	}
	return encodeKey(nil, v)
}
