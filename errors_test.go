package objstore

import (
	"errors"
	"strings"
	"testing"
)

func TestEngineError(t *testing.T) {
	err := engineErrf("put", "items", "by_name", mustEncodeKey("bob"), ErrConstraint, "already has %d", 1)
	deepEqual(t, err.Error(), "put items.by_name/bob: already has 1: constraint violation")
	if !errors.Is(err, ErrConstraint) {
		t.Errorf("** errors.Is(ErrConstraint) = false")
	}

	err = engineErrf("get", "items", "", nil, ErrNotFound, "")
	deepEqual(t, err.Error(), "get items: not found")
}

func TestDataError(t *testing.T) {
	err := dataErrf([]byte{1, 2}, 1, nil, "bad %s", "key")
	deepEqual(t, err.Error(), "bad key: (2) 0102")
	if !errors.Is(err, ErrData) {
		t.Errorf("** errors.Is(ErrData) = false")
	}

	cause := errors.New("eof")
	err = dataErrf(make([]byte, 200), 0, cause, "truncated")
	if !errors.Is(err, cause) || !errors.Is(err, ErrData) {
		t.Errorf("** %v does not match both its cause and ErrData", err)
	}
	if s := err.Error(); !strings.HasPrefix(s, "truncated: eof: (200) ") || !strings.Contains(s, "...") {
		t.Errorf("** long data not abbreviated: %q", s)
	}
}

func TestUncaughtError(t *testing.T) {
	err := uncaught(ErrClosed)
	deepEqual(t, err.Error(), "uncaught error: database closed")
	if !errors.Is(err, ErrClosed) {
		t.Errorf("** errors.Is(ErrClosed) = false")
	}
}
