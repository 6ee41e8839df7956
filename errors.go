package objstore

import (
	"errors"
	"fmt"
	"strings"
)

// Engine-level error kinds. Match them with errors.Is; the concrete error is
// usually an *EngineError carrying the operation context.
var (
	ErrNotFound      = errors.New("not found")
	ErrConstraint    = errors.New("constraint violation")
	ErrInvalidState  = errors.New("invalid state")
	ErrInvalidAccess = errors.New("invalid access")
	ErrReadOnly      = errors.New("read-only transaction")
	ErrData          = errors.New("invalid key or value")
	ErrVersion       = errors.New("version mismatch")
	ErrClosed        = errors.New("database closed")
)

// ErrLastValueCursor is the fixed rejection of GetLastValueFromTable when the
// cursor request fails.
var ErrLastValueCursor = errors.New("failed to read the last value from the index cursor")

type EngineError struct {
	Op    string
	Store string
	Index string
	Key   []byte
	Msg   string
	Err   error
}

func engineErrf(op, store, index string, key []byte, err error, format string, args ...any) error {
	return &EngineError{op, store, index, key, fmt.Sprintf(format, args...), err}
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) Error() string {
	var buf strings.Builder
	if e.Op != "" {
		buf.WriteString(e.Op)
		buf.WriteByte(' ')
	}
	buf.WriteString(e.Store)
	if e.Index != "" {
		buf.WriteByte('.')
		buf.WriteString(e.Index)
	}
	if e.Key != nil {
		buf.WriteByte('/')
		buf.WriteString(rawKeyString(e.Key))
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// DataError describes a malformed encoded key or value.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	if e.Err == nil {
		return ErrData
	}
	return e.Err
}

func (e *DataError) Is(target error) bool {
	return target == ErrData
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

// UncaughtError is how read operations reject when something fails before
// the engine request is issued.
type UncaughtError struct {
	Reason string
	Err    error
}

const uncaughtReason = "uncaught error"

func uncaught(err error) *UncaughtError {
	return &UncaughtError{Reason: uncaughtReason, Err: err}
}

func (e *UncaughtError) Error() string {
	return e.Reason + ": " + e.Err.Error()
}

func (e *UncaughtError) Unwrap() error {
	return e.Err
}
