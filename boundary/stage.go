package boundary

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Stage names one acquisition step of a storage operation.
type Stage string

const (
	TransactionOpen Stage = "TransactionOpenError"
	TableAcquire    Stage = "TableAcquireError"
	RecordCreate    Stage = "RecordCreateError"
	IndexAcquire    Stage = "IndexAcquireError"
	CursorOpen      Stage = "CursorOpenError"
)

var stages = [...]Stage{TransactionOpen, TableAcquire, RecordCreate, IndexAcquire, CursorOpen}

// Stages returns every known stage, in acquisition order.
func Stages() []Stage {
	return append([]Stage(nil), stages[:]...)
}

func (s Stage) String() string {
	return string(s)
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	for _, v := range stages {
		if v == s {
			return true
		}
	}
	return false
}

// Error is a failure tagged with the stage it happened in.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Stage)
	}
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of the first tagged error in err's chain.
func StageOf(err error) (Stage, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage, true
	}
	return "", false
}

// Panicked is what a recovered panic inside an action turns into.
type Panicked struct {
	Reason any
	Stack  string
}

func (p *Panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.Reason, p.Stack)
}

func (p *Panicked) Unwrap() error {
	if err, ok := p.Reason.(error); ok {
		return err
	}
	return nil
}

// Classify runs action and tags its failure with stage. A successful value
// is returned as is. A panic counts as a failure.
func Classify[T any](stage Stage, action func() (T, error)) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero T
			v, err = zero, &Error{Stage: stage, Err: &Panicked{p, string(debug.Stack())}}
		}
	}()
	v, err = action()
	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Stage == stage {
			return v, err
		}
		return v, &Error{Stage: stage, Err: err}
	}
	return v, nil
}
