/*
Package boundary classifies failures of storage acquisition steps by stage and
reports them through a single shared dispatch point.

A stage handler runs one acquisition step (opening a transaction, acquiring a
table, issuing a create, acquiring an index, opening a cursor). If the step
fails, the failure is tagged with the stage, reported exactly once, and handed
back to the caller, which must propagate it. Classification only drives
reporting; nothing here ever recovers from a failure.
*/
package boundary

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
)

// Boundary applies the reporting policy to tagged failures.
type Boundary struct {
	logger   *slog.Logger
	set      *metrics.Set
	counters map[Stage]*metrics.Counter
}

type Options struct {
	Logger *slog.Logger
	// MetricPrefix is prepended to the failure counter name. Defaults to "objstore".
	MetricPrefix string
}

// Default is the process-wide boundary used when a nil *Boundary is passed
// to a stage handler.
var Default = New(Options{})

func New(opt Options) *Boundary {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	prefix := opt.MetricPrefix
	if prefix == "" {
		prefix = "objstore"
	}
	b := &Boundary{
		logger:   logger,
		set:      metrics.NewSet(),
		counters: make(map[Stage]*metrics.Counter, len(stages)),
	}
	for _, s := range stages {
		b.counters[s] = b.set.GetOrCreateCounter(fmt.Sprintf(`%s_boundary_failures_total{stage=%q}`, prefix, string(s)))
	}
	return b
}

// Report runs the policy for the error's stage and returns err unchanged.
// Errors without a stage are returned as is, without a diagnostic.
func (b *Boundary) Report(err error) error {
	if err == nil {
		return nil
	}
	if b == nil {
		b = Default
	}
	stage, ok := StageOf(err)
	if !ok {
		return err
	}
	switch stage {
	case TransactionOpen:
		b.emit(stage, err)
	case TableAcquire:
		b.emit(stage, err)
	case RecordCreate:
		b.emit(stage, err)
	case IndexAcquire:
		b.emit(stage, err)
	case CursorOpen:
		b.emit(stage, err)
	default:
		panic(fmt.Errorf("boundary: unknown stage %q", stage))
	}
	return err
}

func (b *Boundary) emit(stage Stage, err error) {
	b.counters[stage].Inc()
	b.logger.LogAttrs(context.Background(), slog.LevelError, string(stage),
		slog.String("stage", string(stage)),
		slog.Any("err", err))
}

// Count returns the number of failures reported for the stage.
func (b *Boundary) Count(stage Stage) uint64 {
	if b == nil {
		b = Default
	}
	c := b.counters[stage]
	if c == nil {
		return 0
	}
	return c.Get()
}

// WritePrometheus writes the failure counters in Prometheus text format.
func (b *Boundary) WritePrometheus(w io.Writer) {
	if b == nil {
		b = Default
	}
	b.set.WritePrometheus(w)
}

// Handle runs action under the given stage: on failure the tagged error is
// reported and returned, otherwise the action's value is returned unchanged.
func Handle[T any](b *Boundary, stage Stage, action func() (T, error)) (T, error) {
	v, err := Classify(stage, action)
	if err != nil {
		return v, b.Report(err)
	}
	return v, nil
}

func HandleTransactionErr[T any](b *Boundary, action func() (T, error)) (T, error) {
	return Handle(b, TransactionOpen, action)
}

func HandleTableErr[T any](b *Boundary, action func() (T, error)) (T, error) {
	return Handle(b, TableAcquire, action)
}

func HandleCreateErr[T any](b *Boundary, action func() (T, error)) (T, error) {
	return Handle(b, RecordCreate, action)
}

func HandleIndexErr[T any](b *Boundary, action func() (T, error)) (T, error) {
	return Handle(b, IndexAcquire, action)
}

func HandleOpenCursorErr[T any](b *Boundary, action func() (T, error)) (T, error) {
	return Handle(b, CursorOpen, action)
}
