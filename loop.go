package objstore

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/andreyvit/objstore/boundary"
)

// loop runs jobs one at a time, in submission order, on a single goroutine.
// All requests and all continuations of an Engine execute here.
type loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
	logger *slog.Logger
}

func newLoop(logger *slog.Logger) *loop {
	l := &loop{
		done:   make(chan struct{}),
		logger: logger,
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// submit queues job. It returns false once the loop is closed.
func (l *loop) submit(job func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, job)
	l.cond.Signal()
	return true
}

func (l *loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		job := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.safely(job)
	}
}

func (l *loop) safely(job func()) {
	defer func() {
		if p := recover(); p != nil {
			err := &boundary.Panicked{Reason: p, Stack: string(debug.Stack())}
			l.logger.LogAttrs(context.Background(), slog.LevelError, "objstore: job panicked", slog.Any("err", err))
		}
	}()
	job()
}

// close stops accepting jobs, runs the ones already queued and waits for the
// loop goroutine to exit. Must not be called from a job.
func (l *loop) close() {
	l.mu.Lock()
	l.closed = true
	l.cond.Broadcast()
	l.mu.Unlock()
	<-l.done
}

// call runs f on the loop and waits for its result.
func call[T any](ctx context.Context, l *loop, f func() (T, error)) (T, error) {
	fut := newFuture[T]()
	ok := l.submit(func() {
		v, err := safelyCall(f)
		if err != nil {
			fut.reject(err)
		} else {
			fut.resolve(v)
		}
	})
	if !ok {
		var zero T
		return zero, ErrClosed
	}
	return fut.Await(ctx)
}

func safelyCall[T any](f func() (T, error)) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero T
			v, err = zero, &boundary.Panicked{Reason: p, Stack: string(debug.Stack())}
		}
	}()
	return f()
}
