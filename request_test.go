package objstore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/andreyvit/objstore/boundary"
)

func newTestLoop(t testing.TB) *loop {
	l := newLoop(slog.Default())
	t.Cleanup(l.close)
	return l
}

func TestRequestThenNeverRunsInline(t *testing.T) {
	l := newTestLoop(t)
	req := newRequest[int](l)
	got := make(chan int, 1)
	l.submit(func() {
		req.settle(42, nil)
		ran := false
		req.Then(func(v int) {
			ran = true
			got <- v
		}, nil)
		if ran {
			t.Errorf("** continuation ran inside Then")
		}
	})
	select {
	case v := <-got:
		deepEqual(t, v, 42)
	case <-time.After(5 * time.Second):
		t.Fatalf("** continuation never ran")
	}
}

func TestRequestSettlesOnce(t *testing.T) {
	l := newTestLoop(t)
	req := newRequest[int](l)
	boom := errors.New("boom")

	var successes, failures int
	done := make(chan struct{})
	req.Then(func(int) { successes++ }, func(error) { failures++ })
	l.submit(func() {
		req.settle(0, boom)
		req.settle(1, nil)
		req.deliver()
	})
	l.submit(func() { close(done) })
	<-done

	deepEqual(t, successes, 0)
	deepEqual(t, failures, 1)
}

func TestRequestThenTwicePanics(t *testing.T) {
	req := newRequest[int](newTestLoop(t))
	req.Then(nil, nil)
	defer func() {
		if recover() == nil {
			t.Errorf("** second Then did not panic")
		}
	}()
	req.Then(nil, nil)
}

func TestRequestSettledAfterLoopClosed(t *testing.T) {
	l := newLoop(slog.Default())
	l.close()
	req := newRequest[int](l)
	fut := req.Future()
	req.settleDetached(ErrClosed)
	_, err := fut.Await(testCtx(t))
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, wanted ErrClosed", err)
	}
}

func TestFuture(t *testing.T) {
	v, err := Resolved("x").Await(testCtx(t))
	deepEqual(t, v, "x")
	deepEqual(t, err, nil)

	boom := errors.New("boom")
	_, err = Rejected[int](boom).Await(testCtx(t))
	deepEqual(t, err, boom)

	f := newFuture[int]()
	f.resolve(1)
	f.reject(boom)
	f.resolve(2)
	deepEqual(t, must(f.Await(testCtx(t))), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newFuture[int]().Await(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, wanted context.Canceled", err)
	}
}

func TestCall(t *testing.T) {
	l := newTestLoop(t)
	deepEqual(t, must(call(testCtx(t), l, func() (int, error) { return 7, nil })), 7)

	_, err := call(testCtx(t), l, func() (int, error) { panic("oops") })
	var pe *boundary.Panicked
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, wanted *boundary.Panicked", err)
	}
	deepEqual(t, pe.Reason, any("oops"))

	l.close()
	if _, err := call(testCtx(t), l, func() (int, error) { return 0, nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, wanted ErrClosed", err)
	}
}

func TestLoopSurvivesPanickingJob(t *testing.T) {
	var buf bytes.Buffer
	l := newLoop(slog.New(slog.NewTextHandler(&buf, nil)))
	l.submit(func() { panic("kaboom") })
	deepEqual(t, must(call(testCtx(t), l, func() (string, error) { return "alive", nil })), "alive")
	l.close()
	if !strings.Contains(buf.String(), "kaboom") {
		t.Errorf("** panic not logged: %q", buf.String())
	}
}

func TestLoopRunsJobsInOrder(t *testing.T) {
	l := newTestLoop(t)
	var order []int
	for i := range 100 {
		l.submit(func() { order = append(order, i) })
	}
	must(call(testCtx(t), l, func() (struct{}, error) { return struct{}{}, nil }))
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d", i, v)
		}
	}
	deepEqual(t, len(order), 100)
}
