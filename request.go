package objstore

import (
	"context"
	"sync"
)

// Request is a pending engine operation. It settles exactly once, through
// either the success or the error channel; continuations registered with
// Then always run on the engine loop, never inside the call that registers them.
type Request[T any] struct {
	loop *loop

	mu         sync.Mutex
	settled    bool
	registered bool
	delivered  bool
	value      T
	err        error
	onSuccess  func(T)
	onError    func(error)
}

func newRequest[T any](l *loop) *Request[T] {
	return &Request[T]{loop: l}
}

// Then registers the continuations for both outcome channels. Either may be
// nil. Then may be called at most once.
func (r *Request[T]) Then(onSuccess func(T), onError func(error)) {
	r.mu.Lock()
	if r.registered {
		r.mu.Unlock()
		panic("objstore: Request.Then called twice")
	}
	r.registered = true
	r.onSuccess, r.onError = onSuccess, onError
	settled := r.settled
	r.mu.Unlock()

	if settled {
		r.dispatch()
	}
}

// settle records the outcome. Must run on the loop; continuations registered
// earlier are invoked right away.
func (r *Request[T]) settle(v T, err error) {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return
	}
	r.settled = true
	r.value, r.err = v, err
	registered := r.registered
	r.mu.Unlock()

	if registered {
		r.deliver()
	}
}

// settleDetached settles a request whose loop is no longer running.
func (r *Request[T]) settleDetached(err error) {
	var zero T
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return
	}
	r.settled = true
	r.value, r.err = zero, err
	registered := r.registered
	r.mu.Unlock()

	if registered {
		go r.deliver()
	}
}

func (r *Request[T]) dispatch() {
	if !r.loop.submit(r.deliver) {
		go r.deliver()
	}
}

func (r *Request[T]) deliver() {
	r.mu.Lock()
	if r.delivered {
		r.mu.Unlock()
		return
	}
	r.delivered = true
	v, err := r.value, r.err
	onSuccess, onError := r.onSuccess, r.onError
	r.mu.Unlock()

	if err != nil {
		if onError != nil {
			onError(err)
		}
	} else if onSuccess != nil {
		onSuccess(v)
	}
}

// Future converts the request into a Future. It registers the request's
// continuations, so Then can no longer be used afterwards.
func (r *Request[T]) Future() *Future[T] {
	f := newFuture[T]()
	r.Then(f.resolve, f.reject)
	return f
}

// Future is a value that becomes available later, or a failure.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future that already holds v.
func Resolved[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.resolve(v)
	return f
}

// Rejected returns a Future that already failed with err.
func Rejected[T any](err error) *Future[T] {
	f := newFuture[T]()
	f.reject(err)
	return f
}

func (f *Future[T]) resolve(v T) {
	f.once.Do(func() {
		f.value = v
		close(f.done)
	})
}

func (f *Future[T]) reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future is settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await waits for the outcome. A done ctx stops the wait, not the operation.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
