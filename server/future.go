package server

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// Future is a one-shot deferred result. Returning a *Future from a
// HandlerFunc delays the response until the future settles.
//
// A Future is safe for concurrent use. Only the first Resolve or Reject
// takes effect.
type Future struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	ok        bool
	value     any
	err       error
	callbacks []continuation
}

type continuation struct {
	onSuccess func(any)
	onFailure func(error)
}

func (c continuation) run(v any, err error, ok bool) {
	if ok {
		if c.onSuccess != nil {
			c.onSuccess(v)
		}
		return
	}
	if c.onFailure != nil {
		c.onFailure(err)
	}
}

// NewFuture creates a pending future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Go runs fn in a new goroutine and returns a future settled with its
// outcome. A panic in fn rejects the future.
func Go(fn func() (any, error)) *Future {
	f := NewFuture()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.Reject(protocol.FromPanic(r))
			}
		}()
		v, err := fn()
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}

// Resolve settles the future with a value. It reports whether this call
// settled the future.
func (f *Future) Resolve(v any) bool {
	return f.settle(v, nil, true)
}

// Reject settles the future with an error. A nil error is still a
// rejection. It reports whether this call settled the future.
func (f *Future) Reject(err error) bool {
	return f.settle(nil, err, false)
}

func (f *Future) settle(v any, err error, ok bool) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.ok, f.value, f.err = ok, v, err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, c := range callbacks {
		c.run(v, err, ok)
	}
	return true
}

// Then registers continuations. If the future has already settled the
// matching continuation runs immediately on the calling goroutine;
// otherwise it runs on the goroutine that settles the future. Either
// argument may be nil.
func (f *Future) Then(onSuccess func(any), onFailure func(error)) {
	c := continuation{onSuccess: onSuccess, onFailure: onFailure}

	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, c)
		f.mu.Unlock()
		return
	}
	v, err, ok := f.value, f.err, f.ok
	f.mu.Unlock()

	c.run(v, err, ok)
}

// Done returns a channel that is closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx is done.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ok {
		return f.value, nil
	}
	if f.err == nil {
		return nil, protocol.NewInternalError(nil)
	}
	return nil, f.err
}
