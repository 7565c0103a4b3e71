package server

import (
	"context"
	"reflect"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// Deferred is a result that becomes available later. Any value with a
// matching Then method is accepted, not only *Future.
//
// Then must arrange for exactly one of the continuations to run once the
// outcome is known.
type Deferred interface {
	Then(onSuccess func(result any), onFailure func(err error))
}

// outcome is the normalised result of invoking a handler: an immediate
// result, an immediate failure, or a deferred value to subscribe to.
type outcome struct {
	result   any
	err      error
	deferred Deferred
}

// invokeSync runs a synchronous handler on a copy of params, converting a
// panic into a failure.
func invokeSync(ctx context.Context, h HandlerFunc, params protocol.Params) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: protocol.FromPanic(r)}
		}
	}()

	v, err := h(ctx, params.Clone())
	if err != nil {
		return outcome{err: err}
	}
	if d, ok := v.(Deferred); ok && !isNilPointer(v) {
		return outcome{deferred: d}
	}
	return outcome{result: v}
}

// invokeAsync runs a callback-pair handler. The returned outcome is always
// deferred; a panic before either callback fires rejects it.
func invokeAsync(ctx context.Context, h AsyncHandlerFunc, params protocol.Params) (out outcome) {
	f := NewFuture()
	out = outcome{deferred: f}

	defer func() {
		if r := recover(); r != nil {
			f.Reject(protocol.FromPanic(r))
		}
	}()

	h(ctx, params.Clone(),
		func(v any) { f.Resolve(v) },
		func(err error) { f.Reject(err) },
	)
	return out
}

func invoke(ctx context.Context, reg *Registration, params protocol.Params) outcome {
	if reg.mode == CallbackPair {
		return invokeAsync(ctx, reg.async, params)
	}
	return invokeSync(ctx, reg.sync, params)
}

// subscribe attaches continuations to d. A panic while registering them is
// reported through onFailure.
func subscribe(d Deferred, onSuccess func(any), onFailure func(error)) {
	defer func() {
		if r := recover(); r != nil {
			onFailure(protocol.FromPanic(r))
		}
	}()
	d.Then(onSuccess, onFailure)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
