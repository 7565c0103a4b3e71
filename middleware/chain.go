package middleware

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// HandlerFunc is the signature for request handlers. A handler answers a
// call by invoking respond at most once, possibly after returning.
// Notifications are never answered.
type HandlerFunc func(ctx context.Context, req *protocol.Request, respond protocol.Responder)

// Middleware wraps a handler with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes multiple middleware into a single middleware.
// Middleware are applied in order, so Chain(m1, m2, m3) results in
// m1 wrapping m2 wrapping m3 wrapping the final handler.
func Chain(middlewares ...Middleware) Middleware {
	return func(final HandlerFunc) HandlerFunc {
		// Apply middleware in reverse order so they execute in order
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// MiddlewareChain provides a fluent API for building middleware chains.
type MiddlewareChain struct {
	middlewares []Middleware
}

// Use creates a new middleware chain starting with the given middleware.
func Use(middlewares ...Middleware) *MiddlewareChain {
	return &MiddlewareChain{
		middlewares: middlewares,
	}
}

// Append adds middleware to the chain and returns the updated chain.
func (c *MiddlewareChain) Append(middlewares ...Middleware) *MiddlewareChain {
	c.middlewares = append(c.middlewares, middlewares...)
	return c
}

// Then applies the middleware chain to a handler and returns the wrapped handler.
func (c *MiddlewareChain) Then(handler HandlerFunc) HandlerFunc {
	return Chain(c.middlewares...)(handler)
}

// ThenFunc applies the middleware chain to a handler function and returns the wrapped handler.
func (c *MiddlewareChain) ThenFunc(fn func(ctx context.Context, req *protocol.Request, respond protocol.Responder)) HandlerFunc {
	return c.Then(HandlerFunc(fn))
}

// reject answers a call with err. Notifications are dropped.
func reject(req *protocol.Request, respond protocol.Responder, err *protocol.Error) {
	if req.IsNotification() || respond == nil {
		return
	}
	respond(protocol.NewErrorResponse(req.ID, err))
}

// onceResponder forwards the first response it receives and drops the rest.
// Middleware that may answer on behalf of the handler (timeouts, panics,
// cancellation) race the handler through one of these.
type onceResponder struct {
	mu   sync.Mutex
	done bool
	next protocol.Responder
}

func newOnceResponder(next protocol.Responder) *onceResponder {
	return &onceResponder{next: next}
}

func (o *onceResponder) Respond(resp *protocol.Response) bool {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return false
	}
	o.done = true
	o.mu.Unlock()

	if o.next != nil {
		o.next(resp)
	}
	return true
}

func (o *onceResponder) Responder() protocol.Responder {
	return func(resp *protocol.Response) { o.Respond(resp) }
}

func (o *onceResponder) Done() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}
