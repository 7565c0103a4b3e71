package middleware

import (
	"context"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// PanicHandler converts a recovered panic into the error sent to the caller.
type PanicHandler func(ctx context.Context, req *protocol.Request, panicVal any) *protocol.Error

// Recover returns middleware that catches panics and converts them to internal errors.
// The panic value is included in the error data for debugging.
//
// Handlers registered on a server already recover their own panics; Recover
// guards the middleware above them. If the call was already answered
// before the panic, nothing more is sent.
func Recover() Middleware {
	return RecoverWithHandler(defaultPanicHandler)
}

// RecoverWithHandler returns middleware that catches panics and calls the provided handler.
// This allows for custom panic handling such as logging or alerting.
func RecoverWithHandler(handler PanicHandler) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request, respond protocol.Responder) {
			once := newOnceResponder(respond)
			defer func() {
				if r := recover(); r != nil {
					reject(req, once.Responder(), handler(ctx, req, r))
				}
			}()
			next(ctx, req, once.Responder())
		}
	}
}

func defaultPanicHandler(_ context.Context, _ *protocol.Request, panicVal any) *protocol.Error {
	return protocol.FromPanic(panicVal)
}
