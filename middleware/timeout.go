package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// Timeout returns middleware that enforces a request deadline.
//
// The handler context carries the deadline. If a call has not been
// answered when it expires, a request timeout error is sent and any later
// response from the handler is dropped. Notifications only get the
// deadline.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request, respond protocol.Responder) {
			ctx, cancel := context.WithTimeout(ctx, d)

			if req.IsNotification() {
				time.AfterFunc(d, cancel)
				next(ctx, req, respond)
				return
			}

			once := newOnceResponder(respond)
			stop := context.AfterFunc(ctx, func() {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					once.Respond(protocol.NewErrorResponse(req.ID, protocol.NewRequestTimeout(d.String())))
				}
			})

			next(ctx, req, func(resp *protocol.Response) {
				if once.Respond(resp) {
					stop()
					cancel()
				}
			})
		}
	}
}
