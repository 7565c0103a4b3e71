// Package middleware provides request middleware for JSON-RPC servers.
//
// Middleware wraps the next handler in the chain. Handlers answer through a
// responder callback instead of a return value, because a call may complete
// after the handler returns. Middleware that needs to observe the response
// wraps the responder.
//
// # Basic Usage
//
// Create and compose middleware:
//
//	chain := middleware.Chain(
//	    middleware.Recover(),
//	    middleware.RequestID(),
//	    middleware.Logging(logger),
//	)
//	handler := chain(srv.Dispatch)
//
// # Available Middleware
//
//   - Recover: Catches panics and converts them to internal errors
//   - RequestID: Injects ULID request IDs into the context
//   - Logging: Logs request details and timing
//   - Timeout: Answers calls that outlive a deadline
//   - Cancellation: Lets clients cancel pending calls
//   - RateLimit: Token bucket limits, global, per method or per client
//   - SizeLimit: Rejects oversized params
//   - Auth: API key, bearer token and JWT authentication
//   - OTel: OpenTelemetry spans and metrics
//
// # Default Stacks
//
//	// Recover + RequestID + Logging
//	stack := middleware.DefaultStack(logger)
//
//	// Recover + RequestID + Logging + Timeout
//	stack := middleware.DefaultStackWithTimeout(logger, 30*time.Second)
//
// # Custom Middleware
//
//	func Deny(method string) middleware.Middleware {
//	    return func(next middleware.HandlerFunc) middleware.HandlerFunc {
//	        return func(ctx context.Context, req *protocol.Request, respond protocol.Responder) {
//	            if req.Method == method && !req.IsNotification() {
//	                respond(protocol.NewErrorResponse(req.ID, protocol.NewServerError("denied")))
//	                return
//	            }
//	            next(ctx, req, respond)
//	        }
//	    }
//	}
package middleware
