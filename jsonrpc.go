// Package jsonrpc dispatches JSON-RPC 2.0 requests to registered Go handlers.
//
// Methods are registered by exact name or by regular expression, with an
// optional fallback that receives the method name as its last parameter.
// Handlers complete synchronously, through a succeed/fail callback pair, or
// by returning a Deferred value such as a *Future.
//
// Basic usage:
//
//	srv := jsonrpc.NewServer()
//
//	srv.Handle("sum", func(ctx context.Context, params jsonrpc.Params) (any, error) {
//	    var a, b int
//	    if err := params.Bind(&a, &b); err != nil {
//	        return nil, err
//	    }
//	    return a + b, nil
//	})
//
//	jsonrpc.ServeStdio(ctx, srv)
package jsonrpc

import (
	"context"
	"time"

	"github.com/felixgeelhaar/jsonrpc-go/middleware"
	"github.com/felixgeelhaar/jsonrpc-go/protocol"
	"github.com/felixgeelhaar/jsonrpc-go/server"
	"github.com/felixgeelhaar/jsonrpc-go/transport"
)

// Re-export core types for convenience

// Server is the method registry and dispatcher.
type Server = server.Server

// Option configures a Server.
type Option = server.Option

// Handler types
type HandlerFunc = server.HandlerFunc
type AsyncHandlerFunc = server.AsyncHandlerFunc
type Registration = server.Registration
type Deferred = server.Deferred
type Future = server.Future

// Wire types
type Params = protocol.Params
type Request = protocol.Request
type Response = protocol.Response
type Responder = protocol.Responder
type Error = protocol.Error

// Standard errors.
var (
	ErrParse          = protocol.ErrParse
	ErrInvalidRequest = protocol.ErrInvalidRequest
	ErrMethodNotFound = protocol.ErrMethodNotFound
	ErrInvalidParams  = protocol.ErrInvalidParams
	ErrInternal       = protocol.ErrInternal
	ErrServer         = protocol.ErrServer
)

// NewFuture creates a pending deferred result.
func NewFuture() *Future {
	return server.NewFuture()
}

// Go runs fn in a new goroutine and returns a future settled with its outcome.
func Go(fn func() (any, error)) *Future {
	return server.Go(fn)
}

// Middleware types
type Middleware = middleware.Middleware
type MiddlewareHandlerFunc = middleware.HandlerFunc
type Logger = middleware.Logger
type LogField = middleware.Field
type RateLimitOption = middleware.RateLimitOption

// RateLimit re-exports for convenience.
var (
	RateLimit            = middleware.RateLimit
	RateLimitByMethod    = middleware.RateLimitByMethod
	RateLimitByClient    = middleware.RateLimitByClient
	WithRateLimitKeyFunc = middleware.WithRateLimitKeyFunc
	WithRateLimitLogger  = middleware.WithRateLimitLogger
)

// SizeLimit re-exports for convenience.
type SizeLimitOption = middleware.SizeLimitOption

var (
	SizeLimit           = middleware.SizeLimit
	WithSizeLimitLogger = middleware.WithSizeLimitLogger
)

// Size limit presets.
const (
	KB = middleware.KB
	MB = middleware.MB
)

// ServeOption configures how the server is run.
type ServeOption func(*serveOptions)

type serveOptions struct {
	middleware []Middleware
	logger     Logger
}

// WithMiddleware adds middleware to the request handling chain.
func WithMiddleware(m ...Middleware) ServeOption {
	return func(o *serveOptions) {
		o.middleware = append(o.middleware, m...)
	}
}

// WithLogger installs the default middleware stack (recover, request id,
// logging) ahead of any middleware added with WithMiddleware.
func WithLogger(l Logger) ServeOption {
	return func(o *serveOptions) {
		o.logger = l
	}
}

// NewServer creates an empty server.
func NewServer(opts ...Option) *Server {
	return server.New(opts...)
}

// Handler adapts srv to a transport.Handler, wrapping dispatch in the
// configured middleware.
func Handler(srv *Server, opts ...ServeOption) transport.Handler {
	options := &serveOptions{}
	for _, opt := range opts {
		opt(options)
	}

	var chain []Middleware
	if options.logger != nil {
		chain = append(chain, middleware.DefaultStack(options.logger)...)
	}
	chain = append(chain, options.middleware...)

	if len(chain) == 0 {
		return transport.HandlerFunc(srv.DispatchRaw)
	}
	return transport.HandlerFunc(server.Raw(middleware.Chain(chain...)(srv.Dispatch)))
}

// ServeStdio runs the server over stdin and stdout.
// This blocks until the context is canceled, stdin is closed or an error occurs.
func ServeStdio(ctx context.Context, srv *Server, opts ...ServeOption) error {
	return transport.NewStdio().Serve(ctx, Handler(srv, opts...))
}

// ServeTCP runs the server as a newline-delimited TCP listener.
func ServeTCP(ctx context.Context, srv *Server, addr string, opts ...ServeOption) error {
	return transport.NewTCP(addr).Serve(ctx, Handler(srv, opts...))
}

// HTTPOption configures the HTTP transport.
type HTTPOption = transport.HTTPOption

// ServeHTTP runs the server as an HTTP POST endpoint.
// This blocks until the context is canceled or an error occurs.
func ServeHTTP(ctx context.Context, srv *Server, addr string, opts ...HTTPOption) error {
	return transport.NewHTTP(addr, opts...).Serve(ctx, Handler(srv))
}

// ServeHTTPWithMiddleware runs the server as an HTTP endpoint with middleware support.
func ServeHTTPWithMiddleware(ctx context.Context, srv *Server, addr string, httpOpts []HTTPOption, serveOpts ...ServeOption) error {
	return transport.NewHTTP(addr, httpOpts...).Serve(ctx, Handler(srv, serveOpts...))
}

// WithReadTimeout sets the read timeout for HTTP requests.
func WithReadTimeout(d time.Duration) HTTPOption {
	return transport.WithReadTimeout(d)
}

// WithWriteTimeout sets the write timeout for HTTP responses.
func WithWriteTimeout(d time.Duration) HTTPOption {
	return transport.WithWriteTimeout(d)
}

// WebSocketOption configures the WebSocket transport.
type WebSocketOption = transport.WebSocketOption

// ServeWebSocket runs the server using WebSocket transport.
// This blocks until the context is canceled or an error occurs.
func ServeWebSocket(ctx context.Context, srv *Server, addr string, opts ...WebSocketOption) error {
	return transport.NewWebSocket(addr, opts...).Serve(ctx, Handler(srv))
}

// ServeWebSocketWithMiddleware runs the server using WebSocket transport with middleware support.
func ServeWebSocketWithMiddleware(ctx context.Context, srv *Server, addr string, wsOpts []WebSocketOption, serveOpts ...ServeOption) error {
	return transport.NewWebSocket(addr, wsOpts...).Serve(ctx, Handler(srv, serveOpts...))
}

// Middleware re-exports

// Chain composes multiple middleware into a single middleware.
func Chain(middlewares ...Middleware) Middleware {
	return middleware.Chain(middlewares...)
}

// Recover returns middleware that catches panics and converts them to internal errors.
func Recover() Middleware {
	return middleware.Recover()
}

// Timeout returns middleware that answers calls still pending after d.
func Timeout(d time.Duration) Middleware {
	return middleware.Timeout(d)
}

// RequestID returns middleware that injects a unique request ID into the context.
func RequestID() Middleware {
	return middleware.RequestID()
}

// RequestIDFromContext returns the request ID from the context, or empty string if not set.
func RequestIDFromContext(ctx context.Context) string {
	return middleware.RequestIDFromContext(ctx)
}

// Logging returns middleware that logs request details.
func Logging(logger Logger) Middleware {
	return middleware.Logging(logger)
}

// DefaultMiddleware returns the recommended production middleware stack.
func DefaultMiddleware(logger Logger) []Middleware {
	return middleware.DefaultStack(logger)
}

// DefaultMiddlewareWithTimeout returns the default stack with a timeout middleware.
func DefaultMiddlewareWithTimeout(logger Logger, timeout time.Duration) []Middleware {
	return middleware.DefaultStackWithTimeout(logger, timeout)
}

// LogF creates a new log field with the given key and value.
func LogF(key string, value any) LogField {
	return middleware.F(key, value)
}
