package server

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for diagnostics. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry makes the server dispatch against an existing registry.
// Several servers may share one registry.
func WithRegistry(r *Registry) Option {
	return func(s *Server) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithResponder sets the responder used when Dispatch or DispatchRaw is
// given a nil one. Without it such responses are discarded.
func WithResponder(respond protocol.Responder) Option {
	return func(s *Server) {
		s.respond = respond
	}
}

// Server dispatches requests to the handlers of its registry.
//
// A Server holds no per-call state and starts no goroutines. Each call
// produces exactly one response through the responder passed to Dispatch;
// notifications produce none.
type Server struct {
	registry *Registry
	logger   *slog.Logger
	respond  protocol.Responder
}

// New creates a server with an empty registry.
func New(opts ...Option) *Server {
	s := &Server{
		registry: NewRegistry(),
		logger:   slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Registry returns the registry the server dispatches against.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Register appends a synchronous handler for m.
func (s *Server) Register(m Matcher, h HandlerFunc) *Registration {
	return s.registry.Register(m, h)
}

// RegisterAsync appends a callback-pair handler for m.
func (s *Server) RegisterAsync(m Matcher, h AsyncHandlerFunc) *Registration {
	return s.registry.RegisterAsync(m, h)
}

// Handle registers a synchronous handler for an exact method name.
func (s *Server) Handle(name string, h HandlerFunc) *Registration {
	return s.registry.Register(Exact(name), h)
}

// HandleAsync registers a callback-pair handler for an exact method name.
func (s *Server) HandleAsync(name string, h AsyncHandlerFunc) *Registration {
	return s.registry.RegisterAsync(Exact(name), h)
}

// HandlePattern registers a synchronous handler for every method matching re.
func (s *Server) HandlePattern(re *regexp.Regexp, h HandlerFunc) *Registration {
	return s.registry.Register(Pattern(re), h)
}

// HandlePatternAsync registers a callback-pair handler for every method matching re.
func (s *Server) HandlePatternAsync(re *regexp.Regexp, h AsyncHandlerFunc) *Registration {
	return s.registry.RegisterAsync(Pattern(re), h)
}

// SetFallback installs a synchronous fallback handler.
func (s *Server) SetFallback(h HandlerFunc) *Registration {
	return s.registry.SetFallback(h)
}

// SetAsyncFallback installs a callback-pair fallback handler.
func (s *Server) SetAsyncFallback(h AsyncHandlerFunc) *Registration {
	return s.registry.SetAsyncFallback(h)
}

// ClearFallback removes the fallback handler.
func (s *Server) ClearFallback() {
	s.registry.ClearFallback()
}

// Remove deletes the most recently added registration matching identifier.
// See Registry.Remove.
//
// A handler function identifies every registration of the same function
// literal: closures returned by one constructor compare equal, and the
// latest such registration is removed whichever closure is passed. Pass
// the *Registration returned by Handle to remove one registration exactly.
func (s *Server) Remove(identifier any) bool {
	return s.registry.Remove(identifier)
}

// Methods returns the explicit registrations in resolution order.
func (s *Server) Methods() []MethodInfo {
	return s.registry.Methods()
}

// DispatchRaw decodes a textual request and dispatches it.
func (s *Server) DispatchRaw(ctx context.Context, data []byte, respond protocol.Responder) {
	Raw(s.Dispatch)(ctx, data, s.responder(respond))
}

func (s *Server) responder(respond protocol.Responder) protocol.Responder {
	if respond != nil {
		return respond
	}
	if s.respond != nil {
		return s.respond
	}
	return func(*protocol.Response) {}
}

// Dispatch validates req, resolves its method and invokes the handler.
//
// For a call, respond is invoked exactly once, possibly after Dispatch has
// returned when the handler completes later. For a notification respond is
// never invoked, except to report an invalid request. A nil respond falls
// back to the WithResponder default, or discards responses.
func (s *Server) Dispatch(ctx context.Context, req *protocol.Request, respond protocol.Responder) {
	respond = s.responder(respond)

	if req == nil {
		respond(protocol.NewErrorResponse(nil, catalog(protocol.ErrInvalidRequest)))
		return
	}

	if err := req.Validate(); err != nil {
		s.logger.DebugContext(ctx, "invalid request", slog.String("error", err.Error()))
		respond(protocol.NewErrorResponse(req.EchoID(), catalog(protocol.ErrInvalidRequest)))
		return
	}

	params, err := req.PositionalParams()
	if err != nil {
		s.logger.DebugContext(ctx, "invalid params", slog.String("error", err.Error()))
		respond(protocol.NewErrorResponse(req.ID, catalog(protocol.ErrInvalidRequest)))
		return
	}

	reg, ok := s.registry.Resolve(req.Method)
	if !ok {
		if req.IsNotification() {
			s.logger.DebugContext(ctx, "notification for unknown method", slog.String("method", req.Method))
			return
		}
		respond(protocol.NewErrorResponse(req.ID, catalog(protocol.ErrMethodNotFound)))
		return
	}

	if reg.IsFallback() {
		params, err = params.Append(req.Method)
		if err != nil {
			respond(protocol.NewErrorResponse(req.ID, protocol.FromError(err)))
			return
		}
	}

	if req.IsNotification() {
		s.notify(ctx, req, reg, params)
		return
	}
	s.call(ctx, req, reg, params, respond)
}

// notify invokes a handler for a notification. Its outcome is only logged.
func (s *Server) notify(ctx context.Context, req *protocol.Request, reg *Registration, params protocol.Params) {
	logFailure := func(err error) {
		s.logger.DebugContext(ctx, "notification failed",
			slog.String("method", req.Method),
			slog.Any("error", err),
		)
	}

	out := invoke(ctx, reg, params)
	switch {
	case out.deferred != nil:
		subscribe(out.deferred, func(any) {}, logFailure)
	case out.err != nil:
		logFailure(out.err)
	}
}

// call invokes a handler for a call and wires its outcome to respond.
func (s *Server) call(ctx context.Context, req *protocol.Request, reg *Registration, params protocol.Params, respond protocol.Responder) {
	var once sync.Once
	reply := func(resp *protocol.Response) {
		sent := false
		once.Do(func() {
			sent = true
			respond(resp)
		})
		if !sent {
			s.logger.DebugContext(ctx, "dropping duplicate completion",
				slog.String("method", req.Method),
				slog.String("id", string(req.ID)),
			)
		}
	}
	succeed := func(v any) {
		reply(protocol.NewResponse(req.ID, v))
	}
	fail := func(err error) {
		reply(protocol.NewErrorResponse(req.ID, protocol.FromError(err)))
	}

	out := invoke(ctx, reg, params)
	switch {
	case out.deferred != nil:
		subscribe(out.deferred, succeed, fail)
	case out.err != nil:
		fail(out.err)
	default:
		succeed(out.result)
	}
}

// Raw adapts a structured dispatch function to textual input.
//
// Input that is not valid JSON is answered with a parse error and a null
// id. Valid JSON that is not a request object is answered with an invalid
// request error, echoing the id when one can be recovered. Otherwise the
// decoded request is passed to next.
func Raw(next func(context.Context, *protocol.Request, protocol.Responder)) func(context.Context, []byte, protocol.Responder) {
	return func(ctx context.Context, data []byte, respond protocol.Responder) {
		req, err := protocol.ParseRequest(data)
		if err == nil {
			next(ctx, req, respond)
			return
		}
		if respond == nil {
			return
		}
		if errors.Is(err, protocol.ErrParse) {
			respond(protocol.NewErrorResponse(nil, catalog(protocol.ErrParse)))
			return
		}
		respond(protocol.NewErrorResponse(req.EchoID(), catalog(protocol.ErrInvalidRequest)))
	}
}

// catalog returns a private copy of a catalog error.
func catalog(e *protocol.Error) *protocol.Error {
	return e.WithData(e.Data)
}
