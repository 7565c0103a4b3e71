package middleware

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// DefaultCancelMethod is the notification method clients send to cancel a
// pending call. Its first param is the id of the call to cancel, and an
// optional second param is a reason.
const DefaultCancelMethod = "$/cancelRequest"

type pendingCall struct {
	cancel   context.CancelFunc
	onCancel func(reason string)
}

// CancellationManager tracks in-progress calls and allows cancellation.
type CancellationManager struct {
	mu       sync.RWMutex
	method   string
	requests map[string]pendingCall
}

// CancellationOption configures a CancellationManager.
type CancellationOption func(*CancellationManager)

// WithCancelMethod sets the notification method that triggers cancellation.
// An empty name disables cancellation over the wire.
func WithCancelMethod(name string) CancellationOption {
	return func(m *CancellationManager) {
		m.method = name
	}
}

// NewCancellationManager creates a new cancellation manager.
func NewCancellationManager(opts ...CancellationOption) *CancellationManager {
	m := &CancellationManager{
		method:   DefaultCancelMethod,
		requests: make(map[string]pendingCall),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// track registers a call and returns a derived context plus a release
// function to call once the call has been answered.
func (m *CancellationManager) track(ctx context.Context, requestID string, onCancel func(string)) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.requests[requestID] = pendingCall{cancel: cancel, onCancel: onCancel}
	m.mu.Unlock()

	return ctx, func() {
		cancel()
		m.Untrack(requestID)
	}
}

// Cancel cancels a pending call by its JSON id in compact form (for
// example `1` or `"abc"`) and answers it with a request cancelled error.
// Returns true if the call was found and cancelled.
func (m *CancellationManager) Cancel(requestID string, reason string) bool {
	m.mu.Lock()
	call, ok := m.requests[requestID]
	delete(m.requests, requestID)
	m.mu.Unlock()

	if !ok {
		return false
	}
	call.onCancel(reason)
	// Reply before the handler can observe ctx.Done.
	call.cancel()
	return true
}

// Untrack removes a call from tracking without cancelling it.
func (m *CancellationManager) Untrack(requestID string) {
	m.mu.Lock()
	delete(m.requests, requestID)
	m.mu.Unlock()
}

// ActiveRequests returns the number of currently tracked calls.
func (m *CancellationManager) ActiveRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Cancellation returns middleware that makes pending calls cancellable
// through mgr. The handler context is cancelled and the call is answered
// with a request cancelled error. Cancel notifications addressed to the
// manager's method are consumed here and never reach next.
func Cancellation(mgr *CancellationManager) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request, respond protocol.Responder) {
			if mgr.method != "" && req.Method == mgr.method {
				mgr.handleCancel(req)
				if !req.IsNotification() && respond != nil {
					respond(protocol.NewResponse(req.ID, nil))
				}
				return
			}

			if req.IsNotification() {
				next(ctx, req, respond)
				return
			}

			once := newOnceResponder(respond)
			ctx = ContextWithCancellationManager(ctx, mgr)
			ctx, release := mgr.track(ctx, compactID(req.ID), func(reason string) {
				once.Respond(protocol.NewErrorResponse(req.ID, protocol.NewRequestCancelled(reason)))
			})

			next(ctx, req, func(resp *protocol.Response) {
				if once.Respond(resp) {
					release()
				}
			})
		}
	}
}

func (m *CancellationManager) handleCancel(req *protocol.Request) {
	params, err := req.PositionalParams()
	if err != nil || params.Len() == 0 {
		return
	}
	id := compactID(params[0])
	var reason string
	if params.Len() > 1 {
		_ = params.Decode(1, &reason)
	}
	m.Cancel(id, reason)
}

func compactID(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

type cancellationManagerKey struct{}

// ContextWithCancellationManager returns a context with the cancellation manager attached.
func ContextWithCancellationManager(ctx context.Context, manager *CancellationManager) context.Context {
	return context.WithValue(ctx, cancellationManagerKey{}, manager)
}

// CancellationManagerFromContext returns the cancellation manager from context, or nil if none.
func CancellationManagerFromContext(ctx context.Context) *CancellationManager {
	manager, _ := ctx.Value(cancellationManagerKey{}).(*CancellationManager)
	return manager
}
