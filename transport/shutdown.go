package transport

import (
	"context"
	"sync"
	"time"
)

// ShutdownConfig configures graceful shutdown behavior.
type ShutdownConfig struct {
	// Timeout is the maximum time to wait for in-flight requests to complete.
	// Default: 30 seconds
	Timeout time.Duration

	// DrainDelay is the time to keep accepting requests after shutdown
	// begins, so load balancers can take the server out of rotation.
	DrainDelay time.Duration

	// OnShutdownStart is called when shutdown begins.
	OnShutdownStart func()

	// OnDrainStart is called when new requests start being refused.
	OnDrainStart func()

	// OnShutdownComplete is called when shutdown is complete.
	OnShutdownComplete func(err error)
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{Timeout: 30 * time.Second}
}

// ShutdownManager counts in-flight requests and waits for them to finish
// during shutdown. A deferred JSON-RPC call stays in flight until its
// response has been written.
type ShutdownManager struct {
	config ShutdownConfig

	mu       sync.Mutex
	draining bool
	inFlight int64
	idle     chan struct{}

	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager(config ShutdownConfig) *ShutdownManager {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &ShutdownManager{
		config: config,
		idle:   make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// IsDraining returns true once new requests are being refused.
func (sm *ShutdownManager) IsDraining() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.draining
}

// InFlightRequests returns the number of in-flight requests.
func (sm *ShutdownManager) InFlightRequests() int64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.inFlight
}

// TrackRequest registers a new request. It returns false while draining,
// in which case the request must be refused and CompleteRequest not called.
func (sm *ShutdownManager) TrackRequest() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.draining {
		return false
	}
	sm.inFlight++
	return true
}

// CompleteRequest marks a tracked request as finished.
func (sm *ShutdownManager) CompleteRequest() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.inFlight--
	if sm.draining && sm.inFlight == 0 {
		sm.signalIdle()
	}
}

// must hold sm.mu
func (sm *ShutdownManager) signalIdle() {
	select {
	case <-sm.idle:
	default:
		close(sm.idle)
	}
}

// Shutdown waits for DrainDelay, starts refusing requests, and blocks until
// every in-flight request completes or the timeout elapses.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	if sm.config.OnShutdownStart != nil {
		sm.config.OnShutdownStart()
	}

	if sm.config.DrainDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sm.config.DrainDelay):
		}
	}

	sm.mu.Lock()
	sm.draining = true
	if sm.inFlight == 0 {
		sm.signalIdle()
	}
	sm.mu.Unlock()

	if sm.config.OnDrainStart != nil {
		sm.config.OnDrainStart()
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, sm.config.Timeout)
	defer cancel()

	var err error
	select {
	case <-sm.idle:
	case <-timeoutCtx.Done():
		err = timeoutCtx.Err()
	}

	sm.closeOnce.Do(func() {
		close(sm.doneCh)
	})

	if sm.config.OnShutdownComplete != nil {
		sm.config.OnShutdownComplete(err)
	}

	return err
}

// Done returns a channel that is closed when shutdown is complete.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.doneCh
}

// WithShutdownTimeout sets how long the HTTP transport waits for in-flight
// requests on shutdown.
func WithShutdownTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.shutdownTimeout = d
	}
}

// WithShutdownDrainDelay sets the drain delay for HTTP transport.
func WithShutdownDrainDelay(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.drainDelay = d
	}
}
