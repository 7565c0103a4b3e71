package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// DefaultMaxBodySize bounds an HTTP request body.
const DefaultMaxBodySize = 1 << 20

// HTTP serves JSON-RPC over HTTP POST.
//
// Synchronous responses are written directly. Notifications are answered
// with 204 No Content. For deferred completions the request is held open
// until the response arrives or the client goes away.
type HTTP struct {
	addr            string
	path            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	drainDelay      time.Duration
	maxBodySize     int64
	corsConfig      *CORSConfig

	mu         sync.RWMutex
	listenAddr string
	server     *http.Server
	shutdown   *ShutdownManager
	ready      chan struct{}
}

// HTTPOption configures the HTTP transport.
type HTTPOption func(*HTTP)

// WithReadTimeout sets the read timeout for HTTP requests.
func WithReadTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.readTimeout = d
	}
}

// WithWriteTimeout sets the write timeout for HTTP responses. Zero leaves
// deferred responses unbounded.
func WithWriteTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.writeTimeout = d
	}
}

// WithPath sets the endpoint that accepts JSON-RPC requests.
func WithPath(path string) HTTPOption {
	return func(h *HTTP) {
		h.path = path
	}
}

// WithMaxBodySize limits the size of a request body.
func WithMaxBodySize(n int64) HTTPOption {
	return func(h *HTTP) {
		h.maxBodySize = n
	}
}

// NewHTTP creates a new HTTP transport.
func NewHTTP(addr string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		addr:            addr,
		path:            "/rpc",
		readTimeout:     30 * time.Second,
		shutdownTimeout: 30 * time.Second,
		maxBodySize:     DefaultMaxBodySize,
		ready:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	h.shutdown = NewShutdownManager(ShutdownConfig{
		Timeout:    h.shutdownTimeout,
		DrainDelay: h.drainDelay,
	})

	return h
}

// Addr returns the configured address.
func (h *HTTP) Addr() string {
	return h.addr
}

// ListenAddr returns the actual address the server is listening on.
func (h *HTTP) ListenAddr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.listenAddr
}

// Ready is closed once the listener is bound.
func (h *HTTP) Ready() <-chan struct{} {
	return h.ready
}

// ShutdownManager returns the manager tracking in-flight requests.
func (h *HTTP) ShutdownManager() *ShutdownManager {
	return h.shutdown
}

// Serve starts the HTTP server and handles requests. When ctx is canceled
// new requests are refused, in-flight requests are drained, and the
// server is shut down.
func (h *HTTP) Serve(ctx context.Context, handler Handler) error {
	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	h.mu.Lock()
	h.listenAddr = listener.Addr().String()
	h.server = &http.Server{
		Handler:      h.Handler(handler),
		ReadTimeout:  h.readTimeout,
		WriteTimeout: h.writeTimeout,
	}
	server := h.server
	h.mu.Unlock()
	close(h.ready)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.drainDelay+h.shutdownTimeout)
		defer cancel()
		drainErr := h.shutdown.Shutdown(shutdownCtx)
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if drainErr != nil {
			return fmt.Errorf("drain: %w", drainErr)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler returns the http.Handler serving the JSON-RPC endpoint and /health.
func (h *HTTP) Handler(handler Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := "ok"
		if h.shutdown.IsDraining() {
			status = "draining"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	mux.HandleFunc(h.path, func(w http.ResponseWriter, r *http.Request) {
		h.handleRPC(w, r, handler)
	})

	if h.corsConfig != nil {
		return CORSHandler(*h.corsConfig, mux)
	}
	return mux
}

func (h *HTTP) handleRPC(w http.ResponseWriter, r *http.Request, handler Handler) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !h.shutdown.TrackRequest() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.shutdown.CompleteRequest()

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodySize+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > h.maxBodySize {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	ctx := protocol.ContextWithRequestMeta(r.Context(), protocol.MetaFromHeader(r.Header))

	responses := make(chan *protocol.Response, 1)
	handler.Handle(ctx, body, func(resp *protocol.Response) {
		select {
		case responses <- resp:
		default:
		}
	})

	select {
	case resp := <-responses:
		writeResponse(w, resp)
		return
	default:
	}

	if isNotification(body) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	select {
	case resp := <-responses:
		writeResponse(w, resp)
	case <-r.Context().Done():
	}
}

// isNotification reports whether body is a request object without an id.
func isNotification(body []byte) bool {
	msg := gjson.ParseBytes(body)
	return msg.IsObject() && !msg.Get("id").Exists()
}

func writeResponse(w http.ResponseWriter, resp *protocol.Response) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(append(encodeResponse(resp), '\n'))
}
