package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// DefaultTCPAddr binds the loopback interface on an ephemeral port.
const DefaultTCPAddr = "127.0.0.1:0"

// TCP serves newline-delimited JSON-RPC on every accepted connection.
type TCP struct {
	addr    string
	maxLine int
	logger  *slog.Logger

	mu         sync.Mutex
	listenAddr string
	conns      map[net.Conn]struct{}
	ready      chan struct{}
}

// TCPOption configures a TCP transport.
type TCPOption func(*TCP)

// WithTCPMaxLineSize limits the size of a single incoming message.
func WithTCPMaxLineSize(n int) TCPOption {
	return func(t *TCP) {
		t.maxLine = n
	}
}

// WithTCPLogger sets the logger used for connection errors.
func WithTCPLogger(logger *slog.Logger) TCPOption {
	return func(t *TCP) {
		t.logger = logger
	}
}

// NewTCP creates a TCP transport. An empty addr means DefaultTCPAddr.
func NewTCP(addr string, opts ...TCPOption) *TCP {
	if addr == "" {
		addr = DefaultTCPAddr
	}
	t := &TCP{
		addr:    addr,
		maxLine: DefaultMaxLineSize,
		logger:  slog.New(slog.DiscardHandler),
		conns:   make(map[net.Conn]struct{}),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Addr returns the configured address.
func (t *TCP) Addr() string {
	return t.addr
}

// ListenAddr returns the address the listener is bound to, or "" before Serve.
func (t *TCP) ListenAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listenAddr
}

// Ready is closed once the listener is bound.
func (t *TCP) Ready() <-chan struct{} {
	return t.ready
}

// Serve accepts connections until ctx is canceled, then closes the
// listener and every open connection.
func (t *TCP) Serve(ctx context.Context, handler Handler) error {
	listener, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	t.mu.Lock()
	t.listenAddr = listener.Addr().String()
	t.mu.Unlock()
	close(t.ready)

	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
		t.closeAll()
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		t.track(conn)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer t.untrack(conn)
			t.serveConn(ctx, conn, handler)
		}()
	}
}

func (t *TCP) serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := serveLines(connCtx, conn, &lineWriter{out: conn}, handler, t.maxLine)
	if err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		t.logger.Debug("connection closed", "remote", conn.RemoteAddr().String(), "error", err)
	}
}

func (t *TCP) track(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[conn] = struct{}{}
}

func (t *TCP) untrack(conn net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, conn)
	_ = conn.Close()
}

func (t *TCP) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for conn := range t.conns {
		_ = conn.Close()
	}
}
