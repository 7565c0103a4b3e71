package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// StreamTransport speaks newline-delimited JSON over a byte stream, such
// as a TCP connection or a subprocess's stdio. Responses are matched to
// calls by id, so any number of calls may be outstanding.
type StreamTransport struct {
	r      io.Reader
	w      io.Writer
	closer io.Closer

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *protocol.Response
	closed  bool

	done    chan struct{}
	readErr error
}

// NewStreamTransport creates a transport over conn and starts reading
// responses from it.
func NewStreamTransport(conn io.ReadWriteCloser) *StreamTransport {
	return newStreamTransport(conn, conn, conn)
}

// DialTCP connects to a newline-delimited JSON-RPC server over TCP.
func DialTCP(ctx context.Context, addr string) (*StreamTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewStreamTransport(conn), nil
}

func newStreamTransport(r io.Reader, w io.Writer, closer io.Closer) *StreamTransport {
	t := &StreamTransport{
		r:       r,
		w:       w,
		closer:  closer,
		pending: make(map[string]chan *protocol.Response),
		done:    make(chan struct{}),
	}
	go t.readResponses()
	return t
}

// Send writes a call and waits for the response with the same id.
func (t *StreamTransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	key, err := idKey(req.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid request ID: %w", err)
	}

	respCh := make(chan *protocol.Response, 1)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	t.pending[key] = respCh
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
	}()

	if err := t.write(req); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		return resp, nil
	case <-t.done:
		select {
		case resp := <-respCh:
			return resp, nil
		default:
		}
		if t.readErr != nil {
			return nil, fmt.Errorf("connection lost: %w", t.readErr)
		}
		return nil, ErrClosed
	}
}

// Notify writes a notification.
func (t *StreamTransport) Notify(_ context.Context, req *protocol.Request) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return t.write(req)
}

// Close closes the underlying stream. Outstanding calls fail with ErrClosed.
func (t *StreamTransport) Close() error {
	err := t.shutdown()
	<-t.done
	return err
}

// shutdown marks the transport closed and closes the write side without
// waiting for the response stream to end.
func (t *StreamTransport) shutdown() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	return t.closer.Close()
}

// Done is closed once the response stream ends.
func (t *StreamTransport) Done() <-chan struct{} {
	return t.done
}

func (t *StreamTransport) write(req *protocol.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func (t *StreamTransport) readResponses() {
	defer close(t.done)

	scanner := bufio.NewScanner(t.r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		var resp protocol.Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		key, err := idKey(resp.ID)
		if err != nil {
			continue
		}

		t.mu.Lock()
		if ch, ok := t.pending[key]; ok {
			ch <- &resp
			delete(t.pending, key)
		}
		t.mu.Unlock()
	}

	t.mu.Lock()
	if !t.closed {
		t.readErr = scanner.Err()
		if t.readErr == nil {
			t.readErr = io.EOF
		}
	}
	t.mu.Unlock()
}

// idKey normalises an id so responses echoing it with different spacing
// still match.
func idKey(id json.RawMessage) (string, error) {
	if len(id) == 0 {
		return "", fmt.Errorf("missing id")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, id); err != nil {
		return "", err
	}
	return buf.String(), nil
}
