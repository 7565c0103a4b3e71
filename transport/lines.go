package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// DefaultMaxLineSize bounds a single newline-delimited message.
const DefaultMaxLineSize = 1 << 20

// lineWriter writes newline-delimited JSON values. Responses may complete
// on any goroutine, so every write holds the lock.
type lineWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *lineWriter) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return w.writeLine(data)
}

func (w *lineWriter) writeLine(data []byte) error {
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.out.Write(data)
	return err
}

func (w *lineWriter) respond(resp *protocol.Response) {
	_ = w.writeLine(encodeResponse(resp))
}

// encodeResponse marshals resp. A result that cannot be encoded is replaced
// by an internal error for the same id, so the call is still answered.
func encodeResponse(resp *protocol.Response) []byte {
	data, err := json.Marshal(resp)
	if err == nil {
		return data
	}
	data, err = json.Marshal(protocol.NewErrorResponse(resp.ID, protocol.NewInternalError(err.Error())))
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"Internal error"}}`)
	}
	return data
}

// SendNotification writes a server-initiated notification.
func (w *lineWriter) SendNotification(method string, params ...any) error {
	notif, err := protocol.NewNotification(method, params...)
	if err != nil {
		return err
	}
	return w.writeJSON(notif)
}

// serveLines feeds every non-blank line of in to handler until EOF, a read
// error, or ctx is done. EOF is not an error.
func serveLines(ctx context.Context, in io.Reader, out *lineWriter, handler Handler, maxLine int) error {
	scanner := bufio.NewScanner(in)
	// The effective limit is the larger of maxLine and the initial capacity.
	scanner.Buffer(make([]byte, 0, min(4096, maxLine)), maxLine)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	done := ctx.Done()

	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- bytes.Clone(line):
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
	}()

	handlerCtx := ContextWithNotificationSender(ctx, out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			handler.Handle(handlerCtx, line, out.respond)
		}
	}
}
