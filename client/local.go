package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// DispatchFunc delivers a request to an in-process dispatcher, such as
// (*server.Server).Dispatch or a middleware chain in front of it.
type DispatchFunc func(ctx context.Context, req *protocol.Request, respond protocol.Responder)

// LocalTransport calls an in-process dispatcher. Responses are passed
// through JSON so results decode exactly as they would off the wire.
type LocalTransport struct {
	dispatch DispatchFunc
	closed   atomic.Bool
}

// NewLocalTransport creates a transport around dispatch.
func NewLocalTransport(dispatch DispatchFunc) *LocalTransport {
	return &LocalTransport{dispatch: dispatch}
}

// Send dispatches a call and waits for its response.
func (t *LocalTransport) Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}

	responses := make(chan *protocol.Response, 1)
	t.dispatch(ctx, req, func(resp *protocol.Response) {
		select {
		case responses <- resp:
		default:
		}
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-responses:
		return roundTrip(resp)
	}
}

// Notify dispatches a notification.
func (t *LocalTransport) Notify(ctx context.Context, req *protocol.Request) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.dispatch(ctx, req, nil)
	return nil
}

// Close stops the transport from accepting further requests.
func (t *LocalTransport) Close() error {
	t.closed.Store(true)
	return nil
}

func roundTrip(resp *protocol.Response) (*protocol.Response, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	var out protocol.Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &out, nil
}
