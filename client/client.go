// Package client provides a JSON-RPC 2.0 client.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// ErrClosed is returned for requests on a closed transport.
var ErrClosed = errors.New("client: transport closed")

// Transport defines the interface for client-side transport.
type Transport interface {
	// Send sends a call and waits for its response.
	Send(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	// Notify sends a notification without waiting for anything.
	Notify(ctx context.Context, req *protocol.Request) error
	// Close closes the transport connection.
	Close() error
}

// Client issues calls and notifications over a Transport.
type Client struct {
	transport Transport
	timeout   time.Duration
	requestID atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the default timeout for calls. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// New creates a client with the given transport.
func New(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		timeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call invokes method with positional params and decodes the result into
// result, which may be nil to discard it. A JSON-RPC error response is
// returned as a *protocol.Error.
func (c *Client) Call(ctx context.Context, method string, result any, params ...any) error {
	req, err := c.newRequest(method, params)
	if err != nil {
		return err
	}
	idRaw, err := json.Marshal(c.requestID.Add(1))
	if err != nil {
		return fmt.Errorf("marshal request ID: %w", err)
	}
	req.ID = idRaw

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if err := decodeResult(resp.Result, result); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

// Notify sends method as a notification. No response is expected.
func (c *Client) Notify(ctx context.Context, method string, params ...any) error {
	req, err := c.newRequest(method, params)
	if err != nil {
		return err
	}
	if err := c.transport.Notify(ctx, req); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.transport.Close()
}

func (c *Client) newRequest(method string, params []any) (*protocol.Request, error) {
	req := &protocol.Request{JSONRPC: protocol.Version, Method: method}
	if len(params) > 0 {
		p, err := protocol.NewParams(params...)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = raw
	}
	return req, nil
}

func decodeResult(result any, dst any) error {
	raw, ok := result.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(result); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dst)
}
