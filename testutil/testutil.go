// Package testutil provides testing utilities for JSON-RPC servers.
//
// A TestClient drives a server in-process through the same raw-message
// path the transports use, and offers assertion helpers:
//
//	func TestAdd(t *testing.T) {
//	    srv := server.New()
//	    srv.Handle("add", add)
//
//	    tc := testutil.NewTestClient(t, srv)
//	    tc.AssertResult("add", 3, 1, 2)
//	    tc.AssertError("nope", protocol.CodeMethodNotFound)
//	}
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
	"github.com/felixgeelhaar/jsonrpc-go/server"
	"github.com/felixgeelhaar/jsonrpc-go/transport"
)

// DefaultTimeout bounds how long a TestClient waits for a deferred response.
const DefaultTimeout = 5 * time.Second

// TestClient is an in-process client for JSON-RPC servers.
type TestClient struct {
	t       testing.TB
	handler transport.Handler
	ctx     context.Context
	timeout time.Duration
	grace   time.Duration
	reqID   atomic.Int64
}

// Option configures a TestClient.
type Option func(*TestClient)

// WithTimeout sets how long calls wait for a response.
func WithTimeout(d time.Duration) Option {
	return func(tc *TestClient) {
		tc.timeout = d
	}
}

// WithNotifyGrace sets how long Notify waits for an unexpected response.
func WithNotifyGrace(d time.Duration) Option {
	return func(tc *TestClient) {
		tc.grace = d
	}
}

// WithContext sets the context passed to every request.
func WithContext(ctx context.Context) Option {
	return func(tc *TestClient) {
		tc.ctx = ctx
	}
}

// NewTestClient creates a test client for srv.
func NewTestClient(t testing.TB, srv *server.Server, opts ...Option) *TestClient {
	t.Helper()
	return NewTestClientWithHandler(t, transport.HandlerFunc(srv.DispatchRaw), opts...)
}

// NewTestClientWithHandler creates a test client with a custom handler.
// This is useful for testing middleware.
func NewTestClientWithHandler(t testing.TB, handler transport.Handler, opts ...Option) *TestClient {
	t.Helper()
	tc := &TestClient{
		t:       t,
		handler: handler,
		ctx:     context.Background(),
		timeout: DefaultTimeout,
		grace:   10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Close is a no-op; the client holds no resources.
func (tc *TestClient) Close() {}

func (tc *TestClient) nextID() json.RawMessage {
	return json.RawMessage(strconv.FormatInt(tc.reqID.Add(1), 10))
}

// Send delivers raw bytes and waits up to wait for a response. It reports
// whether a response arrived.
func (tc *TestClient) Send(data []byte, wait time.Duration) (*protocol.Response, bool) {
	tc.t.Helper()

	responses := make(chan *protocol.Response, 1)
	tc.handler.Handle(tc.ctx, data, func(resp *protocol.Response) {
		select {
		case responses <- resp:
		default:
			tc.t.Errorf("second response for %s: %+v", data, resp)
		}
	})

	select {
	case resp := <-responses:
		return resp, true
	default:
	}
	if wait <= 0 {
		return nil, false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case resp := <-responses:
		return resp, true
	case <-timer.C:
		return nil, false
	}
}

// CallRaw sends a call and returns the response as produced by the server.
func (tc *TestClient) CallRaw(method string, params ...any) (*protocol.Response, error) {
	tc.t.Helper()

	data, err := encodeRequest(tc.nextID(), method, params)
	if err != nil {
		return nil, err
	}
	resp, ok := tc.Send(data, tc.timeout)
	if !ok {
		return nil, fmt.Errorf("%s: no response within %v", method, tc.timeout)
	}
	return resp, nil
}

// Call sends a call and decodes its result into result, which may be nil.
// An error response is returned as a *protocol.Error.
func (tc *TestClient) Call(method string, result any, params ...any) error {
	tc.t.Helper()

	resp, err := tc.CallRaw(method, params...)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("%s: marshal result: %w", method, err)
	}
	return json.Unmarshal(raw, result)
}

// Notify sends a notification and reports whether any response was
// produced within the notify grace period. A well-formed notification
// never gets one.
func (tc *TestClient) Notify(method string, params ...any) bool {
	tc.t.Helper()

	data, err := encodeRequest(nil, method, params)
	if err != nil {
		tc.t.Fatalf("Notify(%s): %v", method, err)
	}
	_, ok := tc.Send(data, tc.grace)
	return ok
}

// AssertResult calls method and fails the test unless the result equals
// want after both pass through JSON.
func (tc *TestClient) AssertResult(method string, want any, params ...any) {
	tc.t.Helper()

	resp, err := tc.CallRaw(method, params...)
	if err != nil {
		tc.t.Errorf("%s: %v", method, err)
		return
	}
	if resp.Error != nil {
		tc.t.Errorf("%s: unexpected error %v", method, resp.Error)
		return
	}

	got, err := normalize(resp.Result)
	if err != nil {
		tc.t.Errorf("%s: result: %v", method, err)
		return
	}
	expected, err := normalize(want)
	if err != nil {
		tc.t.Errorf("%s: want: %v", method, err)
		return
	}
	if !reflect.DeepEqual(got, expected) {
		tc.t.Errorf("%s result = %v, want %v", method, got, expected)
	}
}

// AssertError calls method and fails the test unless it fails with code.
// It returns the error object for further checks.
func (tc *TestClient) AssertError(method string, code int, params ...any) *protocol.Error {
	tc.t.Helper()

	resp, err := tc.CallRaw(method, params...)
	if err != nil {
		tc.t.Errorf("%s: %v", method, err)
		return nil
	}
	if resp.Error == nil {
		tc.t.Errorf("%s: expected error %d, got result %v", method, code, resp.Result)
		return nil
	}
	if resp.Error.Code != code {
		tc.t.Errorf("%s error code = %d, want %d", method, resp.Error.Code, code)
	}
	return resp.Error
}

func encodeRequest(id json.RawMessage, method string, params []any) ([]byte, error) {
	req := protocol.Request{JSONRPC: protocol.Version, ID: id, Method: method}
	if len(params) > 0 {
		p, err := protocol.NewParams(params...)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		if req.Params, err = json.Marshal(p); err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
	}
	return json.Marshal(req)
}

func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(data, &out)
	return out, err
}
