package transport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
	"github.com/felixgeelhaar/jsonrpc-go/server"
	"github.com/felixgeelhaar/jsonrpc-go/transport"
)

// testServer dispatches to a real server with an "echo" method, a "later"
// method whose responses are released by the test, and a "nan" method whose
// result cannot be encoded.
type testServer struct {
	srv     *server.Server
	pending chan func()
}

func newTestServer() *testServer {
	ts := &testServer{srv: server.New(), pending: make(chan func(), 8)}

	ts.srv.Handle("echo", func(_ context.Context, params protocol.Params) (any, error) {
		var s string
		if err := params.Decode(0, &s); err != nil {
			return nil, err
		}
		return s, nil
	})
	ts.srv.HandleAsync("later", func(_ context.Context, params protocol.Params, succeed func(any), _ func(error)) {
		var s string
		_ = params.Decode(0, &s)
		ts.pending <- func() { succeed(s) }
	})
	ts.srv.Handle("nan", func(context.Context, protocol.Params) (any, error) {
		return math.NaN(), nil
	})
	ts.srv.Handle("meta", func(ctx context.Context, _ protocol.Params) (any, error) {
		return protocol.GetRequestMeta(ctx, "X-Test"), nil
	})

	return ts
}

func (ts *testServer) handler() transport.Handler {
	return transport.HandlerFunc(ts.srv.DispatchRaw)
}

// syncBuffer is a goroutine-safe writer that records output lines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := strings.TrimSpace(b.buf.String())
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func decodeResponse(t *testing.T, data []byte) *protocol.Response {
	t.Helper()
	var resp protocol.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", data, err)
	}
	return &resp
}

// stringResult decodes a decoded response's raw result as a string.
func stringResult(t *testing.T, resp *protocol.Response) string {
	t.Helper()
	raw, ok := resp.Result.(json.RawMessage)
	if !ok {
		t.Fatalf("result = %T, want json.RawMessage (error: %v)", resp.Result, resp.Error)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("result %s is not a string: %v", raw, err)
	}
	return s
}
