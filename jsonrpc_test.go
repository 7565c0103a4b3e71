package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
	"github.com/felixgeelhaar/jsonrpc-go/transport"
)

// wire is a response as seen by a client.
type wire struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    any    `json:"data"`
	} `json:"error"`
	keys map[string]json.RawMessage
}

// collector records encoded responses emitted by a handler.
type collector struct {
	mu   sync.Mutex
	out  []wire
	sent chan struct{}
}

func newCollector() *collector {
	return &collector{sent: make(chan struct{}, 16)}
}

func (c *collector) respond(t *testing.T) protocol.Responder {
	return func(resp *protocol.Response) {
		data, err := json.Marshal(resp)
		if err != nil {
			t.Errorf("Marshal() error = %v", err)
			return
		}
		var w wire
		if err := json.Unmarshal(data, &w); err != nil {
			t.Errorf("Unmarshal() error = %v", err)
			return
		}
		_ = json.Unmarshal(data, &w.keys)
		c.mu.Lock()
		c.out = append(c.out, w)
		c.mu.Unlock()
		c.sent <- struct{}{}
	}
}

func (c *collector) responses() []wire {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire(nil), c.out...)
}

func send(t *testing.T, h transport.Handler, text string) []wire {
	t.Helper()
	c := newCollector()
	h.Handle(context.Background(), []byte(text), c.respond(t))
	return c.responses()
}

func single(t *testing.T, got []wire) wire {
	t.Helper()
	if len(got) != 1 {
		t.Fatalf("responses = %d, want 1", len(got))
	}
	w := got[0]
	_, hasResult := w.keys["result"]
	_, hasError := w.keys["error"]
	if hasResult == hasError {
		t.Errorf("response has result=%v error=%v, want exactly one", hasResult, hasError)
	}
	if w.JSONRPC != "2.0" {
		t.Errorf("jsonrpc = %q, want 2.0", w.JSONRPC)
	}
	return w
}

func echo(_ context.Context, params Params) (any, error) {
	var s string
	if err := params.Bind(&s); err != nil {
		return nil, err
	}
	return s, nil
}

func TestScenarios(t *testing.T) {
	t.Run("unknown method", func(t *testing.T) {
		h := Handler(NewServer())

		resp := single(t, send(t, h, `{"jsonrpc":"2.0","method":"x","id":1}`))

		if string(resp.ID) != "1" {
			t.Errorf("id = %s, want 1", resp.ID)
		}
		if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
			t.Errorf("error = %+v, want method not found", resp.Error)
		}
	})

	t.Run("exact echo", func(t *testing.T) {
		srv := NewServer()
		srv.Handle("echo", echo)

		resp := single(t, send(t, Handler(srv), `{"jsonrpc":"2.0","method":"echo","params":["hi"],"id":2}`))

		if string(resp.ID) != "2" || string(resp.Result) != `"hi"` {
			t.Errorf("response = %s %s, want id 2 result \"hi\"", resp.ID, resp.Result)
		}
	})

	t.Run("pattern handler failure", func(t *testing.T) {
		srv := NewServer()
		srv.HandlePattern(regexp.MustCompile(`foo`), func(context.Context, Params) (any, error) {
			return nil, errors.New("boom")
		})

		resp := single(t, send(t, Handler(srv), `{"jsonrpc":"2.0","method":"foo","id":3}`))

		if resp.Error == nil || resp.Error.Code != protocol.CodeInternalError {
			t.Fatalf("error = %+v, want internal error", resp.Error)
		}
		if resp.Error.Data != "boom" {
			t.Errorf("data = %v, want boom", resp.Error.Data)
		}
	})

	t.Run("malformed text", func(t *testing.T) {
		resp := single(t, send(t, Handler(NewServer()), `not json`))

		if resp.Error == nil || resp.Error.Code != protocol.CodeParseError {
			t.Errorf("error = %+v, want parse error", resp.Error)
		}
		if string(resp.ID) != "null" {
			t.Errorf("id = %s, want null", resp.ID)
		}
	})

	t.Run("callback fallback", func(t *testing.T) {
		srv := NewServer()
		var method string
		var argc int
		srv.SetAsyncFallback(func(_ context.Context, params Params, succeed func(any), _ func(error)) {
			argc = params.Len()
			_ = params.Decode(params.Len()-1, &method)
			succeed("ok")
		})

		resp := single(t, send(t, Handler(srv), `{"jsonrpc":"2.0","method":"svc.op","params":[1],"id":4}`))

		if string(resp.ID) != "4" || string(resp.Result) != `"ok"` {
			t.Errorf("response = %s %s, want id 4 result \"ok\"", resp.ID, resp.Result)
		}
		if method != "svc.op" || argc != 2 {
			t.Errorf("fallback saw method %q with %d params, want svc.op with 2", method, argc)
		}
	})

	t.Run("removed handler", func(t *testing.T) {
		srv := NewServer()
		srv.Handle("echo", echo)
		if !srv.Remove(HandlerFunc(echo)) {
			t.Fatal("Remove() = false, want true")
		}

		resp := single(t, send(t, Handler(srv), `{"jsonrpc":"2.0","method":"echo","params":["x"],"id":5}`))

		if resp.Error == nil || resp.Error.Code != protocol.CodeMethodNotFound {
			t.Errorf("error = %+v, want method not found", resp.Error)
		}
	})
}

func TestInvalidRequests(t *testing.T) {
	srv := NewServer()
	srv.Handle("echo", echo)
	h := Handler(srv)

	tests := []struct {
		name   string
		text   string
		wantID string
	}{
		{"wrong version with id", `{"jsonrpc":"1.0","method":"echo","id":7}`, "7"},
		{"wrong version without id", `{"jsonrpc":"1.0","method":"echo"}`, "null"},
		{"missing method with id", `{"jsonrpc":"2.0","id":"a"}`, `"a"`},
		{"missing method without id", `{"jsonrpc":"2.0"}`, "null"},
		{"object params", `{"jsonrpc":"2.0","method":"echo","params":{"a":1},"id":8}`, "8"},
		{"batch", `[{"jsonrpc":"2.0","method":"echo","id":1}]`, "null"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := single(t, send(t, h, tt.text))

			if resp.Error == nil || resp.Error.Code != protocol.CodeInvalidRequest {
				t.Errorf("error = %+v, want invalid request", resp.Error)
			}
			if string(resp.ID) != tt.wantID {
				t.Errorf("id = %s, want %s", resp.ID, tt.wantID)
			}
		})
	}
}

func TestNotificationsNeverAnswered(t *testing.T) {
	srv := NewServer()
	calls := 0
	srv.Handle("note", func(context.Context, Params) (any, error) {
		calls++
		return nil, errors.New("ignored")
	})
	h := Handler(srv)

	for _, text := range []string{
		`{"jsonrpc":"2.0","method":"note"}`,
		`{"jsonrpc":"2.0","method":"unknown","params":[1]}`,
	} {
		if got := send(t, h, text); len(got) != 0 {
			t.Errorf("%s answered with %+v", text, got)
		}
	}

	srv.SetFallback(func(context.Context, Params) (any, error) {
		calls++
		return "unused", nil
	})
	if got := send(t, h, `{"jsonrpc":"2.0","method":"unknown"}`); len(got) != 0 {
		t.Errorf("fallback notification answered with %+v", got)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestResolutionOrder(t *testing.T) {
	srv := NewServer()
	srv.HandlePattern(regexp.MustCompile(`fo`), func(context.Context, Params) (any, error) { return "R1", nil })
	srv.Handle("foo", func(context.Context, Params) (any, error) { return "R2", nil })
	srv.SetFallback(func(context.Context, Params) (any, error) { return "F", nil })
	h := Handler(srv)

	tests := []struct {
		method string
		want   string
	}{
		{"foo", `"R1"`},
		{"fob", `"R1"`},
		{"bar", `"F"`},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			resp := single(t, send(t, h, `{"jsonrpc":"2.0","method":"`+tt.method+`","id":1}`))
			if string(resp.Result) != tt.want {
				t.Errorf("result = %s, want %s", resp.Result, tt.want)
			}
		})
	}
}

func TestRemovalIsLIFO(t *testing.T) {
	srv := NewServer()
	first := srv.Handle("dup", echo)
	srv.Handle("dup", echo)

	if !srv.Remove("dup") {
		t.Fatal("Remove() = false, want true")
	}
	if n := srv.Registry().Len(); n != 1 {
		t.Fatalf("Len() = %d, want 1", n)
	}
	if reg, _ := srv.Registry().Resolve("dup"); reg != first {
		t.Error("remaining registration is not the earlier one")
	}
}

func TestDeferredResults(t *testing.T) {
	tests := []struct {
		name     string
		complete func(*Future)
		check    func(*testing.T, wire)
	}{
		{
			name:     "resolve",
			complete: func(f *Future) { f.Resolve(42) },
			check: func(t *testing.T, w wire) {
				if string(w.Result) != "42" {
					t.Errorf("result = %s, want 42", w.Result)
				}
			},
		},
		{
			name:     "reject",
			complete: func(f *Future) { f.Reject(protocol.NewInvalidParams("nope")) },
			check: func(t *testing.T, w wire) {
				if w.Error == nil || w.Error.Code != protocol.CodeInvalidParams {
					t.Errorf("error = %+v, want invalid params", w.Error)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer()
			future := NewFuture()
			srv.Handle("later", func(context.Context, Params) (any, error) { return future, nil })

			c := newCollector()
			Handler(srv).Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"later","id":"k"}`), c.respond(t))

			if len(c.responses()) != 0 {
				t.Fatal("response emitted before the future completed")
			}
			tt.complete(future)

			resp := single(t, c.responses())
			if string(resp.ID) != `"k"` {
				t.Errorf("id = %s, want \"k\"", resp.ID)
			}
			tt.check(t, resp)
		})
	}

	t.Run("go", func(t *testing.T) {
		srv := NewServer()
		srv.Handle("bg", func(context.Context, Params) (any, error) {
			return Go(func() (any, error) { return "done", nil }), nil
		})

		c := newCollector()
		Handler(srv).Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"bg","id":1}`), c.respond(t))

		select {
		case <-c.sent:
		case <-time.After(time.Second):
			t.Fatal("no response from background future")
		}
		if resp := single(t, c.responses()); string(resp.Result) != `"done"` {
			t.Errorf("result = %s, want \"done\"", resp.Result)
		}
	})
}

func TestHandlerMiddleware(t *testing.T) {
	srv := NewServer()
	srv.Handle("echo", echo)

	var seen []string
	record := func(next MiddlewareHandlerFunc) MiddlewareHandlerFunc {
		return func(ctx context.Context, req *Request, respond Responder) {
			seen = append(seen, req.Method)
			if RequestIDFromContext(ctx) == "" {
				t.Error("request id missing: default stack not installed")
			}
			next(ctx, req, respond)
		}
	}
	h := Handler(srv, WithLogger(&nopLogger{}), WithMiddleware(record))

	resp := single(t, send(t, h, `{"jsonrpc":"2.0","method":"echo","params":["m"],"id":1}`))
	if string(resp.Result) != `"m"` {
		t.Errorf("result = %s, want \"m\"", resp.Result)
	}
	if len(seen) != 1 || seen[0] != "echo" {
		t.Errorf("middleware saw %v, want [echo]", seen)
	}

	resp = single(t, send(t, h, `{oops`))
	if resp.Error == nil || resp.Error.Code != protocol.CodeParseError {
		t.Errorf("error = %+v, want parse error", resp.Error)
	}
	if len(seen) != 1 {
		t.Error("middleware should not see unparseable input")
	}
}

type nopLogger struct{}

func (nopLogger) Info(string, ...LogField)  {}
func (nopLogger) Error(string, ...LogField) {}
func (nopLogger) Debug(string, ...LogField) {}
func (nopLogger) Warn(string, ...LogField)  {}

func TestHandlerOverStdio(t *testing.T) {
	srv := NewServer()
	srv.Handle("echo", echo)

	in := strings.NewReader(`{"jsonrpc":"2.0","method":"echo","params":["line"],"id":1}` + "\n")
	out := &bytes.Buffer{}
	tr := transport.NewStdio(transport.WithStdin(in), transport.WithStdout(out))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tr.Serve(ctx, Handler(srv)); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	if !strings.Contains(out.String(), `"result":"line"`) {
		t.Errorf("output = %q, want echoed result", out.String())
	}
}
