package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

func TestRecover(t *testing.T) {
	tests := []struct {
		name     string
		panicVal any
		wantData any
	}{
		{"string panic", "something bad", "panic: something bad"},
		{"error panic", errors.New("bad error"), "panic: bad error"},
		{"other panic", 42, "panic: 42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCapture()
			handler := Recover()(func(context.Context, *protocol.Request, protocol.Responder) {
				panic(tt.panicVal)
			})

			handler(context.Background(), call("test"), c.respond)

			resp := c.last()
			if resp == nil || resp.Error == nil {
				t.Fatal("expected error response")
			}
			if resp.Error.Code != protocol.CodeInternalError {
				t.Errorf("Code = %d, want %d", resp.Error.Code, protocol.CodeInternalError)
			}
			if resp.Error.Data != tt.wantData {
				t.Errorf("Data = %v, want %v", resp.Error.Data, tt.wantData)
			}
		})
	}

	t.Run("passes through normal responses", func(t *testing.T) {
		c := newCapture()
		Recover()(okHandler)(context.Background(), call("test"), c.respond)
		if c.count() != 1 || c.last().Result != "ok" {
			t.Errorf("responses = %v, want one ok", c.resps)
		}
	})

	t.Run("panic after responding sends nothing more", func(t *testing.T) {
		c := newCapture()
		handler := Recover()(func(_ context.Context, req *protocol.Request, respond protocol.Responder) {
			respond(protocol.NewResponse(req.ID, "done"))
			panic("late")
		})

		handler(context.Background(), call("test"), c.respond)

		if c.count() != 1 || c.last().Result != "done" {
			t.Errorf("responses = %v, want only the first", c.resps)
		}
	})

	t.Run("notification panic is swallowed", func(t *testing.T) {
		c := newCapture()
		handler := Recover()(func(context.Context, *protocol.Request, protocol.Responder) {
			panic("quiet")
		})

		handler(context.Background(), notification("n"), c.respond)

		if c.count() != 0 {
			t.Error("notifications should not be answered")
		}
	})
}

func TestRecoverWithHandler(t *testing.T) {
	var got any
	custom := func(_ context.Context, _ *protocol.Request, v any) *protocol.Error {
		got = v
		return &protocol.Error{Code: 1, Message: "custom"}
	}

	c := newCapture()
	RecoverWithHandler(custom)(func(context.Context, *protocol.Request, protocol.Responder) {
		panic("x")
	})(context.Background(), call("m"), c.respond)

	if got != "x" {
		t.Errorf("panic value = %v, want x", got)
	}
	if c.last() == nil || c.last().Error.Code != 1 {
		t.Errorf("response = %+v, want custom error", c.last())
	}
}
