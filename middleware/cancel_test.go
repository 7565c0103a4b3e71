package middleware

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

func TestCancellation(t *testing.T) {
	t.Run("cancel by id answers and cancels context", func(t *testing.T) {
		mgr := NewCancellationManager()
		c := newCapture()
		ctxDone := make(chan struct{})

		handler := Cancellation(mgr)(func(ctx context.Context, _ *protocol.Request, _ protocol.Responder) {
			if CancellationManagerFromContext(ctx) != mgr {
				t.Error("manager missing from context")
			}
			go func() {
				<-ctx.Done()
				close(ctxDone)
			}()
		})

		req := &protocol.Request{JSONRPC: "2.0", ID: json.RawMessage(`"abc"`), Method: "slow"}
		handler(context.Background(), req, c.respond)

		if mgr.ActiveRequests() != 1 {
			t.Fatalf("ActiveRequests() = %d, want 1", mgr.ActiveRequests())
		}
		if !mgr.Cancel(`"abc"`, "user abort") {
			t.Fatal("Cancel() = false, want true")
		}

		resp := c.last()
		if resp == nil || resp.Error == nil || resp.Error.Code != protocol.CodeRequestCancelled {
			t.Fatalf("response = %+v, want request cancelled", resp)
		}
		if resp.Error.Data != "user abort" {
			t.Errorf("Data = %v, want reason", resp.Error.Data)
		}
		select {
		case <-ctxDone:
		case <-time.After(time.Second):
			t.Error("handler context was not cancelled")
		}
		if mgr.ActiveRequests() != 0 {
			t.Errorf("ActiveRequests() = %d, want 0", mgr.ActiveRequests())
		}
	})

	t.Run("cancel notification over the wire", func(t *testing.T) {
		mgr := NewCancellationManager()
		c := newCapture()
		var passed []string

		handler := Cancellation(mgr)(func(_ context.Context, req *protocol.Request, _ protocol.Responder) {
			passed = append(passed, req.Method)
		})

		handler(context.Background(), &protocol.Request{JSONRPC: "2.0", ID: json.RawMessage(`7`), Method: "slow"}, c.respond)
		handler(context.Background(), &protocol.Request{
			JSONRPC: "2.0",
			Method:  DefaultCancelMethod,
			Params:  json.RawMessage(`[ 7 , "bye"]`),
		}, c.respond)

		if len(passed) != 1 {
			t.Errorf("next saw %v, want only the call", passed)
		}
		resp := c.last()
		if resp == nil || string(resp.ID) != "7" || resp.Error.Code != protocol.CodeRequestCancelled {
			t.Errorf("response = %+v, want cancellation of id 7", resp)
		}
	})

	t.Run("completed calls are untracked", func(t *testing.T) {
		mgr := NewCancellationManager()
		c := newCapture()

		Cancellation(mgr)(okHandler)(context.Background(), call("fast"), c.respond)

		if mgr.ActiveRequests() != 0 {
			t.Errorf("ActiveRequests() = %d, want 0", mgr.ActiveRequests())
		}
		if mgr.Cancel("1", "") {
			t.Error("Cancel() of a completed call = true, want false")
		}
		if c.count() != 1 {
			t.Errorf("responses = %d, want 1", c.count())
		}
	})

	t.Run("late response after cancel is dropped", func(t *testing.T) {
		mgr := NewCancellationManager()
		c := newCapture()
		var late protocol.Responder

		Cancellation(mgr)(func(_ context.Context, _ *protocol.Request, respond protocol.Responder) {
			late = respond
		})(context.Background(), call("slow"), c.respond)

		mgr.Cancel("1", "")
		late(protocol.NewResponse(json.RawMessage(`1`), "late"))

		if c.count() != 1 {
			t.Errorf("responses = %d, want 1", c.count())
		}
	})

	t.Run("disabled wire method passes through", func(t *testing.T) {
		mgr := NewCancellationManager(WithCancelMethod(""))
		var passed bool

		Cancellation(mgr)(func(context.Context, *protocol.Request, protocol.Responder) {
			passed = true
		})(context.Background(), notification(DefaultCancelMethod), nil)

		if !passed {
			t.Error("cancel method should reach next when disabled")
		}
	})
}
