package client_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/felixgeelhaar/jsonrpc-go/client"
	"github.com/felixgeelhaar/jsonrpc-go/protocol"
	"github.com/felixgeelhaar/jsonrpc-go/server"
	"github.com/felixgeelhaar/jsonrpc-go/transport"
)

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func newServer() (*server.Server, chan string) {
	notes := make(chan string, 4)
	srv := server.New()
	srv.Handle("add", func(_ context.Context, p protocol.Params) (any, error) {
		var a, b int
		if err := p.Bind(&a, &b); err != nil {
			return nil, protocol.NewInvalidParams(err.Error())
		}
		return a + b, nil
	})
	srv.Handle("point", func(context.Context, protocol.Params) (any, error) {
		return point{X: 1, Y: 2}, nil
	})
	srv.Handle("note", func(_ context.Context, p protocol.Params) (any, error) {
		var s string
		_ = p.Decode(0, &s)
		notes <- s
		return nil, nil
	})
	srv.Handle("slow", func(context.Context, protocol.Params) (any, error) {
		return server.NewFuture(), nil
	})
	return srv, notes
}

func TestClient_Local(t *testing.T) {
	srv, notes := newServer()
	c := client.New(client.NewLocalTransport(srv.Dispatch))
	ctx := context.Background()

	t.Run("call decodes result", func(t *testing.T) {
		var sum int
		if err := c.Call(ctx, "add", &sum, 2, 3); err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		if sum != 5 {
			t.Errorf("sum = %d, want 5", sum)
		}
	})

	t.Run("call decodes structs", func(t *testing.T) {
		var p point
		if err := c.Call(ctx, "point", &p); err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		if p != (point{X: 1, Y: 2}) {
			t.Errorf("point = %+v, want {1 2}", p)
		}
	})

	t.Run("nil result discards", func(t *testing.T) {
		if err := c.Call(ctx, "add", nil, 1, 1); err != nil {
			t.Errorf("Call() error = %v", err)
		}
	})

	t.Run("error responses become protocol errors", func(t *testing.T) {
		err := c.Call(ctx, "missing", nil)

		var rpcErr *protocol.Error
		if !errors.As(err, &rpcErr) || rpcErr.Code != protocol.CodeMethodNotFound {
			t.Errorf("error = %v, want method not found", err)
		}
		if !errors.Is(err, protocol.ErrMethodNotFound) {
			t.Errorf("errors.Is(err, ErrMethodNotFound) = false")
		}
	})

	t.Run("notify runs handler without response", func(t *testing.T) {
		if err := c.Notify(ctx, "note", "hello"); err != nil {
			t.Fatalf("Notify() error = %v", err)
		}
		select {
		case got := <-notes:
			if got != "hello" {
				t.Errorf("note = %q, want hello", got)
			}
		case <-time.After(time.Second):
			t.Fatal("notification not delivered")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		short := client.New(client.NewLocalTransport(srv.Dispatch), client.WithTimeout(20*time.Millisecond))
		if err := short.Call(ctx, "slow", nil); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want deadline exceeded", err)
		}
	})

	t.Run("closed transport", func(t *testing.T) {
		closed := client.New(client.NewLocalTransport(srv.Dispatch))
		_ = closed.Close()
		if err := closed.Call(ctx, "add", nil, 1, 2); !errors.Is(err, client.ErrClosed) {
			t.Errorf("Call() error = %v, want ErrClosed", err)
		}
		if err := closed.Notify(ctx, "note"); !errors.Is(err, client.ErrClosed) {
			t.Errorf("Notify() error = %v, want ErrClosed", err)
		}
	})

	t.Run("unmarshalable params", func(t *testing.T) {
		if err := c.Call(ctx, "add", nil, make(chan int)); err == nil {
			t.Error("expected marshal error")
		}
	})
}

// pipeConn joins the client ends of two pipes into one stream.
type pipeConn struct {
	io.Reader
	io.WriteCloser
}

func TestStreamTransport(t *testing.T) {
	srv, _ := newServer()

	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = transport.NewStdio(transport.WithStdin(serverIn), transport.WithStdout(serverOut)).
			Serve(ctx, transport.HandlerFunc(srv.DispatchRaw))
		_ = serverOut.Close()
	}()

	st := client.NewStreamTransport(pipeConn{Reader: clientIn, WriteCloser: clientOut})
	c := client.New(st, client.WithTimeout(time.Second))

	t.Run("concurrent calls match by id", func(t *testing.T) {
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			go func(i int) {
				var sum int
				if err := c.Call(context.Background(), "add", &sum, i, i); err != nil {
					errs <- err
					return
				}
				if sum != 2*i {
					errs <- errors.New("mismatched response")
					return
				}
				errs <- nil
			}(i)
		}
		for i := 0; i < 10; i++ {
			if err := <-errs; err != nil {
				t.Errorf("call failed: %v", err)
			}
		}
	})

	t.Run("close fails later calls", func(t *testing.T) {
		if err := c.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := c.Call(context.Background(), "add", nil, 1, 2); !errors.Is(err, client.ErrClosed) {
			t.Errorf("Call() error = %v, want ErrClosed", err)
		}
	})
}

func TestDialTCP(t *testing.T) {
	srv, _ := newServer()
	tcp := transport.NewTCP("")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = tcp.Serve(ctx, transport.HandlerFunc(srv.DispatchRaw)) }()
	<-tcp.Ready()

	st, err := client.DialTCP(ctx, tcp.ListenAddr())
	if err != nil {
		t.Fatalf("DialTCP() error = %v", err)
	}
	c := client.New(st)
	defer c.Close()

	var sum int
	if err := c.Call(ctx, "add", &sum, 20, 22); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if sum != 42 {
		t.Errorf("sum = %d, want 42", sum)
	}

	cancel()
	select {
	case <-st.Done():
	case <-time.After(time.Second):
		t.Fatal("stream did not end after server shutdown")
	}
	if err := c.Call(context.Background(), "add", nil, 1, 1); err == nil {
		t.Error("expected error after server shutdown")
	}
}
