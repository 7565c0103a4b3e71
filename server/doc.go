// Package server provides the JSON-RPC method registry and dispatcher.
//
// This package implements method registration, request validation, method
// resolution, and the completion conventions handlers may use. Most users
// should use the higher-level jsonrpc package instead of using this package
// directly.
//
// # Registry
//
// Registrations are tried in insertion order; the first match wins. A
// single fallback registration is tried after all others and receives the
// method name as a trailing string param:
//
//	srv := server.New()
//
//	srv.Handle("echo", func(ctx context.Context, p protocol.Params) (any, error) {
//	    var s string
//	    if err := p.Bind(&s); err != nil {
//	        return nil, err
//	    }
//	    return s, nil
//	})
//
//	srv.HandlePattern(regexp.MustCompile(`^math\.`), mathHandler)
//
//	srv.SetAsyncFallback(func(ctx context.Context, p protocol.Params, succeed func(any), fail func(error)) {
//	    var method string
//	    _ = p.Decode(p.Len()-1, &method)
//	    succeed("handled " + method)
//	})
//
// Remove deletes the most recently added registration for a name, pattern,
// or handler.
//
// # Completion
//
// A HandlerFunc returns its result directly. Returning a Deferred value,
// such as a *Future, delays the response until it settles:
//
//	srv.Handle("slow", func(ctx context.Context, p protocol.Params) (any, error) {
//	    return server.Go(func() (any, error) {
//	        time.Sleep(time.Second)
//	        return "done", nil
//	    }), nil
//	})
//
// An AsyncHandlerFunc receives succeed and fail continuations instead. The
// dispatcher never times out a pending call; see the middleware package
// for timeouts and cancellation.
//
// # Dispatch
//
//	srv.DispatchRaw(ctx, []byte(`{"jsonrpc":"2.0","id":1,"method":"echo","params":["hi"]}`),
//	    func(resp *protocol.Response) {
//	        // {"jsonrpc":"2.0","id":1,"result":"hi"}
//	    })
package server
