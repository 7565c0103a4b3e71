// Package transport carries raw JSON-RPC 2.0 messages between peers and a
// dispatcher.
//
// Every transport hands each incoming message to a Handler as bytes,
// together with a responder. Responses may be delivered after Handle
// returns; transports write them whenever they arrive.
//
// # Stdio and TCP
//
// Both speak newline-delimited JSON: one message per line in each
// direction. TCP binds the loopback interface unless told otherwise:
//
//	err := transport.NewStdio().Serve(ctx, handler)
//	err := transport.NewTCP("127.0.0.1:9090").Serve(ctx, handler)
//
// # HTTP
//
// The HTTP transport accepts one request per POST:
//
//	t := transport.NewHTTP(":8080",
//	    transport.WithReadTimeout(30*time.Second),
//	    transport.WithDefaultCORS(),
//	)
//	err := t.Serve(ctx, handler)
//
// Endpoints:
//   - POST /rpc - handle a JSON-RPC message (204 for notifications)
//   - GET /health - health check, 503 while draining
//
// Request headers are exposed to handlers via protocol.RequestMetaFromContext.
//
// # WebSocket
//
// Each WebSocket message carries one request. Responses are written as
// they complete, so deferred calls never block the connection.
package transport
