package server

import (
	"context"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// HandlerFunc is a method handler that completes synchronously.
//
// The returned value becomes the result of the call. A returned error, or a
// panic, becomes an error response. A returned value that implements
// Deferred is awaited instead of being sent as the result.
type HandlerFunc func(ctx context.Context, params protocol.Params) (any, error)

// AsyncHandlerFunc is a method handler that completes through callbacks.
// Exactly one of succeed or fail should eventually be called; later calls
// are ignored.
type AsyncHandlerFunc func(ctx context.Context, params protocol.Params, succeed func(result any), fail func(err error))

// Mode is the completion convention of a registration.
type Mode int

const (
	// Sync handlers return their result (or a Deferred) directly.
	Sync Mode = iota
	// CallbackPair handlers receive succeed and fail continuations.
	CallbackPair
)

func (m Mode) String() string {
	switch m {
	case Sync:
		return "sync"
	case CallbackPair:
		return "callback"
	default:
		return "unknown"
	}
}
