package transport

import (
	"context"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// Handler processes one raw JSON-RPC message. A response, if any, is
// delivered through respond, possibly after Handle has returned.
type Handler interface {
	Handle(ctx context.Context, data []byte, respond protocol.Responder)
}

// HandlerFunc is an adapter to allow ordinary functions as handlers.
type HandlerFunc func(ctx context.Context, data []byte, respond protocol.Responder)

// Handle calls f(ctx, data, respond).
func (f HandlerFunc) Handle(ctx context.Context, data []byte, respond protocol.Responder) {
	f(ctx, data, respond)
}

// Transport defines the communication layer interface.
type Transport interface {
	// Serve starts the transport, blocking until ctx is canceled or an error occurs.
	Serve(ctx context.Context, handler Handler) error

	// Addr returns the transport's address description.
	Addr() string
}

// NotificationSender can send JSON-RPC notifications to the peer that
// issued the current request.
type NotificationSender interface {
	SendNotification(method string, params ...any) error
}

type notificationSenderKey struct{}

// ContextWithNotificationSender returns a context with the notification sender attached.
func ContextWithNotificationSender(ctx context.Context, sender NotificationSender) context.Context {
	return context.WithValue(ctx, notificationSenderKey{}, sender)
}

// NotificationSenderFromContext returns the notification sender from context, or nil if none.
func NotificationSenderFromContext(ctx context.Context) NotificationSender {
	sender, _ := ctx.Value(notificationSenderKey{}).(NotificationSender)
	return sender
}
