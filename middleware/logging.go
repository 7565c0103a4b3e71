package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// Logger is the interface for structured logging.
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logging returns middleware that logs request details.
//
// Calls are logged when their response is emitted: successes at info
// level, error responses at error level. Notifications are logged once the
// handler returns, since they never produce a response.
func Logging(logger Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request, respond protocol.Responder) {
			start := time.Now()

			fields := func() []Field {
				fields := []Field{
					F("method", req.Method),
					F("duration", time.Since(start)),
				}
				if !req.IsNotification() {
					fields = append(fields, F("id", string(req.ID)))
				}
				if requestID := RequestIDFromContext(ctx); requestID != "" {
					fields = append(fields, F("request_id", requestID))
				}
				return fields
			}

			if req.IsNotification() {
				next(ctx, req, respond)
				logger.Info("notification handled", fields()...)
				return
			}

			next(ctx, req, func(resp *protocol.Response) {
				if resp.Error != nil {
					logger.Error("request failed", append(fields(),
						F("error", resp.Error.Message),
						F("code", resp.Error.Code),
					)...)
				} else {
					logger.Info("request completed", fields()...)
				}
				if respond != nil {
					respond(resp)
				}
			})
		}
	}
}

// NopLogger is a logger that discards all log entries.
type NopLogger struct{}

func (NopLogger) Info(msg string, fields ...Field)  {}
func (NopLogger) Error(msg string, fields ...Field) {}
func (NopLogger) Debug(msg string, fields ...Field) {}
func (NopLogger) Warn(msg string, fields ...Field)  {}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps logger. A nil logger uses slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

func (l *SlogLogger) Info(msg string, fields ...Field)  { l.logger.Info(msg, attrs(fields)...) }
func (l *SlogLogger) Error(msg string, fields ...Field) { l.logger.Error(msg, attrs(fields)...) }
func (l *SlogLogger) Debug(msg string, fields ...Field) { l.logger.Debug(msg, attrs(fields)...) }
func (l *SlogLogger) Warn(msg string, fields ...Field)  { l.logger.Warn(msg, attrs(fields)...) }

func attrs(fields []Field) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = slog.Any(f.Key, f.Value)
	}
	return out
}
