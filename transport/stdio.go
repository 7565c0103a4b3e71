package transport

import (
	"context"
	"io"
	"os"
)

// Stdio serves newline-delimited JSON-RPC over stdin/stdout.
type Stdio struct {
	in      io.Reader
	out     *lineWriter
	maxLine int
}

// StdioOption configures a Stdio transport.
type StdioOption func(*Stdio)

// WithStdin sets a custom stdin reader.
func WithStdin(r io.Reader) StdioOption {
	return func(s *Stdio) {
		s.in = r
	}
}

// WithStdout sets a custom stdout writer.
func WithStdout(w io.Writer) StdioOption {
	return func(s *Stdio) {
		s.out = &lineWriter{out: w}
	}
}

// WithMaxLineSize limits the size of a single incoming message.
func WithMaxLineSize(n int) StdioOption {
	return func(s *Stdio) {
		s.maxLine = n
	}
}

// NewStdio creates a new stdio transport.
func NewStdio(opts ...StdioOption) *Stdio {
	s := &Stdio{
		in:      os.Stdin,
		out:     &lineWriter{out: os.Stdout},
		maxLine: DefaultMaxLineSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Addr returns the transport address.
func (s *Stdio) Addr() string {
	return "stdio"
}

// Serve reads one message per line until stdin is exhausted or ctx is
// canceled. Responses are written as they complete, one per line.
func (s *Stdio) Serve(ctx context.Context, handler Handler) error {
	return serveLines(ctx, s.in, s.out, handler, s.maxLine)
}

// SendNotification writes a server-initiated notification to stdout.
func (s *Stdio) SendNotification(method string, params ...any) error {
	return s.out.SendNotification(method, params...)
}
