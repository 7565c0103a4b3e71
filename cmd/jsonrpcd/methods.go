package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
	"github.com/felixgeelhaar/jsonrpc-go/server"
	"github.com/felixgeelhaar/jsonrpc-go/service"
)

// maxSleep bounds the sleep method.
const maxSleep = time.Minute

// Calc is exposed as the "calc" service.
type Calc struct{}

func (Calc) Add(a, b float64) float64 { return a + b }

func (Calc) Mul(a, b float64) float64 { return a * b }

func (Calc) Div(a, b float64) (float64, error) {
	if b == 0 {
		return 0, protocol.NewInvalidParams("division by zero")
	}
	return a / b, nil
}

// Text is exposed as the "text" service.
type Text struct{}

func (Text) Upper(s string) string { return strings.ToUpper(s) }

func (Text) Join(sep string, parts ...string) string { return strings.Join(parts, sep) }

// newServer builds the demonstration registry.
func newServer(logger *slog.Logger) (*server.Server, *service.Adapter, error) {
	srv := server.New(server.WithLogger(logger))

	srv.Handle("echo", func(_ context.Context, params protocol.Params) (any, error) {
		if params.Len() == 0 {
			return nil, nil
		}
		return params[0], nil
	})

	srv.Handle("sum", func(_ context.Context, params protocol.Params) (any, error) {
		var total float64
		for i := range params {
			var n float64
			if err := params.Decode(i, &n); err != nil {
				return nil, err
			}
			total += n
		}
		return total, nil
	})

	srv.HandlePattern(regexp.MustCompile(`^ping(\.|$)`), func(context.Context, protocol.Params) (any, error) {
		return "pong", nil
	})

	srv.Handle("sleep", func(ctx context.Context, params protocol.Params) (any, error) {
		var ms int64
		if err := params.Bind(&ms); err != nil {
			return nil, err
		}
		d := time.Duration(ms) * time.Millisecond
		if d < 0 || d > maxSleep {
			return nil, protocol.NewInvalidParams(fmt.Sprintf("sleep must be between 0 and %v", maxSleep))
		}
		return server.Go(func() (any, error) {
			select {
			case <-time.After(d):
				return ms, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}), nil
	})

	srv.HandleAsync("time", func(_ context.Context, _ protocol.Params, succeed func(any), _ func(error)) {
		succeed(time.Now().UTC().Format(time.RFC3339Nano))
	})

	adapter := service.New(service.WithLogger(logger))
	if err := errors.Join(
		adapter.Register("calc", Calc{}),
		adapter.Register("text", Text{}),
	); err != nil {
		return nil, nil, err
	}
	adapter.Install(srv)

	return srv, adapter, nil
}

func newMethodsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "methods",
		Short: "List the registered methods",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, adapter, err := newServer(slog.New(slog.DiscardHandler))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"methods":  srv.Methods(),
					"services": adapter.Services(),
				})
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MATCHER\tKIND\tMODE")
			for _, m := range srv.Methods() {
				kind := "exact"
				if m.Pattern {
					kind = "pattern"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", m.Matcher, kind, m.Mode)
			}
			for _, name := range adapter.Services() {
				fmt.Fprintf(w, "%s.*\tservice\tcallback\n", name)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
