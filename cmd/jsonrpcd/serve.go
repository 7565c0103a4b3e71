package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/jsonrpc-go/config"
	"github.com/felixgeelhaar/jsonrpc-go/middleware"
	"github.com/felixgeelhaar/jsonrpc-go/server"
	"github.com/felixgeelhaar/jsonrpc-go/transport"
)

// APIKeyHeader carries API keys on HTTP and WebSocket requests.
const APIKeyHeader = "X-API-Key"

func newServeCommand() *cobra.Command {
	var (
		stdio    bool
		tcpAddr  string
		httpAddr string
		wsAddr   string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the method registry",
		Long: `Serve the method registry over the configured transports.

Without a config file the server runs on stdin/stdout using newline-delimited
JSON. Flags override the config file, which overrides the defaults.
JSONRPC_* environment variables are applied between the two.

Methods:
  echo         Return the first param
  sum          Add all params
  ping[.*]     Return "pong"
  sleep        Complete after the given milliseconds
  time         Current UTC time
  calc.*       add, mul, div
  text.*       upper, join`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("stdio") {
				cfg.Stdio = stdio
			}
			if flags.Changed("tcp") {
				cfg.TCP.Addr = tcpAddr
			}
			if flags.Changed("http") {
				cfg.HTTP.Addr = httpAddr
			}
			if flags.Changed("ws") {
				cfg.WebSocket.Addr = wsAddr
			}
			if flags.Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger := config.NewLogger(cmd.ErrOrStderr(), cfg.Logging)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, logger, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&stdio, "stdio", true, "Serve on stdin/stdout")
	cmd.Flags().StringVar(&tcpAddr, "tcp", "", "TCP address to listen on (e.g., 127.0.0.1:9000)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP address to listen on")
	cmd.Flags().StringVar(&wsAddr, "ws", "", "WebSocket address to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := config.LoadEnv(envFile); err != nil {
			return nil, err
		}
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// serve runs every configured transport until ctx is done, a transport
// fails, or stdin reaches EOF.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdin io.Reader, stdout io.Writer) error {
	srv, _, err := newServer(logger)
	if err != nil {
		return err
	}

	mws, shutdownTelemetry := buildMiddleware(cfg, logger)
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	handler := transport.HandlerFunc(server.Raw(middleware.Chain(mws...)(srv.Dispatch)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	for _, t := range buildTransports(cfg, logger, stdin, stdout) {
		g.Go(func() error {
			logger.Info("serving", slog.String("addr", t.Addr()))
			err := t.Serve(ctx, handler)
			if _, ok := t.(*transport.Stdio); ok {
				cancel()
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", t.Addr(), err)
			}
			return nil
		})
	}

	return g.Wait()
}

func buildTransports(cfg *config.Config, logger *slog.Logger, stdin io.Reader, stdout io.Writer) []transport.Transport {
	var ts []transport.Transport

	if cfg.Stdio {
		ts = append(ts, transport.NewStdio(transport.WithStdin(stdin), transport.WithStdout(stdout)))
	}

	if cfg.TCP.Addr != "" {
		opts := []transport.TCPOption{transport.WithTCPLogger(logger)}
		if cfg.TCP.MaxLineSize > 0 {
			opts = append(opts, transport.WithTCPMaxLineSize(cfg.TCP.MaxLineSize))
		}
		ts = append(ts, transport.NewTCP(cfg.TCP.Addr, opts...))
	}

	if cfg.HTTP.Addr != "" {
		opts := []transport.HTTPOption{
			transport.WithPath(cfg.HTTP.Path),
			transport.WithWriteTimeout(cfg.HTTP.WriteTimeout.Duration),
		}
		if d := cfg.HTTP.ReadTimeout.Duration; d > 0 {
			opts = append(opts, transport.WithReadTimeout(d))
		}
		if d := cfg.HTTP.ShutdownTimeout.Duration; d > 0 {
			opts = append(opts, transport.WithShutdownTimeout(d))
		}
		if cfg.HTTP.MaxBodySize > 0 {
			opts = append(opts, transport.WithMaxBodySize(cfg.HTTP.MaxBodySize))
		}
		if cfg.HTTP.CORS {
			opts = append(opts, transport.WithDefaultCORS())
		}
		ts = append(ts, transport.NewHTTP(cfg.HTTP.Addr, opts...))
	}

	if cfg.WebSocket.Addr != "" {
		opts := []transport.WebSocketOption{
			transport.WithWebSocketPath(cfg.WebSocket.Path),
			transport.WithWebSocketLogger(logger),
		}
		if d := cfg.WebSocket.ReadTimeout.Duration; d > 0 {
			opts = append(opts, transport.WithWebSocketReadTimeout(d))
		}
		if d := cfg.WebSocket.WriteTimeout.Duration; d > 0 {
			opts = append(opts, transport.WithWebSocketWriteTimeout(d))
		}
		ts = append(ts, transport.NewWebSocket(cfg.WebSocket.Addr, opts...))
	}

	return ts
}

// buildMiddleware assembles the request pipeline from cfg. The returned
// function flushes telemetry.
func buildMiddleware(cfg *config.Config, logger *slog.Logger) ([]middleware.Middleware, func(context.Context) error) {
	log := middleware.NewSlogLogger(logger)
	shutdown := func(context.Context) error { return nil }

	mws := []middleware.Middleware{
		middleware.Recover(),
		middleware.RequestID(),
	}

	if cfg.Telemetry.Enabled {
		tp := newTracerProvider(logger)
		shutdown = tp.Shutdown
		mws = append(mws, middleware.OTel(
			middleware.WithTracerProvider(tp),
			middleware.WithOTelServiceName(cfg.Telemetry.ServiceName),
		))
	}

	mws = append(mws, middleware.Logging(log))

	if cfg.Auth.Enabled() {
		mws = append(mws, middleware.Auth(authenticator(cfg.Auth),
			middleware.WithAuthSkipMethods(cfg.Auth.SkipMethods...),
			middleware.WithAuthLogger(log),
		))
	}

	if cfg.RateLimit.Rate > 0 {
		opts := []middleware.RateLimitOption{middleware.WithRateLimitLogger(log)}
		if d := cfg.RateLimit.Interval.Duration; d > 0 {
			opts = append(opts, middleware.WithRateLimitInterval(d))
		}
		if cfg.RateLimit.PerMethod {
			mws = append(mws, middleware.RateLimitByMethod(cfg.RateLimit.Rate, cfg.RateLimit.Burst, opts...))
		} else {
			mws = append(mws, middleware.RateLimit(cfg.RateLimit.Rate, cfg.RateLimit.Burst, opts...))
		}
	}

	if cfg.MaxParamsBytes > 0 {
		mws = append(mws, middleware.SizeLimit(cfg.MaxParamsBytes, middleware.WithSizeLimitLogger(log)))
	}

	mws = append(mws, middleware.Cancellation(middleware.NewCancellationManager()))

	if d := cfg.Timeout.Duration; d > 0 {
		mws = append(mws, middleware.Timeout(d))
	}

	return mws, shutdown
}

func authenticator(cfg config.AuthConfig) middleware.Authenticator {
	var auths []middleware.Authenticator
	if len(cfg.APIKeys) > 0 {
		keys := make(map[string]*middleware.Identity, len(cfg.APIKeys))
		for i, key := range cfg.APIKeys {
			keys[key] = &middleware.Identity{ID: fmt.Sprintf("key-%d", i+1)}
		}
		auths = append(auths, middleware.APIKeyAuthenticator(APIKeyHeader, middleware.StaticAPIKeys(keys)))
	}
	if cfg.JWTSecret != "" {
		auths = append(auths, middleware.JWTAuthenticator([]byte(cfg.JWTSecret)))
	}
	return middleware.ChainAuthenticators(auths...)
}
