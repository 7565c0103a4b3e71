package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/felixgeelhaar/jsonrpc-go/config"
	"github.com/felixgeelhaar/jsonrpc-go/middleware"
	"github.com/felixgeelhaar/jsonrpc-go/protocol"
	"github.com/felixgeelhaar/jsonrpc-go/server"
	"github.com/felixgeelhaar/jsonrpc-go/testutil"
	"github.com/felixgeelhaar/jsonrpc-go/transport"
)

var discardLogger = slog.New(slog.DiscardHandler)

func TestServeStdio(t *testing.T) {
	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"echo","params":["hi"]}`,
		`{"jsonrpc":"2.0","method":"echo","params":["dropped"]}`,
		`{"jsonrpc":"2.0","id":2,"method":"calc.add","params":[1,2]}`,
		`not json`,
	}, "\n"))
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := serve(ctx, config.Default(), discardLogger, in, &out); err != nil {
		t.Fatalf("serve() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{
		`{"jsonrpc":"2.0","id":1,"result":"hi"}`,
		`{"jsonrpc":"2.0","id":2,"result":3}`,
	}
	if len(lines) != 3 {
		t.Fatalf("lines = %q, want 3", lines)
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %s, want %s", i, lines[i], w)
		}
	}
	var last protocol.Response
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil || last.Error == nil || last.Error.Code != protocol.CodeParseError {
		t.Errorf("last line = %s, want parse error", lines[2])
	}
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"serve", "--stdio=false", "--env-file="})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "no transport enabled") {
		t.Errorf("Execute() error = %v, want no transport enabled", err)
	}
}

func pipeline(t *testing.T, cfg *config.Config) *testutil.TestClient {
	t.Helper()
	srv, _, err := newServer(discardLogger)
	if err != nil {
		t.Fatalf("newServer() error = %v", err)
	}
	mws, shutdown := buildMiddleware(cfg, discardLogger)
	t.Cleanup(func() { _ = shutdown(context.Background()) })
	handler := transport.HandlerFunc(server.Raw(middleware.Chain(mws...)(srv.Dispatch)))
	return testutil.NewTestClientWithHandler(t, handler)
}

func TestBuildMiddleware(t *testing.T) {
	t.Run("defaults pass through", func(t *testing.T) {
		pipeline(t, config.Default()).AssertResult("ping", "pong")
	})

	t.Run("timeout", func(t *testing.T) {
		cfg := config.Default()
		cfg.Timeout.Duration = 20 * time.Millisecond
		pipeline(t, cfg).AssertError("sleep", protocol.CodeRequestTimeout, 1000)
	})

	t.Run("rate limit", func(t *testing.T) {
		cfg := config.Default()
		cfg.RateLimit = config.RateLimitConfig{Rate: 1, Burst: 1, Interval: config.Duration{Duration: time.Hour}}
		tc := pipeline(t, cfg)
		tc.AssertResult("ping", "pong")
		tc.AssertError("ping", protocol.CodeRateLimited)
	})

	t.Run("size limit", func(t *testing.T) {
		cfg := config.Default()
		cfg.MaxParamsBytes = 8
		pipeline(t, cfg).AssertError("echo", protocol.CodeInvalidRequest, strings.Repeat("x", 32))
	})

	t.Run("telemetry", func(t *testing.T) {
		cfg := config.Default()
		cfg.Telemetry.Enabled = true
		pipeline(t, cfg).AssertResult("calc.add", 3, 1, 2)
	})
}

func TestAuthentication(t *testing.T) {
	cfg := config.Default()
	cfg.Auth = config.AuthConfig{
		APIKeys:     []string{"k1"},
		JWTSecret:   "secret",
		SkipMethods: []string{"ping"},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	tests := []struct {
		name   string
		meta   protocol.RequestMeta
		method string
		ok     bool
	}{
		{"no credentials", nil, "echo", false},
		{"skipped method", nil, "ping", true},
		{"api key", protocol.RequestMeta{APIKeyHeader: "k1"}, "echo", true},
		{"wrong api key", protocol.RequestMeta{APIKeyHeader: "k2"}, "echo", false},
		{"jwt", protocol.RequestMeta{"Authorization": "Bearer " + token}, "echo", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := newServer(discardLogger)
			mws, _ := buildMiddleware(cfg, discardLogger)
			handler := transport.HandlerFunc(server.Raw(middleware.Chain(mws...)(srv.Dispatch)))
			ctx := protocol.ContextWithRequestMeta(context.Background(), tt.meta)
			tc := testutil.NewTestClientWithHandler(t, handler, testutil.WithContext(ctx))

			resp, err := tc.CallRaw(tt.method, "x")
			if err != nil {
				t.Fatalf("CallRaw() error = %v", err)
			}
			if tt.ok && resp.Error != nil {
				t.Errorf("unexpected error: %v", resp.Error)
			}
			if !tt.ok && (resp.Error == nil || resp.Error.Code != protocol.CodeUnauthorized) {
				t.Errorf("response = %+v, want unauthorized", resp)
			}
		})
	}
}
