package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/felixgeelhaar/jsonrpc-go/protocol"
)

// Identity represents an authenticated identity.
type Identity struct {
	// ID is a unique identifier for the identity (e.g., user ID, API key ID).
	ID string
	// Name is a human-readable name for the identity.
	Name string
	// Metadata contains additional identity information.
	Metadata map[string]any
}

// identityContextKey is the context key for storing the identity.
type identityContextKey struct{}

// IdentityFromContext returns the authenticated identity from the context.
// Returns nil if no identity is present.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityContextKey{}).(*Identity); ok {
		return id
	}
	return nil
}

// ContextWithIdentity returns a new context with the identity attached.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// AuthOption configures the authentication middleware.
type AuthOption func(*authConfig)

type authConfig struct {
	logger       Logger
	skipMethods  map[string]bool
	errorMessage string
}

// WithAuthLogger sets the logger for auth events.
func WithAuthLogger(l Logger) AuthOption {
	return func(c *authConfig) {
		c.logger = l
	}
}

// WithAuthSkipMethods specifies methods that don't require authentication.
func WithAuthSkipMethods(methods ...string) AuthOption {
	return func(c *authConfig) {
		for _, m := range methods {
			c.skipMethods[m] = true
		}
	}
}

// WithAuthErrorMessage sets a custom error message for auth failures.
func WithAuthErrorMessage(msg string) AuthOption {
	return func(c *authConfig) {
		c.errorMessage = msg
	}
}

// Authenticator validates credentials and returns an identity.
// It should return a nil identity when no credentials are present, and an
// error when credentials are present but invalid.
type Authenticator func(ctx context.Context, req *protocol.Request) (*Identity, error)

// Auth returns middleware that authenticates requests using the provided authenticator.
// If authentication fails, calls are rejected with an unauthorized error
// and notifications are dropped.
func Auth(authenticator Authenticator, opts ...AuthOption) Middleware {
	cfg := &authConfig{
		skipMethods:  make(map[string]bool),
		errorMessage: "authentication required",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request, respond protocol.Responder) {
			if cfg.skipMethods[req.Method] {
				next(ctx, req, respond)
				return
			}

			identity, err := authenticator(ctx, req)
			if err != nil || identity == nil {
				if cfg.logger != nil {
					fields := []Field{F("method", req.Method)}
					if err != nil {
						fields = append(fields, F("error", err.Error()))
					}
					cfg.logger.Warn("authentication failed", fields...)
				}
				reject(req, respond, protocol.NewUnauthorized(cfg.errorMessage))
				return
			}

			if cfg.logger != nil {
				cfg.logger.Debug("authenticated",
					F("method", req.Method),
					F("identity", identity.ID),
				)
			}

			next(ContextWithIdentity(ctx, identity), req, respond)
		}
	}
}

// APIKeyAuthenticator creates an authenticator that validates API keys
// carried in request metadata under headerName.
// The keyValidator function should return the identity for a valid key, or nil for invalid.
func APIKeyAuthenticator(headerName string, keyValidator func(key string) *Identity) Authenticator {
	return func(ctx context.Context, _ *protocol.Request) (*Identity, error) {
		key := protocol.GetRequestMeta(ctx, headerName)
		if key == "" {
			return nil, nil
		}
		return keyValidator(key), nil
	}
}

// BearerTokenAuthenticator creates an authenticator that validates bearer tokens.
// The tokenValidator function should return the identity for a valid token, or nil for invalid.
func BearerTokenAuthenticator(tokenValidator func(token string) *Identity) Authenticator {
	return func(ctx context.Context, _ *protocol.Request) (*Identity, error) {
		token := bearerToken(ctx)
		if token == "" {
			return nil, nil
		}
		return tokenValidator(token), nil
	}
}

func bearerToken(ctx context.Context) string {
	auth := protocol.GetRequestMeta(ctx, "Authorization")
	const prefix = "Bearer "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// StaticAPIKeys creates a simple key validator from a map of key -> identity.
func StaticAPIKeys(keys map[string]*Identity) func(string) *Identity {
	return func(key string) *Identity {
		return keys[key]
	}
}

// StaticTokens creates a simple token validator from a map of token -> identity.
func StaticTokens(tokens map[string]*Identity) func(string) *Identity {
	return func(token string) *Identity {
		return tokens[token]
	}
}

// ChainAuthenticators chains multiple authenticators, returning the first successful identity.
func ChainAuthenticators(authenticators ...Authenticator) Authenticator {
	return func(ctx context.Context, req *protocol.Request) (*Identity, error) {
		for _, auth := range authenticators {
			identity, err := auth(ctx, req)
			if err != nil {
				return nil, err
			}
			if identity != nil {
				return identity, nil
			}
		}
		return nil, nil
	}
}

// ErrInvalidToken is returned by JWTAuthenticator for tokens that fail validation.
var ErrInvalidToken = errors.New("invalid token")

// JWTClaims are the claims accepted by JWTAuthenticator.
type JWTClaims struct {
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuthenticator creates an authenticator for HMAC-signed bearer JWTs.
// The token subject becomes the identity ID; name and roles are copied
// into the identity.
func JWTAuthenticator(secret []byte) Authenticator {
	return func(ctx context.Context, _ *protocol.Request) (*Identity, error) {
		token := bearerToken(ctx)
		if token == "" {
			return nil, nil
		}

		claims := &JWTClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		}, jwt.WithLeeway(5*time.Second))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if !parsed.Valid {
			return nil, ErrInvalidToken
		}
		if claims.Subject == "" {
			return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
		}

		return &Identity{
			ID:   claims.Subject,
			Name: claims.Name,
			Metadata: map[string]any{
				"roles": claims.Roles,
			},
		}, nil
	}
}
