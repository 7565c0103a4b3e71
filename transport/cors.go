package transport

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin access to the HTTP transport.
type CORSConfig struct {
	// AllowOrigins lists exact origins, or "*" alone for any origin.
	AllowOrigins []string

	// AllowMethods defaults to POST, OPTIONS.
	AllowMethods []string

	// AllowHeaders defaults to Content-Type, Authorization, X-API-Key, X-Request-ID.
	AllowHeaders []string

	ExposeHeaders    []string
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds. Default 86400.
	MaxAge int
}

var (
	defaultCORSMethods = []string{http.MethodPost, http.MethodOptions}
	defaultCORSHeaders = []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-ID"}
)

const defaultCORSMaxAge = 86400

// DefaultCORSConfig returns a permissive CORS configuration suitable for development.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: defaultCORSMethods,
		AllowHeaders: defaultCORSHeaders,
		MaxAge:       defaultCORSMaxAge,
	}
}

type corsHandler struct {
	next        http.Handler
	anyOrigin   bool
	origins     map[string]struct{}
	methods     string
	headers     string
	expose      string
	maxAge      string
	credentials bool
}

// CORSHandler wraps next with CORS headers. Preflight requests from
// allowed origins are answered with 204 and never reach next.
func CORSHandler(config CORSConfig, next http.Handler) http.Handler {
	methods, headers, maxAge := config.AllowMethods, config.AllowHeaders, config.MaxAge
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	if maxAge == 0 {
		maxAge = defaultCORSMaxAge
	}

	c := &corsHandler{
		next:        next,
		anyOrigin:   len(config.AllowOrigins) == 1 && config.AllowOrigins[0] == "*",
		origins:     make(map[string]struct{}, len(config.AllowOrigins)),
		methods:     strings.Join(methods, ", "),
		headers:     strings.Join(headers, ", "),
		expose:      strings.Join(config.ExposeHeaders, ", "),
		credentials: config.AllowCredentials,
	}
	if maxAge > 0 {
		c.maxAge = strconv.Itoa(maxAge)
	}
	for _, origin := range config.AllowOrigins {
		c.origins[origin] = struct{}{}
	}
	return c
}

// allowedOrigin returns the Access-Control-Allow-Origin value for origin,
// or "" when the origin is not allowed.
func (c *corsHandler) allowedOrigin(origin string) string {
	if c.anyOrigin {
		return "*"
	}
	if _, ok := c.origins[origin]; ok && origin != "" {
		return origin
	}
	return ""
}

func (c *corsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	allow := c.allowedOrigin(r.Header.Get("Origin"))
	if allow == "" {
		c.next.ServeHTTP(w, r)
		return
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", allow)
	if !c.anyOrigin {
		h.Add("Vary", "Origin")
	}
	if c.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}

	if r.Method == http.MethodOptions {
		h.Set("Access-Control-Allow-Methods", c.methods)
		h.Set("Access-Control-Allow-Headers", c.headers)
		if c.maxAge != "" {
			h.Set("Access-Control-Max-Age", c.maxAge)
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if c.expose != "" {
		h.Set("Access-Control-Expose-Headers", c.expose)
	}
	c.next.ServeHTTP(w, r)
}

// WithCORS enables CORS on the HTTP transport.
func WithCORS(config CORSConfig) HTTPOption {
	return func(h *HTTP) {
		h.corsConfig = &config
	}
}

// WithDefaultCORS enables CORS with default permissive settings.
func WithDefaultCORS() HTTPOption {
	return WithCORS(DefaultCORSConfig())
}
