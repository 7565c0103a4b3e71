package protocol

import (
	"context"
	"maps"
	"net/http"
)

type requestMetaKey struct{}

// RequestMeta carries transport-level metadata (HTTP headers, peer
// information) alongside a request. Keys are canonical header names.
type RequestMeta map[string]string

// Get returns the value stored under key, trying the canonical header
// spelling when the exact key is absent.
func (m RequestMeta) Get(key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return m[http.CanonicalHeaderKey(key)]
}

// MetaFromHeader flattens HTTP headers into request metadata, keeping the
// first value of each header.
func MetaFromHeader(h http.Header) RequestMeta {
	meta := make(RequestMeta, len(h))
	for k, v := range h {
		if len(v) > 0 {
			meta[http.CanonicalHeaderKey(k)] = v[0]
		}
	}
	return meta
}

// ContextWithRequestMeta returns a new context with the request metadata attached.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext returns the request metadata from the context, or nil.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// GetRequestMeta returns a single metadata value, or "" when absent.
func GetRequestMeta(ctx context.Context, key string) string {
	return RequestMetaFromContext(ctx).Get(key)
}

// SetRequestMeta returns a context whose metadata has key set. The metadata
// already in ctx is copied, never mutated.
func SetRequestMeta(ctx context.Context, key, value string) context.Context {
	meta := make(RequestMeta)
	maps.Copy(meta, RequestMetaFromContext(ctx))
	meta[key] = value
	return ContextWithRequestMeta(ctx, meta)
}
