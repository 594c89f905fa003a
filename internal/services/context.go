package services

import "context"

type contextKey string

const (
	callRefKey   contextKey = "call_ref"
	clientTagKey contextKey = "client"
	methodKey    contextKey = "method"
)

// WithCallRef annotates context with the per-call correlation reference.
func WithCallRef(ctx context.Context, ref string) context.Context {
	if ref == "" {
		return ctx
	}
	return context.WithValue(ctx, callRefKey, ref)
}

// CallRefFromContext extracts the call reference if present.
func CallRefFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(callRefKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithClientTag annotates context with the diagnostic client tag.
func WithClientTag(ctx context.Context, tag string) context.Context {
	if tag == "" {
		return ctx
	}
	return context.WithValue(ctx, clientTagKey, tag)
}

// ClientTagFromContext returns the client tag if present.
func ClientTagFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(clientTagKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithMethod annotates context with the RPC method being served.
func WithMethod(ctx context.Context, method string) context.Context {
	if method == "" {
		return ctx
	}
	return context.WithValue(ctx, methodKey, method)
}

// MethodFromContext returns the RPC method if present.
func MethodFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(methodKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
