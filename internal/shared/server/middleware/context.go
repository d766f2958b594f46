package middleware

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type requestIDCtxKey struct{}

// WithRequestID attaches a request ID to a plain context for background work.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDCtxKey{}, requestID)
}

// RequestIDFrom returns the request ID carried by ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// Detached returns a background context that keeps the request ID and the
// caller's span, so work started by a request can outlive it and still join
// its trace.
func Detached(ctx context.Context) context.Context {
	out := context.Background()
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out = trace.ContextWithSpanContext(out, sc)
	}
	return WithRequestID(out, RequestIDFrom(ctx))
}
