// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Values are set by transport middleware and read by services. Keeping this package free
// of net/http lets stores, the revision engine and background workers share it.
//
//	now := requestcontext.Now(ctx)
//	requestID := requestcontext.RequestID(ctx)
//
// In tests:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context, truncated to microseconds so it
// survives a round-trip through a timestamptz column unchanged.
// Falls back to time.Now() if not set (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now().UTC().Truncate(time.Microsecond)
}

// WithTime injects a specific time into a context. A whole ingest call runs under
// one time so the entity row and its history row share updated_at.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t.UTC().Truncate(time.Microsecond))
}

// EnsureTime pins the current time into ctx unless one is already present.
func EnsureTime(ctx context.Context) context.Context {
	if _, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return ctx
	}
	return WithTime(ctx, time.Now())
}
