// This file implements request-scoped structured logging:
//   - Correlation ID propagation through context
//   - UUID request IDs generated at the API boundary
//   - rlog loggers pre-populated with the request ID
//
// Design Notes:
//   - Encore's rlog is the only log sink; fields are key/value pairs
//   - Request IDs stored in context for downstream use by the engine,
//     the upstream client and the LLM collaborators
package middleware

import (
	"context"

	"encore.dev/rlog"
	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request-id"

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromCtx retrieves the request ID from the context.
// Returns empty string if not found.
func RequestIDFromCtx(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// EnsureRequestID returns ctx unchanged when it already carries a request ID,
// otherwise a child context with a fresh one.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := RequestIDFromCtx(ctx); id != "" {
		return ctx, id
	}
	id := NewRequestID()
	return WithRequestID(ctx, id), id
}

// NewRequestID creates a new UUID-based request ID.
func NewRequestID() string {
	return uuid.New().String()
}

// Logger returns an rlog logger carrying the context's request ID.
//
// Example:
//
//	middleware.Logger(ctx).Info("cache hit", "key", key)
func Logger(ctx context.Context, keysAndValues ...any) rlog.Ctx {
	fields := make([]any, 0, len(keysAndValues)+2)
	if id := RequestIDFromCtx(ctx); id != "" {
		fields = append(fields, "request_id", id)
	}
	fields = append(fields, keysAndValues...)
	return rlog.With(fields...)
}
