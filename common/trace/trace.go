// Package trace provides trace ID generation and context propagation so that
// every log line emitted while handling one inbound chat message can be
// correlated, from webhook intake through dispatch to outbound delivery.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// traceKey is the unexported context key used to store the trace ID.
type traceKey struct{}

// GenerateID returns a fresh trace ID for one message-handling invocation.
func GenerateID() string {
	return "t_" + uuid.NewString()
}

// WithTraceID returns a child context carrying the given trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the trace ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}
