package types

import (
	"context"
)

// Context keys
type contextKey string

const traceIDKey contextKey = "trace_id"

// WithTraceID stores the trace ID in the context. The trace ID originates at
// the triggering edge (scheduler run, HTTP request, SQS envelope) and is
// propagated to outbound provider calls as a header.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// GetTraceID retrieves the trace ID from the context, or "" if unset.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
