package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for the orchestration run ID
	RunIDKey ContextKey = "run_id"
	// ResourceKey is the context key for the dataset file being described
	ResourceKey ContextKey = "resource"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID  string
	RunID    string
	Resource string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithResource adds the resource path to the context
func WithResource(ctx context.Context, resource string) context.Context {
	return context.WithValue(ctx, ResourceKey, resource)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// GetResource retrieves the resource path from the context
func GetResource(ctx context.Context) string {
	if resource, ok := ctx.Value(ResourceKey).(string); ok {
		return resource
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:  GetTraceID(ctx),
		RunID:    GetRunID(ctx),
		Resource: GetResource(ctx),
	}
}

// NewRunContext creates a context for one orchestration run, keeping an
// existing trace ID and generating a fresh run ID.
func NewRunContext(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	return WithRunID(ctx, NewRunID())
}
