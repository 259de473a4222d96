package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext returns baseLogger enriched with the tracing fields found in ctx
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	logger := baseLogger

	if tc.TraceID != "" {
		logger = logger.With().Str("trace_id", tc.TraceID).Logger()
	}
	if tc.RunID != "" {
		logger = logger.With().Str("run_id", tc.RunID).Logger()
	}
	if tc.Resource != "" {
		logger = logger.With().Str("resource", tc.Resource).Logger()
	}

	return logger
}

// Detach returns a background context carrying the tracing values of ctx,
// for work that must outlive the caller's cancellation.
func Detach(ctx context.Context) context.Context {
	tc := FromContext(ctx)
	out := context.Background()
	if tc.TraceID != "" {
		out = WithTraceID(out, tc.TraceID)
	}
	if tc.RunID != "" {
		out = WithRunID(out, tc.RunID)
	}
	if tc.Resource != "" {
		out = WithResource(out, tc.Resource)
	}
	return out
}
