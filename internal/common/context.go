package common

import (
	"context"
	"log/slog"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyJobID   contextKey = "job_id"
	ContextKeyAttempt contextKey = "attempt"
)

// WithJobID adds the broker job ID to the context
func WithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, ContextKeyJobID, jobID)
}

// JobIDFromContext extracts the broker job ID from context
func JobIDFromContext(ctx context.Context) string {
	if jobID, ok := ctx.Value(ContextKeyJobID).(string); ok {
		return jobID
	}
	return ""
}

// WithAttempt records which delivery attempt of the job is running
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, ContextKeyAttempt, attempt)
}

// AttemptFromContext returns the delivery attempt, or 0 when unknown
func AttemptFromContext(ctx context.Context) int {
	if n, ok := ctx.Value(ContextKeyAttempt).(int); ok {
		return n
	}
	return 0
}

// LoggerFor returns logger annotated with the job identifiers found in ctx.
func LoggerFor(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id := JobIDFromContext(ctx); id != "" {
		logger = logger.With("job_id", id)
	}
	if n := AttemptFromContext(ctx); n > 0 {
		logger = logger.With("attempt", n)
	}
	return logger
}
