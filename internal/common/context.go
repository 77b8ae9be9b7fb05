package common

import (
	"context"

	"github.com/google/uuid"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID     contextKey = "request_id"
	ContextKeyApplicationID contextKey = "application_id"
	ContextKeyJobID         contextKey = "job_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithApplicationID adds a loan application ID to the context
func WithApplicationID(ctx context.Context, applicationID uuid.UUID) context.Context {
	return context.WithValue(ctx, ContextKeyApplicationID, applicationID)
}

// ApplicationIDFromContext extracts the loan application ID from context
func ApplicationIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ContextKeyApplicationID).(uuid.UUID)
	return id, ok
}

// WithJobID tags work done on behalf of a processing job.
func WithJobID(ctx context.Context, jobID uuid.UUID) context.Context {
	return context.WithValue(ctx, ContextKeyJobID, jobID)
}

// JobIDFromContext returns uuid.Nil outside of a job.
func JobIDFromContext(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(ContextKeyJobID).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
