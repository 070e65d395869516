package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID   contextKey = "request_id"
	ContextKeyDocumentRef contextKey = "document_ref"
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

// WithDocumentRef tags the context with the document being processed.
func WithDocumentRef(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, ContextKeyDocumentRef, ref)
}

func DocumentRefFromContext(ctx context.Context) string {
	if ref, ok := ctx.Value(ContextKeyDocumentRef).(string); ok {
		return ref
	}
	return ""
}
