// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains the authenticated principal's user id (int64)
	// Set by: middleware.PrincipalMiddleware (pkg/middleware/principal.go)
	// Required by: guard middleware, RBAC handlers
	PrincipalKey Key = "principal_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: observability middleware
	// Used by: handlers that need structured logging with request context
	LoggerKey Key = "logger"
)

// WithPrincipalID adds the authenticated principal's id to the context
func WithPrincipalID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, PrincipalKey, userID)
}

// PrincipalID retrieves the principal id from context
func PrincipalID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(PrincipalKey).(int64)
	return id, ok
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}
