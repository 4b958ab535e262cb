// Package contextkeys defines the context keys shared across packages.
//
// Keys live here so that the packages setting a value and the packages
// reading it do not need to import each other.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains the request ID string.
	// Set by: httputil.RequestID
	// Used by: observability.Logger.WithContext
	RequestIDKey Key = "request_id"
)

// WithRequestID returns a copy of ctx carrying the request ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestID returns the request ID stored in ctx, if any
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RequestIDKey).(string)
	return id, ok && id != ""
}
