// Package cache provides effective-permission caches keyed by user and
// organization.
package cache

import (
	"context"
	"time"
)

// DefaultTTL bounds how long a cached permission set may be served
const DefaultTTL = 5 * time.Minute

// Generation identifies the invalidation state of one cache entry. Callers
// read it before computing a value and hand it back to Set; any Invalidate
// or InvalidateAll covering the entry in between changes the generation and
// the write is dropped.
type Generation string

// PermissionCache stores resolved effective permission sets
type PermissionCache interface {
	// Get returns the cached set and whether it was present
	Get(ctx context.Context, userID, organizationID string) ([]string, bool, error)
	// Generation returns the current generation of the entry
	Generation(ctx context.Context, userID, organizationID string) (Generation, error)
	// Set stores permissions if the entry is still at gen and reports
	// whether it did
	Set(ctx context.Context, userID, organizationID string, gen Generation, permissions []string) (bool, error)
	// Invalidate drops the entry for one (user, organization) pair
	Invalidate(ctx context.Context, userID, organizationID string) error
	// InvalidateAll drops every entry, used when a role definition changes
	InvalidateAll(ctx context.Context) error
}

func entryKey(userID, organizationID string) string {
	return userID + "|" + organizationID
}
