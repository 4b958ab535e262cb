// Package models defines the entities shared by the membership engine.
//
// # Overview
//
// The engine tracks four document collections:
//
//   - Organization: a tenant, optionally nested under a parent organization.
//   - Membership: the edge between one user and one organization, carrying
//     roles, the membership type, the default-organization flag and
//     per-membership permission overrides.
//   - Role: a named bundle of permissions, either system-wide or scoped to
//     a single organization.
//   - Invitation: a time-boxed, single-use token that admits a user into an
//     organization (or, for agency invitations, provisions a child
//     organization on acceptance).
//
// Every document carries a Version that stores use for optimistic
// concurrency: an update is rejected when the caller's Version does not
// match the stored one.
//
// # Permissions
//
// Permissions are written as "resource:action". Either side may be the
// wildcard "*":
//
//	p, _ := models.ParsePermission("inventory:*")
//	p.Matches(models.ResourceInventory, models.ActionRead) // true
//	p.Expand() // inventory:create, inventory:read, ...
//
// # Errors
//
// Operations return errors wrapping one of the kinds declared in errors.go
// (ErrNotFound, ErrConflict, ErrForbidden, ErrExpired, ErrInvalidState,
// ErrInvalidArgument). Side effects that fail after a mutation has been
// applied are reported as a *WarningError; check for them with IsWarning.
package models
