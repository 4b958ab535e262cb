// Package rbac implements role management and permission resolution.
//
// A user's permissions inside an organization come from their membership:
//
//   - an owner membership is allowed everything
//   - custom permissions grant extra resource:action pairs
//   - restricted permissions deny pairs regardless of roles
//   - otherwise the assigned roles are scanned for a matching grant
//
// Either side of a grant may be the wildcard "*". HasPermission matches
// wildcards lazily; GetUserEffectivePermissions expands them across the
// fixed resource and action enumerations.
package rbac
