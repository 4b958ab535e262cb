// Package orgs manages organizations and the memberships that link users to them.
//
// # Organizations
//
// Organizations form a hierarchy. A root organization is its own root; a
// child records its parent, the root of its tree and the path of ancestor
// ids from the root down to itself. Only Enterprise and Agency
// organizations may have children. Limits come from a fixed table keyed by
// type:
//
//	basic:        5 users, no suborganizations
//	professional: 20 users, no suborganizations
//	enterprise:   100 users, 10 suborganizations
//	agency:       50 users, 50 suborganizations
//
// # Memberships
//
// A membership is soft deleted by moving it to the removed status. Each
// organization has exactly one owner membership, matching the
// organization's owner id, and each user has at most one default
// membership. Both invariants are maintained inside a single store batch
// under keyed locks.
//
// # Side effects
//
// Audit entries, permission cache invalidation and user directory pointer
// updates run after the batch commits. Their failures are returned as a
// *models.WarningError next to the applied result.
package orgs
