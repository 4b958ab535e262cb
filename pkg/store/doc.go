// Package store defines the persistence contract of the membership engine.
//
// Each collection has a repository interface. A Store exposes all of them
// plus Batch, which runs a function against transactional repositories and
// applies every staged write or none of them:
//
//	err := st.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
//	    if err := tx.Organizations().CreateOrganization(ctx, org); err != nil {
//	        return err
//	    }
//	    return tx.Memberships().CreateMembership(ctx, owner)
//	})
//
// Updates use optimistic concurrency. Callers pass the document they read;
// the store compares its Version with the stored one, rejects mismatches
// with ErrConflict and increments Version on success.
//
// Implementations live in the memory and sqlstore subpackages.
package store
