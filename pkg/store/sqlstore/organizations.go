package sqlstore

import (
	"context"
	"fmt"

	"github.com/platinummonkey/membership/pkg/models"
)

func (r *repos) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	return getDoc[models.Organization](ctx, r.q, "organization "+id,
		"SELECT doc FROM organizations WHERE id = $1", id)
}

func (r *repos) ListChildOrganizations(ctx context.Context, parentID string) ([]*models.Organization, error) {
	rows, err := r.q.QueryContext(ctx,
		"SELECT doc FROM organizations WHERE parent_id = $1 ORDER BY created_at, id", parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list child organizations: %w", err)
	}
	return scanDocs[models.Organization](rows)
}

func (r *repos) CreateOrganization(ctx context.Context, org *models.Organization) error {
	stored := org.Clone()
	stored.Version = 1
	doc, err := encodeDoc(stored)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO organizations (id, parent_id, owner_id, version, created_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		stored.ID, stored.ParentID, stored.OwnerID, stored.Version, stored.CreatedAt.UnixNano(), doc,
	)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", mapError(err))
	}
	org.Version = stored.Version
	return nil
}

func (r *repos) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	stored := org.Clone()
	stored.Version = org.Version + 1
	doc, err := encodeDoc(stored)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE organizations SET parent_id = $1, owner_id = $2, version = $3, doc = $4
		WHERE id = $5 AND version = $6`,
		stored.ParentID, stored.OwnerID, stored.Version, doc, org.ID, org.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", mapError(err))
	}
	if err := checkUpdated(ctx, r.q, res, "organizations", org.ID, org.Version); err != nil {
		return err
	}
	org.Version = stored.Version
	return nil
}

func (r *repos) DeleteOrganization(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM organizations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", mapError(err))
	}
	return checkDeleted(res, "organization", id)
}
