package sqlstore

import (
	"context"
	"fmt"

	"github.com/platinummonkey/membership/pkg/models"
)

func (r *repos) GetRole(ctx context.Context, id string) (*models.Role, error) {
	return getDoc[models.Role](ctx, r.q, "role "+id, "SELECT doc FROM roles WHERE id = $1", id)
}

func (r *repos) FindRoleByName(ctx context.Context, name, organizationID string) (*models.Role, error) {
	return getDoc[models.Role](ctx, r.q, "role "+name,
		"SELECT doc FROM roles WHERE name = $1 AND organization_id = $2", name, organizationID)
}

func (r *repos) ListRoles(ctx context.Context, organizationID string) ([]*models.Role, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT doc FROM roles
		WHERE organization_id = '' OR organization_id = $1
		ORDER BY CASE WHEN organization_id = '' THEN 1 ELSE 0 END, name`,
		organizationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return scanDocs[models.Role](rows)
}

func (r *repos) CreateRole(ctx context.Context, role *models.Role) error {
	stored := role.Clone()
	stored.Version = 1
	doc, err := encodeDoc(stored)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx,
		"INSERT INTO roles (id, name, organization_id, version, doc) VALUES ($1, $2, $3, $4, $5)",
		stored.ID, stored.Name, stored.OrganizationID, stored.Version, doc,
	)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", mapError(err))
	}
	role.Version = stored.Version
	return nil
}

func (r *repos) UpdateRole(ctx context.Context, role *models.Role) error {
	stored := role.Clone()
	stored.Version = role.Version + 1
	doc, err := encodeDoc(stored)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx,
		"UPDATE roles SET name = $1, version = $2, doc = $3 WHERE id = $4 AND version = $5",
		stored.Name, stored.Version, doc, role.ID, role.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", mapError(err))
	}
	if err := checkUpdated(ctx, r.q, res, "roles", role.ID, role.Version); err != nil {
		return err
	}
	role.Version = stored.Version
	return nil
}

func (r *repos) DeleteRole(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM roles WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", mapError(err))
	}
	return checkDeleted(res, "role", id)
}
