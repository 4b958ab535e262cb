package sqlstore

import (
	"context"
	"fmt"

	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
)

func (r *repos) GetMembership(ctx context.Context, id string) (*models.Membership, error) {
	return getDoc[models.Membership](ctx, r.q, "membership "+id,
		"SELECT doc FROM memberships WHERE id = $1", id)
}

func (r *repos) FindMembership(ctx context.Context, userID, organizationID string) (*models.Membership, error) {
	return getDoc[models.Membership](ctx, r.q, "membership "+userID+"/"+organizationID, `
		SELECT doc FROM memberships
		WHERE user_id = $1 AND organization_id = $2
		ORDER BY CASE WHEN status = 'active' THEN 0 ELSE 1 END, updated_at DESC
		LIMIT 1`,
		userID, organizationID,
	)
}

func (r *repos) ListMemberships(ctx context.Context, filter store.MembershipFilter) ([]*models.Membership, error) {
	var w where
	from := "memberships m"
	if filter.RoleID != "" {
		from += " JOIN membership_roles mr ON mr.membership_id = m.id"
		w.add("mr.role_id = $%d", filter.RoleID)
	}
	if filter.UserID != "" {
		w.add("m.user_id = $%d", filter.UserID)
	}
	if filter.OrganizationID != "" {
		w.add("m.organization_id = $%d", filter.OrganizationID)
	}
	if filter.Status != "" {
		w.add("m.status = $%d", string(filter.Status))
	}

	rows, err := r.q.QueryContext(ctx, "SELECT m.doc FROM "+from+w.String()+" ORDER BY m.joined_at, m.id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return scanDocs[models.Membership](rows)
}

func (r *repos) CreateMembership(ctx context.Context, m *models.Membership) error {
	stored := m.Clone()
	stored.Version = 1
	doc, err := encodeDoc(stored)
	if err != nil {
		return err
	}
	err = r.atomic(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO memberships (id, user_id, organization_id, status, version, joined_at, updated_at, doc)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			stored.ID, stored.UserID, stored.OrganizationID, string(stored.Status), stored.Version,
			stored.JoinedAt.UnixNano(), stored.UpdatedAt.UnixNano(), doc,
		)
		if err != nil {
			return fmt.Errorf("failed to create membership: %w", mapError(err))
		}
		return replaceMembershipRoles(ctx, q, stored.ID, stored.Roles)
	})
	if err != nil {
		return err
	}
	m.Version = stored.Version
	return nil
}

func (r *repos) UpdateMembership(ctx context.Context, m *models.Membership) error {
	stored := m.Clone()
	stored.Version = m.Version + 1
	doc, err := encodeDoc(stored)
	if err != nil {
		return err
	}
	err = r.atomic(ctx, func(q querier) error {
		res, err := q.ExecContext(ctx, `
			UPDATE memberships SET status = $1, version = $2, joined_at = $3, updated_at = $4, doc = $5
			WHERE id = $6 AND version = $7`,
			string(stored.Status), stored.Version, stored.JoinedAt.UnixNano(), stored.UpdatedAt.UnixNano(), doc,
			m.ID, m.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update membership: %w", mapError(err))
		}
		if err := checkUpdated(ctx, q, res, "memberships", m.ID, m.Version); err != nil {
			return err
		}
		return replaceMembershipRoles(ctx, q, stored.ID, stored.Roles)
	})
	if err != nil {
		return err
	}
	m.Version = stored.Version
	return nil
}

func (r *repos) DeleteOrganizationMemberships(ctx context.Context, organizationID string) (int, error) {
	var n int64
	err := r.atomic(ctx, func(q querier) error {
		if _, err := q.ExecContext(ctx, `
			DELETE FROM membership_roles
			WHERE membership_id IN (SELECT id FROM memberships WHERE organization_id = $1)`,
			organizationID,
		); err != nil {
			return fmt.Errorf("failed to delete membership roles: %w", err)
		}
		res, err := q.ExecContext(ctx, "DELETE FROM memberships WHERE organization_id = $1", organizationID)
		if err != nil {
			return fmt.Errorf("failed to delete memberships: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func replaceMembershipRoles(ctx context.Context, q querier, membershipID string, roles []string) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM membership_roles WHERE membership_id = $1", membershipID); err != nil {
		return fmt.Errorf("failed to clear membership roles: %w", err)
	}
	for _, roleID := range models.UniqueStrings(roles) {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO membership_roles (membership_id, role_id) VALUES ($1, $2)",
			membershipID, roleID,
		); err != nil {
			return fmt.Errorf("failed to insert membership role: %w", mapError(err))
		}
	}
	return nil
}
