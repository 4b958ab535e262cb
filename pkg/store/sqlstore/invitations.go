package sqlstore

import (
	"context"
	"fmt"

	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
)

func (r *repos) GetInvitation(ctx context.Context, id string) (*models.Invitation, error) {
	return getDoc[models.Invitation](ctx, r.q, "invitation "+id,
		"SELECT doc FROM invitations WHERE id = $1", id)
}

func (r *repos) GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error) {
	return getDoc[models.Invitation](ctx, r.q, "invitation token",
		"SELECT doc FROM invitations WHERE token = $1", token)
}

func (r *repos) ListInvitations(ctx context.Context, filter store.InvitationFilter) ([]*models.Invitation, error) {
	var w where
	if filter.Email != "" {
		w.add("email = $%d", models.NormalizeEmail(filter.Email))
	}
	if filter.OrganizationID != "" {
		w.add("organization_id = $%d", filter.OrganizationID)
	}
	if filter.ParentOrganizationID != "" {
		w.add("parent_organization_id = $%d", filter.ParentOrganizationID)
	}
	if filter.Status != "" {
		w.add("status = $%d", string(filter.Status))
	}
	query := "SELECT doc FROM invitations" + w.String()
	if filter.AgencyOnly {
		if len(w.clauses) == 0 {
			query += " WHERE parent_organization_id <> ''"
		} else {
			query += " AND parent_organization_id <> ''"
		}
	}

	rows, err := r.q.QueryContext(ctx, query+" ORDER BY created_at, id", w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return scanDocs[models.Invitation](rows)
}

func parentOrganizationID(inv *models.Invitation) string {
	if inv.AgencyInvitation == nil {
		return ""
	}
	return inv.AgencyInvitation.ParentOrganizationID
}

func (r *repos) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	stored := inv.Clone()
	stored.Version = 1
	doc, err := encodeDoc(stored)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO invitations (id, token, email, organization_id, parent_organization_id, status, version, created_at, doc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		stored.ID, stored.Token, stored.Email, stored.OrganizationID, parentOrganizationID(stored),
		string(stored.Status), stored.Version, stored.CreatedAt.UnixNano(), doc,
	)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", mapError(err))
	}
	inv.Version = stored.Version
	return nil
}

func (r *repos) UpdateInvitation(ctx context.Context, inv *models.Invitation) error {
	stored := inv.Clone()
	stored.Version = inv.Version + 1
	doc, err := encodeDoc(stored)
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE invitations SET organization_id = $1, status = $2, version = $3, doc = $4
		WHERE id = $5 AND version = $6`,
		stored.OrganizationID, string(stored.Status), stored.Version, doc, inv.ID, inv.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", mapError(err))
	}
	if err := checkUpdated(ctx, r.q, res, "invitations", inv.ID, inv.Version); err != nil {
		return err
	}
	inv.Version = stored.Version
	return nil
}
