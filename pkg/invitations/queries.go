package invitations

import (
	"context"
	"fmt"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
)

// GetPendingInvitationsForEmail returns the valid pending invitations
// addressed to email
func (s *Service) GetPendingInvitationsForEmail(ctx context.Context, email string) (_ []*models.Invitation, err error) {
	ctx, done := s.operation(ctx, "GetPendingInvitationsForEmail")
	defer func() { done(err) }()

	return s.pending(ctx, store.InvitationFilter{Email: models.NormalizeEmail(email)})
}

// GetPendingOrganizationInvitations returns the valid pending invitations
// to join an organization
func (s *Service) GetPendingOrganizationInvitations(ctx context.Context, organizationID string) (_ []*models.Invitation, err error) {
	ctx, done := s.operation(ctx, "GetPendingOrganizationInvitations")
	defer func() { done(err) }()

	return s.pending(ctx, store.InvitationFilter{OrganizationID: organizationID})
}

// GetPendingAgencyInvitations returns the valid pending agency invitations
// issued by an agency
func (s *Service) GetPendingAgencyInvitations(ctx context.Context, parentOrganizationID string) (_ []*models.Invitation, err error) {
	ctx, done := s.operation(ctx, "GetPendingAgencyInvitations")
	defer func() { done(err) }()

	return s.pending(ctx, store.InvitationFilter{ParentOrganizationID: parentOrganizationID, AgencyOnly: true})
}

// SweepExpiredInvitations expires every overdue pending invitation and
// returns how many were expired
func (s *Service) SweepExpiredInvitations(ctx context.Context) (expired int, err error) {
	ctx, done := s.operation(ctx, "SweepExpiredInvitations")
	defer func() { done(err) }()

	_, ids, err := s.sweep(ctx, store.InvitationFilter{})
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	entry := audit.NewEntry(models.SystemActor, "", audit.CategoryInvitation, "invitations.expired")
	entry.ResourceType = string(models.ResourceInvitation)
	entry.Description = fmt.Sprintf("expired %d overdue invitations", len(ids))
	entry.Metadata = map[string]interface{}{"invitation_ids": ids}
	return len(ids), models.JoinWarnings("SweepExpiredInvitations", s.recorder.Record(ctx, entry))
}

// pending expires overdue matches in one batch and returns the rest
func (s *Service) pending(ctx context.Context, filter store.InvitationFilter) ([]*models.Invitation, error) {
	valid, _, err := s.sweep(ctx, filter)
	return valid, err
}

// sweep lists the pending invitations matching filter, expires the overdue
// ones and returns the still valid ones together with the expired ids
func (s *Service) sweep(ctx context.Context, filter store.InvitationFilter) ([]*models.Invitation, []string, error) {
	filter.Status = models.InvitationStatusPending
	valid := []*models.Invitation{}
	var expired []string

	err := s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		valid, expired = valid[:0], expired[:0]
		list, err := tx.Invitations().ListInvitations(ctx, filter)
		if err != nil {
			return store.Translate(err)
		}
		now := s.now()
		for _, inv := range list {
			if !inv.IsExpiredAt(now) {
				valid = append(valid, inv)
				continue
			}
			if err := s.expire(ctx, tx, inv, now); err != nil {
				return err
			}
			expired = append(expired, inv.ID)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(expired) > 0 {
		s.metrics.InvitationsExpired(len(expired))
		s.logger.WithContext(ctx).WithField("count", len(expired)).Info("expired overdue invitations")
	}
	return valid, expired, nil
}
