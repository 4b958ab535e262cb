package invitations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/membership/pkg/locks"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
	"github.com/platinummonkey/membership/pkg/users"
)

// CreateInvitationInput describes an invitation to an existing organization.
// A zero ExpiresIn uses the service default.
type CreateInvitationInput struct {
	Email          string                `json:"email" validate:"required,email"`
	OrganizationID string                `json:"organization_id" validate:"required"`
	Roles          []string              `json:"roles,omitempty"`
	Type           models.MembershipType `json:"type,omitempty" validate:"omitempty,oneof=owner member"`
	Message        string                `json:"message,omitempty" validate:"max=2000"`
	ExpiresIn      time.Duration         `json:"expires_in,omitempty" validate:"gte=0"`
}

// CreateAgencyInvitationInput describes an invitation that provisions a
// child organization under an agency
type CreateAgencyInvitationInput struct {
	Email                string        `json:"email" validate:"required,email"`
	ParentOrganizationID string        `json:"parent_organization_id" validate:"required"`
	OrganizationName     string        `json:"organization_name" validate:"required,max=200"`
	Message              string        `json:"message,omitempty" validate:"max=2000"`
	ExpiresIn            time.Duration `json:"expires_in,omitempty" validate:"gte=0"`
}

func (s *Service) expiry(d time.Duration) time.Duration {
	if d <= 0 {
		return s.defaultExpiry
	}
	return d
}

// CreateInvitation invites an email address to join an organization
func (s *Service) CreateInvitation(ctx context.Context, in CreateInvitationInput, inviter models.Actor) (_ *models.Invitation, err error) {
	ctx, done := s.operation(ctx, "CreateInvitation")
	defer func() { done(err) }()

	if err := models.ValidateInput(in); err != nil {
		return nil, err
	}
	if in.Type == "" {
		in.Type = models.MembershipTypeMember
	}
	if in.Type == models.MembershipTypeOwner {
		return nil, fmt.Errorf("%w: ownership cannot be granted by invitation", models.ErrForbidden)
	}
	email := models.NormalizeEmail(in.Email)

	existingUser, err := s.directory.GetUserByEmail(ctx, email)
	if err != nil && !users.IsNotFound(err) {
		return nil, err
	}

	unlock, err := locks.AcquireAll(ctx, s.locker, locks.OrgKey(in.OrganizationID))
	if err != nil {
		return nil, fmt.Errorf("acquiring invitation lock: %w", err)
	}
	defer unlock()

	now := s.now()
	inv := &models.Invitation{
		ID:             uuid.NewString(),
		Email:          email,
		OrganizationID: in.OrganizationID,
		Status:         models.InvitationStatusPending,
		InvitedBy:      inviter.ID,
		Message:        strings.TrimSpace(in.Message),
		Type:           in.Type,
		Roles:          models.UniqueStrings(in.Roles),
		ExpiresAt:      now.Add(s.expiry(in.ExpiresIn)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if inv.Token, err = s.newToken(); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	var swept int
	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Organizations().GetOrganization(ctx, in.OrganizationID); err != nil {
			return store.Translate(err)
		}
		for _, id := range inv.Roles {
			role, err := tx.Roles().GetRole(ctx, id)
			if err != nil {
				return store.Translate(err)
			}
			if !role.UsableIn(in.OrganizationID) {
				return fmt.Errorf("%w: role %q belongs to another organization", models.ErrInvalidArgument, role.Name)
			}
		}
		if existingUser != nil {
			m, err := tx.Memberships().FindMembership(ctx, existingUser.ID, in.OrganizationID)
			if err != nil && !store.IsNotFound(err) {
				return err
			}
			if m != nil && m.IsActive() {
				return fmt.Errorf("%w: %s is already a member of organization %s", models.ErrConflict, email, in.OrganizationID)
			}
		}

		n, err := s.ensureNoPending(ctx, tx, store.InvitationFilter{Email: email, OrganizationID: in.OrganizationID}, now)
		swept = n
		if err != nil {
			return err
		}
		return store.Translate(tx.Invitations().CreateInvitation(ctx, inv))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.InvitationsExpired(swept)

	entry := s.invitationEntry(inviter, inv, "invitation.created")
	entry.Description = fmt.Sprintf("invited %s to organization %s", email, in.OrganizationID)
	entry.Metadata["roles"] = inv.Roles
	entry.Metadata["expires_at"] = inv.ExpiresAt
	return inv, models.JoinWarnings("CreateInvitation", s.recorder.Record(ctx, entry))
}

// CreateAgencyInvitation invites an email address to set up a client
// organization under an agency
func (s *Service) CreateAgencyInvitation(ctx context.Context, in CreateAgencyInvitationInput, inviter models.Actor) (_ *models.Invitation, err error) {
	ctx, done := s.operation(ctx, "CreateAgencyInvitation")
	defer func() { done(err) }()

	if err := models.ValidateInput(in); err != nil {
		return nil, err
	}
	email := models.NormalizeEmail(in.Email)

	unlock, err := locks.AcquireAll(ctx, s.locker, locks.OrgKey(in.ParentOrganizationID))
	if err != nil {
		return nil, fmt.Errorf("acquiring invitation lock: %w", err)
	}
	defer unlock()

	now := s.now()
	inv := &models.Invitation{
		ID:        uuid.NewString(),
		Email:     email,
		Status:    models.InvitationStatusPending,
		InvitedBy: inviter.ID,
		Message:   strings.TrimSpace(in.Message),
		Type:      models.MembershipTypeMember,
		Roles:     []string{},
		ExpiresAt: now.Add(s.expiry(in.ExpiresIn)),
		AgencyInvitation: &models.AgencyInvitation{
			ParentOrganizationID: in.ParentOrganizationID,
			OrganizationName:     strings.TrimSpace(in.OrganizationName),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if inv.Token, err = s.newToken(); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	var swept int
	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		parent, err := tx.Organizations().GetOrganization(ctx, in.ParentOrganizationID)
		if err != nil {
			return store.Translate(err)
		}
		if parent.Type != models.OrganizationTypeAgency {
			return fmt.Errorf("%w: organization %s is %s, agency invitations need an agency", models.ErrForbidden, parent.ID, parent.Type)
		}
		n, err := s.ensureNoPending(ctx, tx, store.InvitationFilter{Email: email, ParentOrganizationID: parent.ID}, now)
		swept = n
		if err != nil {
			return err
		}
		return store.Translate(tx.Invitations().CreateInvitation(ctx, inv))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.InvitationsExpired(swept)

	entry := s.invitationEntry(inviter, inv, "invitation.agency_created")
	entry.Description = fmt.Sprintf("invited %s to set up %q under agency %s", email, inv.AgencyInvitation.OrganizationName, in.ParentOrganizationID)
	entry.Metadata["organization_name"] = inv.AgencyInvitation.OrganizationName
	return inv, models.JoinWarnings("CreateAgencyInvitation", s.recorder.Record(ctx, entry))
}

// ensureNoPending expires overdue pending invitations matching filter and
// fails with ErrConflict when a valid one remains. It returns how many were
// expired.
func (s *Service) ensureNoPending(ctx context.Context, tx store.Repositories, filter store.InvitationFilter, now time.Time) (int, error) {
	filter.Status = models.InvitationStatusPending
	pending, err := tx.Invitations().ListInvitations(ctx, filter)
	if err != nil {
		return 0, store.Translate(err)
	}
	expired := 0
	for _, inv := range pending {
		if inv.IsExpiredAt(now) {
			if err := s.expire(ctx, tx, inv, now); err != nil {
				return expired, err
			}
			expired++
			continue
		}
		return expired, fmt.Errorf("%w: a pending invitation for %s already exists", models.ErrConflict, filter.Email)
	}
	return expired, nil
}
