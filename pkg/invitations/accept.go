package invitations

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/orgs"
	"github.com/platinummonkey/membership/pkg/store"
)

// AcceptInvitation accepts the invitation identified by token on behalf of
// the user. The user's email must match the invited address.
//
// Acceptance claims the invitation first and then creates the membership,
// and for agency invitations the child organization. When one of those
// steps fails the claim is released, a child organization created on the
// way is deleted again and the user's previous default organization is
// restored.
func (s *Service) AcceptInvitation(ctx context.Context, token, userID, userEmail string) (accepted bool, err error) {
	ctx, done := s.operation(ctx, "AcceptInvitation")
	defer func() { done(err) }()

	inv, err := s.load(ctx, byToken(token))
	if err != nil {
		return false, err
	}
	if err := checkPending(inv, s.now()); err != nil {
		return false, err
	}
	if models.NormalizeEmail(userEmail) != inv.Email {
		return false, fmt.Errorf("%w: invitation %s was issued to a different email address", models.ErrForbidden, inv.ID)
	}

	claimed, err := s.claim(ctx, inv.ID, userID)
	if err != nil {
		return false, err
	}

	actor := models.Actor{ID: userID, Email: userEmail}
	var warnings []error
	if claimed.IsAgency() {
		warnings, err = s.provisionAgencyClient(ctx, claimed, actor)
	} else {
		var warn error
		_, warn = s.orgs.AddUserToOrganization(ctx, orgs.AddMemberInput{
			UserID:         userID,
			OrganizationID: claimed.OrganizationID,
			Roles:          claimed.Roles,
			Type:           claimed.Type,
		}, actor)
		if err = models.Fatal(warn); err != nil {
			err = s.compensate(ctx, claimed, nil, err)
		} else {
			warnings = append(warnings, warn)
		}
	}
	if err != nil {
		return false, err
	}

	entry := s.invitationEntry(actor, claimed, "invitation.accepted")
	entry.Description = fmt.Sprintf("%s accepted invitation %s", claimed.Email, claimed.ID)
	if claimed.IsAgency() {
		entry.Metadata["child_organization_id"] = claimed.OrganizationID
	}
	warnings = append(warnings, s.recorder.Record(ctx, entry))
	return true, models.JoinWarnings("AcceptInvitation", warnings...)
}

// provisionAgencyClient creates the child organization of an agency
// invitation, stamps it on the invitation and adds the user to the agency.
// On failure it compensates and returns the error.
func (s *Service) provisionAgencyClient(ctx context.Context, inv *models.Invitation, actor models.Actor) ([]error, error) {
	parentID := inv.AgencyInvitation.ParentOrganizationID
	rollback := &agencyRollback{userID: actor.ID}
	previous, err := s.defaultOrganization(ctx, actor.ID)
	if err != nil {
		return nil, s.compensate(ctx, inv, nil, err)
	}
	rollback.previousDefault = previous

	child, warn := s.orgs.CreateOrganization(ctx, orgs.CreateOrganizationInput{
		Name:       inv.AgencyInvitation.OrganizationName,
		OwnerID:    actor.ID,
		OwnerEmail: actor.Email,
		Type:       models.OrganizationTypeProfessional,
		ParentID:   parentID,
	}, actor)
	if err := models.Fatal(warn); err != nil {
		return nil, s.compensate(ctx, inv, nil, err)
	}
	warnings := []error{warn}
	rollback.childID = child.ID

	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		cur, err := tx.Invitations().GetInvitation(ctx, inv.ID)
		if err != nil {
			return store.Translate(err)
		}
		cur.OrganizationID = child.ID
		cur.UpdatedAt = s.now()
		if err := tx.Invitations().UpdateInvitation(ctx, cur); err != nil {
			return store.Translate(err)
		}
		*inv = *cur
		return nil
	})
	if err != nil {
		return nil, s.compensate(ctx, inv, rollback, err)
	}

	_, warn = s.orgs.AddUserToOrganization(ctx, orgs.AddMemberInput{
		UserID:         actor.ID,
		OrganizationID: parentID,
		Type:           models.MembershipTypeMember,
	}, actor)
	if err := models.Fatal(warn); err != nil {
		return nil, s.compensate(ctx, inv, rollback, err)
	}
	return append(warnings, warn), nil
}

// claim moves a pending invitation to accepted. A concurrent transition
// surfaces as ErrConflict or the state error of the new status.
func (s *Service) claim(ctx context.Context, id, userID string) (*models.Invitation, error) {
	var claimed *models.Invitation
	err := s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		inv, err := tx.Invitations().GetInvitation(ctx, id)
		if err != nil {
			return store.Translate(err)
		}
		now := s.now()
		if err := checkPending(inv, now); err != nil {
			return err
		}
		inv.Status = models.InvitationStatusAccepted
		inv.AcceptedAt = &now
		inv.AcceptedByUserID = userID
		inv.UpdatedAt = now
		if err := tx.Invitations().UpdateInvitation(ctx, inv); err != nil {
			return store.Translate(err)
		}
		claimed = inv
		return nil
	})
	return claimed, err
}

// agencyRollback records what a failed agency acceptance has to undo
type agencyRollback struct {
	userID  string
	childID string
	// previousDefault is empty when the user had no default organization
	previousDefault string
}

// defaultOrganization returns the organization of the user's default
// active membership, or "" when there is none
func (s *Service) defaultOrganization(ctx context.Context, userID string) (string, error) {
	memberships, err := s.orgs.ListUserMemberships(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, m := range memberships {
		if m.IsActive() && m.IsDefault {
			return m.OrganizationID, nil
		}
	}
	return "", nil
}

// restoreDefault makes the previous default organization the default
// again. A membership that is gone or no longer active has nothing to
// restore.
func (s *Service) restoreDefault(ctx context.Context, rollback *agencyRollback) error {
	_, err := s.orgs.SetDefaultOrganization(ctx, rollback.userID, rollback.previousDefault, models.SystemActor)
	if models.IsWarning(err) {
		s.logger.WithContext(ctx).WithError(err).WithField("user_id", rollback.userID).
			Warn("restored default organization with warnings")
		return nil
	}
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrInvalidState) {
		return nil
	}
	return err
}

// compensate undoes a failed acceptance: it deletes the child organization
// when one was created, restores the user's previous default organization
// and returns the invitation to pending.
func (s *Service) compensate(ctx context.Context, inv *models.Invitation, rollback *agencyRollback, cause error) error {
	errs := []error{cause}
	if rollback != nil && rollback.childID != "" {
		if err := models.Fatal(s.orgs.DeleteOrganization(ctx, rollback.childID, models.SystemActor)); err != nil {
			errs = append(errs, fmt.Errorf("compensation: deleting organization %s: %w", rollback.childID, err))
		} else if rollback.previousDefault != "" {
			if err := s.restoreDefault(ctx, rollback); err != nil {
				errs = append(errs, fmt.Errorf("compensation: restoring default organization %s: %w", rollback.previousDefault, err))
			}
		}
	}

	err := s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		cur, err := tx.Invitations().GetInvitation(ctx, inv.ID)
		if err != nil {
			return store.Translate(err)
		}
		cur.Status = models.InvitationStatusPending
		cur.AcceptedAt = nil
		cur.AcceptedByUserID = ""
		if cur.IsAgency() {
			cur.OrganizationID = ""
		}
		cur.UpdatedAt = s.now()
		return store.Translate(tx.Invitations().UpdateInvitation(ctx, cur))
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("compensation: releasing invitation %s: %w", inv.ID, err))
	}
	if len(errs) > 1 {
		s.logger.WithContext(ctx).WithError(errors.Join(errs[1:]...)).
			WithField("invitation_id", inv.ID).Error("invitation acceptance compensation incomplete")
	}
	return errors.Join(errs...)
}

// DeclineInvitation declines the invitation identified by token. The actor
// must be the invited address.
func (s *Service) DeclineInvitation(ctx context.Context, token string, actor models.Actor) (declined bool, err error) {
	ctx, done := s.operation(ctx, "DeclineInvitation")
	defer func() { done(err) }()

	return s.finish(ctx, "DeclineInvitation", byToken(token), models.InvitationStatusDeclined, actor, true)
}

// RevokeInvitation withdraws a pending invitation by id
func (s *Service) RevokeInvitation(ctx context.Context, id string, actor models.Actor) (revoked bool, err error) {
	ctx, done := s.operation(ctx, "RevokeInvitation")
	defer func() { done(err) }()

	return s.finish(ctx, "RevokeInvitation", byID(id), models.InvitationStatusRevoked, actor, false)
}

// finish moves a pending invitation to a terminal status
func (s *Service) finish(ctx context.Context, op string, find func(context.Context, store.Repositories) (*models.Invitation, error), status models.InvitationStatus, actor models.Actor, matchEmail bool) (bool, error) {
	inv, err := s.load(ctx, find)
	if err != nil {
		return false, err
	}
	if err := checkPending(inv, s.now()); err != nil {
		return false, err
	}
	if matchEmail && models.NormalizeEmail(actor.Email) != inv.Email {
		return false, fmt.Errorf("%w: invitation %s was issued to a different email address", models.ErrForbidden, inv.ID)
	}

	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		cur, err := tx.Invitations().GetInvitation(ctx, inv.ID)
		if err != nil {
			return store.Translate(err)
		}
		now := s.now()
		if err := checkPending(cur, now); err != nil {
			return err
		}
		cur.Status = status
		cur.UpdatedAt = now
		if err := tx.Invitations().UpdateInvitation(ctx, cur); err != nil {
			return store.Translate(err)
		}
		inv = cur
		return nil
	})
	if err != nil {
		return false, err
	}

	entry := s.invitationEntry(actor, inv, "invitation."+string(status))
	entry.Description = fmt.Sprintf("invitation %s for %s %s", inv.ID, inv.Email, status)
	return true, models.JoinWarnings(op, s.recorder.Record(ctx, entry))
}
