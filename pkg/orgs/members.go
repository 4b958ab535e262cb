package orgs

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/locks"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
)

// AddUserToOrganization creates an active membership, reactivating a
// removed one when it exists. An existing active membership is returned
// unchanged. The membership becomes the user's default when the user has
// no other active membership.
func (s *Service) AddUserToOrganization(ctx context.Context, in AddMemberInput, actor models.Actor) (_ *models.Membership, err error) {
	ctx, done := s.operation(ctx, "AddUserToOrganization")
	defer func() { done(err) }()

	if err := models.ValidateInput(in); err != nil {
		return nil, err
	}
	if in.Type == "" {
		in.Type = models.MembershipTypeMember
	}
	if in.Type == models.MembershipTypeOwner {
		return nil, fmt.Errorf("%w: owner memberships are created with the organization or by an ownership transfer", models.ErrForbidden)
	}
	if _, err := s.directory.GetUserByID(ctx, in.UserID); err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx, locks.UserKey(in.UserID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var membership *models.Membership
	var action string
	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		org, err := tx.Organizations().GetOrganization(ctx, in.OrganizationID)
		if err != nil {
			return store.Translate(err)
		}
		existing, err := tx.Memberships().FindMembership(ctx, in.UserID, in.OrganizationID)
		if err != nil && !store.IsNotFound(err) {
			return err
		}
		if existing != nil && existing.IsActive() {
			membership = existing
			return nil
		}

		roles, err := resolveRoles(ctx, tx, org, in.Roles)
		if err != nil {
			return err
		}
		if err := checkMemberLimit(ctx, tx, org); err != nil {
			return err
		}
		others, err := activeMembershipsOf(ctx, tx, in.UserID)
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		if existing != nil {
			existing.Status = models.MembershipStatusActive
			existing.Type = in.Type
			existing.Roles = roles
			existing.IsDefault = len(others) == 0
			existing.Permissions = models.MembershipPermissions{}
			existing.JoinedAt = now
			existing.UpdatedAt = now
			if err := tx.Memberships().UpdateMembership(ctx, existing); err != nil {
				return store.Translate(err)
			}
			membership, action = existing, "membership.reactivated"
			return nil
		}

		membership = &models.Membership{
			ID:             uuid.NewString(),
			UserID:         in.UserID,
			OrganizationID: in.OrganizationID,
			Status:         models.MembershipStatusActive,
			Type:           in.Type,
			Roles:          roles,
			IsDefault:      len(others) == 0,
			JoinedAt:       now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		action = "membership.added"
		return store.Translate(tx.Memberships().CreateMembership(ctx, membership))
	})
	if err != nil {
		return nil, err
	}
	if action == "" {
		return membership, nil
	}

	pointers := pointerUpdates{}
	pointers.join(in.UserID, in.OrganizationID)
	if membership.IsDefault {
		pointers.setDefault(in.UserID, in.OrganizationID)
	}

	entry := s.membershipEntry(actor, membership, audit.CategoryMembership, action)
	entry.Description = fmt.Sprintf("user %s joined organization %s as %s", in.UserID, in.OrganizationID, membership.Type)
	entry.Metadata = map[string]interface{}{"roles": membership.Roles, "is_default": membership.IsDefault}

	return membership, models.JoinWarnings("AddUserToOrganization",
		s.invalidate(ctx, pairKey{in.UserID, in.OrganizationID}),
		s.applyPointers(ctx, pointers),
		s.recorder.Record(ctx, entry),
	)
}

func (s *Service) membershipEntry(actor models.Actor, m *models.Membership, category audit.Category, action string) *audit.Entry {
	entry := audit.NewEntry(actor, m.OrganizationID, category, action)
	entry.ResourceType = string(models.ResourceMembership)
	entry.ResourceID = m.ID
	return entry
}

// GetMembership returns the membership of the pair, preferring the active one
func (s *Service) GetMembership(ctx context.Context, userID, organizationID string) (_ *models.Membership, err error) {
	ctx, done := s.operation(ctx, "GetMembership")
	defer func() { done(err) }()

	m, err := s.store.Memberships().FindMembership(ctx, userID, organizationID)
	if err != nil {
		return nil, store.Translate(err)
	}
	return m, nil
}

// ListOrganizationMembers returns the active memberships of an organization
func (s *Service) ListOrganizationMembers(ctx context.Context, organizationID string) (_ []*models.Membership, err error) {
	ctx, done := s.operation(ctx, "ListOrganizationMembers")
	defer func() { done(err) }()

	if _, err := s.store.Organizations().GetOrganization(ctx, organizationID); err != nil {
		return nil, store.Translate(err)
	}
	ms, err := s.store.Memberships().ListMemberships(ctx, store.MembershipFilter{
		OrganizationID: organizationID,
		Status:         models.MembershipStatusActive,
	})
	if err != nil {
		return nil, store.Translate(err)
	}
	return ms, nil
}

// ListUserMemberships returns the active memberships of a user, oldest first
func (s *Service) ListUserMemberships(ctx context.Context, userID string) (_ []*models.Membership, err error) {
	ctx, done := s.operation(ctx, "ListUserMemberships")
	defer func() { done(err) }()

	return activeMembershipsOf(ctx, s.store, userID)
}

// UpdateMembership applies patch to a membership. Setting IsDefault clears
// the flag on the user's other memberships; setting the removed status
// moves the default to another active membership when needed.
func (s *Service) UpdateMembership(ctx context.Context, id string, patch MembershipPatch, actor models.Actor) (_ *models.Membership, err error) {
	ctx, done := s.operation(ctx, "UpdateMembership")
	defer func() { done(err) }()

	if patch.UserID != nil || patch.OrganizationID != nil {
		return nil, fmt.Errorf("%w: user and organization of a membership are immutable", models.ErrInvalidArgument)
	}
	if err := models.ValidateInput(patch); err != nil {
		return nil, err
	}
	if patch.IsDefault != nil && !*patch.IsDefault {
		return nil, fmt.Errorf("%w: the default flag can only be moved to another membership", models.ErrInvalidArgument)
	}
	if patch.Status != nil && *patch.Status == models.MembershipStatusActive {
		return nil, fmt.Errorf("%w: removed memberships are reactivated by adding the user again", models.ErrInvalidArgument)
	}

	m, err := s.store.Memberships().GetMembership(ctx, id)
	if err != nil {
		return nil, store.Translate(err)
	}
	unlock, err := s.lock(ctx, locks.UserKey(m.UserID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	return s.updateMembership(ctx, id, patch, actor)
}

// updateMembership runs UpdateMembership with the user lock held
func (s *Service) updateMembership(ctx context.Context, id string, patch MembershipPatch, actor models.Actor) (*models.Membership, error) {
	var before, after *models.Membership
	pointers := pointerUpdates{}
	err := s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		m, err := tx.Memberships().GetMembership(ctx, id)
		if err != nil {
			return store.Translate(err)
		}
		before = m.Clone()
		if !m.IsActive() {
			return fmt.Errorf("%w: membership %s is %s", models.ErrInvalidState, id, m.Status)
		}

		if patch.Type != nil && *patch.Type != m.Type {
			if *patch.Type == models.MembershipTypeOwner || m.IsOwner() {
				return fmt.Errorf("%w: ownership moves only through an ownership transfer", models.ErrForbidden)
			}
			m.Type = *patch.Type
		}

		if patch.IsDefault != nil && !m.IsDefault {
			if err := s.clearOtherDefaults(ctx, tx, m.UserID, m.ID); err != nil {
				return err
			}
			m.IsDefault = true
			pointers.setDefault(m.UserID, m.OrganizationID)
		}

		removing := patch.Status != nil && *patch.Status == models.MembershipStatusRemoved
		if removing {
			if m.IsOwner() {
				return fmt.Errorf("%w: the owner membership cannot be removed", models.ErrForbidden)
			}
			m.Status = models.MembershipStatusRemoved
			pointers.leave(m.UserID, m.OrganizationID)
		}

		m.UpdatedAt = s.clock.Now().UTC()
		wasDefault := m.IsDefault
		if removing {
			m.IsDefault = false
		}
		if err := tx.Memberships().UpdateMembership(ctx, m); err != nil {
			return store.Translate(err)
		}
		if removing && wasDefault {
			next, err := s.promoteDefault(ctx, tx, m.UserID, m.OrganizationID)
			if err != nil {
				return err
			}
			pointers.setDefault(m.UserID, next)
		}
		after = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := "membership.updated"
	if after.Status == models.MembershipStatusRemoved {
		action = "membership.removed"
	}
	entry := s.membershipEntry(actor, after, audit.CategoryMembership, action)
	entry.Description = fmt.Sprintf("updated membership of user %s in organization %s", after.UserID, after.OrganizationID)
	entry.Changes = &audit.ChangeDetails{Before: before, After: after.Clone()}

	return after, models.JoinWarnings("UpdateMembership",
		s.invalidate(ctx, pairKey{after.UserID, after.OrganizationID}),
		s.applyPointers(ctx, pointers),
		s.recorder.Record(ctx, entry),
	)
}

// RemoveUserFromOrganization removes the user's active membership and
// reports whether one was removed. Owners must transfer ownership first.
func (s *Service) RemoveUserFromOrganization(ctx context.Context, userID, organizationID string, actor models.Actor) (removed bool, err error) {
	ctx, done := s.operation(ctx, "RemoveUserFromOrganization")
	defer func() { done(err) }()

	unlock, err := s.lock(ctx, locks.UserKey(userID))
	if err != nil {
		return false, err
	}
	defer unlock()

	m, err := s.store.Memberships().FindMembership(ctx, userID, organizationID)
	if err != nil {
		return false, store.Translate(err)
	}
	if !m.IsActive() {
		return false, nil
	}
	if m.IsOwner() {
		return false, fmt.Errorf("%w: transfer ownership of %s before removing its owner", models.ErrForbidden, organizationID)
	}

	status := models.MembershipStatusRemoved
	if _, err := s.updateMembership(ctx, m.ID, MembershipPatch{Status: &status}, actor); models.Fatal(err) != nil {
		return false, err
	} else if err != nil {
		return true, models.JoinWarnings("RemoveUserFromOrganization", err)
	}
	return true, nil
}

// ChangeMembershipType changes the type of an active membership. Moving a
// user to owner transfers ownership of the organization to them.
func (s *Service) ChangeMembershipType(ctx context.Context, userID, organizationID string, newType models.MembershipType, actor models.Actor) (_ *models.Membership, err error) {
	ctx, done := s.operation(ctx, "ChangeMembershipType")
	defer func() { done(err) }()

	if !newType.Valid() {
		return nil, fmt.Errorf("%w: unknown membership type %q", models.ErrInvalidArgument, newType)
	}

	if newType == models.MembershipTypeOwner {
		_, warn := s.ChangeOwner(ctx, organizationID, userID, actor)
		if models.Fatal(warn) != nil {
			return nil, warn
		}
		m, err := s.store.Memberships().FindMembership(ctx, userID, organizationID)
		if err != nil {
			return nil, store.Translate(err)
		}
		return m, models.JoinWarnings("ChangeMembershipType", warn)
	}

	unlock, err := s.lock(ctx, locks.UserKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := activeMembership(ctx, s.store, userID, organizationID)
	if err != nil {
		return nil, err
	}
	if m.Type == newType {
		return m, nil
	}
	m, warn := s.updateMembership(ctx, m.ID, MembershipPatch{Type: &newType}, actor)
	if models.Fatal(warn) != nil {
		return nil, warn
	}
	return m, models.JoinWarnings("ChangeMembershipType", warn)
}

// SetDefaultOrganization makes the user's membership in the organization
// their default
func (s *Service) SetDefaultOrganization(ctx context.Context, userID, organizationID string, actor models.Actor) (_ *models.Membership, err error) {
	ctx, done := s.operation(ctx, "SetDefaultOrganization")
	defer func() { done(err) }()

	unlock, err := s.lock(ctx, locks.UserKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := activeMembership(ctx, s.store, userID, organizationID)
	if err != nil {
		return nil, err
	}
	if m.IsDefault {
		return m, nil
	}
	isDefault := true
	m, warn := s.updateMembership(ctx, m.ID, MembershipPatch{IsDefault: &isDefault}, actor)
	if models.Fatal(warn) != nil {
		return nil, warn
	}
	return m, models.JoinWarnings("SetDefaultOrganization", warn)
}

// AddCustomPermission grants permission to the membership outside its roles
func (s *Service) AddCustomPermission(ctx context.Context, userID, organizationID, permission string, actor models.Actor) (*models.Membership, error) {
	return s.editOverride(ctx, "AddCustomPermission", CustomPermissions, true, userID, organizationID, permission, actor)
}

// RemoveCustomPermission drops a custom grant
func (s *Service) RemoveCustomPermission(ctx context.Context, userID, organizationID, permission string, actor models.Actor) (*models.Membership, error) {
	return s.editOverride(ctx, "RemoveCustomPermission", CustomPermissions, false, userID, organizationID, permission, actor)
}

// AddRestrictedPermission denies permission to the membership regardless of its roles
func (s *Service) AddRestrictedPermission(ctx context.Context, userID, organizationID, permission string, actor models.Actor) (*models.Membership, error) {
	return s.editOverride(ctx, "AddRestrictedPermission", RestrictedPermissions, true, userID, organizationID, permission, actor)
}

// RemoveRestrictedPermission lifts a restriction
func (s *Service) RemoveRestrictedPermission(ctx context.Context, userID, organizationID, permission string, actor models.Actor) (*models.Membership, error) {
	return s.editOverride(ctx, "RemoveRestrictedPermission", RestrictedPermissions, false, userID, organizationID, permission, actor)
}

// editOverride inserts into or removes from one override list. Both
// directions are idempotent.
func (s *Service) editOverride(ctx context.Context, op string, list PermissionList, add bool, userID, organizationID, permission string, actor models.Actor) (_ *models.Membership, err error) {
	ctx, done := s.operation(ctx, op)
	defer func() { done(err) }()

	p, err := models.ParsePermission(permission)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	perm := p.String()

	var m *models.Membership
	changed := false
	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		m, err = activeMembership(ctx, tx, userID, organizationID)
		if err != nil {
			return err
		}
		target := &m.Permissions.CustomPermissions
		if list == RestrictedPermissions {
			target = &m.Permissions.RestrictedPermissions
		}
		if add {
			*target, changed = models.AddToSet(*target, perm)
		} else {
			*target, changed = models.RemoveFromSet(*target, perm)
		}
		if !changed {
			return nil
		}
		m.UpdatedAt = s.clock.Now().UTC()
		return store.Translate(tx.Memberships().UpdateMembership(ctx, m))
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return m, nil
	}

	verb := "removed"
	if add {
		verb = "added"
	}
	entry := s.membershipEntry(actor, m, audit.CategoryPermission, fmt.Sprintf("permission.%s_%s", string(list), verb))
	entry.Description = fmt.Sprintf("%s %s permission %s for user %s", verb, list, perm, userID)
	entry.Metadata = map[string]interface{}{"permission": perm, "list": string(list)}
	if list == RestrictedPermissions && add {
		entry.Severity = audit.SeverityNotice
	}

	return m, models.JoinWarnings(op,
		s.invalidate(ctx, pairKey{userID, organizationID}),
		s.recorder.Record(ctx, entry),
	)
}

