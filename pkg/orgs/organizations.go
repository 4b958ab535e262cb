package orgs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/locks"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/rbac"
	"github.com/platinummonkey/membership/pkg/store"
)

// CreateOrganization creates an organization together with the owner's
// membership. The new organization becomes the owner's default.
func (s *Service) CreateOrganization(ctx context.Context, in CreateOrganizationInput, actor models.Actor) (_ *models.Organization, err error) {
	ctx, done := s.operation(ctx, "CreateOrganization")
	defer func() { done(err) }()

	if err := models.ValidateInput(in); err != nil {
		return nil, err
	}
	if _, err := s.directory.GetUserByID(ctx, in.OwnerID); err != nil {
		return nil, err
	}

	keys := []string{locks.UserKey(in.OwnerID)}
	if in.ParentID != "" {
		keys = append(keys, locks.OrgKey(in.ParentID))
	}
	unlock, err := s.lock(ctx, keys...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.clock.Now().UTC()
	id := uuid.NewString()
	org := &models.Organization{
		ID:        id,
		Name:      strings.TrimSpace(in.Name),
		Type:      in.Type,
		Status:    models.OrganizationStatusActive,
		OwnerID:   in.OwnerID,
		RootID:    id,
		Path:      []string{id},
		Settings:  models.SettingsForType(in.Type),
		CreatedAt: now,
		UpdatedAt: now,
	}
	var membership *models.Membership

	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		if in.ParentID != "" {
			parent, err := tx.Organizations().GetOrganization(ctx, in.ParentID)
			if err != nil {
				return store.Translate(err)
			}
			if err := checkSuborganizationLimit(ctx, tx, parent); err != nil {
				return err
			}
			org.ParentID = parent.ID
			org.RootID = parent.RootID
			org.Path = parent.ChildPath(id)
		}
		if err := tx.Organizations().CreateOrganization(ctx, org); err != nil {
			return store.Translate(err)
		}

		owner, err := rbac.LookupSystemRole(ctx, tx, models.RoleNameOwner)
		if err != nil {
			return err
		}
		if err := s.clearOtherDefaults(ctx, tx, in.OwnerID, ""); err != nil {
			return err
		}
		membership = &models.Membership{
			ID:             uuid.NewString(),
			UserID:         in.OwnerID,
			OrganizationID: id,
			Status:         models.MembershipStatusActive,
			Type:           models.MembershipTypeOwner,
			Roles:          []string{owner.ID},
			IsDefault:      true,
			JoinedAt:       now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return store.Translate(tx.Memberships().CreateMembership(ctx, membership))
	})
	if err != nil {
		return nil, err
	}

	pointers := pointerUpdates{}
	pointers.join(in.OwnerID, id)
	pointers.setDefault(in.OwnerID, id)

	entry := audit.NewEntry(actor, id, audit.CategoryOrganization, "organization.created")
	entry.ResourceType = string(models.ResourceOrganization)
	entry.ResourceID = id
	entry.Description = fmt.Sprintf("created %s organization %q", org.Type, org.Name)
	entry.Metadata = map[string]interface{}{
		"owner_id":    in.OwnerID,
		"owner_email": in.OwnerEmail,
		"parent_id":   org.ParentID,
	}
	entry.Changes = &audit.ChangeDetails{After: org.Clone()}

	return org, models.JoinWarnings("CreateOrganization",
		s.invalidate(ctx, pairKey{in.OwnerID, id}),
		s.applyPointers(ctx, pointers),
		s.recorder.Record(ctx, entry),
	)
}

// GetOrganization returns an organization
func (s *Service) GetOrganization(ctx context.Context, id string) (_ *models.Organization, err error) {
	ctx, done := s.operation(ctx, "GetOrganization")
	defer func() { done(err) }()

	org, err := s.store.Organizations().GetOrganization(ctx, id)
	if err != nil {
		return nil, store.Translate(err)
	}
	return org, nil
}

// ListChildOrganizations returns the direct children of an organization
func (s *Service) ListChildOrganizations(ctx context.Context, parentID string) (_ []*models.Organization, err error) {
	ctx, done := s.operation(ctx, "ListChildOrganizations")
	defer func() { done(err) }()

	if _, err := s.store.Organizations().GetOrganization(ctx, parentID); err != nil {
		return nil, store.Translate(err)
	}
	children, err := s.store.Organizations().ListChildOrganizations(ctx, parentID)
	if err != nil {
		return nil, store.Translate(err)
	}
	return children, nil
}

// UpdateOrganization changes an organization's name, status, type or
// settings. Changing the type recomputes the settings from the type table.
func (s *Service) UpdateOrganization(ctx context.Context, id string, patch OrganizationPatch, actor models.Actor) (_ *models.Organization, err error) {
	ctx, done := s.operation(ctx, "UpdateOrganization")
	defer func() { done(err) }()

	if fields := patch.immutableFields(); len(fields) > 0 {
		return nil, fmt.Errorf("%w: immutable fields cannot be changed: %s",
			models.ErrInvalidArgument, strings.Join(fields, ", "))
	}
	if err := models.ValidateInput(patch); err != nil {
		return nil, err
	}

	var before, after *models.Organization
	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		org, err := tx.Organizations().GetOrganization(ctx, id)
		if err != nil {
			return store.Translate(err)
		}
		before = org.Clone()

		if patch.Name != nil {
			org.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Status != nil {
			org.Status = *patch.Status
		}
		if patch.Type != nil && *patch.Type != org.Type {
			org.Type = *patch.Type
			org.Settings = models.SettingsForType(org.Type)
		}
		if patch.Settings != nil {
			settings := *patch.Settings
			if settings.DefaultUserRole == "" {
				settings.DefaultUserRole = org.Settings.DefaultUserRole
			}
			org.Settings = settings
		}
		if err := models.ValidateSettings(org.Type, org.Settings); err != nil {
			return err
		}
		if !org.Settings.AllowSuborganizations && before.Settings.AllowSuborganizations {
			children, err := tx.Organizations().ListChildOrganizations(ctx, id)
			if err != nil {
				return store.Translate(err)
			}
			if len(children) > 0 {
				return fmt.Errorf("%w: organization %s still has %d suborganizations", models.ErrConflict, id, len(children))
			}
		}

		org.UpdatedAt = s.clock.Now().UTC()
		if err := tx.Organizations().UpdateOrganization(ctx, org); err != nil {
			return store.Translate(err)
		}
		after = org
		return nil
	})
	if err != nil {
		return nil, err
	}

	entry := audit.NewEntry(actor, id, audit.CategoryOrganization, "organization.updated")
	entry.ResourceType = string(models.ResourceOrganization)
	entry.ResourceID = id
	entry.Description = fmt.Sprintf("updated organization %q", after.Name)
	entry.Changes = &audit.ChangeDetails{Before: before, After: after.Clone()}
	return after, models.JoinWarnings("UpdateOrganization", s.recorder.Record(ctx, entry))
}

// DeleteOrganization deletes an organization without children and every
// membership in it. Users whose default membership is deleted get another
// active membership promoted to default.
func (s *Service) DeleteOrganization(ctx context.Context, id string, actor models.Actor) (err error) {
	ctx, done := s.operation(ctx, "DeleteOrganization")
	defer func() { done(err) }()

	org, err := s.store.Organizations().GetOrganization(ctx, id)
	if err != nil {
		return store.Translate(err)
	}
	members, err := s.store.Memberships().ListMemberships(ctx, store.MembershipFilter{
		OrganizationID: id,
		Status:         models.MembershipStatusActive,
	})
	if err != nil {
		return store.Translate(err)
	}
	keys := []string{locks.OrgKey(id)}
	for _, m := range members {
		keys = append(keys, locks.UserKey(m.UserID))
	}
	unlock, err := s.lock(ctx, keys...)
	if err != nil {
		return err
	}
	defer unlock()

	if err := ensureNoChildren(ctx, s.store, id); err != nil {
		return err
	}

	entry := audit.NewEntry(actor, id, audit.CategoryOrganization, "organization.deleted")
	entry.ResourceType = string(models.ResourceOrganization)
	entry.ResourceID = id
	entry.Severity = audit.SeverityWarning
	entry.Description = fmt.Sprintf("deleted organization %q", org.Name)
	entry.Metadata = map[string]interface{}{"members": len(members)}
	entry.Changes = &audit.ChangeDetails{Before: org}
	auditErr := s.recorder.Record(ctx, entry)

	pointers := pointerUpdates{}
	var pairs []pairKey
	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		if err := ensureNoChildren(ctx, tx, id); err != nil {
			return err
		}
		active, err := tx.Memberships().ListMemberships(ctx, store.MembershipFilter{
			OrganizationID: id,
			Status:         models.MembershipStatusActive,
		})
		if err != nil {
			return store.Translate(err)
		}
		if _, err := tx.Memberships().DeleteOrganizationMemberships(ctx, id); err != nil {
			return store.Translate(err)
		}
		if err := tx.Organizations().DeleteOrganization(ctx, id); err != nil {
			return store.Translate(err)
		}
		for _, m := range active {
			pointers.leave(m.UserID, id)
			pairs = append(pairs, pairKey{m.UserID, id})
			if !m.IsDefault {
				continue
			}
			next, err := s.promoteDefault(ctx, tx, m.UserID, id)
			if err != nil {
				return err
			}
			pointers.setDefault(m.UserID, next)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return models.JoinWarnings("DeleteOrganization",
		auditErr,
		s.invalidate(ctx, pairs...),
		s.applyPointers(ctx, pointers),
	)
}

func ensureNoChildren(ctx context.Context, repos store.Repositories, id string) error {
	children, err := repos.Organizations().ListChildOrganizations(ctx, id)
	if err != nil {
		return store.Translate(err)
	}
	if len(children) > 0 {
		return fmt.Errorf("%w: organization %s has %d suborganizations", models.ErrConflict, id, len(children))
	}
	return nil
}

// ChangeOwner moves ownership of an organization to another active member.
// The previous owner keeps a member membership.
func (s *Service) ChangeOwner(ctx context.Context, organizationID, newOwnerID string, actor models.Actor) (_ *models.Organization, err error) {
	ctx, done := s.operation(ctx, "ChangeOwner")
	defer func() { done(err) }()

	unlock, err := s.lock(ctx, locks.OrgKey(organizationID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var org *models.Organization
	var previousOwner string
	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		org, previousOwner, err = s.swapOwner(ctx, tx, organizationID, newOwnerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if previousOwner == newOwnerID {
		return org, nil
	}

	entry := audit.NewEntry(actor, organizationID, audit.CategoryOrganization, "organization.owner_changed")
	entry.ResourceType = string(models.ResourceOrganization)
	entry.ResourceID = organizationID
	entry.Severity = audit.SeverityAlert
	entry.Description = fmt.Sprintf("ownership of %q moved from %s to %s", org.Name, previousOwner, newOwnerID)
	entry.Metadata = map[string]interface{}{
		"previous_owner_id": previousOwner,
		"new_owner_id":      newOwnerID,
	}
	return org, models.JoinWarnings("ChangeOwner",
		s.invalidate(ctx, pairKey{previousOwner, organizationID}, pairKey{newOwnerID, organizationID}),
		s.recorder.Record(ctx, entry),
	)
}

// swapOwner demotes the current owner membership, promotes the target
// membership and points the organization at its new owner. It returns the
// previous owner id; when it equals newOwnerID nothing was written.
func (s *Service) swapOwner(ctx context.Context, tx store.Repositories, organizationID, newOwnerID string) (*models.Organization, string, error) {
	org, err := tx.Organizations().GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, "", store.Translate(err)
	}
	target, err := activeMembership(ctx, tx, newOwnerID, organizationID)
	if err != nil {
		return nil, "", err
	}
	previous := org.OwnerID
	if previous == newOwnerID && target.IsOwner() {
		return org, previous, nil
	}

	ownerRole, err := rbac.LookupSystemRole(ctx, tx, models.RoleNameOwner)
	if err != nil {
		return nil, "", err
	}
	now := s.clock.Now().UTC()

	current, err := tx.Memberships().FindMembership(ctx, previous, organizationID)
	switch {
	case err == nil && current.IsActive() && current.ID != target.ID:
		current.Type = models.MembershipTypeMember
		current.Roles, _ = models.RemoveFromSet(current.Roles, ownerRole.ID)
		if len(current.Roles) == 0 {
			member, err := rbac.LookupSystemRole(ctx, tx, models.RoleNameMember)
			if err != nil {
				return nil, "", err
			}
			current.Roles = []string{member.ID}
		}
		current.UpdatedAt = now
		if err := tx.Memberships().UpdateMembership(ctx, current); err != nil {
			return nil, "", store.Translate(err)
		}
	case err != nil && !store.IsNotFound(err):
		return nil, "", err
	}

	target.Type = models.MembershipTypeOwner
	target.Roles, _ = models.AddToSet(target.Roles, ownerRole.ID)
	target.UpdatedAt = now
	if err := tx.Memberships().UpdateMembership(ctx, target); err != nil {
		return nil, "", store.Translate(err)
	}

	org.OwnerID = newOwnerID
	org.UpdatedAt = now
	if err := tx.Organizations().UpdateOrganization(ctx, org); err != nil {
		return nil, "", store.Translate(err)
	}
	return org, previous, nil
}
