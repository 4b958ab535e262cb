package rbac

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
)

// CreateRoleInput describes an organization role
type CreateRoleInput struct {
	Name           string              `validate:"required,max=100"`
	Description    string              `validate:"max=500"`
	OrganizationID string              `validate:"required"`
	Permissions    []models.Permission `validate:"dive"`
}

// RolePatch changes a custom role. Nil fields are left as they are; an
// empty non-nil Permissions clears the grants.
type RolePatch struct {
	Name        *string `validate:"omitnil,min=1,max=100"`
	Description *string `validate:"omitnil,max=500"`
	Permissions []models.Permission
}

func validatePermissions(perms []models.Permission) error {
	for _, p := range perms {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CreateRole creates a role scoped to an organization
func (s *Service) CreateRole(ctx context.Context, in CreateRoleInput, actor models.Actor) (_ *models.Role, err error) {
	ctx, done := s.operation(ctx, "CreateRole")
	defer func() { done(err) }()

	if err := models.ValidateInput(in); err != nil {
		return nil, err
	}
	if err := validatePermissions(in.Permissions); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	role := &models.Role{
		ID:             uuid.NewString(),
		Name:           in.Name,
		Description:    in.Description,
		Scope:          models.RoleScopeOrganization,
		OrganizationID: in.OrganizationID,
		Permissions:    models.ClonePermissions(in.Permissions),
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if role.Permissions == nil {
		role.Permissions = []models.Permission{}
	}

	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Organizations().GetOrganization(ctx, in.OrganizationID); err != nil {
			return store.Translate(err)
		}
		if _, err := tx.Roles().FindRoleByName(ctx, in.Name, in.OrganizationID); err == nil {
			return fmt.Errorf("%w: role %q already exists in organization %s", models.ErrConflict, in.Name, in.OrganizationID)
		} else if !store.IsNotFound(err) {
			return err
		}
		return store.Translate(tx.Roles().CreateRole(ctx, role))
	})
	if err != nil {
		return nil, err
	}

	entry := audit.NewEntry(actor, role.OrganizationID, audit.CategoryRole, "role.created")
	entry.ResourceType = string(models.ResourceRole)
	entry.ResourceID = role.ID
	entry.Description = fmt.Sprintf("created role %q", role.Name)
	entry.Changes = &audit.ChangeDetails{After: role.Clone()}
	return role, models.JoinWarnings("CreateRole", s.recorder.Record(ctx, entry))
}

// GetRoleByID returns a role
func (s *Service) GetRoleByID(ctx context.Context, id string) (_ *models.Role, err error) {
	ctx, done := s.operation(ctx, "GetRoleByID")
	defer func() { done(err) }()

	role, err := s.store.Roles().GetRole(ctx, id)
	if err != nil {
		return nil, store.Translate(err)
	}
	return role, nil
}

// ListRoles returns the roles usable in an organization: its own followed
// by the system roles.
func (s *Service) ListRoles(ctx context.Context, organizationID string) (_ []*models.Role, err error) {
	ctx, done := s.operation(ctx, "ListRoles")
	defer func() { done(err) }()

	roles, err := s.store.Roles().ListRoles(ctx, organizationID)
	if err != nil {
		return nil, store.Translate(err)
	}
	return roles, nil
}

// UpdateRole changes a custom role. Built-in roles are immutable.
func (s *Service) UpdateRole(ctx context.Context, id string, patch RolePatch, actor models.Actor) (_ *models.Role, err error) {
	ctx, done := s.operation(ctx, "UpdateRole")
	defer func() { done(err) }()

	if err := models.ValidateInput(patch); err != nil {
		return nil, err
	}
	if err := validatePermissions(patch.Permissions); err != nil {
		return nil, err
	}

	var before, after *models.Role
	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		role, err := tx.Roles().GetRole(ctx, id)
		if err != nil {
			return store.Translate(err)
		}
		if role.IsBuiltIn {
			return fmt.Errorf("%w: built-in role %q cannot be modified", models.ErrForbidden, role.Name)
		}
		before = role.Clone()

		if patch.Name != nil && *patch.Name != role.Name {
			existing, err := tx.Roles().FindRoleByName(ctx, *patch.Name, role.OrganizationID)
			if err == nil && existing.ID != role.ID {
				return fmt.Errorf("%w: role %q already exists", models.ErrConflict, *patch.Name)
			}
			if err != nil && !store.IsNotFound(err) {
				return err
			}
			role.Name = *patch.Name
		}
		if patch.Description != nil {
			role.Description = *patch.Description
		}
		if patch.Permissions != nil {
			role.Permissions = models.ClonePermissions(patch.Permissions)
		}
		role.UpdatedAt = s.clock.Now().UTC()
		if err := tx.Roles().UpdateRole(ctx, role); err != nil {
			return store.Translate(err)
		}
		after = role
		return nil
	})
	if err != nil {
		return nil, err
	}

	entry := audit.NewEntry(actor, after.OrganizationID, audit.CategoryRole, "role.updated")
	entry.ResourceType = string(models.ResourceRole)
	entry.ResourceID = after.ID
	entry.Description = fmt.Sprintf("updated role %q", after.Name)
	entry.Changes = &audit.ChangeDetails{Before: before, After: after.Clone()}
	return after, models.JoinWarnings("UpdateRole",
		s.invalidateAll(ctx),
		s.recorder.Record(ctx, entry),
	)
}

// DeleteRole deletes a custom role that no active membership references
func (s *Service) DeleteRole(ctx context.Context, id string, actor models.Actor) (err error) {
	ctx, done := s.operation(ctx, "DeleteRole")
	defer func() { done(err) }()

	var deleted *models.Role
	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		role, err := tx.Roles().GetRole(ctx, id)
		if err != nil {
			return store.Translate(err)
		}
		if role.IsBuiltIn {
			return fmt.Errorf("%w: built-in role %q cannot be deleted", models.ErrForbidden, role.Name)
		}
		inUse, err := tx.Memberships().ListMemberships(ctx, store.MembershipFilter{
			RoleID: id,
			Status: models.MembershipStatusActive,
		})
		if err != nil {
			return err
		}
		if len(inUse) > 0 {
			return fmt.Errorf("%w: role %q is assigned to %d active memberships", models.ErrConflict, role.Name, len(inUse))
		}
		deleted = role
		return store.Translate(tx.Roles().DeleteRole(ctx, id))
	})
	if err != nil {
		return err
	}

	entry := audit.NewEntry(actor, deleted.OrganizationID, audit.CategoryRole, "role.deleted")
	entry.ResourceType = string(models.ResourceRole)
	entry.ResourceID = deleted.ID
	entry.Severity = audit.SeverityNotice
	entry.Description = fmt.Sprintf("deleted role %q", deleted.Name)
	entry.Changes = &audit.ChangeDetails{Before: deleted}
	return models.JoinWarnings("DeleteRole",
		s.invalidateAll(ctx),
		s.recorder.Record(ctx, entry),
	)
}

// AssignRoleToUser adds a role to the user's active membership. It reports
// whether the membership changed; assigning a held role is a no-op.
func (s *Service) AssignRoleToUser(ctx context.Context, roleID, userID, organizationID string, actor models.Actor) (changed bool, err error) {
	ctx, done := s.operation(ctx, "AssignRoleToUser")
	defer func() { done(err) }()

	var role *models.Role
	var membership *models.Membership
	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		role, err = tx.Roles().GetRole(ctx, roleID)
		if err != nil {
			return store.Translate(err)
		}
		if !role.UsableIn(organizationID) {
			return fmt.Errorf("%w: role %q belongs to another organization", models.ErrInvalidArgument, role.Name)
		}
		membership, err = activeMembership(ctx, tx, userID, organizationID)
		if err != nil {
			return err
		}
		membership.Roles, changed = models.AddToSet(membership.Roles, roleID)
		if !changed {
			return nil
		}
		membership.UpdatedAt = s.clock.Now().UTC()
		return store.Translate(tx.Memberships().UpdateMembership(ctx, membership))
	})
	if err != nil || !changed {
		return false, err
	}

	entry := audit.NewEntry(actor, organizationID, audit.CategoryRole, "role.assigned")
	entry.ResourceType = string(models.ResourceMembership)
	entry.ResourceID = membership.ID
	entry.Description = fmt.Sprintf("assigned role %q to user %s", role.Name, userID)
	entry.Metadata = map[string]interface{}{"role_id": roleID, "user_id": userID}
	return true, models.JoinWarnings("AssignRoleToUser",
		s.invalidate(ctx, userID, organizationID),
		s.recorder.Record(ctx, entry),
	)
}

// RemoveRoleFromUser removes a role from the user's active membership.
// Removing the last role leaves the system Member role in place.
func (s *Service) RemoveRoleFromUser(ctx context.Context, roleID, userID, organizationID string, actor models.Actor) (changed bool, err error) {
	ctx, done := s.operation(ctx, "RemoveRoleFromUser")
	defer func() { done(err) }()

	var role *models.Role
	var membership *models.Membership
	err = s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		role, err = tx.Roles().GetRole(ctx, roleID)
		if err != nil {
			return store.Translate(err)
		}
		membership, err = activeMembership(ctx, tx, userID, organizationID)
		if err != nil {
			return err
		}
		if role.Name == models.RoleNameOwner && membership.Type == models.MembershipTypeOwner {
			return fmt.Errorf("%w: the owner role moves only with ownership", models.ErrForbidden)
		}

		before := append([]string(nil), membership.Roles...)
		roles, removed := models.RemoveFromSet(membership.Roles, roleID)
		if !removed {
			return nil
		}
		if len(roles) == 0 {
			member, err := LookupSystemRole(ctx, tx, models.RoleNameMember)
			if err != nil {
				return err
			}
			roles = []string{member.ID}
		}
		if slices.Equal(before, roles) {
			return nil
		}
		changed = true
		membership.Roles = roles
		membership.UpdatedAt = s.clock.Now().UTC()
		return store.Translate(tx.Memberships().UpdateMembership(ctx, membership))
	})
	if err != nil || !changed {
		return false, err
	}

	entry := audit.NewEntry(actor, organizationID, audit.CategoryRole, "role.unassigned")
	entry.ResourceType = string(models.ResourceMembership)
	entry.ResourceID = membership.ID
	entry.Description = fmt.Sprintf("removed role %q from user %s", role.Name, userID)
	entry.Metadata = map[string]interface{}{"role_id": roleID, "user_id": userID, "roles": membership.Roles}
	return true, models.JoinWarnings("RemoveRoleFromUser",
		s.invalidate(ctx, userID, organizationID),
		s.recorder.Record(ctx, entry),
	)
}
