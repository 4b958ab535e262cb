package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
)

// systemRoleNamespace derives stable ids for built-in roles
var systemRoleNamespace = uuid.MustParse("7b0c3a52-5d0e-4f57-9a43-2c8f0a1e6d11")

// SystemRoleID returns the stable id of the built-in role called name
func SystemRoleID(name string) string {
	return uuid.NewSHA1(systemRoleNamespace, []byte("system-role:"+name)).String()
}

func grants(resource models.Resource, actions ...models.Action) []models.Permission {
	out := make([]models.Permission, 0, len(actions))
	for _, a := range actions {
		out = append(out, models.NewPermission(resource, a))
	}
	return out
}

func concat(groups ...[]models.Permission) []models.Permission {
	var out []models.Permission
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// SystemRoles returns the built-in role catalog
func SystemRoles() []*models.Role {
	all := models.ActionAny
	read := models.ActionRead

	catalog := []struct {
		name        string
		description string
		permissions []models.Permission
	}{
		{
			name:        models.RoleNameOwner,
			description: "Full control of the organization",
			permissions: grants(models.ResourceAny, all),
		},
		{
			name:        models.RoleNameAdmin,
			description: "Manages members, roles and day to day operations",
			permissions: concat(
				grants(models.ResourceOrganization, read, models.ActionUpdate),
				grants(models.ResourceUser, all),
				grants(models.ResourceMembership, all),
				grants(models.ResourceRole, all),
				grants(models.ResourcePermission, all),
				grants(models.ResourceInvitation, all),
				grants(models.ResourceProject, all),
				grants(models.ResourceInventory, all),
				grants(models.ResourceOrder, all),
				grants(models.ResourceProduct, all),
				grants(models.ResourceMarketplace, all),
				grants(models.ResourceReport, all),
				grants(models.ResourceSettings, all),
				grants(models.ResourceBilling, read),
				grants(models.ResourceAuditLog, read),
			),
		},
		{
			name:        models.RoleNameManager,
			description: "Runs projects, catalog and orders",
			permissions: concat(
				grants(models.ResourceOrganization, read),
				grants(models.ResourceUser, read),
				grants(models.ResourceMembership, read),
				grants(models.ResourceInvitation, models.ActionCreate, read),
				grants(models.ResourceProject, all),
				grants(models.ResourceInventory, all),
				grants(models.ResourceOrder, all),
				grants(models.ResourceProduct, all),
				grants(models.ResourceReport, read, models.ActionExport),
			),
		},
		{
			name:        models.RoleNameMember,
			description: "Read access to the organization",
			permissions: concat(
				grants(models.ResourceOrganization, read),
				grants(models.ResourceMembership, read),
				grants(models.ResourceProject, read),
				grants(models.ResourceInventory, read),
				grants(models.ResourceOrder, read),
				grants(models.ResourceProduct, read),
				grants(models.ResourceReport, read),
			),
		},
	}

	roles := make([]*models.Role, 0, len(catalog))
	for _, c := range catalog {
		roles = append(roles, &models.Role{
			ID:          SystemRoleID(c.name),
			Name:        c.name,
			Description: c.description,
			Scope:       models.RoleScopeSystem,
			Permissions: c.permissions,
			IsBuiltIn:   true,
			CreatedBy:   models.SystemActor.ID,
		})
	}
	return roles
}

// LookupSystemRole loads the seeded built-in role called name
func LookupSystemRole(ctx context.Context, repos store.Repositories, name string) (*models.Role, error) {
	role, err := repos.Roles().FindRoleByName(ctx, name, "")
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("%w: system role %q is not seeded", models.ErrNotFound, name)
		}
		return nil, err
	}
	return role, nil
}

// InitializeSystemRoles creates the built-in roles that are missing and
// returns how many were created. Existing roles are left untouched.
func (s *Service) InitializeSystemRoles(ctx context.Context) (created int, err error) {
	ctx, done := s.operation(ctx, "InitializeSystemRoles")
	defer func() { done(err) }()

	now := s.clock.Now().UTC()
	var names []string
	for _, role := range SystemRoles() {
		_, getErr := s.store.Roles().GetRole(ctx, role.ID)
		if getErr == nil {
			continue
		}
		if !store.IsNotFound(getErr) {
			return created, getErr
		}

		role.CreatedAt = now
		role.UpdatedAt = now
		if err := s.store.Roles().CreateRole(ctx, role); err != nil {
			// another process seeded it first
			if errors.Is(err, store.ErrAlreadyExists) {
				continue
			}
			return created, store.Translate(err)
		}
		created++
		names = append(names, role.Name)
	}

	if created == 0 {
		return 0, nil
	}
	entry := audit.NewEntry(models.SystemActor, "", audit.CategorySystem, "roles.seeded")
	entry.ResourceType = string(models.ResourceRole)
	entry.Description = fmt.Sprintf("seeded %d built-in roles", created)
	entry.Metadata = map[string]interface{}{"roles": names}
	return created, models.JoinWarnings("InitializeSystemRoles", s.recorder.Record(ctx, entry))
}
