package cli

import (
	"context"
	"flag"

	"github.com/platinummonkey/membership/pkg/engine"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/rbac"
)

func parsePermissions(list string) ([]models.Permission, error) {
	var perms []models.Permission
	for _, s := range splitList(list) {
		p, err := models.ParsePermission(s)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, nil
}

func (a *App) roleCommand() *Command {
	return a.group("role", "Manage roles",
		a.leaf("create", "Create an organization role", []string{"org", "name"}, func(fs *flag.FlagSet) runFunc {
			org := fs.String("org", "", "Organization ID")
			name := fs.String("name", "", "Role name")
			description := fs.String("description", "", "Role description")
			perms := fs.String("permissions", "", "Comma separated resource:action grants")
			return func(ctx context.Context, e *engine.Engine) error {
				permissions, err := parsePermissions(*perms)
				if err != nil {
					return err
				}
				return a.print(e.Roles.CreateRole(ctx, rbac.CreateRoleInput{
					Name:           *name,
					Description:    *description,
					OrganizationID: *org,
					Permissions:    permissions,
				}, a.actor()))
			}
		}),
		a.leaf("get", "Show a role", []string{"id"}, func(fs *flag.FlagSet) runFunc {
			id := fs.String("id", "", "Role ID")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Roles.GetRoleByID(ctx, *id))
			}
		}),
		a.leaf("list", "List an organization's roles and the built-in roles", []string{"org"}, func(fs *flag.FlagSet) runFunc {
			org := fs.String("org", "", "Organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Roles.ListRoles(ctx, *org))
			}
		}),
		a.leaf("update", "Change a custom role", []string{"id"}, func(fs *flag.FlagSet) runFunc {
			id := fs.String("id", "", "Role ID")
			name := fs.String("name", "", "New name")
			description := fs.String("description", "", "New description")
			perms := fs.String("permissions", "", "Replacement resource:action grants")
			return func(ctx context.Context, e *engine.Engine) error {
				var patch rbac.RolePatch
				if isSet(fs, "name") {
					patch.Name = name
				}
				if isSet(fs, "description") {
					patch.Description = description
				}
				if isSet(fs, "permissions") {
					permissions, err := parsePermissions(*perms)
					if err != nil {
						return err
					}
					patch.Permissions = append([]models.Permission{}, permissions...)
				}
				return a.print(e.Roles.UpdateRole(ctx, *id, patch, a.actor()))
			}
		}),
		a.leaf("delete", "Delete an unassigned custom role", []string{"id"}, func(fs *flag.FlagSet) runFunc {
			id := fs.String("id", "", "Role ID")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(map[string]string{"deleted": *id}, e.Roles.DeleteRole(ctx, *id, a.actor()))
			}
		}),
		a.leaf("assign", "Assign a role to a member", []string{"role", "user", "org"}, func(fs *flag.FlagSet) runFunc {
			role := fs.String("role", "", "Role ID")
			user := fs.String("user", "", "User ID")
			org := fs.String("org", "", "Organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				changed, err := e.Roles.AssignRoleToUser(ctx, *role, *user, *org, a.actor())
				return a.print(map[string]bool{"changed": changed}, err)
			}
		}),
		a.leaf("unassign", "Remove a role from a member", []string{"role", "user", "org"}, func(fs *flag.FlagSet) runFunc {
			role := fs.String("role", "", "Role ID")
			user := fs.String("user", "", "User ID")
			org := fs.String("org", "", "Organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				changed, err := e.Roles.RemoveRoleFromUser(ctx, *role, *user, *org, a.actor())
				return a.print(map[string]bool{"changed": changed}, err)
			}
		}),
	)
}
