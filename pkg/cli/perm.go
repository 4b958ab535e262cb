package cli

import (
	"context"
	"flag"

	"github.com/platinummonkey/membership/pkg/engine"
	"github.com/platinummonkey/membership/pkg/models"
)

type overrideFunc func(ctx context.Context, userID, organizationID, permission string, actor models.Actor) (*models.Membership, error)

func (a *App) permCommand() *Command {
	override := func(name, description string, pick func(e *engine.Engine) overrideFunc) *Command {
		return a.leaf(name, description, []string{"user", "org", "permission"}, func(fs *flag.FlagSet) runFunc {
			user := fs.String("user", "", "User ID")
			org := fs.String("org", "", "Organization ID")
			perm := fs.String("permission", "", "Permission as resource:action")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(pick(e)(ctx, *user, *org, *perm, a.actor()))
			}
		})
	}

	return a.group("perm", "Manage and evaluate permissions",
		override("grant", "Add a custom permission", func(e *engine.Engine) overrideFunc {
			return e.Organizations.AddCustomPermission
		}),
		override("revoke", "Remove a custom permission", func(e *engine.Engine) overrideFunc {
			return e.Organizations.RemoveCustomPermission
		}),
		override("restrict", "Add a restricted permission", func(e *engine.Engine) overrideFunc {
			return e.Organizations.AddRestrictedPermission
		}),
		override("unrestrict", "Remove a restricted permission", func(e *engine.Engine) overrideFunc {
			return e.Organizations.RemoveRestrictedPermission
		}),
		a.leaf("check", "Evaluate one permission", []string{"user", "org", "permission"}, func(fs *flag.FlagSet) runFunc {
			user := fs.String("user", "", "User ID")
			org := fs.String("org", "", "Organization ID")
			perm := fs.String("permission", "", "Permission as resource:action")
			resourceID := fs.String("resource-id", "", "Resource instance for conditional grants")
			return func(ctx context.Context, e *engine.Engine) error {
				p, err := models.ParsePermission(*perm)
				if err != nil {
					return err
				}
				allowed, err := e.Roles.HasPermission(ctx, *user, *org, p.Resource, p.Action, *resourceID)
				if err != nil {
					return err
				}
				return a.print(map[string]interface{}{"permission": p.String(), "allowed": allowed}, nil)
			}
		}),
		a.leaf("effective", "List effective permissions", []string{"user", "org"}, func(fs *flag.FlagSet) runFunc {
			user := fs.String("user", "", "User ID")
			org := fs.String("org", "", "Organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Roles.GetUserEffectivePermissions(ctx, *user, *org))
			}
		}),
	)
}
