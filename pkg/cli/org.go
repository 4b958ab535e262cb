package cli

import (
	"context"
	"flag"
	"strconv"

	"github.com/platinummonkey/membership/pkg/engine"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/orgs"
)

func (a *App) orgCommand() *Command {
	return a.group("org", "Manage organizations",
		a.leaf("create", "Create an organization", []string{"name", "owner", "type"}, func(fs *flag.FlagSet) runFunc {
			name := fs.String("name", "", "Organization name")
			owner := fs.String("owner", "", "Owner user ID")
			ownerEmail := fs.String("owner-email", "", "Owner email")
			typ := fs.String("type", "", "Organization type (basic, professional, enterprise, agency)")
			parent := fs.String("parent", "", "Parent organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Organizations.CreateOrganization(ctx, orgs.CreateOrganizationInput{
					Name:       *name,
					OwnerID:    *owner,
					OwnerEmail: *ownerEmail,
					Type:       models.OrganizationType(*typ),
					ParentID:   *parent,
				}, a.actor()))
			}
		}),
		a.leaf("get", "Show an organization", []string{"id"}, func(fs *flag.FlagSet) runFunc {
			id := fs.String("id", "", "Organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Organizations.GetOrganization(ctx, *id))
			}
		}),
		a.leaf("children", "List child organizations", []string{"id"}, func(fs *flag.FlagSet) runFunc {
			id := fs.String("id", "", "Parent organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Organizations.ListChildOrganizations(ctx, *id))
			}
		}),
		a.leaf("usage", "Show member and suborganization usage against limits", []string{"id"}, func(fs *flag.FlagSet) runFunc {
			id := fs.String("id", "", "Organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Organizations.GetUsage(ctx, *id))
			}
		}),
		a.orgUpdateCommand(),
		a.leaf("delete", "Delete an organization and its memberships", []string{"id"}, func(fs *flag.FlagSet) runFunc {
			id := fs.String("id", "", "Organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(map[string]string{"deleted": *id}, e.Organizations.DeleteOrganization(ctx, *id, a.actor()))
			}
		}),
		a.leaf("change-owner", "Transfer ownership to an active member", []string{"id", "owner"}, func(fs *flag.FlagSet) runFunc {
			id := fs.String("id", "", "Organization ID")
			owner := fs.String("owner", "", "New owner user ID")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Organizations.ChangeOwner(ctx, *id, *owner, a.actor()))
			}
		}),
	)
}

func (a *App) orgUpdateCommand() *Command {
	return a.leaf("update", "Change an organization", []string{"id"}, func(fs *flag.FlagSet) runFunc {
		id := fs.String("id", "", "Organization ID")
		name := fs.String("name", "", "New name")
		status := fs.String("status", "", "New status (active, suspended, archived)")
		typ := fs.String("type", "", "New type; settings are recomputed")
		maxUsers := fs.Int("max-users", 0, "Member limit (0 = unlimited)")
		maxSuborgs := fs.Int("max-suborgs", 0, "Suborganization limit (0 = unlimited)")
		allowSuborgs := fs.String("allow-suborgs", "", "Allow suborganizations (true or false)")
		return func(ctx context.Context, e *engine.Engine) error {
			var patch orgs.OrganizationPatch
			if isSet(fs, "name") {
				patch.Name = name
			}
			if isSet(fs, "status") {
				s := models.OrganizationStatus(*status)
				patch.Status = &s
			}
			if isSet(fs, "type") {
				t := models.OrganizationType(*typ)
				patch.Type = &t
			}
			if isSet(fs, "max-users") || isSet(fs, "max-suborgs") || isSet(fs, "allow-suborgs") {
				org, err := e.Organizations.GetOrganization(ctx, *id)
				if err != nil {
					return err
				}
				settings := org.Settings
				if patch.Type != nil {
					settings = models.SettingsForType(*patch.Type)
				}
				if isSet(fs, "max-users") {
					settings.MaxUsers = *maxUsers
				}
				if isSet(fs, "max-suborgs") {
					settings.MaxSuborganizations = *maxSuborgs
				}
				if isSet(fs, "allow-suborgs") {
					allow, err := strconv.ParseBool(*allowSuborgs)
					if err != nil {
						return err
					}
					settings.AllowSuborganizations = allow
				}
				patch.Settings = &settings
			}
			return a.print(e.Organizations.UpdateOrganization(ctx, *id, patch, a.actor()))
		}
	})
}
