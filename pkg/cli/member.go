package cli

import (
	"context"
	"errors"
	"flag"

	"github.com/platinummonkey/membership/pkg/engine"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/orgs"
)

func (a *App) memberCommand() *Command {
	return a.group("member", "Manage memberships",
		a.leaf("add", "Add or reactivate a member", []string{"user", "org"}, func(fs *flag.FlagSet) runFunc {
			user := fs.String("user", "", "User ID")
			org := fs.String("org", "", "Organization ID")
			roles := fs.String("roles", "", "Comma separated role IDs (default: the organization's default role)")
			typ := fs.String("type", "", "Membership type (member)")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Organizations.AddUserToOrganization(ctx, orgs.AddMemberInput{
					UserID:         *user,
					OrganizationID: *org,
					Roles:          splitList(*roles),
					Type:           models.MembershipType(*typ),
				}, a.actor()))
			}
		}),
		a.leaf("get", "Show a membership", []string{"user", "org"}, func(fs *flag.FlagSet) runFunc {
			user := fs.String("user", "", "User ID")
			org := fs.String("org", "", "Organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Organizations.GetMembership(ctx, *user, *org))
			}
		}),
		a.leaf("remove", "Remove a member", []string{"user", "org"}, func(fs *flag.FlagSet) runFunc {
			user := fs.String("user", "", "User ID")
			org := fs.String("org", "", "Organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				removed, err := e.Organizations.RemoveUserFromOrganization(ctx, *user, *org, a.actor())
				return a.print(map[string]bool{"removed": removed}, err)
			}
		}),
		a.leaf("set-default", "Make an organization the user's default", []string{"user", "org"}, func(fs *flag.FlagSet) runFunc {
			user := fs.String("user", "", "User ID")
			org := fs.String("org", "", "Organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Organizations.SetDefaultOrganization(ctx, *user, *org, a.actor()))
			}
		}),
		a.leaf("change-type", "Change a membership type; owner transfers ownership", []string{"user", "org", "type"}, func(fs *flag.FlagSet) runFunc {
			user := fs.String("user", "", "User ID")
			org := fs.String("org", "", "Organization ID")
			typ := fs.String("type", "", "Membership type (owner, member)")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Organizations.ChangeMembershipType(ctx, *user, *org, models.MembershipType(*typ), a.actor()))
			}
		}),
		a.leaf("list", "List an organization's active members or a user's memberships", nil, func(fs *flag.FlagSet) runFunc {
			user := fs.String("user", "", "User ID")
			org := fs.String("org", "", "Organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				switch {
				case *org != "" && *user == "":
					return a.print(e.Organizations.ListOrganizationMembers(ctx, *org))
				case *user != "" && *org == "":
					return a.print(e.Organizations.ListUserMemberships(ctx, *user))
				}
				return errors.New("list: exactly one of -user or -org is required")
			}
		}),
	)
}
