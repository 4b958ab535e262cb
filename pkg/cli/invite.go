package cli

import (
	"context"
	"errors"
	"flag"

	"github.com/platinummonkey/membership/pkg/engine"
	"github.com/platinummonkey/membership/pkg/invitations"
	"github.com/platinummonkey/membership/pkg/models"
)

func (a *App) inviteCommand() *Command {
	return a.group("invite", "Manage invitations",
		a.leaf("create", "Invite an email address to an organization", []string{"email", "org"}, func(fs *flag.FlagSet) runFunc {
			email := fs.String("email", "", "Invited email address")
			org := fs.String("org", "", "Organization ID")
			roles := fs.String("roles", "", "Comma separated role IDs granted on acceptance")
			message := fs.String("message", "", "Message for the invitee")
			expiresIn := fs.Duration("expires-in", 0, "Lifetime (default: configured expiry)")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Invitations.CreateInvitation(ctx, invitations.CreateInvitationInput{
					Email:          *email,
					OrganizationID: *org,
					Roles:          splitList(*roles),
					Message:        *message,
					ExpiresIn:      *expiresIn,
				}, a.actor()))
			}
		}),
		a.leaf("agency", "Invite an email address to set up a client organization under an agency", []string{"email", "parent", "name"}, func(fs *flag.FlagSet) runFunc {
			email := fs.String("email", "", "Invited email address")
			parent := fs.String("parent", "", "Agency organization ID")
			name := fs.String("name", "", "Name of the client organization")
			message := fs.String("message", "", "Message for the invitee")
			expiresIn := fs.Duration("expires-in", 0, "Lifetime (default: configured expiry)")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Invitations.CreateAgencyInvitation(ctx, invitations.CreateAgencyInvitationInput{
					Email:                *email,
					ParentOrganizationID: *parent,
					OrganizationName:     *name,
					Message:              *message,
					ExpiresIn:            *expiresIn,
				}, a.actor()))
			}
		}),
		a.leaf("get", "Show an invitation by token", []string{"token"}, func(fs *flag.FlagSet) runFunc {
			token := fs.String("token", "", "Invitation token")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Invitations.GetInvitationByToken(ctx, *token))
			}
		}),
		a.leaf("accept", "Accept an invitation", []string{"token", "user", "email"}, func(fs *flag.FlagSet) runFunc {
			token := fs.String("token", "", "Invitation token")
			user := fs.String("user", "", "Accepting user ID")
			email := fs.String("email", "", "Accepting user's email")
			return func(ctx context.Context, e *engine.Engine) error {
				accepted, err := e.Invitations.AcceptInvitation(ctx, *token, *user, *email)
				return a.print(map[string]bool{"accepted": accepted}, err)
			}
		}),
		a.leaf("decline", "Decline an invitation as the invited address (-actor-email)", []string{"token"}, func(fs *flag.FlagSet) runFunc {
			token := fs.String("token", "", "Invitation token")
			return func(ctx context.Context, e *engine.Engine) error {
				declined, err := e.Invitations.DeclineInvitation(ctx, *token, a.actor())
				return a.print(map[string]bool{"declined": declined}, err)
			}
		}),
		a.leaf("revoke", "Revoke a pending invitation", []string{"id"}, func(fs *flag.FlagSet) runFunc {
			id := fs.String("id", "", "Invitation ID")
			return func(ctx context.Context, e *engine.Engine) error {
				revoked, err := e.Invitations.RevokeInvitation(ctx, *id, a.actor())
				return a.print(map[string]bool{"revoked": revoked}, err)
			}
		}),
		a.leaf("pending", "List pending invitations for an email, organization or agency", nil, func(fs *flag.FlagSet) runFunc {
			email := fs.String("email", "", "Invited email address")
			org := fs.String("org", "", "Organization ID")
			agency := fs.String("agency", "", "Agency organization ID")
			return func(ctx context.Context, e *engine.Engine) error {
				var (
					list []*models.Invitation
					err  error
				)
				switch {
				case *email != "":
					list, err = e.Invitations.GetPendingInvitationsForEmail(ctx, *email)
				case *org != "":
					list, err = e.Invitations.GetPendingOrganizationInvitations(ctx, *org)
				case *agency != "":
					list, err = e.Invitations.GetPendingAgencyInvitations(ctx, *agency)
				default:
					return errors.New("pending: one of -email, -org or -agency is required")
				}
				return a.print(list, err)
			}
		}),
		a.leaf("sweep", "Expire every overdue pending invitation", nil, func(fs *flag.FlagSet) runFunc {
			return func(ctx context.Context, e *engine.Engine) error {
				expired, err := e.Invitations.SweepExpiredInvitations(ctx)
				return a.print(map[string]int{"expired": expired}, err)
			}
		}),
	)
}
