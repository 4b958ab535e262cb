package cli

import (
	"context"
	"flag"

	"github.com/platinummonkey/membership/pkg/engine"
	"github.com/platinummonkey/membership/pkg/models"
)

func (a *App) userCommand() *Command {
	return a.group("user", "Manage directory users",
		a.leaf("add", "Register or replace a user", []string{"id", "email"}, func(fs *flag.FlagSet) runFunc {
			id := fs.String("id", "", "User ID")
			email := fs.String("email", "", "Email address")
			return func(ctx context.Context, e *engine.Engine) error {
				if err := e.Directory.UpsertUser(ctx, &models.User{ID: *id, Email: *email}); err != nil {
					return err
				}
				return a.print(e.Directory.GetUserByID(ctx, *id))
			}
		}),
		a.leaf("get", "Show a user", []string{"id"}, func(fs *flag.FlagSet) runFunc {
			id := fs.String("id", "", "User ID")
			return func(ctx context.Context, e *engine.Engine) error {
				return a.print(e.Directory.GetUserByID(ctx, *id))
			}
		}),
	)
}
