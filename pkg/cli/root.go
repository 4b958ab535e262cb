package cli

import (
	"flag"
	"fmt"
	"io"
	"sort"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet

	out io.Writer
}

// NewRootCommand creates the orgctl command tree bound to app
func NewRootCommand(app *App) *Command {
	root := &Command{
		Name:        "orgctl",
		Description: "orgctl - organization membership and permission administration",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("orgctl", flag.ContinueOnError),
		out:         app.out,
	}
	root.Flags.SetOutput(app.errOut)
	root.Flags.StringVar(&app.configPath, "config", "", "YAML configuration file (overrides MEMBERSHIP_CONFIG_FILE)")
	root.Flags.StringVar(&app.actorID, "actor", "", "ID of the user performing the operation")
	root.Flags.StringVar(&app.actorEmail, "actor-email", "", "Email of the user performing the operation")
	root.Flags.BoolVar(&app.verbose, "verbose", false, "Enable debug logging")

	for _, cmd := range []*Command{
		app.seedRolesCommand(),
		app.userCommand(),
		app.orgCommand(),
		app.memberCommand(),
		app.permCommand(),
		app.roleCommand(),
		app.inviteCommand(),
	} {
		root.Subcommands[cmd.Name] = cmd
	}
	return root
}

// Execute parses the global flags and runs the selected command
func (c *Command) Execute(args []string) error {
	if err := c.Flags.Parse(args); err != nil {
		return err
	}
	return c.dispatch(c.Flags.Args())
}

func (c *Command) dispatch(args []string) error {
	if len(c.Subcommands) == 0 {
		return c.Run(args)
	}
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		return c.usage()
	}
	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.dispatch(args[1:])
	}
	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Fprintf(c.out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(c.out, "Commands:\n")
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
