package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/membership/pkg/config"
	"github.com/platinummonkey/membership/pkg/engine"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/observability"
)

// App carries the state shared by every orgctl command
type App struct {
	out    io.Writer
	errOut io.Writer
	logger *logrus.Logger
	engine *engine.Engine

	configPath string
	actorID    string
	actorEmail string
	verbose    bool

	// roles created while opening the engine
	seeded int
}

// NewApp creates an App printing results to out and diagnostics to errOut
func NewApp(out, errOut io.Writer) *App {
	logger := logrus.New()
	logger.SetOutput(errOut)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)
	return &App{out: out, errOut: errOut, logger: logger}
}

// UseEngine makes every command run against e instead of building one
// from configuration. The caller keeps ownership of e.
func (a *App) UseEngine(e *engine.Engine) {
	a.engine = e
}

func (a *App) actor() models.Actor {
	if a.actorID == "" {
		return models.SystemActor
	}
	return models.Actor{ID: a.actorID, Email: a.actorEmail}
}

type runFunc func(ctx context.Context, e *engine.Engine) error

// withEngine runs fn against the configured engine
func (a *App) withEngine(fn runFunc) error {
	if a.verbose {
		a.logger.SetLevel(logrus.DebugLevel)
	}
	ctx := context.Background()
	if a.engine != nil {
		return fn(ctx, a.engine)
	}

	path := a.configPath
	if path == "" {
		path = config.ConfigFileFromEnv()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	level := observability.WarnLevel
	if a.verbose {
		level = observability.DebugLevel
	}
	a.logger.WithFields(logrus.Fields{
		"store": cfg.Store.Driver,
		"cache": cfg.Cache.Backend,
	}).Debug("Opening engine")

	e, err := engine.New(ctx, cfg, engine.WithLogger(observability.NewLogger(level, a.errOut)))
	if err != nil {
		return err
	}
	defer func() {
		if err := e.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close engine")
		}
	}()

	created, err := e.Bootstrap(ctx)
	if err := models.Fatal(err); err != nil {
		return err
	}
	a.seeded = created
	a.logger.Debugf("Seeded %d system roles", created)
	return fn(ctx, e)
}

// print writes v as indented JSON. Warnings are logged and do not fail the
// command.
func (a *App) print(v interface{}, err error) error {
	if fatal := models.Fatal(err); fatal != nil {
		return fatal
	}
	if err != nil {
		a.logger.WithError(err).Warn("Operation applied with warnings")
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// leaf builds a command whose flags are declared by define. The returned
// runFunc executes after the flags are parsed and required ones checked.
func (a *App) leaf(name, description string, required []string, define func(fs *flag.FlagSet) runFunc) *Command {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	run := define(fs)
	return &Command{
		Name:        name,
		Description: description,
		Flags:       fs,
		out:         a.out,
		Run: func(args []string) error {
			if err := fs.Parse(args); err != nil {
				return err
			}
			for _, r := range required {
				if fs.Lookup(r).Value.String() == "" {
					return fmt.Errorf("%s: missing required flag -%s", name, r)
				}
			}
			return a.withEngine(run)
		},
	}
}

func (a *App) group(name, description string, cmds ...*Command) *Command {
	g := &Command{
		Name:        name,
		Description: description,
		Subcommands: make(map[string]*Command, len(cmds)),
		out:         a.out,
	}
	for _, cmd := range cmds {
		g.Subcommands[cmd.Name] = cmd
	}
	return g
}

// isSet reports whether the flag was given on the command line
func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// splitList splits a comma separated flag value
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (a *App) seedRolesCommand() *Command {
	return a.leaf("seed-roles", "Create the built-in roles", nil, func(fs *flag.FlagSet) runFunc {
		return func(ctx context.Context, e *engine.Engine) error {
			created, err := e.Bootstrap(ctx)
			return a.print(map[string]int{"created": a.seeded + created}, err)
		}
	})
}
