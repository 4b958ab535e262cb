package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/membership/pkg/config"
	"github.com/platinummonkey/membership/pkg/engine"
	"github.com/platinummonkey/membership/pkg/observability"
)

type harness struct {
	t      *testing.T
	app    *App
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	e, err := engine.New(context.Background(), config.Default(), engine.WithLogger(observability.NopLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	_, err = e.Bootstrap(context.Background())
	require.NoError(t, err)

	h := &harness{t: t, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
	h.app = NewApp(h.out, h.errOut)
	h.app.UseEngine(e)
	return h
}

// run executes one orgctl invocation and decodes its JSON output into v
func (h *harness) run(v interface{}, args ...string) {
	h.t.Helper()
	h.out.Reset()
	require.NoError(h.t, NewRootCommand(h.app).Execute(args), "orgctl %v: %s", args, h.errOut.String())
	if v != nil {
		require.NoError(h.t, json.Unmarshal(h.out.Bytes(), v), h.out.String())
	}
}

func (h *harness) fail(args ...string) error {
	h.t.Helper()
	h.out.Reset()
	err := NewRootCommand(h.app).Execute(args)
	require.Error(h.t, err)
	return err
}

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand(NewApp(&bytes.Buffer{}, &bytes.Buffer{}))

	assert.Equal(t, "orgctl", root.Name)
	for _, name := range []string{"seed-roles", "user", "org", "member", "perm", "role", "invite"} {
		assert.Contains(t, root.Subcommands, name)
	}
	assert.Len(t, root.Subcommands, 7)
	assert.Contains(t, root.Subcommands["org"].Subcommands, "usage")
	assert.Contains(t, root.Subcommands["invite"].Subcommands, "sweep")
}

func TestCommandUsage(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCommand(NewApp(&out, &bytes.Buffer{}))

	require.NoError(t, root.Execute(nil))
	assert.Contains(t, out.String(), "Usage: orgctl <command> [args]")
	assert.Contains(t, out.String(), "Manage organizations")

	out.Reset()
	require.NoError(t, root.Execute([]string{"perm", "--help"}))
	assert.Contains(t, out.String(), "effective")
}

func TestOrganizationCommands(t *testing.T) {
	h := newHarness(t)
	h.run(nil, "user", "add", "-id", "alice", "-email", "alice@example.com")
	h.run(nil, "user", "add", "-id", "bob", "-email", "bob@example.com")

	var org struct {
		ID      string `json:"id"`
		OwnerID string `json:"owner_id"`
		Type    string `json:"type"`
	}
	h.run(&org, "-actor", "alice", "org", "create", "-name", "Acme", "-owner", "alice", "-type", "enterprise")
	require.NotEmpty(t, org.ID)
	assert.Equal(t, "alice", org.OwnerID)

	var member struct {
		ID    string   `json:"id"`
		Type  string   `json:"type"`
		Roles []string `json:"roles"`
	}
	h.run(&member, "member", "add", "-user", "bob", "-org", org.ID)
	assert.Equal(t, "member", member.Type)
	require.Len(t, member.Roles, 1)

	var usage struct {
		ActiveMembers int `json:"active_members"`
	}
	h.run(&usage, "org", "usage", "-id", org.ID)
	assert.Equal(t, 2, usage.ActiveMembers)

	var members []map[string]interface{}
	h.run(&members, "member", "list", "-org", org.ID)
	assert.Len(t, members, 2)

	h.run(nil, "perm", "grant", "-user", "bob", "-org", org.ID, "-permission", "order:*")
	var check struct {
		Allowed bool `json:"allowed"`
	}
	h.run(&check, "perm", "check", "-user", "bob", "-org", org.ID, "-permission", "order:approve")
	assert.True(t, check.Allowed)

	h.run(&check, "perm", "check", "-user", "bob", "-org", org.ID, "-permission", "report:read")
	assert.True(t, check.Allowed)
	h.run(nil, "perm", "restrict", "-user", "bob", "-org", org.ID, "-permission", "report:read")
	h.run(&check, "perm", "check", "-user", "bob", "-org", org.ID, "-permission", "report:read")
	assert.False(t, check.Allowed)

	var effective []string
	h.run(&effective, "perm", "effective", "-user", "bob", "-org", org.ID)
	assert.Contains(t, effective, "order:approve")
	assert.NotContains(t, effective, "report:read")

	h.run(&org, "org", "change-owner", "-id", org.ID, "-owner", "bob")
	assert.Equal(t, "bob", org.OwnerID)

	var updated struct {
		Name     string `json:"name"`
		Settings struct {
			MaxUsers int `json:"max_users"`
		} `json:"settings"`
	}
	h.run(&updated, "org", "update", "-id", org.ID, "-name", "Acme Corp", "-max-users", "3")
	assert.Equal(t, "Acme Corp", updated.Name)
	assert.Equal(t, 3, updated.Settings.MaxUsers)

	var removed map[string]bool
	h.run(&removed, "member", "remove", "-user", "alice", "-org", org.ID)
	assert.True(t, removed["removed"])
}

func TestRoleAndInvitationCommands(t *testing.T) {
	h := newHarness(t)
	h.run(nil, "user", "add", "-id", "alice", "-email", "alice@example.com")
	h.run(nil, "user", "add", "-id", "carol", "-email", "carol@example.com")

	var org struct {
		ID string `json:"id"`
	}
	h.run(&org, "org", "create", "-name", "Shop", "-owner", "alice", "-type", "professional")

	var role struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	h.run(&role, "role", "create", "-org", org.ID, "-name", "Buyer", "-permissions", "order:create, order:read")
	require.NotEmpty(t, role.ID)

	var roles []map[string]interface{}
	h.run(&roles, "role", "list", "-org", org.ID)
	assert.Len(t, roles, 5)

	var inv struct {
		ID    string   `json:"id"`
		Token string   `json:"token"`
		Roles []string `json:"roles"`
	}
	h.run(&inv, "invite", "create", "-email", "carol@example.com", "-org", org.ID, "-roles", role.ID, "-expires-in", "2h")
	assert.Len(t, inv.Token, 64)
	assert.Equal(t, []string{role.ID}, inv.Roles)

	var pending []map[string]interface{}
	h.run(&pending, "invite", "pending", "-org", org.ID)
	assert.Len(t, pending, 1)

	var accepted map[string]bool
	h.run(&accepted, "invite", "accept", "-token", inv.Token, "-user", "carol", "-email", "carol@example.com")
	assert.True(t, accepted["accepted"])

	var check struct {
		Allowed bool `json:"allowed"`
	}
	h.run(&check, "perm", "check", "-user", "carol", "-org", org.ID, "-permission", "order:create")
	assert.True(t, check.Allowed)

	var changed map[string]bool
	h.run(&changed, "role", "unassign", "-role", role.ID, "-user", "carol", "-org", org.ID)
	assert.True(t, changed["changed"])
	h.run(nil, "role", "delete", "-id", role.ID)

	var swept map[string]int
	h.run(&swept, "invite", "sweep")
	assert.Equal(t, 0, swept["expired"])
}

func TestCommandErrors(t *testing.T) {
	h := newHarness(t)

	assert.ErrorContains(t, h.fail("frobnicate"), "unknown command")
	assert.ErrorContains(t, h.fail("org", "get"), "missing required flag -id")
	assert.ErrorContains(t, h.fail("member", "list"), "exactly one of")
	assert.ErrorContains(t, h.fail("invite", "pending"), "one of -email")
	assert.ErrorContains(t, h.fail("perm", "check", "-user", "u", "-org", "o", "-permission", "nonsense"), "resource:action")
	h.fail("org", "get", "-id", "missing")
}
