package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/cache"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
	"github.com/platinummonkey/membership/pkg/store/memory"
	"github.com/platinummonkey/membership/pkg/store/storetest"
)

var admin = models.Actor{ID: "admin", Email: "admin@example.com"}

type fixture struct {
	st    store.Store
	svc   *Service
	sink  *audit.MemorySink
	cache *cache.LRUPermissionCache
	org   *models.Organization
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.New(), opts...)
}

func newFixtureOn(t *testing.T, st store.Store, opts ...Option) *fixture {
	t.Helper()
	sink := audit.NewMemorySink()
	lru := cache.NewLRUPermissionCache(64, time.Minute, nil)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	all := append([]Option{
		WithAuditRecorder(audit.NewRecorder(sink, audit.WithClock(clock))),
		WithPermissionCache(lru),
		WithClock(clock),
	}, opts...)
	svc := NewService(st, all...)

	_, err := svc.InitializeSystemRoles(context.Background())
	require.NoError(t, err)

	org := storetest.NewOrganization("Org-A", "owner")
	require.NoError(t, st.Organizations().CreateOrganization(context.Background(), org))
	return &fixture{st: st, svc: svc, sink: sink, cache: lru, org: org}
}

func (f *fixture) addMember(t *testing.T, userID string, roles ...string) *models.Membership {
	t.Helper()
	m := storetest.NewMembership(userID, f.org.ID, roles...)
	require.NoError(t, f.st.Memberships().CreateMembership(context.Background(), m))
	return m
}

func (f *fixture) membership(t *testing.T, userID string) *models.Membership {
	t.Helper()
	m, err := f.st.Memberships().FindMembership(context.Background(), userID, f.org.ID)
	require.NoError(t, err)
	return m
}

// seedCache stores permissions for the pair at its current generation
func (f *fixture) seedCache(t *testing.T, userID string, permissions []string) {
	t.Helper()
	ctx := context.Background()
	gen, err := f.cache.Generation(ctx, userID, f.org.ID)
	require.NoError(t, err)
	stored, err := f.cache.Set(ctx, userID, f.org.ID, gen, permissions)
	require.NoError(t, err)
	require.True(t, stored)
}

func memberRoleID() string { return SystemRoleID(models.RoleNameMember) }

func TestInitializeSystemRolesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.InitializeSystemRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	roles, err := f.svc.ListRoles(ctx, f.org.ID)
	require.NoError(t, err)
	require.Len(t, roles, 4)
	for _, r := range roles {
		assert.True(t, r.IsBuiltIn)
		assert.Equal(t, SystemRoleID(r.Name), r.ID)
	}

	seeded := 0
	for _, e := range f.sink.Entries() {
		if e.Action == "roles.seeded" {
			seeded++
		}
	}
	assert.Equal(t, 1, seeded)
}

func TestSystemRoleIDIsStable(t *testing.T) {
	assert.Equal(t, SystemRoleID("Admin"), SystemRoleID("Admin"))
	assert.NotEqual(t, SystemRoleID("Admin"), SystemRoleID("Member"))
	for _, r := range SystemRoles() {
		for _, p := range r.Permissions {
			assert.NoError(t, p.Validate(), "%s: %s", r.Name, p)
		}
	}
}

func TestCreateRoleRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := CreateRoleInput{
		Name:           "Warehouse",
		Description:    "Inventory staff",
		OrganizationID: f.org.ID,
		Permissions: []models.Permission{
			models.NewPermission(models.ResourceInventory, models.ActionAny),
			{Resource: models.ResourceOrder, Action: models.ActionApprove, Conditions: []models.Condition{{Type: "amount_below", Params: map[string]any{"limit": 100.0}}}},
		},
	}
	role, err := f.svc.CreateRole(ctx, in, admin)
	require.NoError(t, err)

	got, err := f.svc.GetRoleByID(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, in.Name, got.Name)
	assert.Equal(t, in.Description, got.Description)
	assert.Equal(t, in.OrganizationID, got.OrganizationID)
	assert.Equal(t, in.Permissions, got.Permissions)
	assert.Equal(t, models.RoleScopeOrganization, got.Scope)
	assert.False(t, got.IsBuiltIn)
	assert.Equal(t, admin.ID, got.CreatedBy)

	_, err = f.svc.CreateRole(ctx, in, admin)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestCreateRoleValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRole(ctx, CreateRoleInput{OrganizationID: f.org.ID}, admin)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.svc.CreateRole(ctx, CreateRoleInput{
		Name:           "Bad",
		OrganizationID: f.org.ID,
		Permissions:    []models.Permission{models.NewPermission("spaceship", models.ActionRead)},
	}, admin)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.svc.CreateRole(ctx, CreateRoleInput{Name: "Orphan", OrganizationID: "missing"}, admin)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateRoleAuditFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.sink.FailWith(errors.New("sink offline"))

	role, err := f.svc.CreateRole(context.Background(), CreateRoleInput{Name: "Ops", OrganizationID: f.org.ID}, admin)
	require.Error(t, err)
	assert.True(t, models.IsWarning(err))
	assert.ErrorIs(t, err, models.ErrWarning)
	require.NotNil(t, role)

	stored, getErr := f.svc.GetRoleByID(context.Background(), role.ID)
	require.NoError(t, getErr)
	assert.Equal(t, "Ops", stored.Name)
}

func TestUpdateRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateRole(ctx, SystemRoleID(models.RoleNameAdmin), RolePatch{Description: ptr("x")}, admin)
	assert.ErrorIs(t, err, models.ErrForbidden)

	a, err := f.svc.CreateRole(ctx, CreateRoleInput{Name: "A", OrganizationID: f.org.ID}, admin)
	require.NoError(t, err)
	_, err = f.svc.CreateRole(ctx, CreateRoleInput{Name: "B", OrganizationID: f.org.ID}, admin)
	require.NoError(t, err)

	_, err = f.svc.UpdateRole(ctx, a.ID, RolePatch{Name: ptr("B")}, admin)
	assert.ErrorIs(t, err, models.ErrConflict)

	f.seedCache(t, "someone", []string{"order:read"})
	updated, err := f.svc.UpdateRole(ctx, a.ID, RolePatch{
		Name:        ptr("A2"),
		Permissions: []models.Permission{models.NewPermission(models.ResourceReport, models.ActionExport)},
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, "A2", updated.Name)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, 0, f.cache.Len())

	entries := f.sink.Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, "role.updated", last.Action)
	require.NotNil(t, last.Changes)
	assert.Equal(t, "A", last.Changes.Before.(*models.Role).Name)
}

func ptr[T any](v T) *T { return &v }

func TestDeleteRoleWhileAssigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, err := f.svc.CreateRole(ctx, CreateRoleInput{Name: "Temp", OrganizationID: f.org.ID}, admin)
	require.NoError(t, err)
	f.addMember(t, "u2", role.ID)

	err = f.svc.DeleteRole(ctx, role.ID, admin)
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = f.svc.AssignRoleToUser(ctx, memberRoleID(), "u2", f.org.ID, admin)
	require.NoError(t, err)
	_, err = f.svc.RemoveRoleFromUser(ctx, role.ID, "u2", f.org.ID, admin)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteRole(ctx, role.ID, admin))
	_, err = f.svc.GetRoleByID(ctx, role.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, f.svc.DeleteRole(ctx, memberRoleID(), admin), models.ErrForbidden)
}

func TestAssignThenRemoveRestoresRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addMember(t, "u2", memberRoleID())

	adminRole := SystemRoleID(models.RoleNameAdmin)
	changed, err := f.svc.AssignRoleToUser(ctx, adminRole, "u2", f.org.ID, admin)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = f.svc.AssignRoleToUser(ctx, adminRole, "u2", f.org.ID, admin)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = f.svc.RemoveRoleFromUser(ctx, adminRole, "u2", f.org.ID, admin)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{memberRoleID()}, f.membership(t, "u2").Roles)
}

func TestRemovingLastRoleFallsBackToMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	managerRole := SystemRoleID(models.RoleNameManager)
	f.addMember(t, "u3", managerRole)

	changed, err := f.svc.RemoveRoleFromUser(ctx, managerRole, "u3", f.org.ID, admin)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{memberRoleID()}, f.membership(t, "u3").Roles)

	changed, err = f.svc.RemoveRoleFromUser(ctx, memberRoleID(), "u3", f.org.ID, admin)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, []string{memberRoleID()}, f.membership(t, "u3").Roles)
}

func TestRemoveOwnerRoleFromOwnerIsForbidden(t *testing.T) {
	f := newFixture(t)
	ownerRole := SystemRoleID(models.RoleNameOwner)
	m := storetest.NewMembership("owner", f.org.ID, ownerRole)
	m.Type = models.MembershipTypeOwner
	require.NoError(t, f.st.Memberships().CreateMembership(context.Background(), m))

	_, err := f.svc.RemoveRoleFromUser(context.Background(), ownerRole, "owner", f.org.ID, admin)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestRemoveOrganizationOwnerNamedRoleFromOwnerIsForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := storetest.NewMembership("owner", f.org.ID, SystemRoleID(models.RoleNameOwner))
	m.Type = models.MembershipTypeOwner
	require.NoError(t, f.st.Memberships().CreateMembership(ctx, m))

	local, err := f.svc.CreateRole(ctx, CreateRoleInput{Name: models.RoleNameOwner, OrganizationID: f.org.ID}, admin)
	require.NoError(t, err)
	changed, err := f.svc.AssignRoleToUser(ctx, local.ID, "owner", f.org.ID, admin)
	require.NoError(t, err)
	require.True(t, changed)

	_, err = f.svc.RemoveRoleFromUser(ctx, local.ID, "owner", f.org.ID, admin)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Contains(t, f.membership(t, "owner").Roles, local.ID)
}

func TestAssignRoleErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := storetest.NewOrganization("Other", "x")
	require.NoError(t, f.st.Organizations().CreateOrganization(ctx, other))
	foreign, err := f.svc.CreateRole(ctx, CreateRoleInput{Name: "Foreign", OrganizationID: other.ID}, admin)
	require.NoError(t, err)

	f.addMember(t, "u2", memberRoleID())
	_, err = f.svc.AssignRoleToUser(ctx, foreign.ID, "u2", f.org.ID, admin)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.svc.AssignRoleToUser(ctx, memberRoleID(), "nobody", f.org.ID, admin)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.AssignRoleToUser(ctx, "missing-role", "u2", f.org.ID, admin)
	assert.ErrorIs(t, err, models.ErrNotFound)

	removed := f.membership(t, "u2")
	removed.Status = models.MembershipStatusRemoved
	require.NoError(t, f.st.Memberships().UpdateMembership(ctx, removed))
	_, err = f.svc.AssignRoleToUser(ctx, memberRoleID(), "u2", f.org.ID, admin)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}
