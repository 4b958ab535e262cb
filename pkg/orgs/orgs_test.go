package orgs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/cache"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/rbac"
	"github.com/platinummonkey/membership/pkg/store"
	"github.com/platinummonkey/membership/pkg/store/memory"
	"github.com/platinummonkey/membership/pkg/users"
)

var (
	actor      = models.Actor{ID: "u1", Email: "u1@example.com"}
	ownerRole  = rbac.SystemRoleID(models.RoleNameOwner)
	memberRole = rbac.SystemRoleID(models.RoleNameMember)
)

type fixture struct {
	st    *memory.Store
	dir   *users.MemoryDirectory
	sink  *audit.MemorySink
	cache *cache.LRUPermissionCache
	clock *clockwork.FakeClock
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		st:    memory.New(),
		dir:   users.NewMemoryDirectory(),
		sink:  audit.NewMemorySink(),
		cache: cache.NewLRUPermissionCache(64, time.Minute, nil),
		clock: clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	for i := 1; i <= 8; i++ {
		id := fmt.Sprintf("u%d", i)
		f.dir.AddUser(&models.User{ID: id, Email: id + "@example.com"})
	}
	_, err := rbac.NewService(f.st).InitializeSystemRoles(context.Background())
	require.NoError(t, err)

	f.svc = NewService(f.st, f.dir,
		WithAuditRecorder(audit.NewRecorder(f.sink, audit.WithClock(f.clock))),
		WithPermissionCache(f.cache),
		WithClock(f.clock),
	)
	return f
}

func (f *fixture) createOrg(t *testing.T, name, owner string, typ models.OrganizationType, parent string) *models.Organization {
	t.Helper()
	f.clock.Advance(time.Minute)
	org, err := f.svc.CreateOrganization(context.Background(), CreateOrganizationInput{
		Name:     name,
		OwnerID:  owner,
		Type:     typ,
		ParentID: parent,
	}, actor)
	require.NoError(t, err)
	return org
}

func (f *fixture) addMember(t *testing.T, userID, orgID string, roles ...string) *models.Membership {
	t.Helper()
	f.clock.Advance(time.Minute)
	m, err := f.svc.AddUserToOrganization(context.Background(), AddMemberInput{
		UserID:         userID,
		OrganizationID: orgID,
		Roles:          roles,
	}, actor)
	require.NoError(t, err)
	return m
}

// assertOwnerInvariant checks that the organization has exactly one active
// owner membership and that it belongs to the organization's owner
func (f *fixture) assertOwnerInvariant(t *testing.T, orgID string) {
	t.Helper()
	ctx := context.Background()
	org, err := f.st.Organizations().GetOrganization(ctx, orgID)
	require.NoError(t, err)
	ms, err := f.st.Memberships().ListMemberships(ctx, store.MembershipFilter{OrganizationID: orgID, Status: models.MembershipStatusActive})
	require.NoError(t, err)
	var owners []string
	for _, m := range ms {
		if m.IsOwner() {
			owners = append(owners, m.UserID)
		}
	}
	assert.Equal(t, []string{org.OwnerID}, owners)
}

// assertSingleDefault checks that the user has at most one default membership
// and that the directory pointer agrees with it
func (f *fixture) assertSingleDefault(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	ms, err := f.st.Memberships().ListMemberships(ctx, store.MembershipFilter{UserID: userID, Status: models.MembershipStatusActive})
	require.NoError(t, err)
	var defaults []string
	for _, m := range ms {
		if m.IsDefault {
			defaults = append(defaults, m.OrganizationID)
		}
	}
	assert.LessOrEqual(t, len(defaults), 1, "user %s has defaults %v", userID, defaults)

	u, err := f.dir.GetUserByID(ctx, userID)
	require.NoError(t, err)
	if len(defaults) == 1 {
		assert.Equal(t, defaults[0], u.DefaultOrganizationID)
	} else {
		assert.Empty(t, u.DefaultOrganizationID)
	}
}

func TestCreateOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org := f.createOrg(t, "Org-A", "u1", models.OrganizationTypeEnterprise, "")
	assert.Equal(t, org.ID, org.RootID)
	assert.Equal(t, []string{org.ID}, org.Path)
	assert.Equal(t, models.SettingsForType(models.OrganizationTypeEnterprise), org.Settings)
	assert.Equal(t, models.OrganizationStatusActive, org.Status)

	m, err := f.svc.GetMembership(ctx, "u1", org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipTypeOwner, m.Type)
	assert.True(t, m.IsDefault)
	assert.Equal(t, []string{ownerRole}, m.Roles)
	f.assertOwnerInvariant(t, org.ID)

	u, err := f.dir.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, org.ID, u.DefaultOrganizationID)
	assert.Equal(t, []string{org.ID}, u.Organizations)

	entries := f.sink.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "organization.created", entries[0].Action)
	assert.Equal(t, org.ID, entries[0].OrganizationID)
}

func TestCreateOrganizationValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateOrganization(ctx, CreateOrganizationInput{Name: "x", OwnerID: "u1", Type: "galactic"}, actor)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.svc.CreateOrganization(ctx, CreateOrganizationInput{Name: "x", OwnerID: "ghost", Type: models.OrganizationTypeBasic}, actor)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.CreateOrganization(ctx, CreateOrganizationInput{Name: "x", OwnerID: "u1", Type: models.OrganizationTypeBasic, ParentID: "missing"}, actor)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateOrganizationMovesDefault(t *testing.T) {
	f := newFixture(t)
	a := f.createOrg(t, "A", "u1", models.OrganizationTypeBasic, "")
	b := f.createOrg(t, "B", "u1", models.OrganizationTypeBasic, "")

	ma, err := f.svc.GetMembership(context.Background(), "u1", a.ID)
	require.NoError(t, err)
	mb, err := f.svc.GetMembership(context.Background(), "u1", b.ID)
	require.NoError(t, err)
	assert.False(t, ma.IsDefault)
	assert.True(t, mb.IsDefault)
	f.assertSingleDefault(t, "u1")
}

func TestSuborganizations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	basic := f.createOrg(t, "Basic", "u1", models.OrganizationTypeBasic, "")
	_, err := f.svc.CreateOrganization(ctx, CreateOrganizationInput{Name: "Child", OwnerID: "u1", Type: models.OrganizationTypeBasic, ParentID: basic.ID}, actor)
	assert.ErrorIs(t, err, models.ErrForbidden)

	root := f.createOrg(t, "Root", "u1", models.OrganizationTypeEnterprise, "")
	mid := f.createOrg(t, "Mid", "u2", models.OrganizationTypeEnterprise, root.ID)
	leaf := f.createOrg(t, "Leaf", "u3", models.OrganizationTypeProfessional, mid.ID)

	assert.Equal(t, root.ID, mid.ParentID)
	assert.Equal(t, root.ID, mid.RootID)
	assert.Equal(t, []string{root.ID, mid.ID}, mid.Path)
	assert.Equal(t, root.ID, leaf.RootID)
	assert.Equal(t, []string{root.ID, mid.ID, leaf.ID}, leaf.Path)

	children, err := f.svc.ListChildOrganizations(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, mid.ID, children[0].ID)

	_, err = f.svc.ListChildOrganizations(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSuborganizationLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root := f.createOrg(t, "Root", "u1", models.OrganizationTypeAgency, "")
	settings := root.Settings
	settings.MaxSuborganizations = 1
	_, err := f.svc.UpdateOrganization(ctx, root.ID, OrganizationPatch{Settings: &settings}, actor)
	require.NoError(t, err)

	f.createOrg(t, "Client-1", "u2", models.OrganizationTypeProfessional, root.ID)
	_, err = f.svc.CreateOrganization(ctx, CreateOrganizationInput{Name: "Client-2", OwnerID: "u3", Type: models.OrganizationTypeProfessional, ParentID: root.ID}, actor)
	require.Error(t, err)
	assert.True(t, models.IsLimitExceeded(err))
	assert.ErrorIs(t, err, models.ErrForbidden)

	usage, err := f.svc.GetUsage(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Suborganizations)
	assert.Equal(t, 1, usage.MaxSuborganizations)
	assert.Equal(t, 1, usage.ActiveMembers)
}

func TestOwnershipScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orgA := f.createOrg(t, "Org-A", "u1", models.OrganizationTypeEnterprise, "")
	m2 := f.addMember(t, "u2", orgA.ID)
	assert.Equal(t, []string{memberRole}, m2.Roles)
	assert.True(t, m2.IsDefault)
	assert.Equal(t, models.MembershipTypeMember, m2.Type)

	org, err := f.svc.ChangeOwner(ctx, orgA.ID, "u2", actor)
	require.NoError(t, err)
	assert.Equal(t, "u2", org.OwnerID)

	m1, err := f.svc.GetMembership(ctx, "u1", orgA.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipTypeMember, m1.Type)
	assert.Equal(t, []string{memberRole}, m1.Roles)

	m2, err = f.svc.GetMembership(ctx, "u2", orgA.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipTypeOwner, m2.Type)
	assert.Contains(t, m2.Roles, ownerRole)
	f.assertOwnerInvariant(t, orgA.ID)

	entries := f.sink.Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, "organization.owner_changed", last.Action)
	assert.Equal(t, audit.SeverityAlert, last.Severity)

	again, err := f.svc.ChangeOwner(ctx, orgA.ID, "u2", actor)
	require.NoError(t, err)
	assert.Equal(t, org.Version, again.Version)
	assert.Len(t, f.sink.Entries(), len(entries))
}

func TestChangeOwnerRequiresActiveMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t, "Org", "u1", models.OrganizationTypeBasic, "")

	_, err := f.svc.ChangeOwner(ctx, org.ID, "u5", actor)
	assert.ErrorIs(t, err, models.ErrNotFound)

	f.addMember(t, "u2", org.ID)
	_, err = f.svc.RemoveUserFromOrganization(ctx, "u2", org.ID, actor)
	require.NoError(t, err)
	_, err = f.svc.ChangeOwner(ctx, org.ID, "u2", actor)
	assert.ErrorIs(t, err, models.ErrInvalidState)
	f.assertOwnerInvariant(t, org.ID)
}

func TestChangeMembershipType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t, "Org", "u1", models.OrganizationTypeBasic, "")
	f.addMember(t, "u2", org.ID)

	_, err := f.svc.ChangeMembershipType(ctx, "u1", org.ID, models.MembershipTypeMember, actor)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.svc.ChangeMembershipType(ctx, "u2", org.ID, "boss", actor)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	m, err := f.svc.ChangeMembershipType(ctx, "u2", org.ID, models.MembershipTypeOwner, actor)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipTypeOwner, m.Type)
	f.assertOwnerInvariant(t, org.ID)
}

func TestAddUserToOrganizationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t, "Org", "u1", models.OrganizationTypeEnterprise, "")

	first := f.addMember(t, "u2", org.ID)
	entries := len(f.sink.Entries())
	second := f.addMember(t, "u2", org.ID)
	assert.Equal(t, first, second)
	assert.Len(t, f.sink.Entries(), entries)

	ms, err := f.svc.ListOrganizationMembers(ctx, org.ID)
	require.NoError(t, err)
	assert.Len(t, ms, 2)
}

func TestAddUserToOrganizationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t, "Org", "u1", models.OrganizationTypeEnterprise, "")
	other := f.createOrg(t, "Other", "u2", models.OrganizationTypeEnterprise, "")

	foreign, err := rbac.NewService(f.st).CreateRole(ctx, rbac.CreateRoleInput{Name: "Foreign", OrganizationID: other.ID}, actor)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   AddMemberInput
		want error
	}{
		{"owner type", AddMemberInput{UserID: "u3", OrganizationID: org.ID, Type: models.MembershipTypeOwner}, models.ErrForbidden},
		{"unknown type", AddMemberInput{UserID: "u3", OrganizationID: org.ID, Type: "guest"}, models.ErrInvalidArgument},
		{"unknown user", AddMemberInput{UserID: "ghost", OrganizationID: org.ID}, models.ErrNotFound},
		{"unknown org", AddMemberInput{UserID: "u3", OrganizationID: "missing"}, models.ErrNotFound},
		{"unknown role", AddMemberInput{UserID: "u3", OrganizationID: org.ID, Roles: []string{"missing"}}, models.ErrNotFound},
		{"foreign role", AddMemberInput{UserID: "u3", OrganizationID: org.ID, Roles: []string{foreign.ID}}, models.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddUserToOrganization(ctx, tt.in, actor)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMemberLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t, "Small", "u1", models.OrganizationTypeBasic, "")
	for i := 2; i <= 5; i++ {
		f.addMember(t, fmt.Sprintf("u%d", i), org.ID)
	}

	_, err := f.svc.AddUserToOrganization(ctx, AddMemberInput{UserID: "u6", OrganizationID: org.ID}, actor)
	require.Error(t, err)
	var limit *models.LimitExceededError
	require.True(t, errors.As(err, &limit))
	assert.Equal(t, "users", limit.Resource)
	assert.Equal(t, int64(5), limit.Limit)

	_, err = f.svc.RemoveUserFromOrganization(ctx, "u5", org.ID, actor)
	require.NoError(t, err)
	f.addMember(t, "u6", org.ID)
}

func TestRemoveAndReactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createOrg(t, "A", "u1", models.OrganizationTypeEnterprise, "")
	b := f.createOrg(t, "B", "u1", models.OrganizationTypeEnterprise, "")

	ma := f.addMember(t, "u2", a.ID)
	f.addMember(t, "u2", b.ID)
	_, err := f.svc.AddCustomPermission(ctx, "u2", a.ID, "billing:read", actor)
	require.NoError(t, err)

	removed, err := f.svc.RemoveUserFromOrganization(ctx, "u1", a.ID, actor)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.False(t, removed)

	removed, err = f.svc.RemoveUserFromOrganization(ctx, "u2", a.ID, actor)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.svc.RemoveUserFromOrganization(ctx, "u2", a.ID, actor)
	require.NoError(t, err)
	assert.False(t, removed)

	mb, err := f.svc.GetMembership(ctx, "u2", b.ID)
	require.NoError(t, err)
	assert.True(t, mb.IsDefault)
	f.assertSingleDefault(t, "u2")

	u, err := f.dir.GetUserByID(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, u.Organizations)

	back := f.addMember(t, "u2", a.ID)
	assert.Equal(t, ma.ID, back.ID)
	assert.True(t, back.IsActive())
	assert.False(t, back.IsDefault)
	assert.Empty(t, back.Permissions.CustomPermissions)

	_, err = f.svc.RemoveUserFromOrganization(ctx, "u7", a.ID, actor)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRemovingLastMembershipClearsDefault(t *testing.T) {
	f := newFixture(t)
	org := f.createOrg(t, "A", "u1", models.OrganizationTypeBasic, "")
	f.addMember(t, "u2", org.ID)

	_, err := f.svc.RemoveUserFromOrganization(context.Background(), "u2", org.ID, actor)
	require.NoError(t, err)
	f.assertSingleDefault(t, "u2")

	u, err := f.dir.GetUserByID(context.Background(), "u2")
	require.NoError(t, err)
	assert.Empty(t, u.DefaultOrganizationID)
	assert.Empty(t, u.Organizations)
}

func TestUpdateMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t, "A", "u1", models.OrganizationTypeBasic, "")
	m := f.addMember(t, "u2", org.ID)
	owner, err := f.svc.GetMembership(ctx, "u1", org.ID)
	require.NoError(t, err)

	other := "elsewhere"
	_, err = f.svc.UpdateMembership(ctx, m.ID, MembershipPatch{OrganizationID: &other}, actor)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	no := false
	_, err = f.svc.UpdateMembership(ctx, m.ID, MembershipPatch{IsDefault: &no}, actor)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	ownerType := models.MembershipTypeOwner
	_, err = f.svc.UpdateMembership(ctx, m.ID, MembershipPatch{Type: &ownerType}, actor)
	assert.ErrorIs(t, err, models.ErrForbidden)

	removed := models.MembershipStatusRemoved
	_, err = f.svc.UpdateMembership(ctx, owner.ID, MembershipPatch{Status: &removed}, actor)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.svc.UpdateMembership(ctx, "missing", MembershipPatch{Status: &removed}, actor)
	assert.ErrorIs(t, err, models.ErrNotFound)

	updated, err := f.svc.UpdateMembership(ctx, m.ID, MembershipPatch{Status: &removed}, actor)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusRemoved, updated.Status)

	_, err = f.svc.UpdateMembership(ctx, m.ID, MembershipPatch{Status: &removed}, actor)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	entries := f.sink.Entries()
	assert.Equal(t, "membership.removed", entries[len(entries)-1].Action)
}

func TestSetDefaultOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createOrg(t, "A", "u1", models.OrganizationTypeBasic, "")
	b := f.createOrg(t, "B", "u1", models.OrganizationTypeBasic, "")
	f.addMember(t, "u2", a.ID)
	f.addMember(t, "u2", b.ID)

	m, err := f.svc.SetDefaultOrganization(ctx, "u2", b.ID, actor)
	require.NoError(t, err)
	assert.True(t, m.IsDefault)
	f.assertSingleDefault(t, "u2")

	entries := len(f.sink.Entries())
	again, err := f.svc.SetDefaultOrganization(ctx, "u2", b.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, m.Version, again.Version)
	assert.Len(t, f.sink.Entries(), entries)

	_, err = f.svc.SetDefaultOrganization(ctx, "u3", b.ID, actor)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestConcurrentDefaultChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var orgs []*models.Organization
	for i := 0; i < 6; i++ {
		orgs = append(orgs, f.createOrg(t, fmt.Sprintf("Org-%d", i), "u1", models.OrganizationTypeEnterprise, ""))
	}
	f.addMember(t, "u2", orgs[0].ID)

	var wg sync.WaitGroup
	for _, org := range orgs[1:] {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.AddUserToOrganization(ctx, AddMemberInput{UserID: "u2", OrganizationID: id}, actor)
			assert.NoError(t, err)
		}(org.ID)
		go func(id string) {
			defer wg.Done()
			// the membership may not exist yet
			_, _ = f.svc.SetDefaultOrganization(ctx, "u2", id, actor)
		}(org.ID)
	}
	wg.Wait()

	ms, err := f.svc.ListUserMemberships(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, ms, len(orgs))
	f.assertSingleDefault(t, "u2")
}

func TestPermissionOverrides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t, "A", "u1", models.OrganizationTypeBasic, "")
	f.addMember(t, "u2", org.ID)

	m, err := f.svc.AddCustomPermission(ctx, "u2", org.ID, "billing:read", actor)
	require.NoError(t, err)
	version := m.Version
	m, err = f.svc.AddCustomPermission(ctx, "u2", org.ID, "billing:read", actor)
	require.NoError(t, err)
	assert.Equal(t, []string{"billing:read"}, m.Permissions.CustomPermissions)
	assert.Equal(t, version, m.Version)

	m, err = f.svc.AddRestrictedPermission(ctx, "u2", org.ID, "order:*", actor)
	require.NoError(t, err)
	assert.Equal(t, []string{"order:*"}, m.Permissions.RestrictedPermissions)

	m, err = f.svc.RemoveRestrictedPermission(ctx, "u2", org.ID, "order:*", actor)
	require.NoError(t, err)
	assert.Empty(t, m.Permissions.RestrictedPermissions)

	m, err = f.svc.RemoveCustomPermission(ctx, "u2", org.ID, "billing:read", actor)
	require.NoError(t, err)
	assert.Empty(t, m.Permissions.CustomPermissions)

	_, err = f.svc.AddCustomPermission(ctx, "u2", org.ID, "billing", actor)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.svc.AddCustomPermission(ctx, "u2", org.ID, "spaceship:fly", actor)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.svc.AddCustomPermission(ctx, "u7", org.ID, "billing:read", actor)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.RemoveUserFromOrganization(ctx, "u2", org.ID, actor)
	require.NoError(t, err)
	_, err = f.svc.AddCustomPermission(ctx, "u2", org.ID, "billing:read", actor)
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestPermissionOverridesInvalidateCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t, "A", "u1", models.OrganizationTypeBasic, "")
	f.addMember(t, "u2", org.ID)

	resolver := rbac.NewService(f.st, rbac.WithPermissionCache(f.cache))
	before, err := resolver.GetUserEffectivePermissions(ctx, "u2", org.ID)
	require.NoError(t, err)
	assert.NotContains(t, before, "billing:read")

	_, err = f.svc.AddCustomPermission(ctx, "u2", org.ID, "billing:read", actor)
	require.NoError(t, err)
	after, err := resolver.GetUserEffectivePermissions(ctx, "u2", org.ID)
	require.NoError(t, err)
	assert.Contains(t, after, "billing:read")

	_, err = f.svc.AddRestrictedPermission(ctx, "u2", org.ID, "billing:read", actor)
	require.NoError(t, err)
	ok, err := resolver.HasPermission(ctx, "u2", org.ID, models.ResourceBilling, models.ActionRead, "")
	require.NoError(t, err)
	assert.True(t, ok, "custom grants are checked before restrictions")
	restricted, err := resolver.GetUserEffectivePermissions(ctx, "u2", org.ID)
	require.NoError(t, err)
	assert.NotContains(t, restricted, "billing:read")
}

func TestUpdateOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	org := f.createOrg(t, "A", "u1", models.OrganizationTypeEnterprise, "")

	owner := "u2"
	_, err := f.svc.UpdateOrganization(ctx, org.ID, OrganizationPatch{OwnerID: &owner}, actor)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.svc.UpdateOrganization(ctx, org.ID, OrganizationPatch{Path: []string{"x"}}, actor)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	name := "A renamed"
	suspended := models.OrganizationStatusSuspended
	updated, err := f.svc.UpdateOrganization(ctx, org.ID, OrganizationPatch{Name: &name, Status: &suspended}, actor)
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)
	assert.Equal(t, suspended, updated.Status)
	assert.Equal(t, org.Path, updated.Path)

	entries := f.sink.Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, "organization.updated", last.Action)
	assert.Equal(t, "A", last.Changes.Before.(*models.Organization).Name)

	f.createOrg(t, "Child", "u2", models.OrganizationTypeBasic, org.ID)
	professional := models.OrganizationTypeProfessional
	_, err = f.svc.UpdateOrganization(ctx, org.ID, OrganizationPatch{Type: &professional}, actor)
	assert.ErrorIs(t, err, models.ErrConflict)

	basic := f.createOrg(t, "Basic", "u3", models.OrganizationTypeBasic, "")
	settings := basic.Settings
	settings.AllowSuborganizations = true
	_, err = f.svc.UpdateOrganization(ctx, basic.ID, OrganizationPatch{Settings: &settings}, actor)
	assert.ErrorIs(t, err, models.ErrForbidden)

	enterprise := models.OrganizationTypeEnterprise
	upgraded, err := f.svc.UpdateOrganization(ctx, basic.ID, OrganizationPatch{Type: &enterprise}, actor)
	require.NoError(t, err)
	assert.Equal(t, models.SettingsForType(enterprise), upgraded.Settings)
}

func TestDeleteOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := f.createOrg(t, "Parent", "u1", models.OrganizationTypeEnterprise, "")
	child := f.createOrg(t, "Child", "u2", models.OrganizationTypeBasic, parent.ID)
	f.addMember(t, "u3", child.ID)
	f.addMember(t, "u3", parent.ID)

	err := f.svc.DeleteOrganization(ctx, parent.ID, actor)
	assert.ErrorIs(t, err, models.ErrConflict)

	require.NoError(t, f.svc.DeleteOrganization(ctx, child.ID, actor))
	_, err = f.svc.GetOrganization(ctx, child.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.GetMembership(ctx, "u3", child.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	m, err := f.svc.GetMembership(ctx, "u3", parent.ID)
	require.NoError(t, err)
	assert.True(t, m.IsDefault)
	f.assertSingleDefault(t, "u3")
	f.assertSingleDefault(t, "u2")

	actions := map[string]bool{}
	for _, e := range f.sink.Entries() {
		actions[e.Action] = true
	}
	assert.True(t, actions["organization.deleted"])

	assert.ErrorIs(t, f.svc.DeleteOrganization(ctx, "missing", actor), models.ErrNotFound)
}

func TestAuditFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.sink.FailWith(errors.New("disk full"))

	org, err := f.svc.CreateOrganization(context.Background(), CreateOrganizationInput{Name: "A", OwnerID: "u1", Type: models.OrganizationTypeBasic}, actor)
	require.Error(t, err)
	assert.True(t, models.IsWarning(err))
	assert.NoError(t, models.Fatal(err))
	require.NotNil(t, org)

	stored, getErr := f.svc.GetOrganization(context.Background(), org.ID)
	require.NoError(t, getErr)
	assert.Equal(t, "A", stored.Name)
}

type failingDirectory struct {
	users.Directory
}

func (failingDirectory) UpdateOrganizationPointer(context.Context, string, models.PointerUpdate) error {
	return errors.New("directory unavailable")
}

func TestDirectoryFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.svc.directory = failingDirectory{f.dir}

	org, err := f.svc.CreateOrganization(context.Background(), CreateOrganizationInput{Name: "A", OwnerID: "u1", Type: models.OrganizationTypeBasic}, actor)
	require.Error(t, err)
	assert.True(t, models.IsWarning(err))
	assert.Contains(t, err.Error(), "directory unavailable")

	m, getErr := f.svc.GetMembership(context.Background(), "u1", org.ID)
	require.NoError(t, getErr)
	assert.True(t, m.IsDefault)
}
