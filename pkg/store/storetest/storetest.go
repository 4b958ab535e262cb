// Package storetest holds a conformance suite shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
)

// Factory returns a fresh, empty store for one subtest
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Run("organizations", func(t *testing.T) { testOrganizations(t, newStore(t)) })
	t.Run("memberships", func(t *testing.T) { testMemberships(t, newStore(t)) })
	t.Run("active membership uniqueness", func(t *testing.T) { testActiveMembershipUnique(t, newStore(t)) })
	t.Run("roles", func(t *testing.T) { testRoles(t, newStore(t)) })
	t.Run("invitations", func(t *testing.T) { testInvitations(t, newStore(t)) })
	t.Run("batch commit", func(t *testing.T) { testBatchCommit(t, newStore(t)) })
	t.Run("batch rollback", func(t *testing.T) { testBatchRollback(t, newStore(t)) })
	t.Run("version conflict", func(t *testing.T) { testVersionConflict(t, newStore(t)) })
}

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// NewOrganization builds a root organization fixture
func NewOrganization(name, ownerID string) *models.Organization {
	id := uuid.NewString()
	return &models.Organization{
		ID:        id,
		Name:      name,
		Type:      models.OrganizationTypeEnterprise,
		Status:    models.OrganizationStatusActive,
		OwnerID:   ownerID,
		RootID:    id,
		Path:      []string{id},
		Settings:  models.SettingsForType(models.OrganizationTypeEnterprise),
		CreatedAt: base,
		UpdatedAt: base,
	}
}

// NewMembership builds an active membership fixture
func NewMembership(userID, orgID string, roles ...string) *models.Membership {
	return &models.Membership{
		ID:             uuid.NewString(),
		UserID:         userID,
		OrganizationID: orgID,
		Status:         models.MembershipStatusActive,
		Type:           models.MembershipTypeMember,
		Roles:          roles,
		JoinedAt:       base,
		CreatedAt:      base,
		UpdatedAt:      base,
	}
}

func testOrganizations(t *testing.T, st store.Store) {
	ctx := context.Background()
	repo := st.Organizations()

	root := NewOrganization("root", "u1")
	require.NoError(t, repo.CreateOrganization(ctx, root))
	assert.Equal(t, int64(1), root.Version)

	child := NewOrganization("child", "u2")
	child.ParentID = root.ID
	child.RootID = root.ID
	child.Path = root.ChildPath(child.ID)
	child.CreatedAt = base.Add(time.Minute)
	require.NoError(t, repo.CreateOrganization(ctx, child))

	got, err := repo.GetOrganization(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, child.Name, got.Name)
	assert.Equal(t, []string{root.ID, child.ID}, got.Path)
	assert.Equal(t, root.ID, got.RootID)
	assert.True(t, got.CreatedAt.Equal(child.CreatedAt))

	children, err := repo.ListChildOrganizations(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	got.Name = "renamed"
	require.NoError(t, repo.UpdateOrganization(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	again, err := repo.GetOrganization(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", again.Name)

	err = repo.CreateOrganization(ctx, root)
	assert.True(t, errors.Is(err, store.ErrAlreadyExists))

	require.NoError(t, repo.DeleteOrganization(ctx, child.ID))
	_, err = repo.GetOrganization(ctx, child.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.True(t, errors.Is(repo.DeleteOrganization(ctx, child.ID), store.ErrNotFound))
}

func testMemberships(t *testing.T, st store.Store) {
	ctx := context.Background()
	repo := st.Memberships()

	m1 := NewMembership("u1", "o1", "r1")
	m1.IsDefault = true
	m1.Permissions.CustomPermissions = []string{"order:read"}
	require.NoError(t, repo.CreateMembership(ctx, m1))

	m2 := NewMembership("u1", "o2", "r2")
	m2.JoinedAt = base.Add(time.Hour)
	require.NoError(t, repo.CreateMembership(ctx, m2))

	m3 := NewMembership("u2", "o1", "r1", "r2")
	m3.JoinedAt = base.Add(2 * time.Hour)
	require.NoError(t, repo.CreateMembership(ctx, m3))

	got, err := repo.GetMembership(ctx, m1.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)
	assert.Equal(t, []string{"order:read"}, got.Permissions.CustomPermissions)

	found, err := repo.FindMembership(ctx, "u1", "o2")
	require.NoError(t, err)
	assert.Equal(t, m2.ID, found.ID)

	_, err = repo.FindMembership(ctx, "u9", "o1")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	byUser, err := repo.ListMemberships(ctx, store.MembershipFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, m1.ID, byUser[0].ID)

	byRole, err := repo.ListMemberships(ctx, store.MembershipFilter{RoleID: "r2", Status: models.MembershipStatusActive})
	require.NoError(t, err)
	assert.Len(t, byRole, 2)

	byOrg, err := repo.ListMemberships(ctx, store.MembershipFilter{OrganizationID: "o1"})
	require.NoError(t, err)
	assert.Len(t, byOrg, 2)

	got.Status = models.MembershipStatusRemoved
	got.UpdatedAt = base.Add(3 * time.Hour)
	require.NoError(t, repo.UpdateMembership(ctx, got))

	active, err := repo.ListMemberships(ctx, store.MembershipFilter{UserID: "u1", Status: models.MembershipStatusActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, m2.ID, active[0].ID)

	removed, err := repo.FindMembership(ctx, "u1", "o1")
	require.NoError(t, err)
	assert.Equal(t, models.MembershipStatusRemoved, removed.Status)

	n, err := repo.DeleteOrganizationMemberships(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = repo.GetMembership(ctx, m3.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testActiveMembershipUnique(t *testing.T, st store.Store) {
	ctx := context.Background()
	repo := st.Memberships()

	first := NewMembership("u1", "o1")
	require.NoError(t, repo.CreateMembership(ctx, first))

	err := repo.CreateMembership(ctx, NewMembership("u1", "o1"))
	assert.True(t, errors.Is(err, store.ErrAlreadyExists))

	removed := NewMembership("u1", "o1")
	removed.Status = models.MembershipStatusRemoved
	require.NoError(t, repo.CreateMembership(ctx, removed))

	removed.Status = models.MembershipStatusActive
	err = repo.UpdateMembership(ctx, removed)
	assert.True(t, errors.Is(err, store.ErrAlreadyExists))
}

func testRoles(t *testing.T, st store.Store) {
	ctx := context.Background()
	repo := st.Roles()

	system := &models.Role{
		ID:          uuid.NewString(),
		Name:        "Member",
		Scope:       models.RoleScopeSystem,
		Permissions: []models.Permission{models.NewPermission(models.ResourceAny, models.ActionRead)},
		IsBuiltIn:   true,
		CreatedAt:   base,
		UpdatedAt:   base,
	}
	require.NoError(t, repo.CreateRole(ctx, system))

	custom := &models.Role{
		ID:             uuid.NewString(),
		Name:           "Warehouse",
		Scope:          models.RoleScopeOrganization,
		OrganizationID: "o1",
		Permissions: []models.Permission{{
			Resource:   models.ResourceInventory,
			Action:     models.ActionAny,
			Conditions: []models.Condition{{Type: "warehouse", Params: map[string]any{"id": "w1"}}},
		}},
		CreatedBy: "u1",
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, repo.CreateRole(ctx, custom))

	got, err := repo.GetRole(ctx, custom.ID)
	require.NoError(t, err)
	assert.Equal(t, custom.Permissions[0].Resource, got.Permissions[0].Resource)
	assert.Equal(t, "warehouse", got.Permissions[0].Conditions[0].Type)

	byName, err := repo.FindRoleByName(ctx, "Member", "")
	require.NoError(t, err)
	assert.Equal(t, system.ID, byName.ID)

	_, err = repo.FindRoleByName(ctx, "Warehouse", "")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	dup := &models.Role{ID: uuid.NewString(), Name: "Warehouse", Scope: models.RoleScopeOrganization, OrganizationID: "o1"}
	assert.True(t, errors.Is(repo.CreateRole(ctx, dup), store.ErrAlreadyExists))

	other := &models.Role{ID: uuid.NewString(), Name: "Warehouse", Scope: models.RoleScopeOrganization, OrganizationID: "o2"}
	require.NoError(t, repo.CreateRole(ctx, other))

	roles, err := repo.ListRoles(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, custom.ID, roles[0].ID)
	assert.Equal(t, system.ID, roles[1].ID)

	got.Description = "stock keepers"
	require.NoError(t, repo.UpdateRole(ctx, got))

	require.NoError(t, repo.DeleteRole(ctx, custom.ID))
	_, err = repo.GetRole(ctx, custom.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testInvitations(t *testing.T, st store.Store) {
	ctx := context.Background()
	repo := st.Invitations()

	plain := &models.Invitation{
		ID:             uuid.NewString(),
		Email:          "a@x.com",
		OrganizationID: "o1",
		Status:         models.InvitationStatusPending,
		Token:          "tok-plain",
		Type:           models.MembershipTypeMember,
		ExpiresAt:      base.Add(72 * time.Hour),
		CreatedAt:      base,
		UpdatedAt:      base,
	}
	require.NoError(t, repo.CreateInvitation(ctx, plain))

	agency := &models.Invitation{
		ID:               uuid.NewString(),
		Email:            "a@x.com",
		Status:           models.InvitationStatusPending,
		Token:            "tok-agency",
		Type:             models.MembershipTypeOwner,
		ExpiresAt:        base.Add(72 * time.Hour),
		AgencyInvitation: &models.AgencyInvitation{ParentOrganizationID: "agency", OrganizationName: "Client"},
		CreatedAt:        base.Add(time.Minute),
		UpdatedAt:        base.Add(time.Minute),
	}
	require.NoError(t, repo.CreateInvitation(ctx, agency))

	byToken, err := repo.GetInvitationByToken(ctx, "tok-agency")
	require.NoError(t, err)
	assert.Equal(t, agency.ID, byToken.ID)
	require.NotNil(t, byToken.AgencyInvitation)
	assert.Equal(t, "Client", byToken.AgencyInvitation.OrganizationName)

	_, err = repo.GetInvitationByToken(ctx, "nope")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	byEmail, err := repo.ListInvitations(ctx, store.InvitationFilter{Email: "A@X.com", Status: models.InvitationStatusPending})
	require.NoError(t, err)
	assert.Len(t, byEmail, 2)

	byOrg, err := repo.ListInvitations(ctx, store.InvitationFilter{OrganizationID: "o1"})
	require.NoError(t, err)
	require.Len(t, byOrg, 1)
	assert.Equal(t, plain.ID, byOrg[0].ID)

	byParent, err := repo.ListInvitations(ctx, store.InvitationFilter{ParentOrganizationID: "agency"})
	require.NoError(t, err)
	require.Len(t, byParent, 1)
	assert.Equal(t, agency.ID, byParent[0].ID)

	dupToken := plain.Clone()
	dupToken.ID = uuid.NewString()
	assert.True(t, errors.Is(repo.CreateInvitation(ctx, dupToken), store.ErrAlreadyExists))

	accepted := base.Add(time.Hour)
	plain.Status = models.InvitationStatusAccepted
	plain.AcceptedAt = &accepted
	plain.AcceptedByUserID = "u1"
	require.NoError(t, repo.UpdateInvitation(ctx, plain))

	got, err := repo.GetInvitation(ctx, plain.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvitationStatusAccepted, got.Status)
	require.NotNil(t, got.AcceptedAt)
	assert.True(t, got.AcceptedAt.Equal(accepted))
}

func testBatchCommit(t *testing.T, st store.Store) {
	ctx := context.Background()
	org := NewOrganization("acme", "u1")
	owner := NewMembership("u1", org.ID, "owner-role")
	owner.Type = models.MembershipTypeOwner

	err := st.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		if err := tx.Organizations().CreateOrganization(ctx, org); err != nil {
			return err
		}
		staged, err := tx.Organizations().GetOrganization(ctx, org.ID)
		if err != nil {
			return err
		}
		if staged.Name != "acme" {
			return errors.New("staged write not visible inside batch")
		}
		return tx.Memberships().CreateMembership(ctx, owner)
	})
	require.NoError(t, err)

	_, err = st.Organizations().GetOrganization(ctx, org.ID)
	require.NoError(t, err)
	got, err := st.Memberships().FindMembership(ctx, "u1", org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MembershipTypeOwner, got.Type)
}

func testBatchRollback(t *testing.T, st store.Store) {
	ctx := context.Background()
	org := NewOrganization("acme", "u1")
	boom := errors.New("boom")

	err := st.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		if err := tx.Organizations().CreateOrganization(ctx, org); err != nil {
			return err
		}
		if err := tx.Memberships().CreateMembership(ctx, NewMembership("u1", org.ID)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = st.Organizations().GetOrganization(ctx, org.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = st.Memberships().FindMembership(ctx, "u1", org.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testVersionConflict(t *testing.T, st store.Store) {
	ctx := context.Background()
	m := NewMembership("u1", "o1")
	require.NoError(t, st.Memberships().CreateMembership(ctx, m))

	a, err := st.Memberships().GetMembership(ctx, m.ID)
	require.NoError(t, err)
	b, err := st.Memberships().GetMembership(ctx, m.ID)
	require.NoError(t, err)

	a.IsDefault = true
	require.NoError(t, st.Memberships().UpdateMembership(ctx, a))

	b.Roles = []string{"r9"}
	err = st.Memberships().UpdateMembership(ctx, b)
	assert.True(t, errors.Is(err, store.ErrConflict))

	got, err := st.Memberships().GetMembership(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDefault)
	assert.Empty(t, got.Roles)
}
