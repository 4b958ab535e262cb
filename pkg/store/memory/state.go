package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
)

var errClosed = errors.New("memory store closed")

// state holds the collections. It is not synchronized; Store guards it.
type state struct {
	organizations map[string]*models.Organization
	memberships   map[string]*models.Membership
	roles         map[string]*models.Role
	invitations   map[string]*models.Invitation
}

func newState() *state {
	return &state{
		organizations: make(map[string]*models.Organization),
		memberships:   make(map[string]*models.Membership),
		roles:         make(map[string]*models.Role),
		invitations:   make(map[string]*models.Invitation),
	}
}

// clone copies the maps. Stored documents are never mutated in place, so
// sharing the pointers between the copies is safe.
func (st *state) clone() *state {
	return &state{
		organizations: maps.Clone(st.organizations),
		memberships:   maps.Clone(st.memberships),
		roles:         maps.Clone(st.roles),
		invitations:   maps.Clone(st.invitations),
	}
}

func (st *state) Organizations() store.OrganizationRepository { return st }
func (st *state) Memberships() store.MembershipRepository     { return st }
func (st *state) Roles() store.RoleRepository                 { return st }
func (st *state) Invitations() store.InvitationRepository     { return st }

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", store.ErrNotFound, kind, id)
}

func versionConflict(kind, id string, want, got int64) error {
	return fmt.Errorf("%w: %s %s at version %d, update carries %d", store.ErrConflict, kind, id, got, want)
}

// Organizations

func (st *state) GetOrganization(_ context.Context, id string) (*models.Organization, error) {
	org, ok := st.organizations[id]
	if !ok {
		return nil, notFound("organization", id)
	}
	return org.Clone(), nil
}

func (st *state) ListChildOrganizations(_ context.Context, parentID string) ([]*models.Organization, error) {
	var out []*models.Organization
	for _, org := range st.organizations {
		if org.ParentID == parentID {
			out = append(out, org.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (st *state) CreateOrganization(_ context.Context, org *models.Organization) error {
	if _, ok := st.organizations[org.ID]; ok {
		return fmt.Errorf("%w: organization %s", store.ErrAlreadyExists, org.ID)
	}
	org.Version = 1
	st.organizations[org.ID] = org.Clone()
	return nil
}

func (st *state) UpdateOrganization(_ context.Context, org *models.Organization) error {
	cur, ok := st.organizations[org.ID]
	if !ok {
		return notFound("organization", org.ID)
	}
	if cur.Version != org.Version {
		return versionConflict("organization", org.ID, org.Version, cur.Version)
	}
	org.Version++
	st.organizations[org.ID] = org.Clone()
	return nil
}

func (st *state) DeleteOrganization(_ context.Context, id string) error {
	if _, ok := st.organizations[id]; !ok {
		return notFound("organization", id)
	}
	delete(st.organizations, id)
	return nil
}

// Memberships

func (st *state) GetMembership(_ context.Context, id string) (*models.Membership, error) {
	m, ok := st.memberships[id]
	if !ok {
		return nil, notFound("membership", id)
	}
	return m.Clone(), nil
}

func (st *state) FindMembership(_ context.Context, userID, organizationID string) (*models.Membership, error) {
	var found *models.Membership
	for _, m := range st.memberships {
		if m.UserID != userID || m.OrganizationID != organizationID {
			continue
		}
		if m.IsActive() {
			return m.Clone(), nil
		}
		if found == nil || m.UpdatedAt.After(found.UpdatedAt) {
			found = m
		}
	}
	if found == nil {
		return nil, notFound("membership", userID+"/"+organizationID)
	}
	return found.Clone(), nil
}

func (st *state) ListMemberships(_ context.Context, filter store.MembershipFilter) ([]*models.Membership, error) {
	var out []*models.Membership
	for _, m := range st.memberships {
		if store.MatchMembership(m, filter) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (st *state) activeDuplicate(m *models.Membership) bool {
	if !m.IsActive() {
		return false
	}
	for id, other := range st.memberships {
		if id != m.ID && other.IsActive() && other.UserID == m.UserID && other.OrganizationID == m.OrganizationID {
			return true
		}
	}
	return false
}

func (st *state) CreateMembership(_ context.Context, m *models.Membership) error {
	if _, ok := st.memberships[m.ID]; ok {
		return fmt.Errorf("%w: membership %s", store.ErrAlreadyExists, m.ID)
	}
	if st.activeDuplicate(m) {
		return fmt.Errorf("%w: active membership for user %s in organization %s", store.ErrAlreadyExists, m.UserID, m.OrganizationID)
	}
	m.Version = 1
	st.memberships[m.ID] = m.Clone()
	return nil
}

func (st *state) UpdateMembership(_ context.Context, m *models.Membership) error {
	cur, ok := st.memberships[m.ID]
	if !ok {
		return notFound("membership", m.ID)
	}
	if cur.Version != m.Version {
		return versionConflict("membership", m.ID, m.Version, cur.Version)
	}
	if st.activeDuplicate(m) {
		return fmt.Errorf("%w: active membership for user %s in organization %s", store.ErrAlreadyExists, m.UserID, m.OrganizationID)
	}
	m.Version++
	st.memberships[m.ID] = m.Clone()
	return nil
}

func (st *state) DeleteOrganizationMemberships(_ context.Context, organizationID string) (int, error) {
	n := 0
	for id, m := range st.memberships {
		if m.OrganizationID == organizationID {
			delete(st.memberships, id)
			n++
		}
	}
	return n, nil
}

// Roles

func (st *state) GetRole(_ context.Context, id string) (*models.Role, error) {
	role, ok := st.roles[id]
	if !ok {
		return nil, notFound("role", id)
	}
	return role.Clone(), nil
}

func (st *state) FindRoleByName(_ context.Context, name, organizationID string) (*models.Role, error) {
	for _, role := range st.roles {
		if role.Name == name && role.OrganizationID == organizationID {
			return role.Clone(), nil
		}
	}
	return nil, notFound("role", name)
}

func (st *state) ListRoles(_ context.Context, organizationID string) ([]*models.Role, error) {
	var scoped, system []*models.Role
	for _, role := range st.roles {
		switch {
		case role.OrganizationID == "":
			system = append(system, role.Clone())
		case organizationID != "" && role.OrganizationID == organizationID:
			scoped = append(scoped, role.Clone())
		}
	}
	byName := func(roles []*models.Role) {
		sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	}
	byName(scoped)
	byName(system)
	return append(scoped, system...), nil
}

func (st *state) nameTaken(role *models.Role) bool {
	for id, other := range st.roles {
		if id != role.ID && other.Name == role.Name && other.OrganizationID == role.OrganizationID {
			return true
		}
	}
	return false
}

func (st *state) CreateRole(_ context.Context, role *models.Role) error {
	if _, ok := st.roles[role.ID]; ok {
		return fmt.Errorf("%w: role %s", store.ErrAlreadyExists, role.ID)
	}
	if st.nameTaken(role) {
		return fmt.Errorf("%w: role name %q", store.ErrAlreadyExists, role.Name)
	}
	role.Version = 1
	st.roles[role.ID] = role.Clone()
	return nil
}

func (st *state) UpdateRole(_ context.Context, role *models.Role) error {
	cur, ok := st.roles[role.ID]
	if !ok {
		return notFound("role", role.ID)
	}
	if cur.Version != role.Version {
		return versionConflict("role", role.ID, role.Version, cur.Version)
	}
	if st.nameTaken(role) {
		return fmt.Errorf("%w: role name %q", store.ErrAlreadyExists, role.Name)
	}
	role.Version++
	st.roles[role.ID] = role.Clone()
	return nil
}

func (st *state) DeleteRole(_ context.Context, id string) error {
	if _, ok := st.roles[id]; !ok {
		return notFound("role", id)
	}
	delete(st.roles, id)
	return nil
}

// Invitations

func (st *state) GetInvitation(_ context.Context, id string) (*models.Invitation, error) {
	inv, ok := st.invitations[id]
	if !ok {
		return nil, notFound("invitation", id)
	}
	return inv.Clone(), nil
}

func (st *state) GetInvitationByToken(_ context.Context, token string) (*models.Invitation, error) {
	for _, inv := range st.invitations {
		if inv.Token == token {
			return inv.Clone(), nil
		}
	}
	return nil, notFound("invitation", "token")
}

func (st *state) ListInvitations(_ context.Context, filter store.InvitationFilter) ([]*models.Invitation, error) {
	var out []*models.Invitation
	for _, inv := range st.invitations {
		if store.MatchInvitation(inv, filter) {
			out = append(out, inv.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (st *state) CreateInvitation(_ context.Context, inv *models.Invitation) error {
	if _, ok := st.invitations[inv.ID]; ok {
		return fmt.Errorf("%w: invitation %s", store.ErrAlreadyExists, inv.ID)
	}
	for _, other := range st.invitations {
		if other.Token == inv.Token {
			return fmt.Errorf("%w: invitation token", store.ErrAlreadyExists)
		}
	}
	inv.Version = 1
	st.invitations[inv.ID] = inv.Clone()
	return nil
}

func (st *state) UpdateInvitation(_ context.Context, inv *models.Invitation) error {
	cur, ok := st.invitations[inv.ID]
	if !ok {
		return notFound("invitation", inv.ID)
	}
	if cur.Version != inv.Version {
		return versionConflict("invitation", inv.ID, inv.Version, cur.Version)
	}
	inv.Version++
	st.invitations[inv.ID] = inv.Clone()
	return nil
}
