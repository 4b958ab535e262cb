// Package memory provides an in-process implementation of store.Store.
//
// Documents are cloned on the way in and on the way out, so callers never
// share memory with the store. Batches stage their writes on a copy of the
// collection maps and swap it in only when the batch function succeeds.
package memory

import (
	"context"
	"sync"

	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
)

// Store is a mutex-guarded in-memory store
type Store struct {
	mu     sync.RWMutex
	st     *state
	closed bool
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store
func New() *Store {
	return &Store{st: newState()}
}

// Organizations returns the organization repository
func (s *Store) Organizations() store.OrganizationRepository { return orgRepo{s} }

// Memberships returns the membership repository
func (s *Store) Memberships() store.MembershipRepository { return membershipRepo{s} }

// Roles returns the role repository
func (s *Store) Roles() store.RoleRepository { return roleRepo{s} }

// Invitations returns the invitation repository
func (s *Store) Invitations() store.InvitationRepository { return invitationRepo{s} }

// Batch runs fn against a staged copy of the store and commits it on success.
// fn must only use tx; calling back into s from inside fn deadlocks.
func (s *Store) Batch(ctx context.Context, fn store.BatchFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(ctx, staged); err != nil {
		return err
	}
	s.st = staged
	return nil
}

// Ping always succeeds for an open store
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return ctx.Err()
}

// Close marks the store closed
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

type orgRepo struct{ s *Store }

func (r orgRepo) GetOrganization(ctx context.Context, id string) (org *models.Organization, err error) {
	err = r.s.read(func(st *state) error {
		org, err = st.GetOrganization(ctx, id)
		return err
	})
	return org, err
}

func (r orgRepo) ListChildOrganizations(ctx context.Context, parentID string) (orgs []*models.Organization, err error) {
	err = r.s.read(func(st *state) error {
		orgs, err = st.ListChildOrganizations(ctx, parentID)
		return err
	})
	return orgs, err
}

func (r orgRepo) CreateOrganization(ctx context.Context, org *models.Organization) error {
	return r.s.write(func(st *state) error { return st.CreateOrganization(ctx, org) })
}

func (r orgRepo) UpdateOrganization(ctx context.Context, org *models.Organization) error {
	return r.s.write(func(st *state) error { return st.UpdateOrganization(ctx, org) })
}

func (r orgRepo) DeleteOrganization(ctx context.Context, id string) error {
	return r.s.write(func(st *state) error { return st.DeleteOrganization(ctx, id) })
}

type membershipRepo struct{ s *Store }

func (r membershipRepo) GetMembership(ctx context.Context, id string) (m *models.Membership, err error) {
	err = r.s.read(func(st *state) error {
		m, err = st.GetMembership(ctx, id)
		return err
	})
	return m, err
}

func (r membershipRepo) FindMembership(ctx context.Context, userID, organizationID string) (m *models.Membership, err error) {
	err = r.s.read(func(st *state) error {
		m, err = st.FindMembership(ctx, userID, organizationID)
		return err
	})
	return m, err
}

func (r membershipRepo) ListMemberships(ctx context.Context, filter store.MembershipFilter) (ms []*models.Membership, err error) {
	err = r.s.read(func(st *state) error {
		ms, err = st.ListMemberships(ctx, filter)
		return err
	})
	return ms, err
}

func (r membershipRepo) CreateMembership(ctx context.Context, m *models.Membership) error {
	return r.s.write(func(st *state) error { return st.CreateMembership(ctx, m) })
}

func (r membershipRepo) UpdateMembership(ctx context.Context, m *models.Membership) error {
	return r.s.write(func(st *state) error { return st.UpdateMembership(ctx, m) })
}

func (r membershipRepo) DeleteOrganizationMemberships(ctx context.Context, organizationID string) (n int, err error) {
	err = r.s.write(func(st *state) error {
		n, err = st.DeleteOrganizationMemberships(ctx, organizationID)
		return err
	})
	return n, err
}

type roleRepo struct{ s *Store }

func (r roleRepo) GetRole(ctx context.Context, id string) (role *models.Role, err error) {
	err = r.s.read(func(st *state) error {
		role, err = st.GetRole(ctx, id)
		return err
	})
	return role, err
}

func (r roleRepo) FindRoleByName(ctx context.Context, name, organizationID string) (role *models.Role, err error) {
	err = r.s.read(func(st *state) error {
		role, err = st.FindRoleByName(ctx, name, organizationID)
		return err
	})
	return role, err
}

func (r roleRepo) ListRoles(ctx context.Context, organizationID string) (roles []*models.Role, err error) {
	err = r.s.read(func(st *state) error {
		roles, err = st.ListRoles(ctx, organizationID)
		return err
	})
	return roles, err
}

func (r roleRepo) CreateRole(ctx context.Context, role *models.Role) error {
	return r.s.write(func(st *state) error { return st.CreateRole(ctx, role) })
}

func (r roleRepo) UpdateRole(ctx context.Context, role *models.Role) error {
	return r.s.write(func(st *state) error { return st.UpdateRole(ctx, role) })
}

func (r roleRepo) DeleteRole(ctx context.Context, id string) error {
	return r.s.write(func(st *state) error { return st.DeleteRole(ctx, id) })
}

type invitationRepo struct{ s *Store }

func (r invitationRepo) GetInvitation(ctx context.Context, id string) (inv *models.Invitation, err error) {
	err = r.s.read(func(st *state) error {
		inv, err = st.GetInvitation(ctx, id)
		return err
	})
	return inv, err
}

func (r invitationRepo) GetInvitationByToken(ctx context.Context, token string) (inv *models.Invitation, err error) {
	err = r.s.read(func(st *state) error {
		inv, err = st.GetInvitationByToken(ctx, token)
		return err
	})
	return inv, err
}

func (r invitationRepo) ListInvitations(ctx context.Context, filter store.InvitationFilter) (invs []*models.Invitation, err error) {
	err = r.s.read(func(st *state) error {
		invs, err = st.ListInvitations(ctx, filter)
		return err
	})
	return invs, err
}

func (r invitationRepo) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	return r.s.write(func(st *state) error { return st.CreateInvitation(ctx, inv) })
}

func (r invitationRepo) UpdateInvitation(ctx context.Context, inv *models.Invitation) error {
	return r.s.write(func(st *state) error { return st.UpdateInvitation(ctx, inv) })
}
