package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/membership/pkg/models"
)

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("store: not found")
	// ErrAlreadyExists is returned when a uniqueness constraint would be violated
	ErrAlreadyExists = errors.New("store: already exists")
	// ErrConflict is returned when an update carries a stale version
	ErrConflict = errors.New("store: version conflict")
)

// MembershipFilter narrows membership listings. Zero fields match everything.
type MembershipFilter struct {
	UserID         string
	OrganizationID string
	RoleID         string
	Status         models.MembershipStatus
}

// InvitationFilter narrows invitation listings. Zero fields match everything.
type InvitationFilter struct {
	Email                string
	OrganizationID       string
	ParentOrganizationID string
	Status               models.InvitationStatus
	AgencyOnly           bool
}

// OrganizationRepository stores organizations
type OrganizationRepository interface {
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	ListChildOrganizations(ctx context.Context, parentID string) ([]*models.Organization, error)
	CreateOrganization(ctx context.Context, org *models.Organization) error
	UpdateOrganization(ctx context.Context, org *models.Organization) error
	DeleteOrganization(ctx context.Context, id string) error
}

// MembershipRepository stores memberships
type MembershipRepository interface {
	GetMembership(ctx context.Context, id string) (*models.Membership, error)
	// FindMembership returns the active membership for the pair, or the most
	// recently updated one when none is active.
	FindMembership(ctx context.Context, userID, organizationID string) (*models.Membership, error)
	ListMemberships(ctx context.Context, filter MembershipFilter) ([]*models.Membership, error)
	CreateMembership(ctx context.Context, m *models.Membership) error
	UpdateMembership(ctx context.Context, m *models.Membership) error
	DeleteOrganizationMemberships(ctx context.Context, organizationID string) (int, error)
}

// RoleRepository stores roles
type RoleRepository interface {
	GetRole(ctx context.Context, id string) (*models.Role, error)
	// FindRoleByName looks up a role by name within an organization; an
	// empty organizationID searches system roles.
	FindRoleByName(ctx context.Context, name, organizationID string) (*models.Role, error)
	// ListRoles returns the organization's roles followed by every system role
	ListRoles(ctx context.Context, organizationID string) ([]*models.Role, error)
	CreateRole(ctx context.Context, role *models.Role) error
	UpdateRole(ctx context.Context, role *models.Role) error
	DeleteRole(ctx context.Context, id string) error
}

// InvitationRepository stores invitations
type InvitationRepository interface {
	GetInvitation(ctx context.Context, id string) (*models.Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error)
	ListInvitations(ctx context.Context, filter InvitationFilter) ([]*models.Invitation, error)
	CreateInvitation(ctx context.Context, inv *models.Invitation) error
	UpdateInvitation(ctx context.Context, inv *models.Invitation) error
}

// Repositories groups every collection
type Repositories interface {
	Organizations() OrganizationRepository
	Memberships() MembershipRepository
	Roles() RoleRepository
	Invitations() InvitationRepository
}

// BatchFunc stages writes against tx
type BatchFunc func(ctx context.Context, tx Repositories) error

// Store is the persistence layer of the engine
type Store interface {
	Repositories
	// Batch applies every write made through tx atomically. If fn returns an
	// error nothing is applied and the error is returned unchanged.
	Batch(ctx context.Context, fn BatchFunc) error
	Ping(ctx context.Context) error
	Close() error
}

// MatchMembership reports whether m satisfies filter
func MatchMembership(m *models.Membership, filter MembershipFilter) bool {
	if filter.UserID != "" && m.UserID != filter.UserID {
		return false
	}
	if filter.OrganizationID != "" && m.OrganizationID != filter.OrganizationID {
		return false
	}
	if filter.Status != "" && m.Status != filter.Status {
		return false
	}
	if filter.RoleID != "" && !m.HasRole(filter.RoleID) {
		return false
	}
	return true
}

// MatchInvitation reports whether inv satisfies filter
func MatchInvitation(inv *models.Invitation, filter InvitationFilter) bool {
	if filter.Email != "" && inv.Email != models.NormalizeEmail(filter.Email) {
		return false
	}
	if filter.OrganizationID != "" && inv.OrganizationID != filter.OrganizationID {
		return false
	}
	if filter.Status != "" && inv.Status != filter.Status {
		return false
	}
	if filter.AgencyOnly && !inv.IsAgency() {
		return false
	}
	if filter.ParentOrganizationID != "" {
		if !inv.IsAgency() || inv.AgencyInvitation.ParentOrganizationID != filter.ParentOrganizationID {
			return false
		}
	}
	return true
}

// Translate maps store sentinels onto engine error kinds. Other errors, such
// as driver or network failures, are returned unchanged.
func Translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %v", models.ErrNotFound, err)
	case errors.Is(err, ErrConflict):
		return fmt.Errorf("%w: concurrent modification: %v", models.ErrConflict, err)
	case errors.Is(err, ErrAlreadyExists):
		return fmt.Errorf("%w: %v", models.ErrConflict, err)
	}
	return err
}

// IsNotFound reports whether err is a store or engine not-found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, models.ErrNotFound)
}
