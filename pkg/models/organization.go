package models

import (
	"fmt"
	"time"
)

// OrganizationType represents the plan type of an organization
type OrganizationType string

const (
	OrganizationTypeBasic        OrganizationType = "basic"
	OrganizationTypeProfessional OrganizationType = "professional"
	OrganizationTypeEnterprise   OrganizationType = "enterprise"
	OrganizationTypeAgency       OrganizationType = "agency"
)

// Valid reports whether t is a known organization type
func (t OrganizationType) Valid() bool {
	switch t {
	case OrganizationTypeBasic, OrganizationTypeProfessional, OrganizationTypeEnterprise, OrganizationTypeAgency:
		return true
	}
	return false
}

// OrganizationStatus represents organization status
type OrganizationStatus string

const (
	OrganizationStatusActive    OrganizationStatus = "active"
	OrganizationStatusSuspended OrganizationStatus = "suspended"
	OrganizationStatusArchived  OrganizationStatus = "archived"
)

// Valid reports whether s is a known organization status
func (s OrganizationStatus) Valid() bool {
	switch s {
	case OrganizationStatusActive, OrganizationStatusSuspended, OrganizationStatusArchived:
		return true
	}
	return false
}

// OrganizationSettings holds the type-derived limits of an organization
type OrganizationSettings struct {
	AllowSuborganizations bool   `json:"allow_suborganizations"`
	MaxUsers              int    `json:"max_users"`
	MaxSuborganizations   int    `json:"max_suborganizations"`
	DefaultUserRole       string `json:"default_user_role"`
}

// DefaultUserRoleName is the system role granted when no roles are requested
const DefaultUserRoleName = "Member"

// SettingsForType returns the default settings for an organization type
func SettingsForType(t OrganizationType) OrganizationSettings {
	switch t {
	case OrganizationTypeProfessional:
		return OrganizationSettings{MaxUsers: 20, DefaultUserRole: DefaultUserRoleName}
	case OrganizationTypeEnterprise:
		return OrganizationSettings{
			AllowSuborganizations: true,
			MaxUsers:              100,
			MaxSuborganizations:   10,
			DefaultUserRole:       DefaultUserRoleName,
		}
	case OrganizationTypeAgency:
		return OrganizationSettings{
			AllowSuborganizations: true,
			MaxUsers:              50,
			MaxSuborganizations:   50,
			DefaultUserRole:       DefaultUserRoleName,
		}
	default:
		return OrganizationSettings{MaxUsers: 5, DefaultUserRole: DefaultUserRoleName}
	}
}

// TypeAllowsSuborganizations reports whether organizations of type t may have children
func TypeAllowsSuborganizations(t OrganizationType) bool {
	return t == OrganizationTypeEnterprise || t == OrganizationTypeAgency
}

// ValidateSettings checks settings against the organization type
func ValidateSettings(t OrganizationType, s OrganizationSettings) error {
	if s.AllowSuborganizations && !TypeAllowsSuborganizations(t) {
		return fmt.Errorf("%w: %s organizations cannot allow suborganizations", ErrForbidden, t)
	}
	if s.MaxUsers < 0 || s.MaxSuborganizations < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidArgument)
	}
	return nil
}

// Organization represents a tenant account
type Organization struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Type      OrganizationType     `json:"type"`
	Status    OrganizationStatus   `json:"status"`
	OwnerID   string               `json:"owner_id"`
	ParentID  string               `json:"parent_id,omitempty"`
	RootID    string               `json:"root_id"`
	Path      []string             `json:"path"`
	Settings  OrganizationSettings `json:"settings"`
	Version   int64                `json:"version"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// IsRoot reports whether the organization has no parent
func (o *Organization) IsRoot() bool {
	return o.ParentID == ""
}

// Clone returns a deep copy of the organization
func (o *Organization) Clone() *Organization {
	if o == nil {
		return nil
	}
	c := *o
	c.Path = append([]string(nil), o.Path...)
	return &c
}

// ChildPath returns the path of a direct child with the given id
func (o *Organization) ChildPath(childID string) []string {
	path := make([]string, 0, len(o.Path)+1)
	path = append(path, o.Path...)
	return append(path, childID)
}
