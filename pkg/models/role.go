package models

import "time"

// RoleScope represents where a role may be used
type RoleScope string

const (
	RoleScopeSystem       RoleScope = "system"
	RoleScopeOrganization RoleScope = "organization"
)

// Built-in system role names
const (
	RoleNameOwner   = "Organization Owner"
	RoleNameAdmin   = "Admin"
	RoleNameManager = "Manager"
	RoleNameMember  = DefaultUserRoleName
)

// Role represents a named bundle of permissions
type Role struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description"`
	Scope          RoleScope    `json:"scope"`
	OrganizationID string       `json:"organization_id,omitempty"` // empty for system roles
	Permissions    []Permission `json:"permissions"`
	IsBuiltIn      bool         `json:"is_built_in"`
	CreatedBy      string       `json:"created_by"`
	Version        int64        `json:"version"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// IsSystem reports whether the role is usable in every organization
func (r *Role) IsSystem() bool {
	return r.Scope == RoleScopeSystem
}

// UsableIn reports whether the role may be assigned within orgID
func (r *Role) UsableIn(orgID string) bool {
	return r.IsSystem() || r.OrganizationID == orgID
}

// Clone returns a deep copy of the role
func (r *Role) Clone() *Role {
	if r == nil {
		return nil
	}
	c := *r
	c.Permissions = ClonePermissions(r.Permissions)
	return &c
}
