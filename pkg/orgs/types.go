package orgs

import (
	"time"

	"github.com/platinummonkey/membership/pkg/models"
)

// CreateOrganizationInput describes a new organization. An empty ParentID
// creates a root organization.
type CreateOrganizationInput struct {
	Name       string                  `json:"name" validate:"required,max=200"`
	OwnerID    string                  `json:"owner_id" validate:"required"`
	OwnerEmail string                  `json:"owner_email" validate:"omitempty,email"`
	Type       models.OrganizationType `json:"type" validate:"required,oneof=basic professional enterprise agency"`
	ParentID   string                  `json:"parent_id,omitempty"`
}

// OrganizationPatch changes an organization. Nil fields are left as they
// are. The identity fields are immutable and any value set on them is
// rejected.
type OrganizationPatch struct {
	Name     *string                      `json:"name,omitempty" validate:"omitnil,min=1,max=200"`
	Status   *models.OrganizationStatus   `json:"status,omitempty" validate:"omitnil,oneof=active suspended archived"`
	Type     *models.OrganizationType     `json:"type,omitempty" validate:"omitnil,oneof=basic professional enterprise agency"`
	Settings *models.OrganizationSettings `json:"settings,omitempty"`

	OwnerID   *string    `json:"owner_id,omitempty"`
	ParentID  *string    `json:"parent_id,omitempty"`
	RootID    *string    `json:"root_id,omitempty"`
	Path      []string   `json:"path,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// immutableFields names the identity fields the patch tries to change
func (p OrganizationPatch) immutableFields() []string {
	var fields []string
	if p.OwnerID != nil {
		fields = append(fields, "owner_id")
	}
	if p.ParentID != nil {
		fields = append(fields, "parent_id")
	}
	if p.RootID != nil {
		fields = append(fields, "root_id")
	}
	if p.Path != nil {
		fields = append(fields, "path")
	}
	if p.CreatedAt != nil {
		fields = append(fields, "created_at")
	}
	return fields
}

// AddMemberInput describes a membership to create or reactivate.
// Empty Roles grants the organization's default role; empty Type means member.
type AddMemberInput struct {
	UserID         string                `json:"user_id" validate:"required"`
	OrganizationID string                `json:"organization_id" validate:"required"`
	Roles          []string              `json:"roles,omitempty"`
	Type           models.MembershipType `json:"type,omitempty" validate:"omitempty,oneof=owner member"`
}

// MembershipPatch changes a membership. UserID and OrganizationID are
// immutable and rejected when set.
type MembershipPatch struct {
	Status    *models.MembershipStatus `json:"status,omitempty" validate:"omitnil,oneof=active removed"`
	Type      *models.MembershipType   `json:"type,omitempty" validate:"omitnil,oneof=owner member"`
	IsDefault *bool                    `json:"is_default,omitempty"`

	UserID         *string `json:"user_id,omitempty"`
	OrganizationID *string `json:"organization_id,omitempty"`
}

// PermissionList selects one of a membership's override lists
type PermissionList string

const (
	CustomPermissions     PermissionList = "custom"
	RestrictedPermissions PermissionList = "restricted"
)
