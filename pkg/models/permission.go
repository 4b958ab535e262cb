package models

import (
	"fmt"
	"strings"
)

// Wildcard matches every resource or every action
const Wildcard = "*"

// Resource represents a resource type in the system
type Resource string

const (
	ResourceAny          Resource = Wildcard
	ResourceOrganization Resource = "organization"
	ResourceUser         Resource = "user"
	ResourceMembership   Resource = "membership"
	ResourceRole         Resource = "role"
	ResourcePermission   Resource = "permission"
	ResourceInvitation   Resource = "invitation"
	ResourceProject      Resource = "project"
	ResourceInventory    Resource = "inventory"
	ResourceOrder        Resource = "order"
	ResourceProduct      Resource = "product"
	ResourceMarketplace  Resource = "marketplace"
	ResourceReport       Resource = "report"
	ResourceSettings     Resource = "settings"
	ResourceBilling      Resource = "billing"
	ResourceAuditLog     Resource = "audit_log"
)

// AllResources is the concrete resource enumeration used for wildcard expansion
var AllResources = []Resource{
	ResourceOrganization,
	ResourceUser,
	ResourceMembership,
	ResourceRole,
	ResourcePermission,
	ResourceInvitation,
	ResourceProject,
	ResourceInventory,
	ResourceOrder,
	ResourceProduct,
	ResourceMarketplace,
	ResourceReport,
	ResourceSettings,
	ResourceBilling,
	ResourceAuditLog,
}

// IsWildcard reports whether r matches every resource
func (r Resource) IsWildcard() bool {
	return r == ResourceAny
}

// Matches reports whether r grants access to target
func (r Resource) Matches(target Resource) bool {
	return r.IsWildcard() || r == target
}

// Expand returns the concrete resources covered by r
func (r Resource) Expand() []Resource {
	if r.IsWildcard() {
		return AllResources
	}
	return []Resource{r}
}

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionAny     Action = Wildcard
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionManage  Action = "manage"
	ActionInvite  Action = "invite"
	ActionExport  Action = "export"
	ActionApprove Action = "approve"
)

// AllActions is the concrete action enumeration used for wildcard expansion
var AllActions = []Action{
	ActionCreate,
	ActionRead,
	ActionUpdate,
	ActionDelete,
	ActionManage,
	ActionInvite,
	ActionExport,
	ActionApprove,
}

// IsWildcard reports whether a matches every action
func (a Action) IsWildcard() bool {
	return a == ActionAny
}

// Matches reports whether a grants target
func (a Action) Matches(target Action) bool {
	return a.IsWildcard() || a == target
}

// Expand returns the concrete actions covered by a
func (a Action) Expand() []Action {
	if a.IsWildcard() {
		return AllActions
	}
	return []Action{a}
}

// Condition is an opaque predicate attached to a permission grant.
// The engine stores conditions but delegates their evaluation.
type Condition struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource   Resource    `json:"resource"`
	Action     Action      `json:"action"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// NewPermission builds an unconditional permission
func NewPermission(resource Resource, action Action) Permission {
	return Permission{Resource: resource, Action: action}
}

// ParsePermission parses a "resource:action" string
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || resource == "" || action == "" || strings.Contains(action, ":") {
		return Permission{}, fmt.Errorf("%w: permission %q must have the form resource:action", ErrInvalidArgument, s)
	}
	return Permission{Resource: Resource(resource), Action: Action(action)}, nil
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// HasConditions reports whether the grant is conditional
func (p Permission) HasConditions() bool {
	return len(p.Conditions) > 0
}

// Matches reports whether p grants action on resource
func (p Permission) Matches(resource Resource, action Action) bool {
	return p.Resource.Matches(resource) && p.Action.Matches(action)
}

// Expand returns every concrete "resource:action" string covered by p.
// Both sides wildcarded expand to the full cross product.
func (p Permission) Expand() []string {
	resources := p.Resource.Expand()
	actions := p.Action.Expand()
	out := make([]string, 0, len(resources)*len(actions))
	for _, r := range resources {
		for _, a := range actions {
			out = append(out, string(r)+":"+string(a))
		}
	}
	return out
}

// Validate checks that the permission names a known resource and action or a wildcard
func (p Permission) Validate() error {
	if !p.Resource.IsWildcard() && !knownResource(p.Resource) {
		return fmt.Errorf("%w: unknown resource %q", ErrInvalidArgument, p.Resource)
	}
	if !p.Action.IsWildcard() && !knownAction(p.Action) {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, p.Action)
	}
	return nil
}

// ClonePermissions returns a deep copy of perms
func ClonePermissions(perms []Permission) []Permission {
	if perms == nil {
		return nil
	}
	out := make([]Permission, len(perms))
	for i, p := range perms {
		out[i] = Permission{Resource: p.Resource, Action: p.Action}
		if p.Conditions != nil {
			out[i].Conditions = make([]Condition, len(p.Conditions))
			for j, c := range p.Conditions {
				out[i].Conditions[j] = Condition{Type: c.Type}
				if c.Params != nil {
					out[i].Conditions[j].Params = make(map[string]any, len(c.Params))
					for k, v := range c.Params {
						out[i].Conditions[j].Params[k] = v
					}
				}
			}
		}
	}
	return out
}

func knownResource(r Resource) bool {
	for _, known := range AllResources {
		if known == r {
			return true
		}
	}
	return false
}

func knownAction(a Action) bool {
	for _, known := range AllActions {
		if known == a {
			return true
		}
	}
	return false
}
