package models

// User is the directory record the engine reads and keeps denormalized pointers on
type User struct {
	ID                       string   `json:"id"`
	Email                    string   `json:"email"`
	DefaultOrganizationID    string   `json:"default_organization_id,omitempty"`
	LastActiveOrganizationID string   `json:"last_active_organization_id,omitempty"`
	Organizations            []string `json:"organizations"`
}

// Clone returns a deep copy of the user
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Organizations = append([]string(nil), u.Organizations...)
	return &c
}

// PointerUpdate describes a change to a user's denormalized organization pointers.
// Nil pointer fields are left untouched; an empty string clears the field.
type PointerUpdate struct {
	DefaultOrganizationID    *string
	LastActiveOrganizationID *string
	AddOrganizations         []string
	RemoveOrganizations      []string
}

// IsEmpty reports whether the update changes nothing
func (u PointerUpdate) IsEmpty() bool {
	return u.DefaultOrganizationID == nil && u.LastActiveOrganizationID == nil &&
		len(u.AddOrganizations) == 0 && len(u.RemoveOrganizations) == 0
}

// Apply applies the update to user in place
func (u PointerUpdate) Apply(user *User) {
	if u.DefaultOrganizationID != nil {
		user.DefaultOrganizationID = *u.DefaultOrganizationID
	}
	if u.LastActiveOrganizationID != nil {
		user.LastActiveOrganizationID = *u.LastActiveOrganizationID
	}
	for _, id := range u.AddOrganizations {
		user.Organizations, _ = AddToSet(user.Organizations, id)
	}
	for _, id := range u.RemoveOrganizations {
		user.Organizations, _ = RemoveFromSet(user.Organizations, id)
		if user.LastActiveOrganizationID == id {
			user.LastActiveOrganizationID = ""
		}
	}
}

// Actor identifies who performed a mutation
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SystemActor is used for mutations the engine performs on its own
var SystemActor = Actor{ID: "system", Email: "system@localhost"}
