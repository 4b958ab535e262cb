package models

import (
	"slices"
	"time"
)

// MembershipStatus represents the lifecycle state of a membership
type MembershipStatus string

const (
	MembershipStatusActive  MembershipStatus = "active"
	MembershipStatusRemoved MembershipStatus = "removed"
)

// Valid reports whether s is a known membership status
func (s MembershipStatus) Valid() bool {
	return s == MembershipStatusActive || s == MembershipStatusRemoved
}

// MembershipType represents the kind of membership
type MembershipType string

const (
	MembershipTypeOwner  MembershipType = "owner"
	MembershipTypeMember MembershipType = "member"
)

// Valid reports whether t is a known membership type
func (t MembershipType) Valid() bool {
	return t == MembershipTypeOwner || t == MembershipTypeMember
}

// MembershipPermissions holds per-membership permission overrides.
// Each entry is a "resource:action" string.
type MembershipPermissions struct {
	CustomPermissions     []string `json:"custom_permissions"`
	RestrictedPermissions []string `json:"restricted_permissions"`
}

// Membership represents the edge between a user and an organization
type Membership struct {
	ID             string                `json:"id"`
	UserID         string                `json:"user_id"`
	OrganizationID string                `json:"organization_id"`
	Status         MembershipStatus      `json:"status"`
	Type           MembershipType        `json:"type"`
	Roles          []string              `json:"roles"`
	IsDefault      bool                  `json:"is_default"`
	Permissions    MembershipPermissions `json:"permissions"`
	JoinedAt       time.Time             `json:"joined_at"`
	Version        int64                 `json:"version"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// IsActive reports whether the membership is active
func (m *Membership) IsActive() bool {
	return m.Status == MembershipStatusActive
}

// IsOwner reports whether the membership is the active owner membership
func (m *Membership) IsOwner() bool {
	return m.IsActive() && m.Type == MembershipTypeOwner
}

// HasRole reports whether roleID is assigned
func (m *Membership) HasRole(roleID string) bool {
	return slices.Contains(m.Roles, roleID)
}

// Clone returns a deep copy of the membership
func (m *Membership) Clone() *Membership {
	if m == nil {
		return nil
	}
	c := *m
	c.Roles = append([]string(nil), m.Roles...)
	c.Permissions.CustomPermissions = append([]string(nil), m.Permissions.CustomPermissions...)
	c.Permissions.RestrictedPermissions = append([]string(nil), m.Permissions.RestrictedPermissions...)
	return &c
}

// AddToSet appends value to set if absent and reports whether it changed
func AddToSet(set []string, value string) ([]string, bool) {
	if slices.Contains(set, value) {
		return set, false
	}
	return append(set, value), true
}

// RemoveFromSet removes every occurrence of value and reports whether it changed
func RemoveFromSet(set []string, value string) ([]string, bool) {
	if !slices.Contains(set, value) {
		return set, false
	}
	out := make([]string, 0, len(set)-1)
	for _, v := range set {
		if v != value {
			out = append(out, v)
		}
	}
	return out, true
}

// UniqueStrings returns values with duplicates and empty strings removed, keeping first occurrence order
func UniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
