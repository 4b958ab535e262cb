package models

import (
	"strings"
	"time"
)

// InvitationStatus represents the state of an invitation
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusDeclined InvitationStatus = "declined"
	InvitationStatusExpired  InvitationStatus = "expired"
	InvitationStatusRevoked  InvitationStatus = "revoked"
)

// AgencyInvitation describes the child organization an agency invitation provisions
type AgencyInvitation struct {
	ParentOrganizationID string `json:"parent_organization_id"`
	OrganizationName     string `json:"organization_name"`
}

// Invitation represents an invitation to join an organization
type Invitation struct {
	ID               string            `json:"id"`
	Email            string            `json:"email"`
	OrganizationID   string            `json:"organization_id,omitempty"`
	Status           InvitationStatus  `json:"status"`
	Token            string            `json:"token"`
	InvitedBy        string            `json:"invited_by"`
	Message          string            `json:"message,omitempty"`
	Type             MembershipType    `json:"type"`
	Roles            []string          `json:"roles"`
	ExpiresAt        time.Time         `json:"expires_at"`
	AgencyInvitation *AgencyInvitation `json:"agency_invitation,omitempty"`
	AcceptedAt       *time.Time        `json:"accepted_at,omitempty"`
	AcceptedByUserID string            `json:"accepted_by_user_id,omitempty"`
	Version          int64             `json:"version"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// IsAgency reports whether the invitation provisions a child organization
func (i *Invitation) IsAgency() bool {
	return i.AgencyInvitation != nil
}

// IsPending reports whether the invitation is still pending
func (i *Invitation) IsPending() bool {
	return i.Status == InvitationStatusPending
}

// IsExpiredAt reports whether the invitation is pending and past its expiry at now
func (i *Invitation) IsExpiredAt(now time.Time) bool {
	return i.IsPending() && now.After(i.ExpiresAt)
}

// Clone returns a deep copy of the invitation
func (i *Invitation) Clone() *Invitation {
	if i == nil {
		return nil
	}
	c := *i
	c.Roles = append([]string(nil), i.Roles...)
	if i.AgencyInvitation != nil {
		a := *i.AgencyInvitation
		c.AgencyInvitation = &a
	}
	if i.AcceptedAt != nil {
		t := *i.AcceptedAt
		c.AcceptedAt = &t
	}
	return &c
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
