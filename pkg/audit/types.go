package audit

import (
	"fmt"
	"time"
)

// Category groups audit entries by the kind of entity they touch
type Category string

const (
	CategoryOrganization Category = "organization"
	CategoryMembership   Category = "membership"
	CategoryRole         Category = "role"
	CategoryPermission   Category = "permission"
	CategoryInvitation   Category = "invitation"
	CategorySystem       Category = "system"
)

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	switch c {
	case CategoryOrganization, CategoryMembership, CategoryRole,
		CategoryPermission, CategoryInvitation, CategorySystem:
		return true
	}
	return false
}

// Severity ranks how notable an entry is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityNotice   Severity = "notice"
	SeverityWarning  Severity = "warning"
	SeverityAlert    Severity = "alert"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityNotice, SeverityWarning, SeverityAlert, SeverityCritical:
		return true
	}
	return false
}

// ChangeDetails captures the before and after state of a mutation
type ChangeDetails struct {
	Before interface{} `json:"before,omitempty"`
	After  interface{} `json:"after,omitempty"`
}

// Entry is one audit log record. Entries are never mutated once appended.
type Entry struct {
	ID             string                 `json:"id"`
	Timestamp      time.Time              `json:"timestamp"`
	ActorID        string                 `json:"actor_id"`
	ActorEmail     string                 `json:"actor_email"`
	OrganizationID string                 `json:"organization_id"`
	Category       Category               `json:"category"`
	Action         string                 `json:"action"`
	ResourceType   string                 `json:"resource_type"`
	ResourceID     string                 `json:"resource_id,omitempty"`
	Description    string                 `json:"description"`
	Severity       Severity               `json:"severity"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Changes        *ChangeDetails         `json:"changes,omitempty"`
}

// Validate checks the fields every sink relies on
func (e *Entry) Validate() error {
	if !e.Category.Valid() {
		return fmt.Errorf("invalid audit category %q", e.Category)
	}
	if !e.Severity.Valid() {
		return fmt.Errorf("invalid audit severity %q", e.Severity)
	}
	if e.Action == "" {
		return fmt.Errorf("audit action is required")
	}
	return nil
}

// SearchFilter narrows Search results. Zero values match everything.
type SearchFilter struct {
	OrganizationID string
	ActorID        string
	Categories     []Category
	Severities     []Severity
	ResourceType   string
	ResourceID     string
	StartTime      *time.Time
	EndTime        *time.Time
	Limit          int
	Offset         int
}

// Matches applies the filter to a single entry, ignoring Limit and Offset
func (f SearchFilter) Matches(e *Entry) bool {
	if f.OrganizationID != "" && e.OrganizationID != f.OrganizationID {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != "" && e.ResourceID != f.ResourceID {
		return false
	}
	if f.StartTime != nil && e.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && e.Timestamp.After(*f.EndTime) {
		return false
	}
	if len(f.Categories) > 0 && !containsCategory(f.Categories, e.Category) {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, e.Severity) {
		return false
	}
	return true
}

func containsCategory(list []Category, c Category) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

func containsSeverity(list []Severity, s Severity) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Clone returns a copy whose metadata map can be modified independently
func (e *Entry) Clone() *Entry {
	c := *e
	if e.Metadata != nil {
		c.Metadata = make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	if e.Changes != nil {
		changes := *e.Changes
		c.Changes = &changes
	}
	return &c
}
