package orgs

import (
	"context"
	"fmt"

	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
)

// Usage reports an organization's consumption against its limits
type Usage struct {
	OrganizationID      string `json:"organization_id"`
	ActiveMembers       int    `json:"active_members"`
	MaxUsers            int    `json:"max_users"`
	Suborganizations    int    `json:"suborganizations"`
	MaxSuborganizations int    `json:"max_suborganizations"`
}

// GetUsage returns the current usage of an organization
func (s *Service) GetUsage(ctx context.Context, organizationID string) (_ *Usage, err error) {
	ctx, done := s.operation(ctx, "GetUsage")
	defer func() { done(err) }()

	org, err := s.store.Organizations().GetOrganization(ctx, organizationID)
	if err != nil {
		return nil, store.Translate(err)
	}
	members, err := countActiveMembers(ctx, s.store, organizationID)
	if err != nil {
		return nil, err
	}
	children, err := s.store.Organizations().ListChildOrganizations(ctx, organizationID)
	if err != nil {
		return nil, store.Translate(err)
	}
	return &Usage{
		OrganizationID:      org.ID,
		ActiveMembers:       members,
		MaxUsers:            org.Settings.MaxUsers,
		Suborganizations:    len(children),
		MaxSuborganizations: org.Settings.MaxSuborganizations,
	}, nil
}

func countActiveMembers(ctx context.Context, repos store.Repositories, organizationID string) (int, error) {
	ms, err := repos.Memberships().ListMemberships(ctx, store.MembershipFilter{
		OrganizationID: organizationID,
		Status:         models.MembershipStatusActive,
	})
	if err != nil {
		return 0, store.Translate(err)
	}
	return len(ms), nil
}

// checkMemberLimit checks if the organization can take one more active member.
// A zero limit means unlimited.
func checkMemberLimit(ctx context.Context, repos store.Repositories, org *models.Organization) error {
	if org.Settings.MaxUsers <= 0 {
		return nil
	}
	count, err := countActiveMembers(ctx, repos, org.ID)
	if err != nil {
		return fmt.Errorf("failed to count members: %w", err)
	}
	if count >= org.Settings.MaxUsers {
		return &models.LimitExceededError{
			Resource: "users",
			Current:  int64(count),
			Limit:    int64(org.Settings.MaxUsers),
		}
	}
	return nil
}

// checkSuborganizationLimit checks if parent can gain another child
func checkSuborganizationLimit(ctx context.Context, repos store.Repositories, parent *models.Organization) error {
	if !parent.Settings.AllowSuborganizations {
		return fmt.Errorf("%w: organization %s does not allow suborganizations", models.ErrForbidden, parent.ID)
	}
	if parent.Settings.MaxSuborganizations <= 0 {
		return nil
	}
	children, err := repos.Organizations().ListChildOrganizations(ctx, parent.ID)
	if err != nil {
		return fmt.Errorf("failed to count suborganizations: %w", store.Translate(err))
	}
	if len(children) >= parent.Settings.MaxSuborganizations {
		return &models.LimitExceededError{
			Resource: "suborganizations",
			Current:  int64(len(children)),
			Limit:    int64(parent.Settings.MaxSuborganizations),
		}
	}
	return nil
}
