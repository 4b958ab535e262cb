package orgs

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/cache"
	"github.com/platinummonkey/membership/pkg/locks"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/observability"
	"github.com/platinummonkey/membership/pkg/rbac"
	"github.com/platinummonkey/membership/pkg/store"
	"github.com/platinummonkey/membership/pkg/users"
)

// Service implements the organization and membership operations
type Service struct {
	store     store.Store
	directory users.Directory
	recorder  *audit.Recorder
	cache     cache.PermissionCache
	locker    locks.Locker
	logger    *observability.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
}

// NewService creates a Service over st. The directory is the source of
// truth for users and receives their denormalized organization pointers.
func NewService(st store.Store, directory users.Directory, opts ...Option) *Service {
	s := &Service{
		store:     st,
		directory: directory,
		logger:    observability.NopLogger(),
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recorder == nil {
		s.recorder = audit.NewRecorder(nil)
	}
	if s.locker == nil {
		s.locker = locks.NewMemoryLocker(s.metrics)
	}
	s.logger = s.logger.WithField("component", "orgs")
	return s
}

func (s *Service) operation(ctx context.Context, name string) (context.Context, func(error)) {
	return observability.Operation(ctx, s.logger, s.metrics, "orgs", name)
}

// lock takes the given keys for the duration of one operation
func (s *Service) lock(ctx context.Context, keys ...string) (locks.Unlock, error) {
	unlock, err := locks.AcquireAll(ctx, s.locker, keys...)
	if err != nil {
		return nil, fmt.Errorf("acquiring locks %v: %w", keys, err)
	}
	return unlock, nil
}

// pairKey identifies one membership in the permission cache
type pairKey struct {
	userID         string
	organizationID string
}

// invalidate drops cached permission sets of the given memberships
func (s *Service) invalidate(ctx context.Context, pairs ...pairKey) error {
	if s.cache == nil {
		return nil
	}
	var errs []error
	for _, p := range pairs {
		if err := s.cache.Invalidate(ctx, p.userID, p.organizationID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("permission cache invalidation: %w", err)
	}
	return nil
}

// pointerUpdates collects directory changes per user while a batch runs
type pointerUpdates map[string]*models.PointerUpdate

func (p pointerUpdates) get(userID string) *models.PointerUpdate {
	u, ok := p[userID]
	if !ok {
		u = &models.PointerUpdate{}
		p[userID] = u
	}
	return u
}

func (p pointerUpdates) setDefault(userID, organizationID string) {
	id := organizationID
	p.get(userID).DefaultOrganizationID = &id
}

func (p pointerUpdates) join(userID, organizationID string) {
	u := p.get(userID)
	u.AddOrganizations = append(u.AddOrganizations, organizationID)
}

func (p pointerUpdates) leave(userID, organizationID string) {
	u := p.get(userID)
	u.RemoveOrganizations = append(u.RemoveOrganizations, organizationID)
}

// apply pushes the collected updates to the user directory
func (s *Service) applyPointers(ctx context.Context, updates pointerUpdates) error {
	ids := make([]string, 0, len(updates))
	for id := range updates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		u := updates[id]
		if u.IsEmpty() {
			continue
		}
		if err := s.directory.UpdateOrganizationPointer(ctx, id, *u); err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("user_id", id).Warn("user pointer update failed")
			errs = append(errs, fmt.Errorf("user directory update for %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// activeMembership loads the active membership of the pair. A removed
// membership is ErrInvalidState and a missing one ErrNotFound.
func activeMembership(ctx context.Context, repos store.Repositories, userID, organizationID string) (*models.Membership, error) {
	m, err := repos.Memberships().FindMembership(ctx, userID, organizationID)
	if err != nil {
		return nil, store.Translate(err)
	}
	if !m.IsActive() {
		return nil, fmt.Errorf("%w: membership of user %s in organization %s is %s",
			models.ErrInvalidState, userID, organizationID, m.Status)
	}
	return m, nil
}

// activeMembershipsOf lists the user's active memberships, oldest first
func activeMembershipsOf(ctx context.Context, repos store.Repositories, userID string) ([]*models.Membership, error) {
	ms, err := repos.Memberships().ListMemberships(ctx, store.MembershipFilter{
		UserID: userID,
		Status: models.MembershipStatusActive,
	})
	if err != nil {
		return nil, store.Translate(err)
	}
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].JoinedAt.Equal(ms[j].JoinedAt) {
			return ms[i].ID < ms[j].ID
		}
		return ms[i].JoinedAt.Before(ms[j].JoinedAt)
	})
	return ms, nil
}

// clearOtherDefaults unsets isDefault on every active membership of the user
// except keepID
func (s *Service) clearOtherDefaults(ctx context.Context, repos store.Repositories, userID, keepID string) error {
	ms, err := activeMembershipsOf(ctx, repos, userID)
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	for _, m := range ms {
		if m.ID == keepID || !m.IsDefault {
			continue
		}
		m.IsDefault = false
		m.UpdatedAt = now
		if err := repos.Memberships().UpdateMembership(ctx, m); err != nil {
			return store.Translate(err)
		}
	}
	return nil
}

// promoteDefault marks the oldest active membership of the user outside
// excludeOrg as default and returns its organization id, or "" when none remains.
func (s *Service) promoteDefault(ctx context.Context, repos store.Repositories, userID, excludeOrg string) (string, error) {
	ms, err := activeMembershipsOf(ctx, repos, userID)
	if err != nil {
		return "", err
	}
	for _, m := range ms {
		if m.OrganizationID == excludeOrg {
			continue
		}
		if !m.IsDefault {
			m.IsDefault = true
			m.UpdatedAt = s.clock.Now().UTC()
			if err := repos.Memberships().UpdateMembership(ctx, m); err != nil {
				return "", store.Translate(err)
			}
		}
		return m.OrganizationID, nil
	}
	return "", nil
}

// resolveRoles checks that every role is usable in the organization and
// falls back to the organization's default role when none is given.
func resolveRoles(ctx context.Context, repos store.Repositories, org *models.Organization, roleIDs []string) ([]string, error) {
	if len(roleIDs) == 0 {
		name := org.Settings.DefaultUserRole
		if name == "" {
			name = models.DefaultUserRoleName
		}
		role, err := rbac.LookupSystemRole(ctx, repos, name)
		if err != nil {
			return nil, err
		}
		return []string{role.ID}, nil
	}

	out := models.UniqueStrings(roleIDs)
	for _, id := range out {
		role, err := repos.Roles().GetRole(ctx, id)
		if err != nil {
			return nil, store.Translate(err)
		}
		if !role.UsableIn(org.ID) {
			return nil, fmt.Errorf("%w: role %q belongs to another organization", models.ErrInvalidArgument, role.Name)
		}
	}
	return out, nil
}
