package rbac

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/cache"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/observability"
	"github.com/platinummonkey/membership/pkg/store"
)

// Service manages roles and resolves permissions
type Service struct {
	store      store.Store
	recorder   *audit.Recorder
	cache      cache.PermissionCache
	conditions ConditionEvaluator
	logger     *observability.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock

	effective singleflight.Group
}

// NewService creates a role service over st
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:      st,
		conditions: NoopConditionEvaluator{},
		logger:     observability.NopLogger(),
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recorder == nil {
		s.recorder = audit.NewRecorder(nil)
	}
	s.logger = s.logger.WithField("component", "rbac")
	return s
}

func (s *Service) operation(ctx context.Context, name string) (context.Context, func(error)) {
	return observability.Operation(ctx, s.logger, s.metrics, "rbac", name)
}

// invalidate drops the cached set for one membership
func (s *Service) invalidate(ctx context.Context, userID, organizationID string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, userID, organizationID); err != nil {
		return fmt.Errorf("permission cache invalidation: %w", err)
	}
	return nil
}

// invalidateAll drops every cached set, used when a role definition changes
func (s *Service) invalidateAll(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("permission cache invalidation: %w", err)
	}
	return nil
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
