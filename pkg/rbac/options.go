package rbac

import (
	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/cache"
	"github.com/platinummonkey/membership/pkg/observability"
)

// Option configures a Service
type Option func(*Service)

// WithAuditRecorder records role and permission mutations
func WithAuditRecorder(r *audit.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithPermissionCache caches effective permission sets
func WithPermissionCache(c cache.PermissionCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithConditionEvaluator replaces the default always-satisfied evaluator
func WithConditionEvaluator(e ConditionEvaluator) Option {
	return func(s *Service) { s.conditions = e }
}

// WithLogger sets the logger
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the clock used for timestamps
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}
