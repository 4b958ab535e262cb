package orgs

import (
	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/cache"
	"github.com/platinummonkey/membership/pkg/locks"
	"github.com/platinummonkey/membership/pkg/observability"
)

// Option configures a Service
type Option func(*Service)

// WithAuditRecorder records organization and membership mutations
func WithAuditRecorder(r *audit.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithPermissionCache sets the cache invalidated on permission-affecting writes
func WithPermissionCache(c cache.PermissionCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLocker sets the keyed locker guarding default and owner changes
func WithLocker(l locks.Locker) Option {
	return func(s *Service) { s.locker = l }
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
