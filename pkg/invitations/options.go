package invitations

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/locks"
	"github.com/platinummonkey/membership/pkg/observability"
)

// Option configures a Service
type Option func(*Service)

// WithAuditRecorder records invitation transitions
func WithAuditRecorder(r *audit.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLocker sets the locker serializing invitation creation per organization
func WithLocker(l locks.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithDefaultExpiry sets the lifetime used when an invitation does not name one
func WithDefaultExpiry(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.defaultExpiry = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *observability.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the clock used for timestamps and expiry
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}
