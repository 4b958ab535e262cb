package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/platinummonkey/membership/pkg/models"
)

// Outcome labels
const (
	OutcomeOK              = "ok"
	OutcomeWarning         = "warning"
	OutcomeNotFound        = "not_found"
	OutcomeConflict        = "conflict"
	OutcomeForbidden       = "forbidden"
	OutcomeExpired         = "expired"
	OutcomeInvalidState    = "invalid_state"
	OutcomeInvalidArgument = "invalid_argument"
	OutcomeError           = "error"
)

// Outcome classifies err into a metric label
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case models.IsWarning(err):
		return OutcomeWarning
	case errors.Is(err, models.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, models.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, models.ErrForbidden):
		return OutcomeForbidden
	case errors.Is(err, models.ErrExpired):
		return OutcomeExpired
	case errors.Is(err, models.ErrInvalidState):
		return OutcomeInvalidState
	case errors.Is(err, models.ErrInvalidArgument):
		return OutcomeInvalidArgument
	default:
		return OutcomeError
	}
}

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	OperationsTotal         *prometheus.CounterVec
	OperationDuration       *prometheus.HistogramVec
	PermissionChecksTotal   *prometheus.CounterVec
	PermissionCacheTotal    *prometheus.CounterVec
	AuditFailuresTotal      *prometheus.CounterVec
	InvitationsExpiredTotal prometheus.Counter
	LockWaitDuration        *prometheus.HistogramVec
	LockFailuresTotal       *prometheus.CounterVec

	otelOps      metric.Int64Counter
	otelDuration metric.Float64Histogram
}

// NewMetrics creates the collectors and registers them with registry when it
// is not nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membership_operations_total",
				Help: "Total number of engine operations by outcome",
			},
			[]string{"service", "operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "membership_operation_duration_seconds",
				Help:    "Engine operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "operation"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membership_permission_checks_total",
				Help: "Total number of permission checks by result",
			},
			[]string{"result"},
		),
		PermissionCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membership_permission_cache_total",
				Help: "Effective permission cache lookups",
			},
			[]string{"backend", "result"},
		),
		AuditFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membership_audit_failures_total",
				Help: "Audit entries that could not be appended",
			},
			[]string{"category"},
		),
		InvitationsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "membership_invitations_expired_total",
				Help: "Invitations moved to expired by sweeps",
			},
		),
		LockWaitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "membership_lock_wait_seconds",
				Help:    "Time spent acquiring mutation locks",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"backend"},
		),
		LockFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "membership_lock_failures_total",
				Help: "Lock acquisitions that failed or timed out",
			},
			[]string{"backend"},
		),
	}

	if registry != nil {
		registry.MustRegister(
			m.OperationsTotal,
			m.OperationDuration,
			m.PermissionChecksTotal,
			m.PermissionCacheTotal,
			m.AuditFailuresTotal,
			m.InvitationsExpiredTotal,
			m.LockWaitDuration,
			m.LockFailuresTotal,
		)
	}
	return m
}

// EnableOTel mirrors operation metrics into OpenTelemetry instruments from meter
func (m *Metrics) EnableOTel(meter metric.Meter) error {
	ops, err := meter.Int64Counter(
		"membership.operations",
		metric.WithDescription("Engine operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create operations counter: %w", err)
	}
	duration, err := meter.Float64Histogram(
		"membership.operation.duration",
		metric.WithDescription("Engine operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create operation duration histogram: %w", err)
	}
	m.otelOps = ops
	m.otelDuration = duration
	return nil
}

// ObserveOperation records one operation that started at start and ended with err
func (m *Metrics) ObserveOperation(ctx context.Context, service, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := Outcome(err)
	elapsed := time.Since(start).Seconds()
	m.OperationsTotal.WithLabelValues(service, operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(service, operation).Observe(elapsed)

	if m.otelOps != nil {
		attrs := metric.WithAttributes(
			attribute.String("service", service),
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		)
		m.otelOps.Add(ctx, 1, attrs)
		m.otelDuration.Record(ctx, elapsed, attrs)
	}
}

// PermissionCheck counts a permission check result (granted, denied or error)
func (m *Metrics) PermissionCheck(result string) {
	if m == nil {
		return
	}
	m.PermissionChecksTotal.WithLabelValues(result).Inc()
}

// CacheLookup counts a permission cache hit or miss
func (m *Metrics) CacheLookup(backend string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PermissionCacheTotal.WithLabelValues(backend, result).Inc()
}

// AuditFailure counts an audit entry that was not appended
func (m *Metrics) AuditFailure(category string) {
	if m == nil {
		return
	}
	m.AuditFailuresTotal.WithLabelValues(category).Inc()
}

// InvitationsExpired adds n to the expired invitations counter
func (m *Metrics) InvitationsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.InvitationsExpiredTotal.Add(float64(n))
}

// LockWait records how long a lock acquisition took
func (m *Metrics) LockWait(backend string, wait time.Duration, err error) {
	if m == nil {
		return
	}
	m.LockWaitDuration.WithLabelValues(backend).Observe(wait.Seconds())
	if err != nil {
		m.LockFailuresTotal.WithLabelValues(backend).Inc()
	}
}
