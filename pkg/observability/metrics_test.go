package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/platinummonkey/membership/pkg/models"
)

func TestOutcome(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{models.JoinWarnings("op", errors.New("audit down")), OutcomeWarning},
		{fmt.Errorf("%w: organization", models.ErrNotFound), OutcomeNotFound},
		{models.ErrConflict, OutcomeConflict},
		{&models.LimitExceededError{Resource: "users", Current: 5, Limit: 5}, OutcomeForbidden},
		{models.ErrExpired, OutcomeExpired},
		{models.ErrInvalidState, OutcomeInvalidState},
		{models.ErrInvalidArgument, OutcomeInvalidArgument},
		{errors.New("disk on fire"), OutcomeError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Outcome(tc.err))
	}
}

func TestMetricsObserveOperation(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.ObserveOperation(context.Background(), "orgs", "CreateOrganization", time.Now(), nil)
	m.ObserveOperation(context.Background(), "orgs", "CreateOrganization", time.Now(), models.ErrConflict)
	m.ObserveOperation(context.Background(), "orgs", "CreateOrganization", time.Now(), nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("orgs", "CreateOrganization", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("orgs", "CreateOrganization", OutcomeConflict)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.PermissionCheck("granted")
	m.CacheLookup("lru", true)
	m.CacheLookup("lru", false)
	m.CacheLookup("lru", false)
	m.AuditFailure("membership")
	m.InvitationsExpired(3)
	m.InvitationsExpired(0)
	m.LockWait("memory", time.Millisecond, nil)
	m.LockWait("memory", time.Millisecond, context.DeadlineExceeded)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionChecksTotal.WithLabelValues("granted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PermissionCacheTotal.WithLabelValues("lru", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PermissionCacheTotal.WithLabelValues("lru", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFailuresTotal.WithLabelValues("membership")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.InvitationsExpiredTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockFailuresTotal.WithLabelValues("memory")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation(context.Background(), "s", "op", time.Now(), nil)
		m.PermissionCheck("denied")
		m.CacheLookup("redis", true)
		m.AuditFailure("role")
		m.InvitationsExpired(1)
		m.LockWait("redis", time.Second, nil)
	})
}

func TestMetricsEnableOTel(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m := NewMetrics(nil)
	require.NoError(t, m.EnableOTel(provider.Meter(InstrumentationName)))
	m.ObserveOperation(context.Background(), "rbac", "HasPermission", time.Now(), nil)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			names[md.Name] = true
		}
	}
	assert.True(t, names["membership.operations"])
	assert.True(t, names["membership.operation.duration"])
}
