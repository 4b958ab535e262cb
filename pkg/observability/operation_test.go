package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/membership/pkg/models"
)

func TestOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)
	metrics := NewMetrics(prometheus.NewRegistry())

	_, done := Operation(context.Background(), logger, metrics, "orgs", "DeleteOrganization")
	done(models.ErrConflict)
	_, done = Operation(context.Background(), logger, metrics, "orgs", "DeleteOrganization")
	done(models.JoinWarnings("DeleteOrganization", errors.New("audit down")))
	_, done = Operation(context.Background(), nil, nil, "orgs", "DeleteOrganization")
	done(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues("orgs", "DeleteOrganization", OutcomeConflict)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OperationsTotal.WithLabelValues("orgs", "DeleteOrganization", OutcomeWarning)))
	assert.Contains(t, buf.String(), "operation applied with warnings")
	assert.Contains(t, buf.String(), "operation rejected")
}
