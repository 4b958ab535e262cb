package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/observability"
)

// ErrAuditFailed wraps every sink failure returned by Recorder.Record
var ErrAuditFailed = errors.New("audit append failed")

// Recorder stamps entries and appends them to a sink
type Recorder struct {
	sink    Sink
	logger  *observability.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithLogger sets the logger used to report sink failures
func WithLogger(logger *observability.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// WithMetrics counts sink failures
func WithMetrics(m *observability.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock overrides the timestamp source
func WithClock(c clockwork.Clock) RecorderOption {
	return func(r *Recorder) { r.clock = c }
}

// NewRecorder creates a Recorder over sink (a no-op sink when nil)
func NewRecorder(sink Sink, opts ...RecorderOption) *Recorder {
	if sink == nil {
		sink = NewNoOpSink()
	}
	r := &Recorder{
		sink:   sink,
		logger: observability.NopLogger(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sink returns the underlying sink
func (r *Recorder) Sink() Sink {
	return r.sink
}

// NewEntry starts an info entry attributed to actor
func NewEntry(actor models.Actor, organizationID string, category Category, action string) *Entry {
	return &Entry{
		ActorID:        actor.ID,
		ActorEmail:     actor.Email,
		OrganizationID: organizationID,
		Category:       category,
		Action:         action,
		Severity:       SeverityInfo,
	}
}

// Record appends entry. The error is nil or wraps ErrAuditFailed; callers
// report it as a warning since the mutation it describes is already applied.
func (r *Recorder) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.clock.Now().UTC()
	}
	if entry.Severity == "" {
		entry.Severity = SeverityInfo
	}

	err := entry.Validate()
	if err == nil {
		err = r.sink.Append(ctx, entry)
	}
	if err == nil {
		return nil
	}

	r.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
		"audit_category":  string(entry.Category),
		"audit_action":    entry.Action,
		"organization_id": entry.OrganizationID,
	}).Warn("audit entry not recorded")
	r.metrics.AuditFailure(string(entry.Category))
	return fmt.Errorf("%w: %s %s: %v", ErrAuditFailed, entry.Category, entry.Action, err)
}
