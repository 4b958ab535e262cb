package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/membership/pkg/observability"
)

// maxPendingErrors caps the asynchronous failures kept for Errors and Close
const maxPendingErrors = 100

// MultiSink appends every entry to several sinks
type MultiSink struct {
	sinks   []Sink
	async   bool
	logger  *observability.Logger
	metrics *observability.Metrics

	wg      sync.WaitGroup
	mu      sync.Mutex
	errs    []error
	dropped int
}

// NewMultiSink creates a synchronous fan-out sink
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, logger: observability.NopLogger()}
}

// SetAsync switches to fire-and-forget appends. Failures are logged and
// counted as they happen, and the most recent ones are reported by Errors
// and Close.
func (m *MultiSink) SetAsync(async bool) {
	m.async = async
}

// SetLogger sets the logger used to report asynchronous failures
func (m *MultiSink) SetLogger(logger *observability.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// SetMetrics sets the metrics counting asynchronous failures
func (m *MultiSink) SetMetrics(metrics *observability.Metrics) {
	m.metrics = metrics
}

// Append writes to every sink. In synchronous mode every sink is attempted
// and the failures are joined.
func (m *MultiSink) Append(ctx context.Context, entry *Entry) error {
	if m.async {
		for _, s := range m.sinks {
			m.wg.Add(1)
			go func(s Sink) {
				defer m.wg.Done()
				if err := s.Append(context.WithoutCancel(ctx), entry); err != nil {
					m.asyncFailure(ctx, entry, err)
				}
			}(s)
		}
		return nil
	}

	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) asyncFailure(ctx context.Context, entry *Entry, err error) {
	m.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
		"audit_category":  string(entry.Category),
		"audit_action":    entry.Action,
		"organization_id": entry.OrganizationID,
	}).Warn("asynchronous audit append failed")
	m.metrics.AuditFailure(string(entry.Category))

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.errs) >= maxPendingErrors {
		m.errs = m.errs[1:]
		m.dropped++
	}
	m.errs = append(m.errs, err)
}

// Wait blocks until pending asynchronous appends finish
func (m *MultiSink) Wait() {
	m.wg.Wait()
}

// Errors drains failures collected from asynchronous appends. When more
// than maxPendingErrors accumulated, the oldest are replaced by one error
// counting them.
func (m *MultiSink) Errors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	errs := m.errs
	if m.dropped > 0 {
		errs = append([]error{fmt.Errorf("%d earlier asynchronous audit failures not retained", m.dropped)}, errs...)
	}
	m.errs = nil
	m.dropped = 0
	return errs
}

// Close waits for pending appends and closes every sink
func (m *MultiSink) Close() error {
	m.Wait()
	errs := m.Errors()
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
