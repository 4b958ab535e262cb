package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Operation starts a span for service.name and returns a function that ends
// it, records metrics and logs the outcome. Use it with a named error result:
//
//	ctx, done := observability.Operation(ctx, s.logger, s.metrics, "orgs", "CreateOrganization")
//	defer func() { done(err) }()
func Operation(ctx context.Context, logger *Logger, metrics *Metrics, service, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := StartSpan(ctx, service+"."+name, attrs...)
	if logger == nil {
		logger = NopLogger()
	}

	return ctx, func(err error) {
		EndSpan(span, err)
		metrics.ObserveOperation(ctx, service, name, start, err)

		log := logger.WithContext(ctx).WithFields(map[string]interface{}{
			"service":     service,
			"operation":   name,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		switch outcome := Outcome(err); outcome {
		case OutcomeOK:
			log.Debug("operation completed")
		case OutcomeWarning:
			log.WithError(err).Warn("operation applied with warnings")
		case OutcomeError:
			log.WithError(err).Error("operation failed")
		default:
			log.WithError(err).WithField("outcome", outcome).Debug("operation rejected")
		}
	}
}
