// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown for the
// membership engine.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stderr)
//	logger.WithField("organization_id", orgID).Info("organization created")
//
// Loggers pick up the request id and trace and span ids from the context:
//
//	logger.WithContext(ctx).Warn("audit append failed")
//
// # Metrics
//
// Every service operation reports an outcome derived from the error kind:
//
//	start := time.Now()
//	err := doWork()
//	metrics.ObserveOperation(ctx, "orgs", "CreateOrganization", start, err)
//
// A nil *Metrics is valid and records nothing.
//
// # Tracing
//
//	ctx, span := observability.StartSpan(ctx, "orgs.CreateOrganization")
//	defer func() { observability.EndSpan(span, err) }()
package observability
