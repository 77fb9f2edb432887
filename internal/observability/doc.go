// Package observability provides logging, metrics, and tracing
// for the clusterdesk main process.
//
// # Logging
//
// The Logger interface provides structured logging backed by zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("route dispatched",
//	    observability.String("route", "get /version"),
//	    observability.Int("status", 200),
//	)
//
// # Metrics
//
// Prometheus metrics live on a private registry so that tests and
// embedded servers never collide on the default one:
//
//	metrics := observability.NewMetrics("clusterdesk")
//	mux.Handle("/metrics", metrics.Handler())
//
// # Tracing
//
// OpenTelemetry tracing with optional OTLP export:
//
//	tracer, err := observability.NewTracer(observability.TracerConfig{ServiceName: "clusterdesk"})
//	ctx, span := tracer.StartSpan(ctx, "router.dispatch")
//	defer span.End()
package observability
