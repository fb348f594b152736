// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks, and graceful shutdown for Warden.
//
// # Logging
//
// JSON structured logging via stdlib slog, wrapped in a Logger with
// field chaining:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("account_id", id).Info("account blocked")
//
// # Metrics
//
// Prometheus metrics for HTTP traffic, authorization decisions, sign-in
// guard outcomes and email dispatches, exposed on the health port:
//
//	metrics := observability.NewMetrics(registry)
//	metrics.AuthzDecisionsTotal.WithLabelValues("user.list", "allowed").Inc()
//
// # Tracing
//
// Optional OTLP trace export over gRPC, enabled via configuration. The
// HTTP router is wrapped with otelhttp in pkg/api.
//
// # Related Packages
//
//   - pkg/middleware: HTTP metrics middleware
//   - pkg/api: server wiring
package observability
