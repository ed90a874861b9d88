// Package observability provides structured logging, Prometheus metrics,
// health probes and OpenTelemetry setup for the medora services.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("role_id", id).Info("role updated")
//
// Request-scoped loggers are stored in the context by the HTTP logging
// middleware and retrieved with FromContext, which attaches the request ID.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.AuthzDecisionsTotal.WithLabelValues("role.read", "deny").Inc()
//
// HTTPMetricsMiddleware labels requests by mux route template, never by raw
// path, so resource ids do not create new series.
//
// # Health Checks
//
// HealthChecker serves /healthz (liveness) and /readyz (database and Redis).
// A Redis outage reports degraded, a database outage reports unhealthy (503).
package observability
