// Package observability provides structured logging, Prometheus metrics,
// health checks, and graceful shutdown for the Aegis service.
//
// # Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("role", slug).Info("role created")
//
// Loggers are immutable; WithField and friends return derived loggers. Output
// is JSON via stdlib slog, one object per line.
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	handler := observability.HTTPMetricsMiddleware(metrics)(next)
//
// Engine cache counters are exported by periodically copying CacheStats into
// the gauges with UpdateCacheMetrics.
//
// # Health
//
//	checker := observability.NewHealthChecker(db) // db may be nil
//	observability.RegisterHealthRoutes(mux, checker)
//
// A failing snapshot store degrades readiness rather than failing it, since
// authorization answers come from memory.
package observability
