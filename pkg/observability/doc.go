// Package observability provides structured logging, Prometheus metrics, OpenTelemetry
// tracing, health probes and graceful shutdown for the billing service.
//
// # Structured Logging
//
// The Logger is a thin wrapper over logrus emitting one JSON object per line:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("period", "2026-10").Info("period issued")
//
// Request-scoped fields travel in the context:
//
//	ctx = observability.WithRequestID(ctx, id)
//	observability.FromContext(ctx).Warn("rate source failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveRateLookup("criptoya", "ok", 1234.5, elapsed)
//
// All Observe helpers accept a nil *Metrics.
//
// # Health
//
//	checker := observability.NewHealthChecker(version).AddCritical("store", store)
//	router.HandleFunc("/readyz", checker.Readiness)
package observability
