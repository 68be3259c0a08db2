package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Rate source metrics
	RateLookupsTotal   *prometheus.CounterVec
	RateLookupDuration *prometheus.HistogramVec
	LastRate           *prometheus.GaugeVec

	// Payment gateway metrics
	GatewayRequestsTotal   *prometheus.CounterVec
	GatewayRequestDuration *prometheus.HistogramVec

	// Billing period metrics
	PeriodOperationsTotal *prometheus.CounterVec
	IssuedAmountLocal     *prometheus.HistogramVec

	// Store metrics
	StoreOperationsTotal *prometheus.CounterVec
	CustomerCacheTotal   *prometheus.CounterVec

	// Scheduler metrics
	SchedulerRunsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxbill_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fxbill_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		RateLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxbill_rate_lookups_total",
				Help: "Total number of FX rate lookups per source",
			},
			[]string{"source", "outcome"},
		),
		RateLookupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fxbill_rate_lookup_duration_seconds",
				Help:    "FX rate lookup duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
			},
			[]string{"source"},
		),
		LastRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fxbill_rate_last_value",
				Help: "Last valid FX rate observed per source",
			},
			[]string{"source"},
		),

		GatewayRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxbill_gateway_requests_total",
				Help: "Total number of payment preference requests",
			},
			[]string{"adapter", "outcome"},
		),
		GatewayRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fxbill_gateway_request_duration_seconds",
				Help:    "Payment preference request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"adapter"},
		),

		PeriodOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxbill_period_operations_total",
				Help: "Total number of billing period operations",
			},
			[]string{"operation", "outcome"},
		),
		IssuedAmountLocal: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fxbill_issued_amount_local",
				Help:    "Local-currency amount of issued periods",
				Buckets: prometheus.ExponentialBuckets(1000, 2, 12),
			},
			[]string{"currency"},
		),

		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxbill_store_operations_total",
				Help: "Total number of document store operations",
			},
			[]string{"operation", "status"},
		),
		CustomerCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxbill_customer_cache_total",
				Help: "Customer cache lookups by result",
			},
			[]string{"result"},
		),

		SchedulerRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxbill_scheduler_issues_total",
				Help: "Periods handled by the automatic issuing job",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLookupsTotal,
		m.RateLookupDuration,
		m.LastRate,
		m.GatewayRequestsTotal,
		m.GatewayRequestDuration,
		m.PeriodOperationsTotal,
		m.IssuedAmountLocal,
		m.StoreOperationsTotal,
		m.CustomerCacheTotal,
		m.SchedulerRunsTotal,
	)

	return m
}

// ObserveRateLookup records one lookup against a rate source.
// A nil receiver is a no-op so components can run without metrics.
func (m *Metrics) ObserveRateLookup(source, outcome string, rate float64, d time.Duration) {
	if m == nil {
		return
	}
	m.RateLookupsTotal.WithLabelValues(source, outcome).Inc()
	m.RateLookupDuration.WithLabelValues(source).Observe(d.Seconds())
	if outcome == "ok" {
		m.LastRate.WithLabelValues(source).Set(rate)
	}
}

// ObserveGatewayRequest records one preference request
func (m *Metrics) ObserveGatewayRequest(adapter, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequestsTotal.WithLabelValues(adapter, outcome).Inc()
	m.GatewayRequestDuration.WithLabelValues(adapter).Observe(d.Seconds())
}

// ObservePeriodOperation records a generate/regenerate/overview outcome
func (m *Metrics) ObservePeriodOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.PeriodOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveIssuedAmount records the frozen amount of an issued period
func (m *Metrics) ObserveIssuedAmount(currency string, amount float64) {
	if m == nil {
		return
	}
	m.IssuedAmountLocal.WithLabelValues(currency).Observe(amount)
}

// ObserveStoreOperation records a store call
func (m *Metrics) ObserveStoreOperation(operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(operation, status).Inc()
}

// ObserveCustomerCache records a customer cache hit or miss
func (m *Metrics) ObserveCustomerCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CustomerCacheTotal.WithLabelValues(result).Inc()
}

// ObserveSchedulerIssue records one customer handled by the issuing job
func (m *Metrics) ObserveSchedulerIssue(outcome string) {
	if m == nil {
		return
	}
	m.SchedulerRunsTotal.WithLabelValues(outcome).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// The route label is the mux path template so periods do not explode cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
