package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/fxbill/pkg/httputil"
	"github.com/platinummonkey/fxbill/pkg/middleware"
	"github.com/platinummonkey/fxbill/pkg/observability"
)

// Options wires the server's collaborators. Only Service is required.
type Options struct {
	Service BillingService
	Logger  *observability.Logger

	Health   *observability.HealthChecker
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	BearerToken       string
	DefaultCustomerID string
	CORSOrigins       []string
	// Limiter throttles generate and regenerate per customer; nil disables it
	Limiter middleware.Limiter
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}

	s := &Server{router: mux.NewRouter()}
	s.router.Use(mux.MiddlewareFunc(observability.HTTPMetricsMiddleware(opts.Metrics)))

	if opts.Health != nil {
		s.router.HandleFunc("/healthz", opts.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/readyz", opts.Health.Readiness).Methods(http.MethodGet)
	}
	if opts.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(opts.Registry)).Methods(http.MethodGet)
	}

	var limit func(http.Handler) http.Handler
	if opts.Limiter != nil {
		limit = middleware.RateLimit(opts.Limiter, opts.Logger)
	}
	NewBillingHandlers(opts.Service, opts.Logger, opts.DefaultCustomerID,
		middleware.BearerGuard(opts.BearerToken), limit).RegisterRoutes(s.router)

	chain := httputil.Chain(
		httputil.RecoveryMiddleware(opts.Logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(opts.Logger),
		httputil.CORSMiddleware(opts.CORSOrigins),
		httputil.MaxBytesMiddleware(httputil.DefaultMaxPayload),
	)
	s.handler = otelhttp.NewHandler(chain(s.router), "fxbill-api")

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
