package rates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/platinummonkey/fxbill/pkg/observability"
)

var tracer = otel.Tracer("fxbill/rates")

// ErrRateUnavailable is returned when every configured source failed
var ErrRateUnavailable = errors.New("rate_unavailable")

// Quote is a validated rate and the name of the source that produced it
type Quote struct {
	Value  float64 `json:"value"`
	Source string  `json:"source"`
}

// Config holds the rate source settings
type Config struct {
	PrimaryURL   string        `yaml:"primary_url"`
	SecondaryURL string        `yaml:"secondary_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the production source endpoints
func DefaultConfig() Config {
	return Config{
		PrimaryURL:   DefaultPrimaryURL,
		SecondaryURL: DefaultSecondaryURL,
		Timeout:      DefaultTimeout,
	}
}

// Engine queries sources in order and returns the first valid rate.
// Each source is tried once; there are no retries.
type Engine struct {
	sources []Source
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewEngine creates an engine over the given sources, tried in order
func NewEngine(logger *observability.Logger, metrics *observability.Metrics, sources ...Source) *Engine {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Engine{
		sources: sources,
		logger:  logger,
		metrics: metrics,
	}
}

// NewDefaultEngine wires the primary (criptoya) and secondary (dolarapi)
// sources with a traced HTTP client.
func NewDefaultEngine(cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	primary := NewHTTPSource("criptoya", cfg.PrimaryURL, client, cfg.Timeout, PrimaryExtractors()...)
	secondary := NewHTTPSource("dolarapi", cfg.SecondaryURL, client, cfg.Timeout, SecondaryExtractors()...)

	return NewEngine(logger, metrics, primary, secondary)
}

// GetRate returns the first valid quote
func (e *Engine) GetRate(ctx context.Context) (Quote, error) {
	ctx, span := tracer.Start(ctx, "GetRate")
	defer span.End()

	var errs []error
	for _, src := range e.sources {
		rate, err := e.fetch(ctx, src)
		if err != nil {
			e.logger.WithError(err).WithField("source", src.Name()).Warn("Rate source failed")
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		span.SetAttributes(
			attribute.String("rate.source", src.Name()),
			attribute.Float64("rate.value", rate),
		)
		span.SetStatus(codes.Ok, "rate resolved")
		return Quote{Value: rate, Source: src.Name()}, nil
	}

	err := fmt.Errorf("%w: %w", ErrRateUnavailable, errors.Join(errs...))
	span.RecordError(err)
	span.SetStatus(codes.Error, "all rate sources failed")
	return Quote{}, err
}

func (e *Engine) fetch(ctx context.Context, src Source) (float64, error) {
	ctx, span := tracer.Start(ctx, "FetchRate")
	defer span.End()
	span.SetAttributes(attribute.String("rate.source", src.Name()))

	start := time.Now()
	rate, err := src.Fetch(ctx)
	if err == nil {
		// sources are trusted to validate, but a custom one may not
		if _, ok := ParseRate(rate); !ok {
			err = fmt.Errorf("%w: %v", ErrNoRate, rate)
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate lookup failed")
		e.metrics.ObserveRateLookup(src.Name(), "error", 0, time.Since(start))
		return 0, err
	}

	e.metrics.ObserveRateLookup(src.Name(), "ok", rate, time.Since(start))
	return rate, nil
}
