package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	// billing timezones must resolve on hosts without zoneinfo
	_ "time/tzdata"

	"github.com/platinummonkey/fxbill/pkg/billing"
	"github.com/platinummonkey/fxbill/pkg/config"
	"github.com/platinummonkey/fxbill/pkg/gateway"
	"github.com/platinummonkey/fxbill/pkg/observability"
	"github.com/platinummonkey/fxbill/pkg/rates"
	"github.com/platinummonkey/fxbill/pkg/storage"
)

// app holds the components shared by every command
type app struct {
	cfg      *config.Config
	logger   *observability.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
	otel     *observability.OTelProviders
	store    billing.Store
	service  *billing.Service
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: observability.NewLogger(cfg.Observability.Level(), os.Stderr),
	}

	if cfg.Observability.MetricsEnabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.metrics = observability.NewMetrics(a.registry)
	}

	a.otel, err = observability.InitOTel(ctx, cfg.Observability.OTel(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a.store, err = storage.Open(ctx, cfg.Storage, a.logger, a.metrics)
	if err != nil {
		a.otel.Shutdown(ctx)
		return nil, err
	}

	quoter := rates.NewDefaultEngine(cfg.Rates, a.logger, a.metrics)
	builder, err := gateway.NewBuilder(cfg.Gateway, gateway.NewGateway(cfg.Gateway, a.logger), a.logger, a.metrics)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to create preference builder: %w", err)
	}

	a.service, err = billing.NewService(cfg.Billing, a.store, quoter, builder, a.logger, a.metrics)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("failed to create billing service: %w", err)
	}

	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close store")
		}
	}
	if err := a.otel.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Warn("Failed to flush telemetry")
	}
}
