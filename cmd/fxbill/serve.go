package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goredis "github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/fxbill/pkg/api"
	"github.com/platinummonkey/fxbill/pkg/middleware"
	"github.com/platinummonkey/fxbill/pkg/observability"
	"github.com/platinummonkey/fxbill/pkg/scheduler"
	"github.com/platinummonkey/fxbill/pkg/storage"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the billing HTTP API",
		RunE:  runServe,
	}

	cmd.Flags().Bool("no-scheduler", false, "Do not run the issuing job in this process")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	cfg := a.cfg

	health := observability.NewHealthChecker(cfg.Observability.OTelServiceVersion).
		AddCritical("store", a.store)

	limiter, closeLimiter, err := newLimiter(ctx, a)
	if err != nil {
		a.close(ctx)
		return err
	}

	handler := api.NewServer(api.Options{
		Service:           a.service,
		Logger:            a.logger,
		Health:            health,
		Registry:          a.registry,
		Metrics:           a.metrics,
		BearerToken:       cfg.Auth.BearerToken,
		DefaultCustomerID: cfg.Auth.DefaultCustomerID,
		CORSOrigins:       cfg.Auth.CORSOrigins,
		Limiter:           limiter,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(a.logger, server, cfg.Server.ShutdownTimeout)
	shutdown.Register("telemetry", a.otel.Shutdown)
	shutdown.Register("store", func(context.Context) error { return a.store.Close() })
	shutdown.Register("rate limiter", closeLimiter)

	if noScheduler, _ := cmd.Flags().GetBool("no-scheduler"); cfg.Scheduler.Enabled && !noScheduler {
		sched, err := scheduler.New(cfg.Scheduler, a.store, a.service, a.logger, a.metrics)
		if err != nil {
			a.close(ctx)
			return err
		}
		sched.Start()
		shutdown.Register("scheduler", sched.Stop)
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.WithField("addr", server.Addr).Info("Starting billing API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sigCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	listenErr := make(chan error, 1)
	go func() {
		if err := <-serveErr; err != nil {
			a.logger.WithError(err).Error("HTTP server failed")
			listenErr <- err
			cancel()
		}
	}()

	shutdownErr := shutdown.WaitForSignal(sigCtx)
	select {
	case err := <-listenErr:
		return errors.Join(err, shutdownErr)
	default:
		return shutdownErr
	}
}

// newLimiter shares limits through Redis when the store is Redis, otherwise
// keeps them in process. It returns a nil limiter when rate limiting is
// disabled.
func newLimiter(ctx context.Context, a *app) (middleware.Limiter, observability.ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }

	auth := a.cfg.Auth
	if !auth.RateLimitEnabled {
		return nil, noop, nil
	}

	st := a.cfg.Storage
	if st.Type != storage.TypeRedis {
		limiter := middleware.NewRateLimiter(&auth.RateLimit)
		limiter.StartCleanup(ctx, a.logger)
		return limiter, noop, nil
	}

	opts, err := goredis.ParseURL(st.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if st.RedisPassword != "" {
		opts.Password = st.RedisPassword
	}
	if st.RedisDB > 0 {
		opts.DB = st.RedisDB
	}
	client := goredis.NewClient(opts)
	limiter := middleware.NewDistributedRateLimiter(client, &auth.RateLimit, st.RedisKeyPrefix+"ratelimit")
	return limiter, func(context.Context) error { return client.Close() }, nil
}
