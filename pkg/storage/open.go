package storage

import (
	"context"
	"fmt"

	"github.com/platinummonkey/fxbill/pkg/billing"
	"github.com/platinummonkey/fxbill/pkg/observability"
	"github.com/platinummonkey/fxbill/pkg/storage/firestore"
	"github.com/platinummonkey/fxbill/pkg/storage/postgres"
	"github.com/platinummonkey/fxbill/pkg/storage/redis"
)

// Open connects the configured backend and wraps it with metrics and, when
// enabled, the customer cache.
func Open(ctx context.Context, cfg Config, logger *observability.Logger, metrics *observability.Metrics) (billing.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store billing.Store
		err   error
	)
	switch cfg.Type {
	case TypeRedis:
		store, err = redis.New(ctx, redis.Options{
			URL:        cfg.RedisURL,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			MaxRetries: cfg.RedisMaxRetries,
			PoolSize:   cfg.RedisPoolSize,
			KeyPrefix:  cfg.RedisKeyPrefix,
		})
	case TypePostgres:
		var pg *postgres.Store
		pg, err = postgres.New(ctx, postgres.ConnectionConfig{
			URL:      cfg.PostgresURL,
			MaxConns: cfg.PostgresMaxConns,
			MinConns: cfg.PostgresMinConns,
			Timeout:  cfg.PostgresTimeout,
		})
		if err == nil && cfg.PostgresMigrate {
			if err = pg.Migrate(ctx); err != nil {
				pg.Close()
			}
		}
		store = pg
	case TypeFirestore:
		store, err = firestore.New(ctx, cfg.FirestoreProject)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Type, err)
	}

	logger.WithField("type", cfg.Type).Info("Connected to billing store")

	store = NewInstrumentedStore(store, metrics)
	if cfg.CustomerCacheSize > 0 {
		store = NewCachedStore(store, cfg.CustomerCacheSize, cfg.CustomerCacheTTL, metrics)
	}
	return store, nil
}
