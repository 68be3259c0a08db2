package storage

import (
	"fmt"
	"time"
)

// Backend types
const (
	TypeRedis     = "redis"
	TypePostgres  = "postgres"
	TypeFirestore = "firestore"
)

// Config for the billing document store
type Config struct {
	Type string `yaml:"type"` // "redis", "postgres", "firestore"

	// Redis config
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
	RedisKeyPrefix  string `yaml:"redis_key_prefix"`

	// PostgreSQL config
	PostgresURL      string        `yaml:"postgres_url"`
	PostgresMaxConns int           `yaml:"postgres_max_conns"`
	PostgresMinConns int           `yaml:"postgres_min_conns"`
	PostgresTimeout  time.Duration `yaml:"postgres_timeout"`
	PostgresMigrate  bool          `yaml:"postgres_migrate"`

	// Firestore config
	FirestoreProject string `yaml:"firestore_project"`

	// Customer cache config; a zero size disables the cache
	CustomerCacheSize int           `yaml:"customer_cache_size"`
	CustomerCacheTTL  time.Duration `yaml:"customer_cache_ttl"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:              TypeRedis,
		RedisURL:          "redis://localhost:6379/0",
		RedisMaxRetries:   3,
		RedisPoolSize:     10,
		RedisKeyPrefix:    "fxbill:",
		PostgresMaxConns:  20,
		PostgresMinConns:  2,
		PostgresTimeout:   10 * time.Second,
		PostgresMigrate:   true,
		CustomerCacheSize: 1024,
		CustomerCacheTTL:  5 * time.Minute,
	}
}

// Validate checks that the selected backend is configured
func (c Config) Validate() error {
	switch c.Type {
	case TypeRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("redis store requires a redis URL")
		}
	case TypePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("postgres store requires a postgres URL")
		}
	case TypeFirestore:
		if c.FirestoreProject == "" {
			return fmt.Errorf("firestore store requires a project id")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Type)
	}
	if c.CustomerCacheSize > 0 && c.CustomerCacheTTL <= 0 {
		return fmt.Errorf("customer cache TTL must be positive")
	}
	return nil
}
