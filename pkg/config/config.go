package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/fxbill/pkg/billing"
	"github.com/platinummonkey/fxbill/pkg/gateway"
	"github.com/platinummonkey/fxbill/pkg/middleware"
	"github.com/platinummonkey/fxbill/pkg/observability"
	"github.com/platinummonkey/fxbill/pkg/rates"
	"github.com/platinummonkey/fxbill/pkg/scheduler"
	"github.com/platinummonkey/fxbill/pkg/storage"
)

// FileEnv names the optional YAML file applied before the environment
const FileEnv = "BILLING_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Billing       billing.Config      `yaml:"billing"`
	Rates         rates.Config        `yaml:"rates"`
	Gateway       gateway.Config      `yaml:"gateway"`
	Storage       storage.Config      `yaml:"storage"`
	Scheduler     scheduler.Config    `yaml:"scheduler"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// AuthConfig controls the bearer guard, customer identification and the
// rate limit on issuing routes
type AuthConfig struct {
	BearerToken       string   `yaml:"bearer_token"`
	DefaultCustomerID string   `yaml:"default_customer_id"`
	CORSOrigins       []string `yaml:"cors_origins"`

	RateLimitEnabled bool                       `yaml:"rate_limit_enabled"`
	RateLimit        middleware.RateLimitConfig `yaml:"rate_limit"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return parseLogLevel(o.LogLevel)
}

// OTel converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			RateLimitEnabled: true,
			RateLimit:        *middleware.DefaultRateLimitConfig(),
		},
		Billing: billing.DefaultConfig(),
		Rates:   rates.DefaultConfig(),
		Gateway: gateway.DefaultConfig(),
		Storage: storage.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "fxbill",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file
// named by BILLING_CONFIG_FILE, and then environment variables.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("BILLING_HOST", s.Host)
	s.Port = getEnv("BILLING_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("BILLING_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("BILLING_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("BILLING_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("BILLING_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)

	a := &c.Auth
	a.BearerToken = getEnv("BILLING_BEARER_TOKEN", a.BearerToken)
	a.DefaultCustomerID = getEnv("BILLING_DEFAULT_CUSTOMER_ID", a.DefaultCustomerID)
	a.CORSOrigins = getEnvList("BILLING_CORS_ORIGINS", a.CORSOrigins)
	a.RateLimitEnabled = getEnvBool("BILLING_RATE_LIMIT_ENABLED", a.RateLimitEnabled)
	a.RateLimit.RequestsPerWindow = getEnvInt("BILLING_RATE_LIMIT_REQUESTS", a.RateLimit.RequestsPerWindow)
	a.RateLimit.WindowDuration = getEnvDuration("BILLING_RATE_LIMIT_WINDOW", a.RateLimit.WindowDuration)
	a.RateLimit.BurstSize = getEnvInt("BILLING_RATE_LIMIT_BURST", a.RateLimit.BurstSize)

	b := &c.Billing
	b.PriceUSD = getEnvFloat("BILLING_PRICE_USD", b.PriceUSD)
	b.MarginFX = getEnvFloat("BILLING_MARGIN_FX", b.MarginFX)
	b.Currency = getEnv("BILLING_CURRENCY_ID", b.Currency)
	if hours := getEnvInt("BILLING_EXPIRES_H", 0); hours > 0 {
		b.LinkTTL = time.Duration(hours) * time.Hour
	}
	b.RepriceOnRegenerate = getEnvBool("BILLING_REPRICE_ON_REGENERATE", b.RepriceOnRegenerate)
	b.Timezone = getEnv("BILLING_TIMEZONE", b.Timezone)
	b.ItemTitle = getEnv("BILLING_ITEM_TITLE", b.ItemTitle)
	b.HistoryLimit = getEnvInt("BILLING_HISTORY_LIMIT", b.HistoryLimit)

	r := &c.Rates
	r.PrimaryURL = getEnv("BILLING_RATE_PRIMARY_URL", r.PrimaryURL)
	r.SecondaryURL = getEnv("BILLING_RATE_SECONDARY_URL", r.SecondaryURL)
	r.Timeout = getEnvDuration("BILLING_RATE_TIMEOUT", r.Timeout)

	g := &c.Gateway
	g.AccessToken = getEnv("MP_ACCESS_TOKEN", g.AccessToken)
	g.BaseURL = getEnv("MP_BASE_URL", g.BaseURL)
	g.UseSandbox = getEnvBool("MP_USE_SANDBOX", g.UseSandbox)
	g.Timeout = getEnvDuration("MP_TIMEOUT", g.Timeout)
	g.FXOffset = getEnv("BILLING_FX_OFFSET", g.FXOffset)
	g.BackURLBase = getEnv("BILLING_BACK_URL_BASE", g.BackURLBase)
	g.NotificationURL = getEnv("BILLING_NOTIFICATION_URL", g.NotificationURL)

	st := &c.Storage
	st.Type = getEnv("BILLING_STORE", st.Type)
	st.RedisURL = getEnv("BILLING_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("BILLING_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("BILLING_REDIS_DB", st.RedisDB)
	st.RedisKeyPrefix = getEnv("BILLING_REDIS_KEY_PREFIX", st.RedisKeyPrefix)
	st.PostgresURL = getEnv("BILLING_POSTGRES_URL", st.PostgresURL)
	st.PostgresMaxConns = getEnvInt("BILLING_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("BILLING_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("BILLING_POSTGRES_TIMEOUT", st.PostgresTimeout)
	st.PostgresMigrate = getEnvBool("BILLING_POSTGRES_MIGRATE", st.PostgresMigrate)
	st.FirestoreProject = getEnv("BILLING_FIRESTORE_PROJECT", st.FirestoreProject)
	st.CustomerCacheSize = getEnvInt("BILLING_CUSTOMER_CACHE_SIZE", st.CustomerCacheSize)
	st.CustomerCacheTTL = getEnvDuration("BILLING_CUSTOMER_CACHE_TTL", st.CustomerCacheTTL)

	sc := &c.Scheduler
	sc.Enabled = getEnvBool("BILLING_SCHEDULER_ENABLED", sc.Enabled)
	sc.Schedule = getEnv("BILLING_SCHEDULE", sc.Schedule)
	sc.Concurrency = getEnvInt("BILLING_SCHEDULER_CONCURRENCY", sc.Concurrency)

	o := &c.Observability
	o.LogLevel = getEnv("BILLING_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("BILLING_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("BILLING_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("BILLING_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("BILLING_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("BILLING_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("BILLING_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("BILLING_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Auth.RateLimitEnabled && (c.Auth.RateLimit.RequestsPerWindow <= 0 || c.Auth.RateLimit.WindowDuration <= 0) {
		return fmt.Errorf("rate limit needs a positive request count and window")
	}

	if !(c.Billing.PriceUSD > 0) || math.IsInf(c.Billing.PriceUSD, 0) {
		return fmt.Errorf("price must be positive and finite, got %v", c.Billing.PriceUSD)
	}
	if !(c.Billing.MarginFX >= 0) || math.IsInf(c.Billing.MarginFX, 0) {
		return fmt.Errorf("FX margin must be finite and not negative, got %v", c.Billing.MarginFX)
	}
	if c.Billing.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if c.Billing.LinkTTL <= 0 {
		return fmt.Errorf("payment link TTL must be positive")
	}
	if _, err := time.LoadLocation(c.Billing.Timezone); err != nil {
		return fmt.Errorf("invalid billing timezone %q: %w", c.Billing.Timezone, err)
	}

	if c.Rates.PrimaryURL == "" && c.Rates.SecondaryURL == "" {
		return fmt.Errorf("at least one rate source URL is required")
	}

	if _, err := gateway.ParseOffset(c.Gateway.FXOffset); err != nil {
		return err
	}

	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if c.Scheduler.Enabled && c.Scheduler.Schedule == "" {
		return fmt.Errorf("schedule is required when the scheduler is enabled")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
