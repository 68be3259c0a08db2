// Package gateway builds payment preferences with an external checkout
// provider.
//
// One Gateway adapter is chosen at startup: MercadoPago when an access token is
// configured, Demo otherwise. The Builder turns an issued billing period into a
// PreferenceRequest and encodes the expiration window in the configured UTC
// offset.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/fxbill/pkg/observability"
)

// ErrGateway wraps every failure returned by a gateway call
var ErrGateway = errors.New("gateway_error")

const (
	// DefaultBaseURL is the Mercado Pago REST API
	DefaultBaseURL = "https://api.mercadopago.com"
	// DefaultTimeout bounds a single preference request
	DefaultTimeout = 10 * time.Second
)

// Gateway creates preferences with a checkout provider
type Gateway interface {
	Name() string
	CreatePreference(ctx context.Context, req *PreferenceRequest) (*Preference, error)
}

// Config holds the gateway settings
type Config struct {
	AccessToken     string        `yaml:"access_token"`
	BaseURL         string        `yaml:"base_url"`
	UseSandbox      bool          `yaml:"use_sandbox"`
	Timeout         time.Duration `yaml:"timeout"`
	FXOffset        string        `yaml:"fx_offset"`
	BackURLBase     string        `yaml:"back_url_base"`
	NotificationURL string        `yaml:"notification_url"`
}

// DefaultConfig returns a demo-mode configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Timeout:     DefaultTimeout,
		FXOffset:    "-03:00",
		BackURLBase: "http://localhost:8080",
	}
}

// Item is a single line of a preference
type Item struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

// BackURLs are where the checkout redirects the payer
type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// PreferenceRequest is the body sent to the gateway
type PreferenceRequest struct {
	Items              []Item                 `json:"items"`
	ExternalReference  string                 `json:"external_reference"`
	BackURLs           *BackURLs              `json:"back_urls,omitempty"`
	AutoReturn         string                 `json:"auto_return,omitempty"`
	NotificationURL    string                 `json:"notification_url,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	Expires            bool                   `json:"expires"`
	ExpirationDateFrom string                 `json:"expiration_date_from,omitempty"`
	ExpirationDateTo   string                 `json:"expiration_date_to,omitempty"`
}

// Preference is the gateway's answer
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// NewGateway selects the adapter for cfg
func NewGateway(cfg Config, logger *observability.Logger) Gateway {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if cfg.AccessToken == "" {
		logger.Warn("No gateway access token configured, using demo checkout links")
		return NewDemo(cfg.BackURLBase)
	}
	return NewMercadoPago(cfg.BaseURL, cfg.AccessToken, cfg.Timeout)
}
