package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/fxbill/pkg/observability"
)

// PreferenceInput describes one payable period
type PreferenceInput struct {
	Title             string
	Quantity          int
	UnitPrice         float64
	Currency          string
	ExternalReference string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	Metadata          map[string]interface{}
}

// Builder turns a PreferenceInput into a gateway request
type Builder struct {
	gateway         Gateway
	offset          *time.Location
	backURLBase     string
	notificationURL string
	useSandbox      bool
	logger          *observability.Logger
	metrics         *observability.Metrics
}

// NewBuilder creates a builder. It fails only on an invalid offset.
func NewBuilder(cfg Config, gw Gateway, logger *observability.Logger, metrics *observability.Metrics) (*Builder, error) {
	offset, err := ParseOffset(cfg.FXOffset)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Builder{
		gateway:         gw,
		offset:          offset,
		backURLBase:     strings.TrimRight(cfg.BackURLBase, "/"),
		notificationURL: cfg.NotificationURL,
		useSandbox:      cfg.UseSandbox,
		logger:          logger,
		metrics:         metrics,
	}, nil
}

// Request builds the gateway request for in without sending it
func (b *Builder) Request(in PreferenceInput) *PreferenceRequest {
	quantity := in.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	req := &PreferenceRequest{
		Items: []Item{{
			Title:      in.Title,
			Quantity:   quantity,
			UnitPrice:  in.UnitPrice,
			CurrencyID: in.Currency,
		}},
		ExternalReference:  in.ExternalReference,
		NotificationURL:    b.notificationURL,
		Metadata:           in.Metadata,
		Expires:            true,
		ExpirationDateFrom: FormatInOffset(in.IssuedAt, b.offset),
		ExpirationDateTo:   FormatInOffset(in.ExpiresAt, b.offset),
	}

	if b.backURLBase != "" {
		req.BackURLs = &BackURLs{
			Success: b.backURLBase + "/billing/success",
			Failure: b.backURLBase + "/billing/failure",
			Pending: b.backURLBase + "/billing/pending",
		}
		req.AutoReturn = "approved"
	}
	return req
}

// BuildPreference creates the preference and returns its id and payment link.
// Every failure wraps ErrGateway.
func (b *Builder) BuildPreference(ctx context.Context, in PreferenceInput) (string, string, error) {
	if in.ExternalReference == "" {
		return "", "", fmt.Errorf("%w: external reference is required", ErrGateway)
	}

	start := time.Now()
	pref, err := b.gateway.CreatePreference(ctx, b.Request(in))
	if err != nil {
		b.metrics.ObserveGatewayRequest(b.gateway.Name(), "error", time.Since(start))
		b.logger.WithError(err).WithFields(map[string]interface{}{
			"adapter":            b.gateway.Name(),
			"external_reference": in.ExternalReference,
		}).Error("Failed to create payment preference")
		return "", "", fmt.Errorf("%w: %w", ErrGateway, err)
	}
	b.metrics.ObserveGatewayRequest(b.gateway.Name(), "ok", time.Since(start))

	link := pref.InitPoint
	if b.useSandbox && pref.SandboxInitPoint != "" {
		link = pref.SandboxInitPoint
	}
	if link == "" {
		return "", "", fmt.Errorf("%w: preference %s has no payment link", ErrGateway, pref.ID)
	}
	return pref.ID, link, nil
}

