package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // billing timezones must resolve without host zoneinfo

	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/fxbill/pkg/gateway"
	"github.com/platinummonkey/fxbill/pkg/observability"
	"github.com/platinummonkey/fxbill/pkg/pricing"
	"github.com/platinummonkey/fxbill/pkg/rates"
)

const (
	opGenerate   = "generate"
	opRegenerate = "regenerate"
)

// issueTimeout bounds one issue, which may be shared by several callers
const issueTimeout = 30 * time.Second

// Config holds the billing policy, fixed at startup
type Config struct {
	PriceUSD            float64       `yaml:"price_usd"`
	MarginFX            float64       `yaml:"margin_fx"`
	Currency            string        `yaml:"currency"`
	LinkTTL             time.Duration `yaml:"link_ttl"`
	RepriceOnRegenerate bool          `yaml:"reprice_on_regenerate"`
	Timezone            string        `yaml:"timezone"`
	// ItemTitle is the checkout line title; {period} is replaced
	ItemTitle    string `yaml:"item_title"`
	HistoryLimit int    `yaml:"history_limit"`
}

// DefaultConfig returns the standard monthly plan
func DefaultConfig() Config {
	return Config{
		PriceUSD:     49,
		MarginFX:     0.02,
		Currency:     "ARS",
		LinkTTL:      48 * time.Hour,
		Timezone:     "America/Argentina/Buenos_Aires",
		ItemTitle:    "Servicio mensual EiryBot - {period}",
		HistoryLimit: 12,
	}
}

// RateQuoter returns the current FX rate
type RateQuoter interface {
	GetRate(ctx context.Context) (rates.Quote, error)
}

// PreferenceBuilder creates a payment preference and returns its id and link
type PreferenceBuilder interface {
	BuildPreference(ctx context.Context, in gateway.PreferenceInput) (string, string, error)
}

// PriceQuote is a priced FX rate
type PriceQuote struct {
	PriceUSD    float64 `json:"price_usd"`
	MarginFX    float64 `json:"margin_fx"`
	BaseRate    float64 `json:"base_rate"`
	AppliedRate float64 `json:"applied_rate"`
	LocalAmount float64 `json:"local_amount"`
	Currency    string  `json:"currency"`
	RateSource  string  `json:"rate_source"`
}

// IssueResult is returned by Generate and Regenerate. Quote is nil when the
// frozen amount was reused.
type IssueResult struct {
	Period *BillingPeriod `json:"period"`
	Quote  *PriceQuote    `json:"quote,omitempty"`
}

// Service runs the billing period lifecycle
type Service struct {
	cfg      Config
	location *time.Location
	store    Store
	quoter   RateQuoter
	builder  PreferenceBuilder
	logger   *observability.Logger
	metrics  *observability.Metrics

	group singleflight.Group
	now   func() time.Time
}

// NewService creates a billing service
func NewService(cfg Config, store Store, quoter RateQuoter, builder PreferenceBuilder, logger *observability.Logger, metrics *observability.Metrics) (*Service, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load billing timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 12
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Service{
		cfg:      cfg,
		location: loc,
		store:    store,
		quoter:   quoter,
		builder:  builder,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}, nil
}

// Location is the billing time zone
func (s *Service) Location() *time.Location {
	return s.location
}

// Quote prices the configured plan at the current rate
func (s *Service) Quote(ctx context.Context) (*PriceQuote, error) {
	q, err := s.quoter.GetRate(ctx)
	if err != nil {
		return nil, err
	}

	price, err := pricing.ComputeLocalPrice(s.cfg.PriceUSD, s.cfg.MarginFX, q.Value)
	if err != nil {
		return nil, err
	}

	return &PriceQuote{
		PriceUSD:    s.cfg.PriceUSD,
		MarginFX:    s.cfg.MarginFX,
		BaseRate:    q.Value,
		AppliedRate: price.AppliedRate,
		LocalAmount: price.LocalAmount,
		Currency:    s.cfg.Currency,
		RateSource:  q.Source,
	}, nil
}

// Generate issues a payment link for a period. It succeeds on absent and
// issued periods and fails with ErrAlreadyPaid on paid ones.
func (s *Service) Generate(ctx context.Context, customerID, period string) (*IssueResult, error) {
	return s.run(ctx, opGenerate, customerID, period)
}

// Regenerate re-issues the link of an existing unpaid period
func (s *Service) Regenerate(ctx context.Context, customerID, period string) (*IssueResult, error) {
	return s.run(ctx, opRegenerate, customerID, period)
}

func (s *Service) run(ctx context.Context, op, customerID, period string) (*IssueResult, error) {
	logger := s.logger.WithFields(map[string]interface{}{
		"operation":   op,
		"customer_id": customerID,
		"period":      period,
	})
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}

	if err := ValidatePeriod(period); err != nil {
		s.metrics.ObservePeriodOperation(op, outcome(err))
		return nil, err
	}

	// Concurrent calls for the same key in this process share one result.
	// The shared call outlives any single caller, so it keeps the caller's
	// values but not its cancellation.
	ch := s.group.DoChan(op+":"+PeriodKey(customerID, period), func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), issueTimeout)
		defer cancel()
		return s.issue(ctx, op, customerID, period)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		err := ctx.Err()
		s.metrics.ObservePeriodOperation(op, outcome(err))
		logger.WithError(err).Info("Caller gave up waiting for period operation")
		return nil, err
	}
	if res.Shared {
		logger.Debug("Collapsed duplicate period request")
	}

	err := res.Err
	s.metrics.ObservePeriodOperation(op, outcome(err))
	if err != nil {
		if IsRetryable(err) {
			logger.WithError(err).Error("Period operation failed")
		} else {
			logger.WithError(err).Info("Period operation rejected")
		}
		return nil, err
	}

	issued := res.Val.(*IssueResult)
	logger.WithFields(map[string]interface{}{
		"amount":        *issued.Period.AmountLocalAtIssue,
		"preference_id": issued.Period.PreferenceID,
	}).Info("Period issued")
	return issued, nil
}

func (s *Service) issue(ctx context.Context, op, customerID, period string) (*IssueResult, error) {
	customer, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if customer == nil {
		return nil, ErrCustomerNotFound
	}

	existing, err := s.store.GetPeriod(ctx, customerID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to get period: %w", err)
	}
	if existing == nil && op == opRegenerate {
		return nil, ErrPeriodNotFound
	}
	if existing != nil && existing.Status == PeriodStatusPaid {
		return nil, ErrAlreadyPaid
	}

	amount, currency, quote, err := s.resolveAmount(ctx, op, existing)
	if err != nil {
		return nil, err
	}

	// The gateway carries milliseconds; store the same instant it receives
	now := s.now().UTC().Truncate(time.Millisecond)
	expires := now.Add(s.cfg.LinkTTL)
	key := PeriodKey(customerID, period)

	prefID, link, err := s.builder.BuildPreference(ctx, gateway.PreferenceInput{
		Title:             strings.ReplaceAll(s.cfg.ItemTitle, "{period}", period),
		Quantity:          1,
		UnitPrice:         amount,
		Currency:          currency,
		ExternalReference: key,
		IssuedAt:          now,
		ExpiresAt:         expires,
		Metadata:          s.metadata(period, amount, quote),
	})
	if err != nil {
		return nil, err
	}

	update := &BillingPeriod{
		CustomerID:         customerID,
		Period:             period,
		Status:             PeriodStatusIssued,
		AmountLocalAtIssue: &amount,
		Currency:           currency,
		PaymentLink:        link,
		PreferenceID:       prefID,
		IssuedAt:           &now,
		ExpiresAt:          &expires,
		UpdatedAt:          &now,
	}
	if op == opRegenerate {
		update.LastRegeneratedAt = &now
	}

	if err := s.store.MergePeriod(ctx, update); err != nil {
		return nil, fmt.Errorf("failed to store period %s: %w", key, err)
	}
	if quote != nil {
		s.metrics.ObserveIssuedAmount(currency, amount)
	}

	return &IssueResult{Period: existing.Merge(update), Quote: quote}, nil
}

// resolveAmount returns the frozen amount when one exists, unless the
// regenerate reprice policy is on, and a fresh quote otherwise.
func (s *Service) resolveAmount(ctx context.Context, op string, existing *BillingPeriod) (float64, string, *PriceQuote, error) {
	reprice := op == opRegenerate && s.cfg.RepriceOnRegenerate
	if existing != nil && !reprice && existing.AmountLocalAtIssue != nil && *existing.AmountLocalAtIssue > 0 {
		currency := existing.Currency
		if currency == "" {
			currency = s.cfg.Currency
		}
		return *existing.AmountLocalAtIssue, currency, nil, nil
	}

	quote, err := s.Quote(ctx)
	if err != nil {
		return 0, "", nil, err
	}
	return quote.LocalAmount, quote.Currency, quote, nil
}

func (s *Service) metadata(period string, amount float64, quote *PriceQuote) map[string]interface{} {
	md := map[string]interface{}{
		"period":       period,
		"local_amount": amount,
	}
	if quote == nil {
		md["frozen_amount"] = true
		return md
	}
	md["price_usd"] = quote.PriceUSD
	md["margin_fx"] = quote.MarginFX
	md["base_rate"] = quote.BaseRate
	md["applied_rate"] = quote.AppliedRate
	md["rate_source"] = quote.RateSource
	return md
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrPeriodNotFound):
		return "period_not_found"
	case errors.Is(err, ErrCustomerNotFound):
		return "customer_not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRateUnavailable):
		return "rate_unavailable"
	case errors.Is(err, ErrGateway):
		return "gateway_error"
	default:
		return "error"
	}
}
