package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/fxbill/pkg/billing"
	"github.com/platinummonkey/fxbill/pkg/httputil"
	"github.com/platinummonkey/fxbill/pkg/middleware"
	"github.com/platinummonkey/fxbill/pkg/observability"
)

// BillingService is the part of billing.Service the handlers use
type BillingService interface {
	Overview(ctx context.Context, customerID, period string) (*billing.Overview, error)
	Generate(ctx context.Context, customerID, period string) (*billing.IssueResult, error)
	Regenerate(ctx context.Context, customerID, period string) (*billing.IssueResult, error)
	Quote(ctx context.Context) (*billing.PriceQuote, error)
}

// IssueResponse is returned by generate and regenerate
type IssueResponse struct {
	OK      bool                   `json:"ok"`
	Period  string                 `json:"period"`
	Invoice *billing.BillingPeriod `json:"invoice"`
	Quote   *billing.PriceQuote    `json:"quote,omitempty"`
}

// BillingHandlers handles billing-related HTTP requests
type BillingHandlers struct {
	billingService BillingService
	logger         *observability.Logger

	customer func(http.Handler) http.Handler
	guard    func(http.Handler) http.Handler
	limit    func(http.Handler) http.Handler
}

// NewBillingHandlers creates a new BillingHandlers. guard protects generate
// and regenerate before the customer is resolved; limit runs after it so
// limits apply per customer. Either may be nil.
func NewBillingHandlers(billingService BillingService, logger *observability.Logger, defaultCustomerID string, guard, limit func(http.Handler) http.Handler) *BillingHandlers {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &BillingHandlers{
		billingService: billingService,
		logger:         logger,
		customer:       middleware.CustomerMiddleware(defaultCustomerID),
		guard:          orIdentity(guard),
		limit:          orIdentity(limit),
	}
}

func orIdentity(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return httputil.Chain()
	}
	return mw
}

// RegisterRoutes registers billing routes
func (h *BillingHandlers) RegisterRoutes(router *mux.Router) {
	issue := httputil.Chain(h.guard, h.customer, h.limit)

	router.Handle("/bff/billing/{period}/overview",
		h.customer(http.HandlerFunc(h.GetOverview))).Methods(http.MethodGet)
	router.Handle("/bff/billing/{period}/generate",
		issue(http.HandlerFunc(h.Generate))).Methods(http.MethodPost)
	router.Handle("/bff/billing/{period}/regenerate",
		issue(http.HandlerFunc(h.Regenerate))).Methods(http.MethodPost)

	router.HandleFunc("/billing/quote", h.GetQuote).Methods(http.MethodGet)
	router.HandleFunc("/billing/webhook", h.HandleWebhook).Methods(http.MethodPost)
}

// GetOverview returns the overview of a customer period
func (h *BillingHandlers) GetOverview(w http.ResponseWriter, r *http.Request) {
	period, ok := httputil.ParsePathStringOrError(w, r, "period")
	if !ok {
		return
	}

	overview, err := h.billingService.Overview(r.Context(), middleware.CustomerID(r), period)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, overview)
}

// Generate issues a period
func (h *BillingHandlers) Generate(w http.ResponseWriter, r *http.Request) {
	h.issuePeriod(w, r, h.billingService.Generate)
}

// Regenerate renews the payment link of an issued period
func (h *BillingHandlers) Regenerate(w http.ResponseWriter, r *http.Request) {
	h.issuePeriod(w, r, h.billingService.Regenerate)
}

func (h *BillingHandlers) issuePeriod(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (*billing.IssueResult, error)) {
	period, ok := httputil.ParsePathStringOrError(w, r, "period")
	if !ok {
		return
	}

	result, err := op(r.Context(), middleware.CustomerID(r), period)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, IssueResponse{
		OK:      true,
		Period:  period,
		Invoice: result.Period,
		Quote:   result.Quote,
	})
}

// GetQuote previews the current rate and local price
func (h *BillingHandlers) GetQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.billingService.Quote(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, quote)
}

// HandleWebhook logs gateway notifications. It has no effect on stored
// periods and always acknowledges.
func (h *BillingHandlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.WithField("request_id", observability.GetRequestID(r.Context()))

	payload, err := httputil.ReadPayload(r, httputil.DefaultMaxPayload)
	if err != nil {
		logger.WithError(err).Warn("Failed to read gateway notification")
	} else {
		logger.WithField("payload", payload).Info("Gateway notification received")
	}

	httputil.WriteText(w, http.StatusOK, "OK")
}

// statusFor maps a service error to its HTTP status and stable code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, billing.ErrAlreadyPaid):
		return http.StatusBadRequest, "already_paid"
	case errors.Is(err, billing.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, billing.ErrCustomerNotFound):
		return http.StatusNotFound, "customer_not_found"
	case errors.Is(err, billing.ErrPeriodNotFound):
		return http.StatusNotFound, "period_not_found"
	case errors.Is(err, billing.ErrRateUnavailable):
		return http.StatusServiceUnavailable, "rate_unavailable"
	case errors.Is(err, billing.ErrGateway):
		return http.StatusBadGateway, "gateway_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *BillingHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		observability.LoggerWithTrace(r.Context(), h.logger).
			WithError(err).
			WithField("request_id", observability.GetRequestID(r.Context())).
			WithField("path", r.URL.Path).
			Error("Billing request failed")
	}
	httputil.WriteErrorMessage(w, status, code)
}
