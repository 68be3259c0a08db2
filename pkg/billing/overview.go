package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Overview is the read model of one customer period
type Overview struct {
	Customer    CustomerView   `json:"customer"`
	Period      string         `json:"period"`
	Invoice     Invoice        `json:"invoice"`
	LastPayment *PaymentView   `json:"lastPayment"`
	History     []HistoryEntry `json:"history"`
}

// CustomerView is the customer part of an overview
type CustomerView struct {
	DisplayName string `json:"display_name"`
	PlanID      string `json:"plan_id"`
}

// Invoice is the normalized view of the requested period
type Invoice struct {
	Status             PeriodStatus `json:"status"`
	AvailableAt        *time.Time   `json:"available_at"`
	PaymentLink        *string      `json:"payment_link"`
	InvoicePDFURL      *string      `json:"invoice_pdf_url"`
	IssuedAt           *time.Time   `json:"issued_at"`
	ExpiresAt          *time.Time   `json:"expires_at"`
	AmountLocalAtIssue *float64     `json:"amount_local_at_issue"`
	Currency           *string      `json:"currency"`
}

// PaymentView is the most recent payment of the customer
type PaymentView struct {
	Period        *string    `json:"period"`
	AmountLocal   *float64   `json:"amount_local"`
	PaidAt        *time.Time `json:"paid_at"`
	InvoicePDFURL *string    `json:"invoice_pdf_url"`
}

// HistoryEntry is one past period
type HistoryEntry struct {
	Period        string       `json:"period"`
	Status        PeriodStatus `json:"status"`
	AmountLocal   float64      `json:"amount_local"`
	PaidAt        *time.Time   `json:"paid_at"`
	InvoicePDFURL *string      `json:"invoice_pdf_url"`
}

// Overview builds the overview of a period. It only reads from the store.
func (s *Service) Overview(ctx context.Context, customerID, period string) (*Overview, error) {
	if err := ValidatePeriod(period); err != nil {
		return nil, err
	}

	customer, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	if customer == nil {
		return nil, ErrCustomerNotFound
	}

	out := &Overview{
		Customer: CustomerView{
			DisplayName: customer.DisplayName,
			PlanID:      lo.Ternary(customer.PlanID != "", customer.PlanID, DefaultPlanID),
		},
		Period:  period,
		History: []HistoryEntry{},
	}

	doc, err := s.store.GetPeriod(ctx, customerID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to get period: %w", err)
	}
	if doc == nil {
		available := AvailableAt(s.now(), s.customerLocation(customer))
		out.Invoice = Invoice{
			Status:      PeriodStatusScheduled,
			AvailableAt: &available,
		}
		return out, nil
	}

	out.Invoice = s.invoiceView(doc)

	payment, err := s.store.LatestPayment(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get last payment: %w", err)
	}
	if payment != nil {
		out.LastPayment = &PaymentView{
			Period:        lo.EmptyableToPtr(payment.Period),
			AmountLocal:   payment.TransactionAmount,
			PaidAt:        utc(payment.DateApproved),
			InvoicePDFURL: lo.EmptyableToPtr(payment.InvoicePDFURL),
		}
	}

	periods, err := s.store.ListPeriods(ctx, customerID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	out.History = lo.Map(periods, func(p *BillingPeriod, _ int) HistoryEntry {
		return HistoryEntry{
			Period:        p.Period,
			Status:        statusOf(p),
			AmountLocal:   amountOf(p),
			PaidAt:        utc(p.PaidAt),
			InvoicePDFURL: lo.EmptyableToPtr(p.InvoicePDFURL),
		}
	})

	return out, nil
}

// AvailableAt is the day a scheduled period becomes payable: the 30th of the
// month of now, 09:00 in loc. Months shorter than 30 days roll into the next.
func AvailableAt(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), 30, 9, 0, 0, 0, loc).UTC()
}

// PeriodAvailableAt is AvailableAt for the month named by period, so a short
// month still reports its own rolled over date after the month has ended.
func PeriodAvailableAt(period string, loc *time.Location) (time.Time, error) {
	if err := ValidatePeriod(period); err != nil {
		return time.Time{}, err
	}
	start, _ := time.ParseInLocation("2006-01", period, loc)
	return AvailableAt(start, loc), nil
}

func (s *Service) invoiceView(p *BillingPeriod) Invoice {
	inv := Invoice{
		Status:        statusOf(p),
		AvailableAt:   utc(p.AvailableAt),
		InvoicePDFURL: lo.EmptyableToPtr(p.InvoicePDFURL),
		IssuedAt:      utc(p.IssuedAt),
		ExpiresAt:     utc(p.ExpiresAt),
		Currency:      lo.EmptyableToPtr(p.Currency),
	}
	if inv.AvailableAt == nil {
		inv.AvailableAt = inv.IssuedAt
	}

	amount := amountOf(p)
	inv.AmountLocalAtIssue = &amount

	if inv.Status == PeriodStatusIssued && p.PaymentLink != "" &&
		(p.ExpiresAt == nil || s.now().Before(*p.ExpiresAt)) {
		inv.PaymentLink = lo.ToPtr(p.PaymentLink)
	}
	return inv
}

func (s *Service) customerLocation(c *Customer) *time.Location {
	loc, err := CustomerLocation(c, s.location)
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", c.ID).Warn("Invalid customer timezone, using billing timezone")
	}
	return loc
}

// CustomerLocation returns the customer's timezone, or fallback when it is
// unset or cannot be loaded. The error reports an invalid timezone.
func CustomerLocation(c *Customer, fallback *time.Location) (*time.Location, error) {
	if c == nil || c.Timezone == "" {
		return fallback, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fallback, fmt.Errorf("customer timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func statusOf(p *BillingPeriod) PeriodStatus {
	if p.Status == "" {
		return PeriodStatusScheduled
	}
	return p.Status
}

func amountOf(p *BillingPeriod) float64 {
	if p.AmountLocalAtIssue == nil {
		return 0
	}
	return *p.AmountLocalAtIssue
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
