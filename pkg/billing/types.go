package billing

import (
	"fmt"
	"time"
)

// PeriodStatus is the lifecycle state of a billing period
type PeriodStatus string

const (
	// PeriodStatusScheduled is the virtual state of a period with no document
	PeriodStatusScheduled PeriodStatus = "scheduled"
	PeriodStatusIssued    PeriodStatus = "issued"
	PeriodStatusPaid      PeriodStatus = "paid"
)

// DefaultPlanID is reported for customers without a plan
const DefaultPlanID = "basic_startup"

// Customer is read from the customer directory, never written here
type Customer struct {
	ID          string `json:"id" firestore:"-"`
	DisplayName string `json:"display_name" firestore:"display_name"`
	PlanID      string `json:"plan_id,omitempty" firestore:"plan_id"`
	Timezone    string `json:"timezone,omitempty" firestore:"timezone"`
}

// BillingPeriod is the stored document for one (customer, period) pair.
// Unset fields are nil or empty and are left untouched by a merge.
type BillingPeriod struct {
	CustomerID         string       `json:"customer_id,omitempty"`
	Period             string       `json:"period,omitempty"`
	Status             PeriodStatus `json:"status,omitempty"`
	AmountLocalAtIssue *float64     `json:"amount_local_at_issue,omitempty"`
	Currency           string       `json:"currency,omitempty"`
	PaymentLink        string       `json:"payment_link,omitempty"`
	PreferenceID       string       `json:"preference_id,omitempty"`
	AvailableAt        *time.Time   `json:"available_at,omitempty"`
	IssuedAt           *time.Time   `json:"issued_at,omitempty"`
	ExpiresAt          *time.Time   `json:"expires_at,omitempty"`
	LastRegeneratedAt  *time.Time   `json:"last_regenerated_at,omitempty"`
	PaidAt             *time.Time   `json:"paid_at,omitempty"`
	InvoicePDFURL      string       `json:"invoice_pdf_url,omitempty"`
	UpdatedAt          *time.Time   `json:"updated_at,omitempty"`
}

// Fields returns the set fields keyed by document field name. Store adapters
// write exactly these keys so a merge never clears existing data.
func (p *BillingPeriod) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	setString := func(key, v string) {
		if v != "" {
			fields[key] = v
		}
	}
	setTime := func(key string, v *time.Time) {
		if v != nil {
			fields[key] = v.UTC()
		}
	}

	setString("customer_id", p.CustomerID)
	setString("period", p.Period)
	setString("status", string(p.Status))
	if p.AmountLocalAtIssue != nil {
		fields["amount_local_at_issue"] = *p.AmountLocalAtIssue
	}
	setString("currency", p.Currency)
	setString("payment_link", p.PaymentLink)
	setString("preference_id", p.PreferenceID)
	setTime("available_at", p.AvailableAt)
	setTime("issued_at", p.IssuedAt)
	setTime("expires_at", p.ExpiresAt)
	setTime("last_regenerated_at", p.LastRegeneratedAt)
	setTime("paid_at", p.PaidAt)
	setString("invoice_pdf_url", p.InvoicePDFURL)
	setTime("updated_at", p.UpdatedAt)
	return fields
}

// Merge returns a copy of p with every set field of update applied.
// A nil p behaves like an empty document.
func (p *BillingPeriod) Merge(update *BillingPeriod) *BillingPeriod {
	var out BillingPeriod
	if p != nil {
		out = *p
	}
	if update == nil {
		return &out
	}

	mergeString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	mergeTime := func(dst **time.Time, v *time.Time) {
		if v != nil {
			t := *v
			*dst = &t
		}
	}

	mergeString(&out.CustomerID, update.CustomerID)
	mergeString(&out.Period, update.Period)
	if update.Status != "" {
		out.Status = update.Status
	}
	if update.AmountLocalAtIssue != nil {
		amount := *update.AmountLocalAtIssue
		out.AmountLocalAtIssue = &amount
	}
	mergeString(&out.Currency, update.Currency)
	mergeString(&out.PaymentLink, update.PaymentLink)
	mergeString(&out.PreferenceID, update.PreferenceID)
	mergeTime(&out.AvailableAt, update.AvailableAt)
	mergeTime(&out.IssuedAt, update.IssuedAt)
	mergeTime(&out.ExpiresAt, update.ExpiresAt)
	mergeTime(&out.LastRegeneratedAt, update.LastRegeneratedAt)
	mergeTime(&out.PaidAt, update.PaidAt)
	mergeString(&out.InvoicePDFURL, update.InvoicePDFURL)
	mergeTime(&out.UpdatedAt, update.UpdatedAt)
	return &out
}

// Payment is an approved payment record written by the payment processor
type Payment struct {
	CustomerID        string     `json:"customer_id"`
	Period            string     `json:"period,omitempty"`
	TransactionAmount *float64   `json:"transaction_amount,omitempty"`
	DateApproved      *time.Time `json:"date_approved,omitempty"`
	InvoicePDFURL     string     `json:"invoice_pdf_url,omitempty"`
}

// PeriodKey is the document key of a billing period
func PeriodKey(customerID, period string) string {
	return customerID + "_" + period
}

// ValidatePeriod checks a YYYY-MM period token
func ValidatePeriod(period string) error {
	t, err := time.Parse("2006-01", period)
	if err != nil || t.Format("2006-01") != period {
		return fmt.Errorf("%w: period %q is not YYYY-MM", ErrInvalidInput, period)
	}
	return nil
}

// CurrentPeriod returns the period token of t in loc
func CurrentPeriod(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01")
}

// PreviousPeriod returns the period token of the month before period
func PreviousPeriod(period string) (string, error) {
	if err := ValidatePeriod(period); err != nil {
		return "", err
	}
	t, _ := time.Parse("2006-01", period)
	return t.AddDate(0, -1, 0).Format("2006-01"), nil
}
