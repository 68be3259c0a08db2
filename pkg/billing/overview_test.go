package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverview_ScheduledPeriod(t *testing.T) {
	quoter := &mockQuoter{}
	builder := &mockBuilder{}
	store := seededStore()
	svc := newTestService(DefaultConfig(), store, quoter, builder)

	view, err := svc.Overview(context.Background(), "cus_001", "2024-05")
	require.NoError(t, err)

	// 2024-05-30 09:00 in Buenos Aires (UTC-3)
	assert.Equal(t, time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC), *view.Invoice.AvailableAt)
	assert.Equal(t, PeriodStatusScheduled, view.Invoice.Status)
	assert.Nil(t, view.Invoice.PaymentLink)
	assert.Nil(t, view.Invoice.AmountLocalAtIssue)
	assert.Nil(t, view.Invoice.IssuedAt)
	assert.Nil(t, view.LastPayment)
	assert.Equal(t, CustomerView{DisplayName: "Acme", PlanID: "pro"}, view.Customer)

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"history":[]`)
	assert.Contains(t, string(raw), `"lastPayment":null`)
	assert.Contains(t, string(raw), `"amount_local_at_issue":null`)

	assert.Equal(t, int32(0), quoter.calls.Load())
	assert.Equal(t, 0, builder.calls())
	assert.Empty(t, store.periods)
}

func TestOverview_CustomerTimezoneAndDefaultPlan(t *testing.T) {
	store := newMemoryStore()
	store.customers["cus_002"] = &Customer{ID: "cus_002", DisplayName: "Globex", Timezone: "Europe/Madrid"}
	svc := newTestService(DefaultConfig(), store, &mockQuoter{}, &mockBuilder{})

	view, err := svc.Overview(context.Background(), "cus_002", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, DefaultPlanID, view.Customer.PlanID)
	// 09:00 CEST is 07:00 UTC
	assert.Equal(t, time.Date(2024, 5, 30, 7, 0, 0, 0, time.UTC), *view.Invoice.AvailableAt)
}

func TestOverview_UnknownCustomer(t *testing.T) {
	svc := newTestService(DefaultConfig(), seededStore(), &mockQuoter{}, &mockBuilder{})
	_, err := svc.Overview(context.Background(), "cus_404", "2024-05")
	assert.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestOverview_StoredPeriod(t *testing.T) {
	store := seededStore()
	issued := testNow.Add(-time.Hour)
	store.periods["cus_001_2024-05"] = &BillingPeriod{
		CustomerID:         "cus_001",
		Period:             "2024-05",
		Status:             PeriodStatusIssued,
		AmountLocalAtIssue: floatPtr(49980),
		Currency:           "ARS",
		PaymentLink:        "https://pay.example.com/x",
		IssuedAt:           &issued,
		ExpiresAt:          timePtr(issued.Add(48 * time.Hour)),
	}
	store.periods["cus_001_2024-04"] = &BillingPeriod{
		CustomerID:    "cus_001",
		Period:        "2024-04",
		Status:        PeriodStatusPaid,
		PaidAt:        timePtr(time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)),
		InvoicePDFURL: "https://files.example.com/2024-04.pdf",
	}
	store.payments = []*Payment{
		{CustomerID: "cus_001", Period: "2024-03", TransactionAmount: floatPtr(45000), DateApproved: timePtr(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))},
		{CustomerID: "cus_001", Period: "2024-04", TransactionAmount: floatPtr(47000), DateApproved: timePtr(time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC))},
		{CustomerID: "cus_999", Period: "2024-05", TransactionAmount: floatPtr(1), DateApproved: timePtr(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))},
	}

	quoter := &mockQuoter{}
	svc := newTestService(DefaultConfig(), store, quoter, &mockBuilder{})

	view, err := svc.Overview(context.Background(), "cus_001", "2024-05")
	require.NoError(t, err)

	inv := view.Invoice
	assert.Equal(t, PeriodStatusIssued, inv.Status)
	assert.Equal(t, 49980.0, *inv.AmountLocalAtIssue)
	assert.Equal(t, issued, *inv.AvailableAt, "available_at falls back to issued_at")
	assert.Equal(t, "https://pay.example.com/x", *inv.PaymentLink)
	assert.Equal(t, "ARS", *inv.Currency)
	assert.Nil(t, inv.InvoicePDFURL)

	require.NotNil(t, view.LastPayment)
	assert.Equal(t, "2024-04", *view.LastPayment.Period)
	assert.Equal(t, 47000.0, *view.LastPayment.AmountLocal)

	require.Len(t, view.History, 2)
	assert.Equal(t, "2024-05", view.History[0].Period)
	assert.Equal(t, 49980.0, view.History[0].AmountLocal)
	assert.Equal(t, HistoryEntry{
		Period:        "2024-04",
		Status:        PeriodStatusPaid,
		AmountLocal:   0,
		PaidAt:        timePtr(time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)),
		InvoicePDFURL: strPtr("https://files.example.com/2024-04.pdf"),
	}, view.History[1])

	assert.Equal(t, int32(0), quoter.calls.Load())
}

func TestOverview_PaymentLinkVisibility(t *testing.T) {
	tests := []struct {
		name     string
		status   PeriodStatus
		expires  time.Time
		wantLink bool
	}{
		{"issued and valid", PeriodStatusIssued, testNow.Add(time.Hour), true},
		{"issued and expired", PeriodStatusIssued, testNow.Add(-time.Hour), false},
		{"paid", PeriodStatusPaid, testNow.Add(time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore()
			store.periods["cus_001_2024-05"] = &BillingPeriod{
				CustomerID:  "cus_001",
				Period:      "2024-05",
				Status:      tt.status,
				PaymentLink: "https://pay.example.com/x",
				ExpiresAt:   &tt.expires,
			}
			svc := newTestService(DefaultConfig(), store, &mockQuoter{}, &mockBuilder{})

			view, err := svc.Overview(context.Background(), "cus_001", "2024-05")
			require.NoError(t, err)
			assert.Equal(t, tt.wantLink, view.Invoice.PaymentLink != nil)
			assert.Equal(t, 0.0, *view.Invoice.AmountLocalAtIssue)
		})
	}
}

func TestOverview_HistoryLimit(t *testing.T) {
	store := seededStore()
	for m := 1; m <= 15; m++ {
		period := fmt.Sprintf("2023-%02d", m)
		if m > 12 {
			period = fmt.Sprintf("2024-%02d", m-12)
		}
		store.periods[PeriodKey("cus_001", period)] = &BillingPeriod{CustomerID: "cus_001", Period: period, Status: PeriodStatusPaid}
	}
	svc := newTestService(DefaultConfig(), store, &mockQuoter{}, &mockBuilder{})

	view, err := svc.Overview(context.Background(), "cus_001", "2024-03")
	require.NoError(t, err)
	require.Len(t, view.History, 12)
	assert.Equal(t, "2024-03", view.History[0].Period)
	assert.Equal(t, "2023-04", view.History[11].Period)
}

func TestAvailableAt(t *testing.T) {
	utc := time.UTC
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2024, 5, 1, 0, 0, 0, 0, utc), time.Date(2024, 5, 30, 9, 0, 0, 0, utc)},
		{time.Date(2024, 2, 10, 0, 0, 0, 0, utc), time.Date(2024, 3, 1, 9, 0, 0, 0, utc)},
		{time.Date(2023, 2, 10, 0, 0, 0, 0, utc), time.Date(2023, 3, 2, 9, 0, 0, 0, utc)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AvailableAt(tt.now, utc))
	}

	// 01:00 UTC on June 1st is still May 31st in Buenos Aires
	loc, err := time.LoadLocation("America/Argentina/Buenos_Aires")
	require.NoError(t, err)
	got := AvailableAt(time.Date(2024, 6, 1, 1, 0, 0, 0, utc), loc)
	assert.Equal(t, time.Date(2024, 5, 30, 12, 0, 0, 0, utc), got)
}

func TestPeriodAvailableAt(t *testing.T) {
	got, err := PeriodAvailableAt("2023-02", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 3, 2, 9, 0, 0, 0, time.UTC), got)

	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	got, err = PeriodAvailableAt("2024-05", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC), got)

	_, err = PeriodAvailableAt("May", time.UTC)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCustomerLocation(t *testing.T) {
	fallback := time.UTC

	loc, err := CustomerLocation(nil, fallback)
	require.NoError(t, err)
	assert.Same(t, fallback, loc)

	loc, err = CustomerLocation(&Customer{Timezone: "America/Montevideo"}, fallback)
	require.NoError(t, err)
	assert.Equal(t, "America/Montevideo", loc.String())

	loc, err = CustomerLocation(&Customer{Timezone: "Nowhere/Land"}, fallback)
	assert.Error(t, err)
	assert.Same(t, fallback, loc)
}

func strPtr(s string) *string { return &s }
