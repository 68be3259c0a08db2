package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fxbill/pkg/billing"
)

const prefix = "fxbill:"

// setupStore creates a miniredis instance and a store on top of it
func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	store, err := New(context.Background(), Options{URL: "redis://" + mr.Addr(), KeyPrefix: prefix})
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
		mr.Close()
	})
	return store, mr
}

func floatPtr(f float64) *float64 { return &f }

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), Options{URL: "not-a-url"})
	assert.Error(t, err)
}

func TestNew_Unreachable(t *testing.T) {
	_, err := New(context.Background(), Options{URL: "redis://127.0.0.1:1"})
	assert.Error(t, err)
}

func TestStore_Customers(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	mr.HSet(prefix+"customer:cus_001", "display_name", "Acme", "plan_id", "pro", "timezone", "America/Argentina/Buenos_Aires")
	mr.SAdd(prefix+"customers", "cus_001", "cus_002")

	c, err := store.GetCustomer(ctx, "cus_001")
	require.NoError(t, err)
	assert.Equal(t, &billing.Customer{
		ID:          "cus_001",
		DisplayName: "Acme",
		PlanID:      "pro",
		Timezone:    "America/Argentina/Buenos_Aires",
	}, c)

	missing, err := store.GetCustomer(ctx, "cus_404")
	require.NoError(t, err)
	assert.Nil(t, missing)

	ids, err := store.ListCustomerIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cus_001", "cus_002"}, ids)
}

func TestStore_MergePeriod(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	issued := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	expires := issued.Add(48 * time.Hour)

	absent, err := store.GetPeriod(ctx, "cus_001", "2024-05")
	require.NoError(t, err)
	assert.Nil(t, absent)

	require.NoError(t, store.MergePeriod(ctx, &billing.BillingPeriod{
		CustomerID:    "cus_001",
		Period:        "2024-05",
		InvoicePDFURL: "https://files.example.com/inv.pdf",
	}))
	require.NoError(t, store.MergePeriod(ctx, &billing.BillingPeriod{
		CustomerID:         "cus_001",
		Period:             "2024-05",
		Status:             billing.PeriodStatusIssued,
		AmountLocalAtIssue: floatPtr(49980),
		PaymentLink:        "https://pay.example.com/x",
		IssuedAt:           &issued,
		ExpiresAt:          &expires,
	}))

	got, err := store.GetPeriod(ctx, "cus_001", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, billing.PeriodStatusIssued, got.Status)
	assert.Equal(t, 49980.0, *got.AmountLocalAtIssue)
	assert.Equal(t, "https://files.example.com/inv.pdf", got.InvoicePDFURL)
	assert.True(t, issued.Equal(*got.IssuedAt))
	assert.True(t, expires.Equal(*got.ExpiresAt))

	// fields are stored as JSON values
	assert.Equal(t, `"issued"`, mr.HGet(prefix+"period:cus_001_2024-05", "status"))

	// a plain value written by another process is still readable
	mr.HSet(prefix+"period:cus_001_2024-05", "status", "paid")
	got, err = store.GetPeriod(ctx, "cus_001", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, billing.PeriodStatusPaid, got.Status)
}

func TestStore_MergePeriodRequiresKey(t *testing.T) {
	store, _ := setupStore(t)
	assert.Error(t, store.MergePeriod(context.Background(), &billing.BillingPeriod{Period: "2024-05"}))
	assert.Error(t, store.MergePeriod(context.Background(), &billing.BillingPeriod{CustomerID: "c", Period: "bad"}))
}

func TestStore_ListPeriods(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	for _, period := range []string{"2023-11", "2024-02", "2023-12", "2024-01"} {
		require.NoError(t, store.MergePeriod(ctx, &billing.BillingPeriod{
			CustomerID: "cus_001",
			Period:     period,
			Status:     billing.PeriodStatusPaid,
		}))
	}
	require.NoError(t, store.MergePeriod(ctx, &billing.BillingPeriod{CustomerID: "cus_002", Period: "2024-03"}))

	periods, err := store.ListPeriods(ctx, "cus_001", 3)
	require.NoError(t, err)
	require.Len(t, periods, 3)
	assert.Equal(t, "2024-02", periods[0].Period)
	assert.Equal(t, "2024-01", periods[1].Period)
	assert.Equal(t, "2023-12", periods[2].Period)

	none, err := store.ListPeriods(ctx, "cus_404", 12)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_LatestPayment(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	missing, err := store.LatestPayment(ctx, "cus_001")
	require.NoError(t, err)
	assert.Nil(t, missing)

	key := prefix + "customer:cus_001:payments"
	mr.ZAdd(key, 1709337600000, `{"customer_id":"cus_001","period":"2024-03","transaction_amount":45000,"date_approved":"2024-03-02T00:00:00Z"}`)
	mr.ZAdd(key, 1712052000000, `{"customer_id":"cus_001","period":"2024-04","transaction_amount":47000,"date_approved":"2024-04-02T10:00:00Z"}`)

	p, err := store.LatestPayment(ctx, "cus_001")
	require.NoError(t, err)
	assert.Equal(t, "2024-04", p.Period)
	assert.Equal(t, 47000.0, *p.TransactionAmount)
	assert.Equal(t, time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC), p.DateApproved.UTC())
}

func TestStore_ImplementsBillingStore(t *testing.T) {
	var _ billing.Store = NewWithClient(goredis.NewClient(&goredis.Options{}), "")
}

func TestStore_Ping(t *testing.T) {
	store, mr := setupStore(t)
	assert.NoError(t, store.Ping(context.Background()))
	mr.Close()
	assert.Error(t, store.Ping(context.Background()))
}
