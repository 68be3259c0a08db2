package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fxbill/pkg/billing"
)

func setupMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewWithDB(db), mock
}

func TestStore_GetCustomer(t *testing.T) {
	store, mock := setupMock(t)

	mock.ExpectQuery("SELECT id, display_name, plan_id, timezone FROM customers WHERE id = \\$1").
		WithArgs("cus_001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "plan_id", "timezone"}).
			AddRow("cus_001", "Acme", "", "Europe/Madrid"))

	c, err := store.GetCustomer(context.Background(), "cus_001")
	require.NoError(t, err)
	assert.Equal(t, &billing.Customer{ID: "cus_001", DisplayName: "Acme", Timezone: "Europe/Madrid"}, c)

	mock.ExpectQuery("SELECT id, display_name").WithArgs("cus_404").WillReturnError(sql.ErrNoRows)
	c, err = store.GetCustomer(context.Background(), "cus_404")
	require.NoError(t, err)
	assert.Nil(t, c)

	mock.ExpectQuery("SELECT id, display_name").WithArgs("cus_001").WillReturnError(errors.New("connection reset"))
	_, err = store.GetCustomer(context.Background(), "cus_001")
	assert.Error(t, err)
}

func TestStore_ListCustomerIDs(t *testing.T) {
	store, mock := setupMock(t)

	mock.ExpectQuery("SELECT id FROM customers ORDER BY id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("cus_001").AddRow("cus_002"))

	ids, err := store.ListCustomerIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cus_001", "cus_002"}, ids)
}

func TestStore_GetPeriod(t *testing.T) {
	store, mock := setupMock(t)

	mock.ExpectQuery("SELECT doc FROM periods WHERE id = \\$1").
		WithArgs("cus_001_2024-05").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).
			AddRow([]byte(`{"customer_id":"cus_001","period":"2024-05","status":"issued","amount_local_at_issue":49980,"issued_at":"2024-05-01T12:00:00Z"}`)))

	p, err := store.GetPeriod(context.Background(), "cus_001", "2024-05")
	require.NoError(t, err)
	assert.Equal(t, billing.PeriodStatusIssued, p.Status)
	assert.Equal(t, 49980.0, *p.AmountLocalAtIssue)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), p.IssuedAt.UTC())

	mock.ExpectQuery("SELECT doc FROM periods").WithArgs("cus_001_2024-06").WillReturnError(sql.ErrNoRows)
	p, err = store.GetPeriod(context.Background(), "cus_001", "2024-06")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestStore_MergePeriod(t *testing.T) {
	store, mock := setupMock(t)

	issued := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	amount := 49980.0

	mock.ExpectExec("INSERT INTO periods .* ON CONFLICT \\(id\\) DO UPDATE\\s+SET doc = periods.doc \\|\\| EXCLUDED.doc").
		WithArgs(
			"cus_001_2024-05",
			"cus_001",
			"2024-05",
			`{"amount_local_at_issue":49980,"customer_id":"cus_001","issued_at":"2024-05-01T12:00:00Z","period":"2024-05","status":"issued"}`,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.MergePeriod(context.Background(), &billing.BillingPeriod{
		CustomerID:         "cus_001",
		Period:             "2024-05",
		Status:             billing.PeriodStatusIssued,
		AmountLocalAtIssue: &amount,
		IssuedAt:           &issued,
	})
	require.NoError(t, err)

	assert.Error(t, store.MergePeriod(context.Background(), &billing.BillingPeriod{CustomerID: "cus_001"}))
}

func TestStore_ListPeriods(t *testing.T) {
	store, mock := setupMock(t)

	mock.ExpectQuery("SELECT doc FROM periods WHERE customer_id = \\$1 ORDER BY period DESC LIMIT \\$2").
		WithArgs("cus_001", 12).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).
			AddRow([]byte(`{"period":"2024-05","status":"issued"}`)).
			AddRow([]byte(`{"period":"2024-04","status":"paid","paid_at":"2024-04-02T10:00:00Z"}`)))

	periods, err := store.ListPeriods(context.Background(), "cus_001", 12)
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, "2024-05", periods[0].Period)
	assert.Equal(t, billing.PeriodStatusPaid, periods[1].Status)
	assert.NotNil(t, periods[1].PaidAt)

	mock.ExpectQuery("SELECT doc FROM periods").
		WithArgs("cus_001", 12).
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow([]byte(`not json`)))
	_, err = store.ListPeriods(context.Background(), "cus_001", 12)
	assert.Error(t, err)
}

func TestStore_LatestPayment(t *testing.T) {
	store, mock := setupMock(t)

	approved := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM payments\\s+WHERE customer_id = \\$1\\s+ORDER BY date_approved DESC NULLS LAST").
		WithArgs("cus_001").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "period", "transaction_amount", "date_approved", "invoice_pdf_url"}).
			AddRow("cus_001", "2024-04", 47000.0, approved, ""))

	p, err := store.LatestPayment(context.Background(), "cus_001")
	require.NoError(t, err)
	assert.Equal(t, "2024-04", p.Period)
	assert.Equal(t, 47000.0, *p.TransactionAmount)
	assert.Equal(t, approved, *p.DateApproved)

	mock.ExpectQuery("FROM payments").WithArgs("cus_002").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "period", "transaction_amount", "date_approved", "invoice_pdf_url"}).
			AddRow("cus_002", "", nil, nil, ""))
	p, err = store.LatestPayment(context.Background(), "cus_002")
	require.NoError(t, err)
	assert.Nil(t, p.TransactionAmount)
	assert.Nil(t, p.DateApproved)

	mock.ExpectQuery("FROM payments").WithArgs("cus_404").WillReturnError(sql.ErrNoRows)
	p, err = store.LatestPayment(context.Background(), "cus_404")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestStore_MigrateAndPing(t *testing.T) {
	store, mock := setupMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS customers").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.Migrate(context.Background()))

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, store.Ping(context.Background()))
}
