// Package postgres stores billing documents in PostgreSQL.
//
// Periods are JSONB documents merged with the || operator, so a write only
// replaces the keys it carries. Customers and payments are plain tables
// maintained by other services.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/platinummonkey/fxbill/pkg/billing"
)

const schema = `
CREATE TABLE IF NOT EXISTS customers (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	plan_id      TEXT NOT NULL DEFAULT '',
	timezone     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS periods (
	id          TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	period      TEXT NOT NULL,
	doc         JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS periods_customer_period_idx ON periods (customer_id, period DESC);

CREATE TABLE IF NOT EXISTS payments (
	id                 BIGSERIAL PRIMARY KEY,
	customer_id        TEXT NOT NULL,
	period             TEXT,
	transaction_amount DOUBLE PRECISION,
	date_approved      TIMESTAMPTZ,
	invoice_pdf_url    TEXT
);

CREATE INDEX IF NOT EXISTS payments_customer_approved_idx ON payments (customer_id, date_approved DESC);
`

// Store implements billing.Store on PostgreSQL
type Store struct {
	db *sql.DB
}

// New connects to PostgreSQL
func New(ctx context.Context, config ConnectionConfig) (*Store, error) {
	db, err := open(ctx, config)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing connection pool
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables and indexes if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// GetCustomer implements billing.Store
func (s *Store) GetCustomer(ctx context.Context, customerID string) (*billing.Customer, error) {
	query := `SELECT id, display_name, plan_id, timezone FROM customers WHERE id = $1`

	var c billing.Customer
	err := s.db.QueryRowContext(ctx, query, customerID).Scan(&c.ID, &c.DisplayName, &c.PlanID, &c.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &c, nil
}

// ListCustomerIDs implements billing.Store
func (s *Store) ListCustomerIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM customers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetPeriod implements billing.Store
func (s *Store) GetPeriod(ctx context.Context, customerID, period string) (*billing.BillingPeriod, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM periods WHERE id = $1`, billing.PeriodKey(customerID, period)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get period: %w", err)
	}
	return decodePeriod(doc)
}

// MergePeriod implements billing.Store
func (s *Store) MergePeriod(ctx context.Context, p *billing.BillingPeriod) error {
	if p.CustomerID == "" || p.Period == "" {
		return fmt.Errorf("period document requires customer_id and period")
	}

	doc, err := json.Marshal(p.Fields())
	if err != nil {
		return fmt.Errorf("failed to marshal period: %w", err)
	}

	query := `
		INSERT INTO periods (id, customer_id, period, doc, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, now())
		ON CONFLICT (id) DO UPDATE
		SET doc = periods.doc || EXCLUDED.doc, updated_at = now()
	`
	_, err = s.db.ExecContext(ctx, query, billing.PeriodKey(p.CustomerID, p.Period), p.CustomerID, p.Period, string(doc))
	if err != nil {
		return fmt.Errorf("failed to merge period: %w", err)
	}
	return nil
}

// ListPeriods implements billing.Store
func (s *Store) ListPeriods(ctx context.Context, customerID string, limit int) ([]*billing.BillingPeriod, error) {
	query := `SELECT doc FROM periods WHERE customer_id = $1 ORDER BY period DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	defer rows.Close()

	periods := []*billing.BillingPeriod{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		p, err := decodePeriod(doc)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// LatestPayment implements billing.Store
func (s *Store) LatestPayment(ctx context.Context, customerID string) (*billing.Payment, error) {
	query := `
		SELECT customer_id, COALESCE(period, ''), transaction_amount, date_approved, COALESCE(invoice_pdf_url, '')
		FROM payments
		WHERE customer_id = $1
		ORDER BY date_approved DESC NULLS LAST
		LIMIT 1
	`

	var (
		p        billing.Payment
		amount   sql.NullFloat64
		approved sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, customerID).Scan(&p.CustomerID, &p.Period, &amount, &approved, &p.InvoicePDFURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest payment: %w", err)
	}

	if amount.Valid {
		p.TransactionAmount = &amount.Float64
	}
	if approved.Valid {
		t := approved.Time.UTC()
		p.DateApproved = &t
	}
	return &p, nil
}

// Ping implements billing.Store
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements billing.Store
func (s *Store) Close() error {
	return s.db.Close()
}

func decodePeriod(doc []byte) (*billing.BillingPeriod, error) {
	var p billing.BillingPeriod
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal period: %w", err)
	}
	return &p, nil
}
