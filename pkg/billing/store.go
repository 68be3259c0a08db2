package billing

import (
	"context"
)

// Store is the document store behind billing. Get methods return (nil, nil)
// when the document does not exist.
type Store interface {
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	ListCustomerIDs(ctx context.Context) ([]string, error)
	GetPeriod(ctx context.Context, customerID, period string) (*BillingPeriod, error)
	// MergePeriod writes the set fields of p into the document keyed by
	// PeriodKey(p.CustomerID, p.Period), creating it if needed.
	MergePeriod(ctx context.Context, p *BillingPeriod) error
	// ListPeriods returns up to limit periods of a customer, newest first
	ListPeriods(ctx context.Context, customerID string, limit int) ([]*BillingPeriod, error)
	// LatestPayment returns the most recently approved payment of a customer
	LatestPayment(ctx context.Context, customerID string) (*Payment, error)
	Ping(ctx context.Context) error
	Close() error
}
