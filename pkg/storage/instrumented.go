package storage

import (
	"context"

	"github.com/platinummonkey/fxbill/pkg/billing"
	"github.com/platinummonkey/fxbill/pkg/observability"
)

// InstrumentedStore counts every store call by operation and status
type InstrumentedStore struct {
	next    billing.Store
	metrics *observability.Metrics
}

// NewInstrumentedStore wraps next with metrics
func NewInstrumentedStore(next billing.Store, metrics *observability.Metrics) *InstrumentedStore {
	return &InstrumentedStore{next: next, metrics: metrics}
}

func (s *InstrumentedStore) GetCustomer(ctx context.Context, customerID string) (*billing.Customer, error) {
	c, err := s.next.GetCustomer(ctx, customerID)
	s.metrics.ObserveStoreOperation("get_customer", err)
	return c, err
}

func (s *InstrumentedStore) ListCustomerIDs(ctx context.Context) ([]string, error) {
	ids, err := s.next.ListCustomerIDs(ctx)
	s.metrics.ObserveStoreOperation("list_customers", err)
	return ids, err
}

func (s *InstrumentedStore) GetPeriod(ctx context.Context, customerID, period string) (*billing.BillingPeriod, error) {
	p, err := s.next.GetPeriod(ctx, customerID, period)
	s.metrics.ObserveStoreOperation("get_period", err)
	return p, err
}

func (s *InstrumentedStore) MergePeriod(ctx context.Context, p *billing.BillingPeriod) error {
	err := s.next.MergePeriod(ctx, p)
	s.metrics.ObserveStoreOperation("merge_period", err)
	return err
}

func (s *InstrumentedStore) ListPeriods(ctx context.Context, customerID string, limit int) ([]*billing.BillingPeriod, error) {
	ps, err := s.next.ListPeriods(ctx, customerID, limit)
	s.metrics.ObserveStoreOperation("list_periods", err)
	return ps, err
}

func (s *InstrumentedStore) LatestPayment(ctx context.Context, customerID string) (*billing.Payment, error) {
	p, err := s.next.LatestPayment(ctx, customerID)
	s.metrics.ObserveStoreOperation("latest_payment", err)
	return p, err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}
