package billing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/fxbill/pkg/gateway"
	"github.com/platinummonkey/fxbill/pkg/rates"
)

// memoryStore is an in-memory Store with merge semantics
type memoryStore struct {
	mu        sync.Mutex
	customers map[string]*Customer
	periods   map[string]*BillingPeriod
	payments  []*Payment
	merges    int

	mergeErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		customers: map[string]*Customer{},
		periods:   map[string]*BillingPeriod{},
	}
}

func (m *memoryStore) GetCustomer(_ context.Context, customerID string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[customerID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memoryStore) ListCustomerIDs(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.customers))
	for id := range m.customers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memoryStore) GetPeriod(_ context.Context, customerID, period string) (*BillingPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[PeriodKey(customerID, period)]
	if !ok {
		return nil, nil
	}
	return p.Merge(nil), nil
}

func (m *memoryStore) MergePeriod(_ context.Context, p *BillingPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mergeErr != nil {
		return m.mergeErr
	}
	m.merges++
	key := PeriodKey(p.CustomerID, p.Period)
	m.periods[key] = m.periods[key].Merge(p)
	return nil
}

func (m *memoryStore) ListPeriods(_ context.Context, customerID string, limit int) ([]*BillingPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*BillingPeriod
	for _, p := range m.periods {
		if p.CustomerID == customerID {
			out = append(out, p.Merge(nil))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) LatestPayment(_ context.Context, customerID string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Payment
	for _, p := range m.payments {
		if p.CustomerID != customerID || p.DateApproved == nil {
			continue
		}
		if latest == nil || p.DateApproved.After(*latest.DateApproved) {
			latest = p
		}
	}
	return latest, nil
}

func (m *memoryStore) Ping(context.Context) error { return nil }

func (m *memoryStore) Close() error { return nil }

// mockQuoter returns a fixed rate unless getRateFunc is set
type mockQuoter struct {
	getRateFunc func(ctx context.Context) (rates.Quote, error)
	calls       atomic.Int32
}

func (m *mockQuoter) GetRate(ctx context.Context) (rates.Quote, error) {
	m.calls.Add(1)
	if m.getRateFunc != nil {
		return m.getRateFunc(ctx)
	}
	return rates.Quote{Value: 1000, Source: "criptoya"}, nil
}

// mockBuilder records preference inputs and answers like the demo gateway
type mockBuilder struct {
	buildFunc func(ctx context.Context, in gateway.PreferenceInput) (string, string, error)

	mu     sync.Mutex
	inputs []gateway.PreferenceInput
}

func (m *mockBuilder) BuildPreference(ctx context.Context, in gateway.PreferenceInput) (string, string, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, in)
	m.mu.Unlock()
	if m.buildFunc != nil {
		return m.buildFunc(ctx, in)
	}
	id := "pref-" + in.ExternalReference
	return id, "https://pay.example.com/" + id, nil
}

func (m *mockBuilder) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

var errGatewayDown = errors.New("connection reset")

var testNow = time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)

func newTestService(cfg Config, store Store, quoter RateQuoter, builder PreferenceBuilder) *Service {
	svc, err := NewService(cfg, store, quoter, builder, nil, nil)
	if err != nil {
		panic(err)
	}
	svc.now = func() time.Time { return testNow }
	return svc
}

func floatPtr(f float64) *float64 { return &f }

func timePtr(t time.Time) *time.Time { return &t }
