package storage

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/fxbill/pkg/billing"
	"github.com/platinummonkey/fxbill/pkg/observability"
)

// CachedStore serves customer lookups from an in-memory LRU. Customers are
// owned by an external directory, so entries expire instead of being
// invalidated. Absent customers are not cached.
type CachedStore struct {
	billing.Store
	customers *lru.LRU[string, billing.Customer]
	metrics   *observability.Metrics
}

// NewCachedStore wraps store with a customer cache
func NewCachedStore(store billing.Store, size int, ttl time.Duration, metrics *observability.Metrics) *CachedStore {
	return &CachedStore{
		Store:     store,
		customers: lru.NewLRU[string, billing.Customer](size, nil, ttl),
		metrics:   metrics,
	}
}

// GetCustomer returns a copy of the cached customer or loads it
func (c *CachedStore) GetCustomer(ctx context.Context, customerID string) (*billing.Customer, error) {
	if cached, ok := c.customers.Get(customerID); ok {
		c.metrics.ObserveCustomerCache(true)
		return &cached, nil
	}
	c.metrics.ObserveCustomerCache(false)

	customer, err := c.Store.GetCustomer(ctx, customerID)
	if err != nil || customer == nil {
		return customer, err
	}

	c.customers.Add(customerID, *customer)
	return customer, nil
}
