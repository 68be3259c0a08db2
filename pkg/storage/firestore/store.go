// Package firestore stores billing documents in Cloud Firestore using the
// customers, periods and payments collections.
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/platinummonkey/fxbill/pkg/billing"
)

const (
	customersCollection = "customers"
	periodsCollection   = "periods"
	paymentsCollection  = "payments"
)

// Store implements billing.Store on Firestore
type Store struct {
	client *firestore.Client
}

// New creates a client for projectID. FIRESTORE_EMULATOR_HOST is honored by
// the client library.
func New(ctx context.Context, projectID string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *firestore.Client) *Store {
	return &Store{client: client}
}

// GetCustomer implements billing.Store
func (s *Store) GetCustomer(ctx context.Context, customerID string) (*billing.Customer, error) {
	snap, err := s.client.Collection(customersCollection).Doc(customerID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	var c billing.Customer
	if err := snap.DataTo(&c); err != nil {
		return nil, fmt.Errorf("failed to decode customer: %w", err)
	}
	c.ID = snap.Ref.ID
	return &c, nil
}

// ListCustomerIDs implements billing.Store
func (s *Store) ListCustomerIDs(ctx context.Context) ([]string, error) {
	iter := s.client.Collection(customersCollection).DocumentRefs(ctx)

	var ids []string
	for {
		ref, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list customers: %w", err)
		}
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

// GetPeriod implements billing.Store
func (s *Store) GetPeriod(ctx context.Context, customerID, period string) (*billing.BillingPeriod, error) {
	snap, err := s.client.Collection(periodsCollection).Doc(billing.PeriodKey(customerID, period)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get period: %w", err)
	}

	var p billing.BillingPeriod
	if err := decode(snap.Data(), &p); err != nil {
		return nil, fmt.Errorf("failed to decode period %s: %w", snap.Ref.ID, err)
	}
	return &p, nil
}

// MergePeriod implements billing.Store
func (s *Store) MergePeriod(ctx context.Context, p *billing.BillingPeriod) error {
	if p.CustomerID == "" || p.Period == "" {
		return fmt.Errorf("period document requires customer_id and period")
	}

	ref := s.client.Collection(periodsCollection).Doc(billing.PeriodKey(p.CustomerID, p.Period))
	if _, err := ref.Set(ctx, p.Fields(), firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to merge period: %w", err)
	}
	return nil
}

// ListPeriods implements billing.Store. The query needs a composite index on
// (customer_id, period desc).
func (s *Store) ListPeriods(ctx context.Context, customerID string, limit int) ([]*billing.BillingPeriod, error) {
	iter := s.client.Collection(periodsCollection).
		Where("customer_id", "==", customerID).
		OrderBy("period", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	periods := []*billing.BillingPeriod{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list periods: %w", err)
		}

		var p billing.BillingPeriod
		if err := decode(snap.Data(), &p); err != nil {
			return nil, fmt.Errorf("failed to decode period %s: %w", snap.Ref.ID, err)
		}
		periods = append(periods, &p)
	}
	return periods, nil
}

// LatestPayment implements billing.Store
func (s *Store) LatestPayment(ctx context.Context, customerID string) (*billing.Payment, error) {
	iter := s.client.Collection(paymentsCollection).
		Where("customer_id", "==", customerID).
		OrderBy("date_approved", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest payment: %w", err)
	}

	var p billing.Payment
	if err := decode(snap.Data(), &p); err != nil {
		return nil, fmt.Errorf("failed to decode payment %s: %w", snap.Ref.ID, err)
	}
	return &p, nil
}

// Ping reads at most one customer reference
func (s *Store) Ping(ctx context.Context) error {
	iter := s.client.Collection(customersCollection).Limit(1).Documents(ctx)
	defer iter.Stop()

	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

// Close implements billing.Store
func (s *Store) Close() error {
	return s.client.Close()
}

// decode maps a Firestore document onto a JSON-tagged struct. Timestamps may
// be native Firestore timestamps or ISO-8601 strings; both decode into
// time.Time.
func decode(data map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
