// Package redis stores billing documents in Redis.
//
// Layout, relative to the key prefix:
//
//	customers                         set of customer ids
//	customer:{id}                     hash: display_name, plan_id, timezone
//	customer:{id}:periods             zset of periods, score YYYYMM
//	customer:{id}:payments            zset of JSON payments, score date_approved (unix ms)
//	period:{customer_id}_{period}     hash of JSON-encoded period fields
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/platinummonkey/fxbill/pkg/billing"
)

// Options configures the Redis connection
type Options struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
	KeyPrefix  string
}

// Store implements billing.Store on Redis
type Store struct {
	client *goredis.Client
	prefix string
}

// New connects to Redis and pings it
func New(ctx context.Context, o Options) (*Store, error) {
	opts, err := goredis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	// Override with config values if provided
	if o.Password != "" {
		opts.Password = o.Password
	}
	if o.DB > 0 {
		opts.DB = o.DB
	}
	if o.MaxRetries > 0 {
		opts.MaxRetries = o.MaxRetries
	}
	if o.PoolSize > 0 {
		opts.PoolSize = o.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client, o.KeyPrefix), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *goredis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) customersKey() string {
	return s.prefix + "customers"
}

func (s *Store) customerKey(id string) string {
	return s.prefix + "customer:" + id
}

func (s *Store) periodIndexKey(customerID string) string {
	return s.customerKey(customerID) + ":periods"
}

func (s *Store) paymentIndexKey(customerID string) string {
	return s.customerKey(customerID) + ":payments"
}

func (s *Store) periodKey(customerID, period string) string {
	return s.prefix + "period:" + billing.PeriodKey(customerID, period)
}

// GetCustomer implements billing.Store
func (s *Store) GetCustomer(ctx context.Context, customerID string) (*billing.Customer, error) {
	fields, err := s.client.HGetAll(ctx, s.customerKey(customerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	return &billing.Customer{
		ID:          customerID,
		DisplayName: fields["display_name"],
		PlanID:      fields["plan_id"],
		Timezone:    fields["timezone"],
	}, nil
}

// ListCustomerIDs implements billing.Store
func (s *Store) ListCustomerIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.customersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	return ids, nil
}

// GetPeriod implements billing.Store
func (s *Store) GetPeriod(ctx context.Context, customerID, period string) (*billing.BillingPeriod, error) {
	fields, err := s.client.HGetAll(ctx, s.periodKey(customerID, period)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decodePeriod(fields)
}

// MergePeriod writes the set fields of p and indexes the period in one
// MULTI/EXEC transaction.
func (s *Store) MergePeriod(ctx context.Context, p *billing.BillingPeriod) error {
	if p.CustomerID == "" || p.Period == "" {
		return fmt.Errorf("period document requires customer_id and period")
	}
	score, err := periodScore(p.Period)
	if err != nil {
		return err
	}

	values := make(map[string]interface{})
	for k, v := range p.Fields() {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", k, err)
		}
		values[k] = string(data)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.periodKey(p.CustomerID, p.Period), values)
		pipe.ZAdd(ctx, s.periodIndexKey(p.CustomerID), &goredis.Z{Score: score, Member: p.Period})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis merge failed: %w", err)
	}
	return nil
}

// ListPeriods implements billing.Store
func (s *Store) ListPeriods(ctx context.Context, customerID string, limit int) ([]*billing.BillingPeriod, error) {
	if limit <= 0 {
		return []*billing.BillingPeriod{}, nil
	}

	periods, err := s.client.ZRevRange(ctx, s.periodIndexKey(customerID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange failed: %w", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.StringStringMapCmd, len(periods))
	for i, period := range periods {
		cmds[i] = pipe.HGetAll(ctx, s.periodKey(customerID, period))
	}
	if len(cmds) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("redis pipeline failed: %w", err)
		}
	}

	out := make([]*billing.BillingPeriod, 0, len(cmds))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		p, err := decodePeriod(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// LatestPayment implements billing.Store
func (s *Store) LatestPayment(ctx context.Context, customerID string) (*billing.Payment, error) {
	members, err := s.client.ZRevRange(ctx, s.paymentIndexKey(customerID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange failed: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	var payment billing.Payment
	if err := json.Unmarshal([]byte(members[0]), &payment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment: %w", err)
	}
	return &payment, nil
}

// Ping implements billing.Store
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close implements billing.Store
func (s *Store) Close() error {
	return s.client.Close()
}

func decodePeriod(fields map[string]string) (*billing.BillingPeriod, error) {
	doc := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if json.Valid([]byte(v)) {
			doc[k] = json.RawMessage(v)
			continue
		}
		// plain values written by other processes, e.g. HSET status paid
		quoted, _ := json.Marshal(v)
		doc[k] = quoted
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("corrupt period document: %w", err)
	}

	var p billing.BillingPeriod
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal period: %w", err)
	}
	return &p, nil
}

// periodScore orders "2024-05" as 202405
func periodScore(period string) (float64, error) {
	n, err := strconv.Atoi(strings.ReplaceAll(period, "-", ""))
	if err != nil {
		return 0, fmt.Errorf("invalid period %q: %w", period, err)
	}
	return float64(n), nil
}
