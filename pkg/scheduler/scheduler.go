// Package scheduler issues billing periods automatically once they become
// payable.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/fxbill/pkg/billing"
	"github.com/platinummonkey/fxbill/pkg/observability"
)

// DefaultSchedule runs daily at 09:05 in the billing location
const DefaultSchedule = "5 9 * * *"

// Config controls automatic issuing
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
	// Concurrency bounds the customers issued in parallel
	Concurrency int `yaml:"concurrency"`
}

// DefaultConfig runs daily with a small worker bound
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Schedule:    DefaultSchedule,
		Concurrency: 4,
	}
}

// Scheduler outcomes, also used as metric labels
const (
	OutcomeIssued     = "issued"
	OutcomeNotDue     = "not_due"
	OutcomeExists     = "exists"
	OutcomeNoCustomer = "no_customer"
	OutcomeFailed     = "failed"
)

// Issuer generates periods; *billing.Service satisfies it
type Issuer interface {
	Location() *time.Location
	Generate(ctx context.Context, customerID, period string) (*billing.IssueResult, error)
}

// Summary counts what a run did per outcome. A customer contributes one
// outcome per period checked, or a single one when its document could not
// be read.
type Summary struct {
	Period         string         `json:"period"`
	PreviousPeriod string         `json:"previous_period"`
	Outcomes       map[string]int `json:"outcomes"`
}

// Scheduler runs the issuing job on a cron schedule
type Scheduler struct {
	store       billing.Store
	issuer      Issuer
	logger      *observability.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	concurrency int

	cron    *cron.Cron
	running sync.Mutex
}

// New creates a scheduler. The schedule is a standard five field cron
// expression evaluated in the issuer's location.
func New(cfg Config, store billing.Store, issuer Issuer, logger *observability.Logger, metrics *observability.Metrics) (*Scheduler, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	s := &Scheduler{
		store:       store,
		issuer:      issuer,
		logger:      logger.WithField("component", "scheduler"),
		metrics:     metrics,
		now:         time.Now,
		concurrency: cfg.Concurrency,
		cron:        cron.New(cron.WithLocation(issuer.Location())),
	}

	if _, err := s.cron.AddFunc(cfg.Schedule, s.runScheduled); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	return s, nil
}

// Start begins running the job in the background
func (s *Scheduler) Start() {
	s.logger.Info("Scheduler started")
	s.cron.Start()
}

// Stop prevents new runs and waits for a running job or ctx, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runScheduled() {
	defer observability.RecoverPanic(s.logger, "scheduled issue run")

	summary, err := s.RunOnce(context.Background())
	if err != nil {
		s.logger.WithError(err).Error("Scheduled issue run failed")
		return
	}
	s.logger.WithField("period", summary.Period).
		WithField("previous_period", summary.PreviousPeriod).
		WithField("outcomes", summary.Outcomes).
		Info("Scheduled issue run complete")
}

// RunOnce issues the previous and the current period for every customer
// whose availability date for that period has passed and who has no stored
// document for it. The previous period is checked because a month shorter
// than 30 days only becomes payable once the next month has started. Per
// customer failures are logged and counted; the returned error joins them.
func (s *Scheduler) RunOnce(ctx context.Context) (*Summary, error) {
	// Overlapping runs would race on the same customers
	s.running.Lock()
	defer s.running.Unlock()

	now := s.now()
	period := billing.CurrentPeriod(now, s.issuer.Location())
	previous, err := billing.PreviousPeriod(period)
	if err != nil {
		return nil, err
	}
	summary := &Summary{Period: period, PreviousPeriod: previous, Outcomes: map[string]int{}}

	ids, err := s.store.ListCustomerIDs(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list customers: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}

		g.Go(func() error {
			defer observability.RecoverPanic(s.logger, "issue "+id)

			results := s.issueCustomer(ctx, now, id, previous, period)

			mu.Lock()
			defer mu.Unlock()
			for _, r := range results {
				s.metrics.ObserveSchedulerIssue(r.outcome)
				summary.Outcomes[r.outcome]++
				if r.err != nil {
					s.logger.WithError(r.err).
						WithField("customer_id", id).
						WithField("period", r.period).
						Warn("Failed to issue period")
					errs = append(errs, fmt.Errorf("%s: %w", id, r.err))
				}
			}
			// failures are collected; the remaining customers still run
			return nil
		})
	}
	g.Wait()

	return summary, errors.Join(errs...)
}

type issueResult struct {
	period  string
	outcome string
	err     error
}

func (s *Scheduler) issueCustomer(ctx context.Context, now time.Time, customerID string, periods ...string) []issueResult {
	customer, err := s.store.GetCustomer(ctx, customerID)
	if err != nil {
		return []issueResult{{outcome: OutcomeFailed, err: err}}
	}
	if customer == nil {
		return []issueResult{{outcome: OutcomeNoCustomer}}
	}

	loc, err := billing.CustomerLocation(customer, s.issuer.Location())
	if err != nil {
		s.logger.WithError(err).WithField("customer_id", customerID).Warn("Invalid customer timezone, using billing timezone")
	}

	results := make([]issueResult, 0, len(periods))
	for _, period := range periods {
		outcome, err := s.issuePeriod(ctx, now, loc, customerID, period)
		results = append(results, issueResult{period: period, outcome: outcome, err: err})
	}
	return results
}

func (s *Scheduler) issuePeriod(ctx context.Context, now time.Time, loc *time.Location, customerID, period string) (string, error) {
	available, err := billing.PeriodAvailableAt(period, loc)
	if err != nil {
		return OutcomeFailed, err
	}
	if now.Before(available) {
		return OutcomeNotDue, nil
	}

	existing, err := s.store.GetPeriod(ctx, customerID, period)
	if err != nil {
		return OutcomeFailed, err
	}
	if existing != nil {
		return OutcomeExists, nil
	}

	if _, err := s.issuer.Generate(ctx, customerID, period); err != nil {
		return OutcomeFailed, fmt.Errorf("%s: %w", period, err)
	}
	return OutcomeIssued, nil
}
