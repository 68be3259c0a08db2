// Package storage provides the persistence backends for billing periods.
//
// # Overview
//
// Every backend implements billing.Store over three collections:
//
//   - customers: read-only directory of billed customers
//   - periods: one document per customer period, keyed customer_id + "_" + period
//   - payments: append-only approved payments, written by the payment processor
//
// Writes to periods always merge. Only the fields set on the BillingPeriod
// passed to MergePeriod are written; every other stored field is preserved.
//
// # Backend Implementations
//
// redis.Store keeps each period as a hash of JSON-encoded fields and indexes
// periods and payments per customer in sorted sets.
//
//	store, err := redis.New(ctx, redis.Options{URL: "redis://localhost:6379/0", KeyPrefix: "fxbill:"})
//
// postgres.Store keeps each period as a JSONB document and merges with the
// || operator inside an upsert. Migrate creates the schema.
//
//	store, err := postgres.New(ctx, postgres.ConnectionConfig{URL: "postgres://localhost/fxbill"})
//
// firestore.Store uses the customers, periods and payments collections and
// merges with firestore.MergeAll.
//
//	store, err := firestore.New(ctx, "my-gcp-project")
//
// # Decorators
//
// Open wires the configured backend, wraps it in an InstrumentedStore that
// records fxbill_store_operations_total, and adds a CachedStore when the
// customer cache is enabled.
//
//	store, err := storage.Open(ctx, cfg.Storage, logger, metrics)
//	defer store.Close()
package storage
