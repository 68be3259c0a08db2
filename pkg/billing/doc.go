// Package billing runs the lifecycle of recurring billing periods.
//
// A period is one calendar month (YYYY-MM) of one customer. It starts out
// scheduled, which is never stored: an absent document is read as scheduled.
// Generate and Regenerate move it to issued by pricing the plan at the current
// FX rate, creating a payment preference and merging the result into the
// store. A payment processor outside this module marks it paid, after which
// both operations fail with ErrAlreadyPaid.
//
// # Amounts
//
// The local amount is frozen the first time a period is issued. Later calls
// reuse it; Config.RepriceOnRegenerate makes Regenerate price again.
//
// # Usage Example
//
//	svc, err := billing.NewService(cfg, store, engine, builder, logger, metrics)
//	res, err := svc.Generate(ctx, "cus_001", "2024-05")
//	fmt.Println(res.Period.PaymentLink)
//
//	view, err := svc.Overview(ctx, "cus_001", "2024-05")
//
// # Concurrency
//
// Concurrent Generate or Regenerate calls for the same period in one process
// share a single execution. Calls from different processes are not
// coordinated and may each create a preference; the store keeps the last
// write.
package billing
