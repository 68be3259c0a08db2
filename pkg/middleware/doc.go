// Package middleware provides HTTP middleware for the billing API: the
// bearer guard on mutating routes, customer identification and per-customer
// rate limiting.
//
//	router.Handle("/bff/billing/{period}/generate", middleware.BearerGuard(token)(h))
//
// CustomerMiddleware reads X-Customer-Id and falls back to a configured
// default. RateLimit keys its limiter by that customer, so it must run
// after CustomerMiddleware. Two limiters are provided: an in-process token
// bucket and a fixed window shared through Redis.
package middleware
