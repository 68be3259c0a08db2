// Package api exposes the billing service over HTTP.
//
// # Routes
//
//	GET  /healthz                             liveness
//	GET  /readyz                              readiness (store ping)
//	GET  /metrics                             Prometheus exposition
//	GET  /bff/billing/{period}/overview       customer period overview
//	POST /bff/billing/{period}/generate       issue a period (bearer token)
//	POST /bff/billing/{period}/regenerate     renew the payment link (bearer token)
//	GET  /billing/quote                       current rate and local price
//	POST /billing/webhook                     gateway notifications, logged only
//
// The customer is read from the X-Customer-Id header. Errors are returned as
// {"error": code} where code is one of already_paid, invalid_input,
// customer_not_found, period_not_found, rate_unavailable, gateway_error,
// missing_customer_id, unauthorized, rate_limited or internal_error.
//
// # Usage
//
//	srv := api.NewServer(api.Options{
//		Service:     billingService,
//		Logger:      logger,
//		Health:      health,
//		BearerToken: cfg.Auth.BearerToken,
//	})
//	http.ListenAndServe(":8080", srv)
package api
