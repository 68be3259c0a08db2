package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/platinummonkey/fxbill/pkg/httputil"
	"github.com/platinummonkey/fxbill/pkg/observability"
)

// CustomerHeader identifies the calling customer
const CustomerHeader = "X-Customer-Id"

// BearerGuard rejects requests whose Authorization header does not carry
// the configured token. With no token configured every request fails with
// server_misconfigured so mutating routes are never left open.
func BearerGuard(token string) func(http.Handler) http.Handler {
	expected := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				httputil.WriteErrorMessage(w, http.StatusInternalServerError, "server_misconfigured")
				return
			}

			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, expected) != 1 {
				httputil.WriteUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CustomerMiddleware resolves the customer id from X-Customer-Id, falling
// back to defaultID. Requests with neither get missing_customer_id.
func CustomerMiddleware(defaultID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			customerID := strings.TrimSpace(r.Header.Get(CustomerHeader))
			if customerID == "" {
				customerID = defaultID
			}
			if customerID == "" {
				httputil.WriteBadRequest(w, "missing_customer_id")
				return
			}

			ctx := observability.WithCustomerID(r.Context(), customerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CustomerID returns the customer resolved by CustomerMiddleware
func CustomerID(r *http.Request) string {
	return observability.GetCustomerID(r.Context())
}
