// Package httputil provides HTTP utilities shared by the billing API.
//
// Error replies always carry a stable code:
//
//	httputil.WriteErrorMessage(w, http.StatusBadRequest, "already_paid")
//	// {"error":"already_paid"}
//
// The middleware chain used by the server:
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.CORSMiddleware(origins),
//	)(router)
//
// ReadPayload decodes webhook notifications, which may arrive as a JSON
// body or as bare query parameters.
package httputil
