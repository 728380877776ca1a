package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the response header carrying the request ID. The
	// same value appears in logs and keys the usage record in the ledger.
	RequestIDHeader = "X-Tokencap-Request-Id"

	// requestIDPrefix marks ids as gateway-issued.
	requestIDPrefix = "req_"
)

// RequestID assigns each request a freshly generated unique ID and exposes
// it via context and the response headers.
//
// An inbound X-Tokencap-Request-Id is deliberately ignored: the id keys the
// usage ledger, where uniqueness is a constraint, and a client replaying an
// id would make the second charge collide with the first. Callers that need
// their own correlation ids can carry them in any other header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := requestIDPrefix + uuid.NewString()

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
