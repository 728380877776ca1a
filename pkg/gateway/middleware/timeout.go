package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout puts a deadline on the request context. Handlers and their
// downstream calls (database queries, upstream requests) observe it through
// ctx.Done() and fail with their own error shapes.
//
// This is deliberately not http.TimeoutHandler, which buffers the whole
// response and would break streaming. It is applied to admin routes only;
// forwarding routes are bounded by the upstream client's own timeout so
// that long-lived streams are not cut off mid-flight.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
