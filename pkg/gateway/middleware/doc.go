// Package middleware provides the HTTP middleware chain for the gateway.
//
// # Middleware
//
//   - RequestID: generates X-Tokencap-Request-Id, the correlation key
//     shared by logs, response headers, and usage records. Inbound values
//     are ignored; the id keys the ledger and must be unique.
//   - Logging: structured request/response logging with latency.
//   - Recovery: converts handler panics into 500 responses in the gateway
//     error format.
//   - CORS: preflight handling, with the X-Tokencap-* cost headers exposed
//     by default so browser clients can read them.
//   - Timeout: a context deadline for admin routes. Forwarding routes are
//     excluded; their duration is governed by the upstream client.
//
// # Ordering
//
// The server composes the chain as
//
//	Recovery(CORS(RequestID(Logging(mux))))
//
// so a panic anywhere below is caught, preflights short-circuit early, and
// every logged line carries a request ID.
//
// # Streaming
//
// All wrappers in this package preserve http.Flusher: the logging response
// writer forwards Flush to the underlying writer. Middleware that buffers
// (http.TimeoutHandler, compression wrappers) must not be added to the
// forwarding routes, or stream relay latency guarantees break.
package middleware
