// Package gateway implements the HTTP surface of tokencap: the forwarding
// pipeline for provider chat requests plus the admin endpoints for budgets,
// usage, and pricing.
//
// Every forwarded request runs the same stages: parse via the provider
// adapter, count tokens and price the estimate, ask the budget controller
// for admission, forward upstream, then charge observed usage to the
// ledger. Non-streaming responses are buffered so actual-cost headers can be
// attached before the body; streaming responses are relayed verbatim with
// estimate-only headers and the charge settles after the last byte, even if
// the client has already gone.
//
// Rejections, parse failures, and credential failures are answered before
// any upstream call and never write to the ledger. Upstream errors pass
// through with the provider's own status and body.
package gateway
