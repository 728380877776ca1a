// Package upstream defines the provider-neutral request and usage types and
// the plumbing shared by all provider adapters: a pooled HTTP client,
// credential extraction, header forwarding, and a verbatim SSE relay.
//
// # Adapters
//
// Each supported provider implements the Adapter interface in its own
// subpackage. An adapter knows its wire format (how to decode a request,
// where usage lives in a response, what its stream events look like) and
// its auth scheme, and nothing about budgets or pricing. The gateway
// pipeline owns those concerns.
//
// # Forwarding contract
//
// Request bodies pass through byte for byte: the gateway never rewrites
// model names, injects parameters, or re-serializes JSON. The only headers
// touched are hop-by-hop headers, credentials (swapped for the resolved
// key), and Content-Length. Response bodies likewise reach the client
// unmodified; streaming responses are relayed line by line with flushes at
// event boundaries, and inspection happens on a side copy of each data
// payload.
//
// # Credentials
//
// An inbound request may carry its own key ("Authorization: Bearer" or
// "X-API-Key"); otherwise the upstream's configured default applies. A
// request with neither is rejected before any upstream contact.
package upstream
