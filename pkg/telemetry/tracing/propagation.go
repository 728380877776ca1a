package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Trace context crosses the gateway in W3C Trace Context form
// (https://www.w3.org/TR/trace-context/): a traceparent header naming the
// trace, the caller's span, and the sampling decision, plus an optional
// tracestate. The gateway sits between a calling application and an LLM
// provider, so it participates on both sides: inbound headers are extracted
// so the caller's trace continues through the request/estimate/admit spans,
// and the current span context is injected into the outbound request so the
// provider-side hop joins the same trace.
//
// Both operations go through the global propagator, which New registers when
// tracing is enabled. With tracing disabled the global default is a no-op,
// so Extract returns the context unchanged and Inject writes nothing.

// Extract returns ctx extended with any trace context found in the inbound
// request headers. Call it before starting the first span of a request:
//
//	ctx := tracing.Extract(r.Context(), r.Header)
//	ctx, span := tracer.Start(ctx, "tokencap.request")
//
// Headers without a valid traceparent leave ctx unchanged, and the started
// span roots a fresh trace.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject writes the span context from ctx into headers as traceparent and
// tracestate. Injection uses set semantics, so a traceparent already present
// in the outbound header set, such as one forwarded verbatim from the inbound
// request, is replaced with the current hop's. A ctx without a valid span
// context injects nothing.
func Inject(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
