// Package tracing provides OpenTelemetry distributed tracing for the gateway.
//
// # Overview
//
// The tracing package implements W3C Trace Context propagation, span creation,
// and trace export to an OTLP collector over gRPC. It provides visibility into
// the request pipeline (estimate, admit, forward, charge) with minimal
// overhead per span.
//
// # Distributed Tracing
//
// Distributed tracing tracks requests as they flow through multiple services,
// creating a hierarchy of spans that represent operations. Each span records:
//   - Operation name and duration
//   - Attributes (key-value pairs)
//   - Events (timestamped logs within the span)
//   - Trace context (trace ID, span ID, sampling decision)
//
// # Trace Context Propagation
//
// The package implements W3C Trace Context (https://www.w3.org/TR/trace-context/)
// for propagating trace context across HTTP boundaries:
//
//	traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//	tracestate: congo=t61rcWkgMzE
//
// # Sampling Strategies
//
// Three sampling strategies are supported:
//   - always: Sample all traces (development/debugging)
//   - never: Sample no traces (tracing disabled)
//   - ratio: Sample a percentage of traces (production)
//
// # Usage
//
//	// Initialize tracer
//	cfg := &config.TracingConfig{
//	    Enabled:     true,
//	    Sampler:     "ratio",
//	    SampleRatio: 0.1,
//	    Endpoint:    "localhost:4317",
//	    ServiceName: "tokencap",
//	    Insecure:    true,
//	}
//	tracer, err := tracing.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(context.Background())
//
//	// Create span
//	ctx, span := tracer.Start(ctx, "tokencap.request")
//	defer span.End()
//
//	// Add attributes
//	tracing.SetProviderAttributes(span, "openai", "gpt-4o")
//	tracing.SetEstimateAttributes(span, 0.00075, "high")
//
//	// Add event
//	tracing.AddEvent(span, "budget_admitted",
//	    attribute.Float64("remaining_usd", 12.5),
//	)
//
// # Span Hierarchy
//
// Spans form a hierarchy representing the call tree:
//
//	tokencap.request (10s)
//	├── tokencap.estimate (2ms)
//	├── tokencap.admit (1ms)
//	├── tokencap.forward (9.9s)
//	└── tokencap.charge (3ms)
//
// # HTTP Integration
//
// Extract trace context from incoming HTTP requests:
//
//	ctx := tracing.Extract(r.Context(), r.Header)
//	ctx, span := tracer.Start(ctx, "tokencap.request")
//	defer span.End()
//
// Inject trace context into outgoing HTTP requests:
//
//	req, _ := http.NewRequestWithContext(ctx, "POST", url, body)
//	tracing.Inject(ctx, req.Header)
//
// # Performance
//
// When disabled, noop spans keep overhead below a microsecond per
// operation, so tracing can stay compiled into hot paths.
package tracing
