// Package telemetry provides observability for the Tokencap gateway.
//
// # Overview
//
// The telemetry package implements structured logging, Prometheus metrics,
// OpenTelemetry distributed tracing, and health checks. Each concern lives in
// its own subpackage; the gateway wires them together at startup.
//
// # Components
//
//   - logging: slog-based structured logging with credential redaction
//   - metrics: Prometheus metrics for requests, tokens, cost, and budgets
//   - tracing: OpenTelemetry distributed tracing
//   - health: liveness and readiness checks
//
// # Usage
//
//	// Install the process-wide logger
//	logger, err := logging.Setup(logging.Config{
//		Level:      "info",
//		Format:     "json",
//		RedactKeys: true,
//	})
//
//	// Record request metrics
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordRequest("openai", "gpt-4o", "success", duration)
//	collector.RecordCost("openai", "gpt-4o", "team-alpha", 0.0125)
//
//	// Create a span
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	ctx, span := tracer.Start(ctx, "gateway.forward")
//	defer span.End()
//
// # Credential Redaction
//
// With RedactKeys enabled, provider credentials are masked before they reach
// the log output:
//
//   - API keys: sk-abc123 → sk-***
//   - Authorization values: Bearer eyJhbGci... → Bearer ***
//   - Attrs with sensitive key names (token, api_key, ...) are masked entirely
//
// The gateway never logs message content, so redaction focuses on the
// credential shapes that pass through it.
package telemetry
