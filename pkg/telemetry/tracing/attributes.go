package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span Attribute Helpers
//
// These functions provide a convenient way to set common attributes on spans.
// Standard attribute keys follow OpenTelemetry semantic conventions where
// applicable; custom keys use the "tokencap.*" namespace.

// Common attribute keys used throughout the system
const (
	// Provider attributes
	AttrProvider = "tokencap.provider"
	AttrModel    = "tokencap.model"

	// Request attributes
	AttrRequestID = "tokencap.request_id"
	AttrProject   = "tokencap.project"
	AttrStreaming = "tokencap.streaming"

	// Token attributes
	AttrTokensInput  = "tokencap.tokens.input"
	AttrTokensOutput = "tokencap.tokens.output"
	AttrTokensTotal  = "tokencap.tokens.total"

	// Estimate attributes
	AttrEstimateCost       = "tokencap.estimate.cost_usd"
	AttrEstimateConfidence = "tokencap.estimate.confidence"

	// Cost attributes
	AttrCost        = "tokencap.cost.total_usd"
	AttrUsageSource = "tokencap.usage.source"

	// Error attributes
	AttrErrorType    = "tokencap.error.type"
	AttrErrorMessage = "error.message"

	// Performance attributes
	AttrDuration = "tokencap.duration_ms"
)

// SetProviderAttributes sets provider-related attributes on a span.
//
// Example:
//
//	SetProviderAttributes(span, "openai", "gpt-4o")
func SetProviderAttributes(span trace.Span, provider, model string) {
	span.SetAttributes(
		attribute.String(AttrProvider, provider),
		attribute.String(AttrModel, model),
	)
}

// SetRequestAttributes sets request identity attributes on a span.
//
// Example:
//
//	SetRequestAttributes(span, "req-123", "team-a", true)
func SetRequestAttributes(span trace.Span, requestID, project string, streaming bool) {
	span.SetAttributes(
		attribute.String(AttrRequestID, requestID),
		attribute.String(AttrProject, project),
		attribute.Bool(AttrStreaming, streaming),
	)
}

// SetEstimateAttributes records the pre-execution estimate on a span.
//
// Example:
//
//	SetEstimateAttributes(span, 0.00075, "high")
func SetEstimateAttributes(span trace.Span, costUSD float64, confidence string) {
	span.SetAttributes(
		attribute.Float64(AttrEstimateCost, costUSD),
		attribute.String(AttrEstimateConfidence, confidence),
	)
}

// SetTokenAttributes sets token count attributes on a span.
//
// Example:
//
//	SetTokenAttributes(span, 100, 50)
func SetTokenAttributes(span trace.Span, inputTokens, outputTokens int64) {
	span.SetAttributes(
		attribute.Int64(AttrTokensInput, inputTokens),
		attribute.Int64(AttrTokensOutput, outputTokens),
		attribute.Int64(AttrTokensTotal, inputTokens+outputTokens),
	)
}

// SetCostAttributes records the final charge on a span. Source names where
// the usage figures came from ("reported", "counted", "estimated").
//
// Example:
//
//	SetCostAttributes(span, 0.000045, "reported")
func SetCostAttributes(span trace.Span, costUSD float64, source string) {
	span.SetAttributes(
		attribute.Float64(AttrCost, costUSD),
		attribute.String(AttrUsageSource, source),
	)
}

// SetErrorAttributes sets error-related attributes on a span.
// This also records the error using span.RecordError() and sets the span status.
//
// Example:
//
//	SetErrorAttributes(span, err, "budget_exceeded")
func SetErrorAttributes(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}

	span.SetAttributes(
		attribute.Bool("error", true),
		attribute.String(AttrErrorType, errorType),
		attribute.String(AttrErrorMessage, err.Error()),
	)

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetDurationAttribute sets the duration attribute on a span.
// Duration is recorded in milliseconds.
//
// Example:
//
//	start := time.Now()
//	// ... do work ...
//	SetDurationAttribute(span, time.Since(start).Milliseconds())
func SetDurationAttribute(span trace.Span, durationMs int64) {
	span.SetAttributes(attribute.Int64(AttrDuration, durationMs))
}

// AddEvent adds a named event to the span with optional attributes.
// Events represent interesting points in the span's lifetime.
//
// Example:
//
//	AddEvent(span, "budget_admitted",
//	    attribute.Float64("remaining_usd", 12.5),
//	)
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
