package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Sampler strategy names accepted in the tracing configuration.
const (
	// SamplerAlways records every trace. Suited to development and to
	// debugging a specific gateway instance.
	SamplerAlways = "always"

	// SamplerNever records no traces.
	SamplerNever = "never"

	// SamplerRatio records a fraction of traces, selected by trace ID hash
	// so the decision is consistent across services sharing a trace.
	SamplerRatio = "ratio"
)

// createSampler builds the sampler for the given strategy. Every strategy is
// wrapped in ParentBased: a request arriving with a sampled traceparent is
// recorded regardless of the local ratio, and an unsampled one is not, so a
// trace that spans the calling application, the gateway, and the provider
// hop is either captured whole or not at all.
func createSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	var root sdktrace.Sampler

	switch strategy {
	case SamplerAlways:
		root = sdktrace.AlwaysSample()

	case SamplerNever:
		root = sdktrace.NeverSample()

	case SamplerRatio:
		if ratio < 0.0 || ratio > 1.0 {
			return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
		}
		root = sdktrace.TraceIDRatioBased(ratio)

	default:
		return nil, fmt.Errorf("unknown sampler strategy: %s (valid: always, never, ratio)", strategy)
	}

	return sdktrace.ParentBased(root), nil
}
