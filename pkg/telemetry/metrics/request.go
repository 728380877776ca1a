package metrics

import (
	"time"

	"mercator-hq/tokencap/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks metrics for the request pipeline.
//
// Metrics:
//   - tokencap_requests_total: Request count by provider, model, status
//   - tokencap_request_duration_seconds: Request duration histogram
//   - tokencap_tokens_total: Actual token consumption by direction
//   - tokencap_tokens_per_request: Per-request token distribution
//   - tokencap_estimate_confidence_total: Estimates by confidence level
type RequestMetrics struct {
	// Total request count
	requestsTotal *prometheus.CounterVec

	// Request duration histogram
	requestDuration *prometheus.HistogramVec

	// Token counts (input and output)
	tokensTotal *prometheus.CounterVec

	// Per-request token count distribution
	tokensPerRequest *prometheus.HistogramVec

	// Estimates by confidence level
	estimateConfidence *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of LLM requests processed",
			},
			[]string{"provider", "model", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of LLM requests in seconds, including the upstream call",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"provider", "model"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_total",
				Help:      "Total number of tokens consumed",
			},
			[]string{"provider", "model", "type"},
		),

		tokensPerRequest: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_per_request",
				Help:      "Distribution of token counts per request",
				Buckets:   cfg.TokenCountBuckets,
			},
			[]string{"provider", "model", "type"},
		),

		estimateConfidence: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "estimate_confidence_total",
				Help:      "Pre-execution cost estimates by confidence level",
			},
			[]string{"confidence"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.tokensTotal,
		rm.tokensPerRequest,
		rm.estimateConfidence,
	)

	return rm
}

// RecordRequest records the terminal status and duration of a request.
func (rm *RequestMetrics) RecordRequest(provider, model, status string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(provider, model, status).Inc()
	rm.requestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordTokens records actual token consumption split by direction.
func (rm *RequestMetrics) RecordTokens(provider, model string, inputTokens, outputTokens int64) {
	if inputTokens > 0 {
		rm.tokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
		rm.tokensPerRequest.WithLabelValues(provider, model, "input").Observe(float64(inputTokens))
	}
	if outputTokens > 0 {
		rm.tokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
		rm.tokensPerRequest.WithLabelValues(provider, model, "output").Observe(float64(outputTokens))
	}
}

// RecordEstimateConfidence counts one estimate at the given confidence level.
func (rm *RequestMetrics) RecordEstimateConfidence(confidence string) {
	rm.estimateConfidence.WithLabelValues(confidence).Inc()
}
