package metrics

import (
	"mercator-hq/tokencap/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// CostMetrics tracks cost-related metrics for LLM requests.
//
// Metrics:
//   - tokencap_cost_usd_total: Total charged cost in USD by provider, model, project
//   - tokencap_cost_per_request_usd: Cost distribution per request (histogram)
type CostMetrics struct {
	// Total charged cost counter (in USD)
	costTotal *prometheus.CounterVec

	// Cost per request histogram (in USD)
	costPerRequest *prometheus.HistogramVec
}

// NewCostMetrics creates and registers cost metrics with the provided registry.
func NewCostMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CostMetrics {
	cm := &CostMetrics{
		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_usd_total",
				Help:      "Total charged cost in USD by provider, model, and project",
			},
			[]string{"provider", "model", "project"},
		),

		costPerRequest: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_per_request_usd",
				Help:      "Cost distribution per request in USD",
				// Cost buckets: $0.0001 to $10 (sized for per-request LLM pricing)
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"provider", "model"},
		),
	}

	registry.MustRegister(
		cm.costTotal,
		cm.costPerRequest,
	)

	return cm
}

// RecordCost records the charge for a single request.
//
// Parameters:
//   - provider: upstream provider name
//   - model: model name
//   - project: project the charge was attributed to
//   - costUSD: charge amount in USD
//
// This updates both the total cost counter and the cost-per-request histogram.
// Zero-cost requests (unknown usage, flagged records) still observe the
// histogram so the distribution reflects them.
func (cm *CostMetrics) RecordCost(provider, model, project string, costUSD float64) {
	if costUSD < 0 {
		return
	}

	cm.costTotal.WithLabelValues(provider, model, project).Add(costUSD)
	cm.costPerRequest.WithLabelValues(provider, model).Observe(costUSD)
}
