// Package metrics provides Prometheus metrics collection for the gateway.
//
// # Overview
//
// The metrics package implements Prometheus metrics for monitoring the
// request pipeline: admission outcomes, token consumption, charged cost,
// and ledger health. Metric collection adds minimal overhead per request.
//
// # Metrics Categories
//
//   - Request Metrics: Request count, duration, tokens, estimate confidence
//   - Cost Metrics: Total charged cost and cost per request
//   - Budget Metrics: Admission rejections, utilization, ledger write failures
//
// # Usage
//
//	// Create collector
//	collector := metrics.NewCollector(cfg, registry)
//
//	// Record a completed request
//	collector.RecordRequest("openai", "gpt-4o", "success", 1200*time.Millisecond)
//	collector.RecordTokens("openai", "gpt-4o", 100, 50)
//	collector.RecordCost("openai", "gpt-4o", "team-a", 0.00075)
//
//	// Record admission outcomes
//	collector.RecordEstimateConfidence("high")
//	collector.RecordBudgetRejection("team-a")
//
// # Custom Histogram Buckets
//
// The collector uses histogram buckets sized for LLM workloads:
//
//	Request Duration: 0.1s, 0.25s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
//	Token Counts: 100, 500, 1K, 5K, 10K, 50K, 100K
//	Per-Request Cost: $0.0001 .. $10
//
// # Prometheus Endpoint
//
// All metrics are exposed on the /metrics endpoint in standard Prometheus format:
//
//	# HELP tokencap_requests_total Total number of LLM requests processed
//	# TYPE tokencap_requests_total counter
//	tokencap_requests_total{provider="openai",model="gpt-4o",status="success"} 1234
//
// # Cardinality Management
//
// Model names arrive from untrusted request bodies, so the collector
// limits unique label combinations (10,000 by default) and aggregates the
// overflow into model="other".
package metrics
