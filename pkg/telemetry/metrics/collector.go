package metrics

import (
	"fmt"
	"sync"
	"time"

	"mercator-hq/tokencap/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is the main orchestrator for all Prometheus metrics in the
// gateway. It manages metric registration and provides a unified interface
// for recording metrics across the request pipeline.
//
// The collector is designed for minimal per-request overhead:
//   - Pre-allocated metric instances
//   - Cardinality limits to prevent memory issues
//   - Histogram buckets sized for LLM workloads
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Request metrics
	requestMetrics *RequestMetrics

	// Cost metrics
	costMetrics *CostMetrics

	// Budget and ledger metrics
	budgetMetrics *BudgetMetrics

	// Cardinality tracking
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a fresh
// registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "tokencap",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	// Set defaults if not specified
	if cfg.Namespace == "" {
		cfg.Namespace = "tokencap"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// Sized for LLM request latencies (100ms - 60s)
		cfg.RequestDurationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0}
	}
	if len(cfg.TokenCountBuckets) == 0 {
		// Sized for per-request token counts (100 - 100K tokens)
		cfg.TokenCountBuckets = []float64{100, 500, 1000, 5000, 10000, 50000, 100000}
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(10000), // Max 10K unique label sets
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.costMetrics = NewCostMetrics(cfg, registry)
	c.budgetMetrics = NewBudgetMetrics(cfg, registry)

	return c
}

// RecordRequest records metrics for a completed request.
//
// Parameters:
//   - provider: upstream provider name (e.g., "openai", "anthropic")
//   - model: model name (e.g., "gpt-4o", "claude-sonnet-4")
//   - status: terminal request status ("success", "rejected", "upstream_error", "error")
//   - duration: total request duration including the upstream call
func (c *Collector) RecordRequest(provider, model, status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	// Unknown models can explode cardinality; aggregate the overflow.
	labelSet := fmt.Sprintf("request:%s:%s:%s", provider, model, status)
	if !c.cardinalityLimiter.Allow(labelSet) {
		model = "other"
	}

	c.requestMetrics.RecordRequest(provider, model, status, duration)
}

// RecordTokens records actual token consumption for a request.
//
// Parameters:
//   - provider: upstream provider name
//   - model: model name
//   - inputTokens: tokens consumed by the prompt
//   - outputTokens: tokens produced by the completion
func (c *Collector) RecordTokens(provider, model string, inputTokens, outputTokens int64) {
	if !c.config.Enabled {
		return
	}

	c.requestMetrics.RecordTokens(provider, model, inputTokens, outputTokens)
}

// RecordEstimateConfidence counts a pre-execution estimate by its
// confidence level ("high", "medium", "low").
func (c *Collector) RecordEstimateConfidence(confidence string) {
	if !c.config.Enabled {
		return
	}

	c.requestMetrics.RecordEstimateConfidence(confidence)
}

// RecordCost records the ledger charge for a request.
//
// Parameters:
//   - provider: upstream provider name
//   - model: model name
//   - project: project the charge was attributed to
//   - costUSD: charge amount in USD
func (c *Collector) RecordCost(provider, model, project string, costUSD float64) {
	if !c.config.Enabled {
		return
	}

	c.costMetrics.RecordCost(provider, model, project, costUSD)
}

// RecordBudgetRejection counts a request rejected by budget admission.
func (c *Collector) RecordBudgetRejection(project string) {
	if !c.config.Enabled {
		return
	}

	c.budgetMetrics.RecordRejection(project)
}

// UpdateBudgetUtilization sets the spend-to-limit ratio gauge for a project.
// Ratio is expressed as a percentage (0-100+, values over 100 mean overshot).
func (c *Collector) UpdateBudgetUtilization(project string, percent float64) {
	if !c.config.Enabled {
		return
	}

	c.budgetMetrics.UpdateUtilization(project, percent)
}

// RecordLedgerChargeFailure counts a usage record that could not be
// persisted after the upstream call completed.
func (c *Collector) RecordLedgerChargeFailure() {
	if !c.config.Enabled {
		return
	}

	c.budgetMetrics.RecordChargeFailure()
}

// Registry returns the Prometheus registry used by this collector.
// This can be used to create an HTTP handler for the /metrics endpoint:
//
//	http.Handle("/metrics", promhttp.HandlerFor(
//		collector.Registry(),
//		promhttp.HandlerOpts{},
//	))
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
// Returns false if adding this label set would exceed the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
