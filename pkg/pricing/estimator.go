package pricing

import (
	"fmt"

	"mercator-hq/tokencap/pkg/tokens"
	"mercator-hq/tokencap/pkg/upstream"
)

// Estimator combines token counting with catalog pricing into a
// pre-execution CostEstimate. It is stateless apart from its configuration
// and safe for concurrent use.
type Estimator struct {
	catalog *Catalog

	// defaultOutputTokens is used when neither the request nor the catalog
	// bounds the output length.
	defaultOutputTokens int
}

// NewEstimator creates an estimator over the given catalog.
func NewEstimator(catalog *Catalog, defaultOutputTokens int) *Estimator {
	if defaultOutputTokens <= 0 {
		defaultOutputTokens = tokens.DefaultOutputEstimate
	}
	return &Estimator{catalog: catalog, defaultOutputTokens: defaultOutputTokens}
}

// Estimate produces the cost estimate for a parsed request. The count
// breakdown is returned alongside for logging and event sinks.
func (e *Estimator) Estimate(provider string, req upstream.Request) (*CostEstimate, *tokens.Estimate, error) {
	count, err := tokens.CountRequest(req)
	if err != nil {
		return nil, nil, fmt.Errorf("count input tokens: %w", err)
	}

	row, match := e.catalog.Resolve(provider, req.Model())

	outputTokens, outputConf := tokens.EstimateOutput(req.MaxTokens(), row.DefaultMaxOutput, e.defaultOutputTokens)

	confidence := tokens.MinConfidence(count.Confidence, outputConf)
	if match == MatchFallback {
		confidence = tokens.ConfidenceLow
	}

	est := &CostEstimate{
		Provider:               provider,
		Model:                  req.Model(),
		InputTokens:            count.InputTokens,
		EstimatedOutputTokens:  outputTokens,
		InputCostUSD:           row.InputCost(count.InputTokens),
		EstimatedOutputCostUSD: row.OutputCost(outputTokens),
		Confidence:             confidence,
		PricingMatch:           match,
	}
	est.TotalCostUSD = est.InputCostUSD + est.EstimatedOutputCostUSD
	return est, count, nil
}

// ActualCost prices observed usage for the ledger charge, using the same
// resolution rules as estimation.
func (e *Estimator) ActualCost(provider, model string, usage upstream.Usage) (float64, *ModelPricing) {
	row, _ := e.catalog.Resolve(provider, model)
	return row.Cost(usage.InputTokens, usage.OutputTokens), row
}

// Catalog exposes the underlying catalog for introspection endpoints.
func (e *Estimator) Catalog() *Catalog {
	return e.catalog
}
