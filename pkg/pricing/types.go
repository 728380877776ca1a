package pricing

import (
	"mercator-hq/tokencap/pkg/tokens"
)

// ModelPricing is one row of the catalog: USD prices per million tokens plus
// the model's documented limits. Rows are immutable once published in a
// catalog snapshot.
type ModelPricing struct {
	// Provider is the provider family the row belongs to.
	Provider string `yaml:"provider" json:"provider"`

	// Model is the canonical model identifier.
	Model string `yaml:"model" json:"model"`

	// InputPerMTok is the USD price per million input tokens.
	InputPerMTok float64 `yaml:"input_per_mtok" json:"inputPerMTok"`

	// OutputPerMTok is the USD price per million output tokens.
	OutputPerMTok float64 `yaml:"output_per_mtok" json:"outputPerMTok"`

	// ContextWindow is the model's maximum combined token window.
	ContextWindow int `yaml:"context_window" json:"contextWindow"`

	// DefaultMaxOutput is the documented default output cap, used for output
	// estimation when the client does not set max_tokens.
	DefaultMaxOutput int `yaml:"default_max_output" json:"defaultMaxOutput"`

	// Deprecated marks rows kept resolvable for billing continuity but
	// excluded from cheapest-model queries.
	Deprecated bool `yaml:"deprecated,omitempty" json:"deprecated,omitempty"`
}

// InputCost returns the unrounded USD cost of n input tokens.
func (p *ModelPricing) InputCost(n int) float64 {
	return tokenCost(n, p.InputPerMTok)
}

// OutputCost returns the unrounded USD cost of n output tokens.
func (p *ModelPricing) OutputCost(n int) float64 {
	return tokenCost(n, p.OutputPerMTok)
}

// Cost returns the unrounded USD cost of a full exchange.
func (p *ModelPricing) Cost(inputTokens, outputTokens int) float64 {
	return p.InputCost(inputTokens) + p.OutputCost(outputTokens)
}

// Match describes how a lookup resolved to its row.
type Match string

// Resolution steps, in lookup order. First hit wins.
const (
	MatchExact    Match = "exact"
	MatchModel    Match = "model"
	MatchAlias    Match = "alias"
	MatchPrefix   Match = "prefix"
	MatchFallback Match = "fallback"
)

// CostEstimate is the pre-execution estimate for one request. Dollar values
// are unrounded; rounding to six decimals happens only at exposure points
// (headers, JSON bodies) to avoid double rounding.
type CostEstimate struct {
	// Provider and Model echo the pricing row that was used.
	Provider string
	Model    string

	// InputTokens is the counted prompt size.
	InputTokens int

	// EstimatedOutputTokens is the predicted completion size.
	EstimatedOutputTokens int

	// InputCostUSD is the unrounded input-side cost.
	InputCostUSD float64

	// EstimatedOutputCostUSD is the unrounded predicted output-side cost.
	EstimatedOutputCostUSD float64

	// TotalCostUSD = InputCostUSD + EstimatedOutputCostUSD, unrounded.
	TotalCostUSD float64

	// Confidence is the weaker of the tokenizer's confidence and the
	// known-model bit: resolving through the fallback row forces low.
	Confidence tokens.Confidence

	// PricingMatch records the resolution step that produced the row.
	PricingMatch Match
}

// FallbackPricing reports whether the estimate priced against the fallback
// row rather than a known model.
func (e *CostEstimate) FallbackPricing() bool {
	return e.PricingMatch == MatchFallback
}

// tokenCost converts a token count to unrounded USD at a per-million rate.
func tokenCost(n int, perMTok float64) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n) * perMTok / 1_000_000
}
