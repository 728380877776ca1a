package tokens

// DefaultOutputEstimate is the configurable fallback used when neither the
// request nor the catalog bounds the output length.
const DefaultOutputEstimate = 4096

// Fractions applied to the available output bound. Clients rarely consume
// their whole max_tokens; model defaults are an even looser ceiling.
const (
	maxTokensFraction    = 0.75
	modelDefaultFraction = 0.50
)

// EstimateOutput predicts completion tokens for a request.
//
// Preference order: an explicit client max_tokens (75%, high confidence),
// the model's documented default output cap (50%, medium), then the
// configured fallback (low). A non-positive fallback uses
// DefaultOutputEstimate.
func EstimateOutput(requestMaxTokens, modelDefaultMax, configuredDefault int) (int, Confidence) {
	if requestMaxTokens > 0 {
		return scale(requestMaxTokens, maxTokensFraction), ConfidenceHigh
	}
	if modelDefaultMax > 0 {
		return scale(modelDefaultMax, modelDefaultFraction), ConfidenceMedium
	}
	if configuredDefault <= 0 {
		configuredDefault = DefaultOutputEstimate
	}
	return configuredDefault, ConfidenceLow
}

func scale(tokens int, fraction float64) int {
	n := int(float64(tokens) * fraction)
	if n < 1 {
		n = 1
	}
	return n
}
