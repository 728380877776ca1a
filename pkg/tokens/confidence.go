package tokens

// Confidence labels how trustworthy a token count or cost estimate is.
type Confidence string

// Confidence levels, ordered low < medium < high.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// rank orders confidence levels for comparison. Unknown values rank lowest.
func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// MinConfidence returns the weaker of two confidence labels.
func MinConfidence(a, b Confidence) Confidence {
	if a.rank() <= b.rank() {
		return a
	}
	return b
}

// Valid reports whether c is one of the three defined levels.
func (c Confidence) Valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}
