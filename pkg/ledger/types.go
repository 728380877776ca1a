package ledger

import (
	"time"
)

// UsageRecord is one append-only row of the usage ledger. Records are
// created exactly once per admitted request that produced a usage signal and
// are never mutated afterwards.
type UsageRecord struct {
	// ID is the record's unique identifier.
	ID string `json:"id"`

	// ProjectID is the caller-chosen aggregation key.
	ProjectID string `json:"projectId"`

	// Provider and Model identify what was billed.
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// InputTokens and OutputTokens are the charged token counts.
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`

	// CostUSD is the unrounded charge amount.
	CostUSD float64 `json:"costUsd"`

	// RequestID ties the record to the gateway request that produced it.
	// Unique per record.
	RequestID string `json:"requestId"`

	// Flagged marks records charged without an upstream usage signal
	// (estimated input, zero output).
	Flagged bool `json:"flagged,omitempty"`

	// CreatedAt is the charge time in UTC.
	CreatedAt time.Time `json:"createdAt"`
}

// Budget is the mutable per-project spend limit row.
type Budget struct {
	// ProjectID is unique per budget.
	ProjectID string `json:"projectId"`

	// LimitUSD is the spend ceiling for the period.
	LimitUSD float64 `json:"limitUsd"`

	// SpentUSD is the accumulated charge total. Monotonic nondecreasing
	// except by explicit reset.
	SpentUSD float64 `json:"spentUsd"`

	// PeriodStart anchors the budget window.
	PeriodStart time.Time `json:"periodStart"`

	// PeriodEnd, when set, expires the window; expired budgets still admit
	// but with an advisory.
	PeriodEnd *time.Time `json:"periodEnd,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Remaining returns limit minus spent, floored at zero for display purposes.
func (b *Budget) Remaining() float64 {
	r := b.LimitUSD - b.SpentUSD
	if r < 0 {
		return 0
	}
	return r
}

// Expired reports whether the budget window has a period end in the past.
func (b *Budget) Expired(now time.Time) bool {
	return b.PeriodEnd != nil && now.After(*b.PeriodEnd)
}

// UsageSummary aggregates a project's ledger history together with its
// current budget view, read in one consistent snapshot.
type UsageSummary struct {
	ProjectID         string  `json:"projectId"`
	TotalRequests     int64   `json:"totalRequests"`
	TotalInputTokens  int64   `json:"totalInputTokens"`
	TotalOutputTokens int64   `json:"totalOutputTokens"`
	TotalCostUSD      float64 `json:"totalCostUsd"`

	// Budget is the project's current budget row, nil when none is set.
	Budget *Budget `json:"budget,omitempty"`
}
