// Package events defines the gateway's request lifecycle hooks: estimation,
// charging, and budget pressure. Sinks receive events synchronously on the
// request path, so implementations must return quickly; anything slow
// belongs on a queue the sink owns.
package events

import (
	"context"
	"log/slog"
)

// WarnThresholdPercent is the budget utilization at which a warning event
// fires. The pipeline fires it once per crossing, not on every charge above
// the line.
const WarnThresholdPercent = 80.0

// EstimateEvent is emitted after estimation, before admission.
type EstimateEvent struct {
	RequestID             string
	ProjectID             string
	Provider              string
	Model                 string
	InputTokens           int
	EstimatedOutputTokens int
	EstimatedCostUSD      float64
	Confidence            string
	Streaming             bool
}

// CostEvent is emitted after a usage charge has been committed to the ledger.
type CostEvent struct {
	RequestID    string
	ProjectID    string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Streamed     bool

	// Flagged marks charges recorded without a usage signal from the
	// upstream; the token counts are the gateway's own estimate.
	Flagged bool

	// UtilizationPercent is spend over limit after this charge, nil when the
	// project has no budget.
	UtilizationPercent *float64
}

// BudgetWarningEvent is emitted when a charge pushes a project's utilization
// across WarnThresholdPercent.
type BudgetWarningEvent struct {
	ProjectID          string
	LimitUSD           float64
	SpentUSD           float64
	UtilizationPercent float64
}

// BudgetExceededEvent is emitted when admission rejects a request.
type BudgetExceededEvent struct {
	RequestID        string
	ProjectID        string
	Provider         string
	Model            string
	EstimatedCostUSD float64
	LimitUSD         float64
	SpentUSD         float64
	RemainingUSD     float64
}

// Sink receives gateway lifecycle events. Implementations must be safe for
// concurrent use; the gateway calls them from every request goroutine.
type Sink interface {
	OnEstimate(ctx context.Context, ev EstimateEvent)
	OnCost(ctx context.Context, ev CostEvent)
	OnBudgetWarning(ctx context.Context, ev BudgetWarningEvent)
	OnBudgetExceeded(ctx context.Context, ev BudgetExceededEvent)
}

// Dispatcher fans events out to a fixed set of sinks in registration order.
// It is itself a Sink. A panicking sink is recovered and logged so an
// observer bug cannot fail the request that triggered it.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given sinks.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:  sinks,
		logger: slog.Default().With("component", "events"),
	}
}

// OnEstimate implements Sink.
func (d *Dispatcher) OnEstimate(ctx context.Context, ev EstimateEvent) {
	for _, s := range d.sinks {
		d.dispatch(ctx, "estimate", func() { s.OnEstimate(ctx, ev) })
	}
}

// OnCost implements Sink.
func (d *Dispatcher) OnCost(ctx context.Context, ev CostEvent) {
	for _, s := range d.sinks {
		d.dispatch(ctx, "cost", func() { s.OnCost(ctx, ev) })
	}
}

// OnBudgetWarning implements Sink.
func (d *Dispatcher) OnBudgetWarning(ctx context.Context, ev BudgetWarningEvent) {
	for _, s := range d.sinks {
		d.dispatch(ctx, "budget_warning", func() { s.OnBudgetWarning(ctx, ev) })
	}
}

// OnBudgetExceeded implements Sink.
func (d *Dispatcher) OnBudgetExceeded(ctx context.Context, ev BudgetExceededEvent) {
	for _, s := range d.sinks {
		d.dispatch(ctx, "budget_exceeded", func() { s.OnBudgetExceeded(ctx, ev) })
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.ErrorContext(ctx, "event sink panicked",
				"event", event,
				"panic", rec,
			)
		}
	}()
	fn()
}
