// Package budget answers admission questions: may this request, with this
// cost estimate, proceed under the project's budget?
//
// The controller holds no budget state of its own. Every decision reads a
// fresh snapshot from the ledger, so concurrent requests see the spend that
// has actually been committed. Between one request's admission read and its
// later charge, other requests may admit and charge; admitted requests can
// therefore collectively overshoot the limit by up to the sum of their
// estimates. That window is deliberate: holding a per-project lock across
// the upstream call would serialize all throughput for the project.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"mercator-hq/tokencap/pkg/ledger"
)

// Controller makes admission decisions against ledger-backed budgets.
type Controller struct {
	store  *ledger.Store
	logger *slog.Logger
}

// NewController creates a controller over the given store.
func NewController(store *ledger.Store) *Controller {
	return &Controller{
		store:  store,
		logger: slog.Default().With("component", "budget"),
	}
}

// Decision is the outcome of one admission query.
type Decision struct {
	// Admitted is false only when the estimate exceeds remaining budget.
	Admitted bool

	// Reason is a human-readable rejection reason; empty when admitted.
	Reason string

	// Advisory carries non-blocking notes, e.g. an expired period.
	Advisory string

	// Budget is the snapshot the decision was computed from, nil when the
	// project has no budget configured.
	Budget *ledger.Budget

	// EstimatedCostUSD echoes the estimate the decision was made against.
	EstimatedCostUSD float64

	// RemainingUSD is limit minus spend before this request. Zero when no
	// budget is configured (see Budget for the distinction).
	RemainingUSD float64

	// RemainingAfterUSD is what would remain if the estimate were charged.
	RemainingAfterUSD float64
}

// Limited reports whether a budget actually constrained this decision.
func (d *Decision) Limited() bool {
	return d.Budget != nil
}

// Admit applies the admission algorithm for one (project, estimate) pair:
// no budget admits; an expired period admits with an advisory; an estimate
// exceeding remaining budget rejects; an estimate exactly equal to remaining
// admits.
func (c *Controller) Admit(ctx context.Context, projectID string, estimatedCostUSD float64) (*Decision, error) {
	snap, err := c.Snapshot(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("budget admission: %w", err)
	}

	d := &Decision{
		Admitted:         true,
		Budget:           snap.Budget,
		EstimatedCostUSD: estimatedCostUSD,
	}

	if snap.Budget == nil {
		return d, nil
	}

	d.RemainingUSD = snap.Budget.LimitUSD - snap.Budget.SpentUSD
	d.RemainingAfterUSD = d.RemainingUSD - estimatedCostUSD

	if snap.Expired() {
		d.Advisory = fmt.Sprintf("budget period for project %q ended %s; admitting without enforcement",
			projectID, snap.Budget.PeriodEnd.UTC().Format(time.RFC3339))
		c.logger.Warn("admitting against expired budget period",
			"project_id", projectID,
			"period_end", snap.Budget.PeriodEnd,
		)
		return d, nil
	}

	if estimatedCostUSD > d.RemainingUSD {
		d.Admitted = false
		d.Reason = fmt.Sprintf(
			"estimated cost $%.6f exceeds remaining budget $%.6f (spent $%.6f of $%.6f limit; would leave $%.6f)",
			estimatedCostUSD, d.RemainingUSD, snap.Budget.SpentUSD, snap.Budget.LimitUSD, d.RemainingAfterUSD,
		)
		c.logger.Info("request rejected by budget",
			"project_id", projectID,
			"estimated_cost_usd", estimatedCostUSD,
			"remaining_usd", d.RemainingUSD,
		)
	}
	return d, nil
}

// Snapshot is one consistent read of a project's budget, from which the
// advisory helpers all compute. A nil Budget means the project is ungated.
type Snapshot struct {
	ProjectID string
	Budget    *ledger.Budget

	now time.Time
}

// Snapshot reads the project's current budget state.
func (c *Controller) Snapshot(ctx context.Context, projectID string) (*Snapshot, error) {
	b, err := c.store.GetBudget(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{ProjectID: projectID, Budget: b, now: time.Now().UTC()}, nil
}

// Expired reports whether the snapshot's period has lapsed.
func (s *Snapshot) Expired() bool {
	return s.Budget != nil && s.Budget.Expired(s.now)
}

// Remaining returns the budget left before this snapshot. The bool is false
// when no budget is configured (remaining is effectively unbounded).
func (s *Snapshot) Remaining() (float64, bool) {
	if s.Budget == nil {
		return math.Inf(1), false
	}
	return s.Budget.LimitUSD - s.Budget.SpentUSD, true
}

// WouldExceed reports whether charging cost would push spend past the limit.
// Always false without a budget or when the period has expired.
func (s *Snapshot) WouldExceed(costUSD float64) bool {
	if s.Budget == nil || s.Expired() {
		return false
	}
	remaining, _ := s.Remaining()
	return costUSD > remaining
}

// UtilizationPercent returns spend as a percentage of the limit, 0 without a
// budget. A zero limit with any spend reads as 100%.
func (s *Snapshot) UtilizationPercent() float64 {
	if s.Budget == nil {
		return 0
	}
	if s.Budget.LimitUSD <= 0 {
		if s.Budget.SpentUSD > 0 {
			return 100
		}
		return 0
	}
	return s.Budget.SpentUSD / s.Budget.LimitUSD * 100
}

// SafeMaxTokens returns the largest output token count whose cost, added to
// the already-committed input cost, still fits the remaining budget.
// Unbounded (math.MaxInt) without a budget or at a zero output price.
func (s *Snapshot) SafeMaxTokens(inputCostUSD, outputPerMTok float64) int {
	remaining, gated := s.Remaining()
	if !gated || outputPerMTok <= 0 {
		return math.MaxInt
	}
	headroom := remaining - inputCostUSD
	if headroom <= 0 {
		return 0
	}
	return int(headroom / outputPerMTok * 1_000_000)
}
