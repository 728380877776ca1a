// Package retention runs the ledger's scheduled maintenance: pruning old
// usage rows and sweeping budgets for expired periods.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/tokencap/pkg/ledger"
)

// Config contains configuration for ledger maintenance.
type Config struct {
	// RetentionDays is how long usage rows are kept. 0 disables pruning.
	RetentionDays int

	// Schedule is a standard cron expression for the maintenance run.
	// Empty disables the scheduler entirely.
	Schedule string
}

// DefaultConfig keeps usage for 90 days and runs nightly at 03:00.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 90,
		Schedule:      "0 3 * * *",
	}
}

// Maintainer owns the cron scheduler and the maintenance jobs.
type Maintainer struct {
	store  *ledger.Store
	config *Config
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewMaintainer creates a maintainer over the given store.
func NewMaintainer(store *ledger.Store, config *Config) *Maintainer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Maintainer{
		store:  store,
		config: config,
		cron:   cron.New(),
		logger: slog.Default().With("component", "ledger.retention"),
	}
}

// Start schedules the maintenance job. With an empty schedule it does
// nothing; jobs stop when the context is cancelled or Stop is called.
func (m *Maintainer) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.Schedule == "" {
		m.logger.Info("maintenance schedule not configured, skipping")
		return nil
	}

	if _, err := cron.ParseStandard(m.config.Schedule); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", m.config.Schedule, err)
	}

	if _, err := m.cron.AddFunc(m.config.Schedule, func() {
		m.runOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}

	m.cron.Start()
	m.running = true

	m.logger.Info("ledger maintenance scheduled",
		"schedule", m.config.Schedule,
		"retention_days", m.config.RetentionDays,
	)

	go func() {
		<-ctx.Done()
		m.Stop()
	}()
	return nil
}

// runOnce executes one maintenance cycle.
func (m *Maintainer) runOnce(ctx context.Context) {
	if deleted, err := m.Prune(ctx); err != nil {
		m.logger.Error("usage pruning failed", "error", err)
	} else if deleted > 0 {
		m.logger.Info("usage rows pruned", "deleted", deleted, "retention_days", m.config.RetentionDays)
	}

	if err := m.SweepExpired(ctx); err != nil {
		m.logger.Error("budget period sweep failed", "error", err)
	}
}

// Prune deletes usage rows older than the retention window. Returns the
// number of rows removed; 0 retention days keeps everything.
func (m *Maintainer) Prune(ctx context.Context) (int64, error) {
	if m.config.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -m.config.RetentionDays)
	return m.store.PruneUsage(ctx, cutoff)
}

// SweepExpired logs an advisory for every budget whose period has lapsed.
// Budgets are never reset automatically; the advisory exists so operators
// notice windows that outlived their period.
func (m *Maintainer) SweepExpired(ctx context.Context) error {
	budgets, err := m.store.ListBudgets(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, b := range budgets {
		if b.Expired(now) {
			m.logger.Warn("budget period expired",
				"project_id", b.ProjectID,
				"period_end", b.PeriodEnd,
				"spent_usd", b.SpentUSD,
				"limit_usd", b.LimitUSD,
			)
		}
	}
	return nil
}

// Stop halts the scheduler and waits for an in-flight job to finish.
func (m *Maintainer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cron != nil && m.running {
		ctx := m.cron.Stop()
		<-ctx.Done()
		m.running = false
		m.logger.Info("ledger maintenance stopped")
	}
}

// NextRun returns the next scheduled maintenance time, if any.
func (m *Maintainer) NextRun() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
