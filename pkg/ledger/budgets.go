package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SetBudget upserts a project's budget. Creating anchors the period at now;
// updating preserves accumulated spend. Supplying periodDays re-anchors the
// window from now; omitting it keeps the existing window (or leaves the
// budget non-expiring on create).
func (s *Store) SetBudget(ctx context.Context, projectID string, limitUSD float64, periodDays int) (*Budget, error) {
	if projectID == "" {
		return nil, fmt.Errorf("set budget: project id is required")
	}
	if limitUSD < 0 {
		return nil, fmt.Errorf("set budget: limit must be non-negative")
	}
	if periodDays < 0 {
		return nil, fmt.Errorf("set budget: period days must be non-negative")
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("set budget: begin: %w", err)
	}
	defer tx.Rollback()

	existing, err := getBudgetTx(ctx, tx, projectID)
	if err != nil {
		return nil, fmt.Errorf("set budget: read existing: %w", err)
	}

	b := Budget{
		ProjectID:   projectID,
		LimitUSD:    limitUSD,
		PeriodStart: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		b.SpentUSD = existing.SpentUSD
		b.PeriodStart = existing.PeriodStart
		b.PeriodEnd = existing.PeriodEnd
		b.CreatedAt = existing.CreatedAt
	}
	if periodDays > 0 {
		b.PeriodStart = now
		end := now.AddDate(0, 0, periodDays)
		b.PeriodEnd = &end
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO budgets (project_id, limit_usd, spent_usd, period_start, period_end, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project_id) DO UPDATE SET
		   limit_usd = excluded.limit_usd,
		   period_start = excluded.period_start,
		   period_end = excluded.period_end,
		   updated_at = excluded.updated_at`,
		b.ProjectID, b.LimitUSD, b.SpentUSD, encodeTime(b.PeriodStart),
		encodeNullableTime(b.PeriodEnd), encodeTime(b.CreatedAt), encodeTime(b.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("set budget: upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("set budget: commit: %w", err)
	}

	s.logger.Info("budget set",
		"project_id", projectID,
		"limit_usd", limitUSD,
		"period_days", periodDays,
	)
	return &b, nil
}

// GetBudget returns the project's budget, or nil when none is configured.
func (s *Store) GetBudget(ctx context.Context, projectID string) (*Budget, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT project_id, limit_usd, spent_usd, period_start, period_end, created_at, updated_at
		 FROM budgets WHERE project_id = ?`,
		projectID,
	)
	b, err := scanBudget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

// ResetBudgetSpent zeroes accumulated spend and restarts the period from
// now, sliding the period end by the original window length. Idempotent:
// resetting an already-reset budget changes only the anchor timestamps.
func (s *Store) ResetBudgetSpent(ctx context.Context, projectID string) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reset budget: begin: %w", err)
	}
	defer tx.Rollback()

	existing, err := getBudgetTx(ctx, tx, projectID)
	if err != nil {
		return fmt.Errorf("reset budget: read: %w", err)
	}
	if existing == nil {
		return ErrBudgetNotFound
	}

	var newEnd *time.Time
	if existing.PeriodEnd != nil {
		window := existing.PeriodEnd.Sub(existing.PeriodStart)
		end := now.Add(window)
		newEnd = &end
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE budgets SET spent_usd = 0, period_start = ?, period_end = ?, updated_at = ? WHERE project_id = ?`,
		encodeTime(now), encodeNullableTime(newEnd), encodeTime(now), projectID,
	)
	if err != nil {
		return fmt.Errorf("reset budget: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reset budget: commit: %w", err)
	}

	s.logger.Info("budget spend reset", "project_id", projectID)
	return nil
}

// DeleteBudget removes the project's budget row. Returns false when no row
// existed.
func (s *Store) DeleteBudget(ctx context.Context, projectID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE project_id = ?`, projectID)
	if err != nil {
		return false, fmt.Errorf("delete budget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete budget: rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("budget deleted", "project_id", projectID)
	}
	return n > 0, nil
}

// ListBudgets returns all budget rows, ordered by project id. Used by
// maintenance sweeps and introspection.
func (s *Store) ListBudgets(ctx context.Context) ([]Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, limit_usd, spent_usd, period_start, period_end, created_at, updated_at
		 FROM budgets ORDER BY project_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("list budgets: %w", err)
		}
		budgets = append(budgets, *b)
	}
	return budgets, rows.Err()
}

func getBudgetTx(ctx context.Context, tx *sql.Tx, projectID string) (*Budget, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT project_id, limit_usd, spent_usd, period_start, period_end, created_at, updated_at
		 FROM budgets WHERE project_id = ?`,
		projectID,
	)
	b, err := scanBudget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func scanBudget(sc scanner) (*Budget, error) {
	var b Budget
	var periodStart, createdAt, updatedAt string
	var periodEnd sql.NullString
	err := sc.Scan(&b.ProjectID, &b.LimitUSD, &b.SpentUSD, &periodStart, &periodEnd, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if b.PeriodStart, err = decodeTime(periodStart); err != nil {
		return nil, err
	}
	if periodEnd.Valid {
		t, err := decodeTime(periodEnd.String)
		if err != nil {
			return nil, err
		}
		b.PeriodEnd = &t
	}
	if b.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func encodeNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}
