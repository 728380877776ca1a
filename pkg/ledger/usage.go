package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordUsage performs the charge: it appends the usage row and increments
// the project's budget spend in one transaction. If the project has no
// budget row, only the usage row is written.
//
// Concurrent charges for one project serialize on the budget row update;
// none are lost and none apply twice. The returned record carries the
// generated ID and timestamp.
func (s *Store) RecordUsage(ctx context.Context, rec UsageRecord) (*UsageRecord, error) {
	if rec.ProjectID == "" {
		return nil, fmt.Errorf("record usage: project id is required")
	}
	if rec.RequestID == "" {
		return nil, fmt.Errorf("record usage: request id is required")
	}
	if rec.InputTokens < 0 || rec.OutputTokens < 0 {
		return nil, fmt.Errorf("record usage: token counts must be non-negative")
	}
	if rec.CostUSD < 0 {
		return nil, fmt.Errorf("record usage: cost must be non-negative")
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("record usage: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO usage (id, project_id, provider, model, input_tokens, output_tokens, cost_usd, request_id, flagged, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ProjectID, rec.Provider, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.RequestID,
		boolToInt(rec.Flagged), encodeTime(rec.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("record usage: insert: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE budgets SET spent_usd = spent_usd + ?, updated_at = ? WHERE project_id = ?`,
		rec.CostUSD, encodeTime(rec.CreatedAt), rec.ProjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("record usage: charge budget: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("record usage: commit: %w", err)
	}

	s.logger.Debug("usage recorded",
		"project_id", rec.ProjectID,
		"request_id", rec.RequestID,
		"model", rec.Model,
		"input_tokens", rec.InputTokens,
		"output_tokens", rec.OutputTokens,
		"cost_usd", rec.CostUSD,
	)
	return &rec, nil
}

// GetRecentUsage returns a project's newest records first, capped at limit.
func (s *Store) GetRecentUsage(ctx context.Context, projectID string, limit int) ([]UsageRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, provider, model, input_tokens, output_tokens, cost_usd, request_id, flagged, created_at
		 FROM usage WHERE project_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		projectID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent usage: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		rec, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// GetUsageByRequestID fetches the record charged for a request, if any.
func (s *Store) GetUsageByRequestID(ctx context.Context, requestID string) (*UsageRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, provider, model, input_tokens, output_tokens, cost_usd, request_id, flagged, created_at
		 FROM usage WHERE request_id = ?`,
		requestID,
	)
	rec, err := scanUsage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetUsageSummary aggregates a project's full history plus its budget row in
// one transaction, so the two views are consistent with each other.
func (s *Store) GetUsageSummary(ctx context.Context, projectID string) (*UsageSummary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("usage summary: begin: %w", err)
	}
	defer tx.Rollback()

	summary := &UsageSummary{ProjectID: projectID}
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		 FROM usage WHERE project_id = ?`,
		projectID,
	).Scan(&summary.TotalRequests, &summary.TotalInputTokens, &summary.TotalOutputTokens, &summary.TotalCostUSD)
	if err != nil {
		return nil, fmt.Errorf("usage summary: totals: %w", err)
	}

	budget, err := getBudgetTx(ctx, tx, projectID)
	if err != nil {
		return nil, fmt.Errorf("usage summary: budget: %w", err)
	}
	summary.Budget = budget

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("usage summary: commit: %w", err)
	}
	return summary, nil
}

// PruneUsage deletes usage rows older than the cutoff. Budget spend is
// untouched: pruning is a storage concern, not a refund.
func (s *Store) PruneUsage(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM usage WHERE created_at < ?`, encodeTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune usage: rows affected: %w", err)
	}
	return n, nil
}

// CountUsage returns the total number of usage rows across all projects.
func (s *Store) CountUsage(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return n, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUsage(sc scanner) (*UsageRecord, error) {
	var rec UsageRecord
	var flagged int
	var createdAt string
	err := sc.Scan(&rec.ID, &rec.ProjectID, &rec.Provider, &rec.Model,
		&rec.InputTokens, &rec.OutputTokens, &rec.CostUSD, &rec.RequestID,
		&flagged, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan usage row: %w", err)
	}
	rec.Flagged = flagged != 0
	rec.CreatedAt, err = decodeTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
