package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"mercator-hq/tokencap/pkg/gateway/types"
	"mercator-hq/tokencap/pkg/ledger"
	"mercator-hq/tokencap/pkg/pricing"
)

// maxHistoryLimit caps GET /v1/usage/history so a stray limit value cannot
// drag the whole table through one response.
const maxHistoryLimit = 500

// setBudgetRequest is the body of POST /v1/budget.
type setBudgetRequest struct {
	ProjectID  string  `json:"projectId"`
	LimitUSD   float64 `json:"limitUsd"`
	PeriodDays int     `json:"periodDays,omitempty"`
}

// resetBudgetRequest is the optional body of POST /v1/budget/reset. The
// project may come from the body, the header, or the query parameter.
type resetBudgetRequest struct {
	ProjectID string `json:"projectId"`
}

// deleteBudgetResponse confirms a DELETE /v1/budget.
type deleteBudgetResponse struct {
	ProjectID string `json:"projectId"`
	Deleted   bool   `json:"deleted"`
}

// usageHistoryResponse is the body of GET /v1/usage/history.
type usageHistoryResponse struct {
	ProjectID string               `json:"projectId"`
	Records   []ledger.UsageRecord `json:"records"`
	Count     int                  `json:"count"`
}

// pricingListResponse is the body of GET /v1/pricing.
type pricingListResponse struct {
	Models   []pricing.ModelPricing `json:"models"`
	Fallback pricing.ModelPricing   `json:"fallback"`
	Count    int                    `json:"count"`
}

// pricingLookupResponse is the body of GET /v1/pricing/{model}.
type pricingLookupResponse struct {
	Requested string                `json:"requested"`
	Match     pricing.Match         `json:"match"`
	Pricing   *pricing.ModelPricing `json:"pricing"`
}

// handleBudget serves budget CRUD on /v1/budget: POST upserts, GET reads,
// DELETE removes.
func (g *Gateway) handleBudget(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.setBudget(w, r)
	case http.MethodGet:
		g.getBudget(w, r)
	case http.MethodDelete:
		g.deleteBudget(w, r)
	default:
		writeMethodNotAllowed(w, r.Method)
	}
}

func (g *Gateway) setBudget(w http.ResponseWriter, r *http.Request) {
	var req setBudgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewInvalidRequestError("decoding budget body: "+err.Error(), "", types.CodeInvalidJSON))
		return
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		writeError(w, types.NewInvalidRequestError("projectId is required", "projectId", types.CodeMissingField))
		return
	}
	if req.LimitUSD < 0 {
		writeError(w, types.NewInvalidRequestError("limitUsd must not be negative", "limitUsd", types.CodeInvalidValue))
		return
	}
	if req.PeriodDays < 0 {
		writeError(w, types.NewInvalidRequestError("periodDays must not be negative", "periodDays", types.CodeInvalidValue))
		return
	}

	b, err := g.store.SetBudget(r.Context(), req.ProjectID, req.LimitUSD, req.PeriodDays)
	if err != nil {
		g.logger.ErrorContext(r.Context(), "budget upsert failed", "project_id", req.ProjectID, "error", err)
		writeError(w, types.NewInternalError("budget could not be saved"))
		return
	}
	writeJSON(w, http.StatusOK, roundedBudget(b))
}

func (g *Gateway) getBudget(w http.ResponseWriter, r *http.Request) {
	projectID := g.resolveProject(r)
	b, err := g.store.GetBudget(r.Context(), projectID)
	if err != nil {
		g.logger.ErrorContext(r.Context(), "budget read failed", "project_id", projectID, "error", err)
		writeError(w, types.NewInternalError("budget could not be read"))
		return
	}
	if b == nil {
		writeError(w, types.NewNotFoundError(
			fmt.Sprintf("no budget configured for project %q", projectID), types.CodeBudgetNotFound))
		return
	}
	writeJSON(w, http.StatusOK, roundedBudget(b))
}

func (g *Gateway) deleteBudget(w http.ResponseWriter, r *http.Request) {
	projectID := g.resolveProject(r)
	deleted, err := g.store.DeleteBudget(r.Context(), projectID)
	if err != nil {
		g.logger.ErrorContext(r.Context(), "budget delete failed", "project_id", projectID, "error", err)
		writeError(w, types.NewInternalError("budget could not be deleted"))
		return
	}
	if !deleted {
		writeError(w, types.NewNotFoundError(
			fmt.Sprintf("no budget configured for project %q", projectID), types.CodeBudgetNotFound))
		return
	}
	writeJSON(w, http.StatusOK, deleteBudgetResponse{ProjectID: projectID, Deleted: true})
}

// handleBudgetReset serves POST /v1/budget/reset: spend back to zero, period
// restarted from now, historical usage records untouched.
func (g *Gateway) handleBudgetReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r.Method)
		return
	}

	projectID := g.resolveProject(r)
	if r.Body != nil {
		var req resetBudgetRequest
		// The body is optional; a project named there wins over header and
		// query.
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && strings.TrimSpace(req.ProjectID) != "" {
			projectID = strings.TrimSpace(req.ProjectID)
		}
	}

	if err := g.store.ResetBudgetSpent(r.Context(), projectID); err != nil {
		if errors.Is(err, ledger.ErrBudgetNotFound) {
			writeError(w, types.NewNotFoundError(
				fmt.Sprintf("no budget configured for project %q", projectID), types.CodeBudgetNotFound))
			return
		}
		g.logger.ErrorContext(r.Context(), "budget reset failed", "project_id", projectID, "error", err)
		writeError(w, types.NewInternalError("budget could not be reset"))
		return
	}

	b, err := g.store.GetBudget(r.Context(), projectID)
	if err != nil {
		g.logger.ErrorContext(r.Context(), "budget read after reset failed", "project_id", projectID, "error", err)
		writeError(w, types.NewInternalError("budget could not be read"))
		return
	}
	writeJSON(w, http.StatusOK, roundedBudget(b))
}

// handleUsage serves GET /v1/usage: lifetime totals for the project plus its
// current budget view, from one consistent read.
func (g *Gateway) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r.Method)
		return
	}

	projectID := g.resolveProject(r)
	summary, err := g.store.GetUsageSummary(r.Context(), projectID)
	if err != nil {
		g.logger.ErrorContext(r.Context(), "usage summary failed", "project_id", projectID, "error", err)
		writeError(w, types.NewInternalError("usage summary could not be read"))
		return
	}

	summary.TotalCostUSD = pricing.RoundUSD(summary.TotalCostUSD)
	summary.Budget = roundedBudget(summary.Budget)
	writeJSON(w, http.StatusOK, summary)
}

// handleUsageHistory serves GET /v1/usage/history?limit=N, newest first.
func (g *Gateway) handleUsageHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r.Method)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, types.NewInvalidRequestError("limit must be a positive integer", "limit", types.CodeInvalidValue))
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	projectID := g.resolveProject(r)
	records, err := g.store.GetRecentUsage(r.Context(), projectID, limit)
	if err != nil {
		g.logger.ErrorContext(r.Context(), "usage history failed", "project_id", projectID, "error", err)
		writeError(w, types.NewInternalError("usage history could not be read"))
		return
	}

	for i := range records {
		records[i].CostUSD = pricing.RoundUSD(records[i].CostUSD)
	}
	if records == nil {
		records = []ledger.UsageRecord{}
	}
	writeJSON(w, http.StatusOK, usageHistoryResponse{
		ProjectID: projectID,
		Records:   records,
		Count:     len(records),
	})
}

// handlePricingList serves GET /v1/pricing: every catalog row plus the
// fallback row unknown models resolve to.
func (g *Gateway) handlePricingList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r.Method)
		return
	}

	catalog := g.estimator.Catalog()
	rows := catalog.Rows()
	writeJSON(w, http.StatusOK, pricingListResponse{
		Models:   rows,
		Fallback: catalog.Fallback(),
		Count:    len(rows),
	})
}

// handlePricingLookup serves GET /v1/pricing/{model}?provider=: the resolved
// row and which resolution step matched it. Lookups never fail; unknown
// models report the fallback row with match "fallback".
func (g *Gateway) handlePricingLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r.Method)
		return
	}

	model := strings.TrimPrefix(r.URL.Path, "/v1/pricing/")
	if model == "" {
		writeError(w, types.NewInvalidRequestError("model is required in the path", "model", types.CodeMissingField))
		return
	}

	provider := r.URL.Query().Get("provider")
	row, match := g.estimator.Catalog().Resolve(provider, model)
	writeJSON(w, http.StatusOK, pricingLookupResponse{
		Requested: model,
		Match:     match,
		Pricing:   row,
	})
}

// roundedBudget copies a budget with its dollar fields rounded for exposure.
// Internal spend stays unrounded so repeated small charges cannot drift.
func roundedBudget(b *ledger.Budget) *ledger.Budget {
	if b == nil {
		return nil
	}
	rb := *b
	rb.LimitUSD = pricing.RoundUSD(rb.LimitUSD)
	rb.SpentUSD = pricing.RoundUSD(rb.SpentUSD)
	return &rb
}
