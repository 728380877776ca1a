package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"mercator-hq/tokencap/pkg/gateway/events"
	"mercator-hq/tokencap/pkg/gateway/middleware"
	"mercator-hq/tokencap/pkg/gateway/types"
	"mercator-hq/tokencap/pkg/ledger"
	"mercator-hq/tokencap/pkg/pricing"
	"mercator-hq/tokencap/pkg/telemetry/logging"
	"mercator-hq/tokencap/pkg/telemetry/tracing"
	"mercator-hq/tokencap/pkg/upstream"
)

// pipelineRequest carries one request's identity and estimate through the
// response half of the pipeline.
type pipelineRequest struct {
	adapter   upstream.Adapter
	req       upstream.Request
	est       *pricing.CostEstimate
	requestID string
	projectID string
	start     time.Time
}

func (g *Gateway) forwardHandler(adapter upstream.Adapter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.forward(w, r, adapter)
	})
}

// forward runs the full pipeline for one inbound chat/messages request:
// parse, estimate, admit, forward, relay, charge.
func (g *Gateway) forward(w http.ResponseWriter, r *http.Request, adapter upstream.Adapter) {
	start := time.Now()
	provider := adapter.Provider()

	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r.Method)
		return
	}

	requestID := middleware.GetRequestID(r.Context())
	projectID := g.resolveProject(r)

	ctx := logging.WithRequestID(r.Context(), requestID)
	ctx = logging.WithProjectID(ctx, projectID)
	ctx = logging.WithProvider(ctx, provider)

	// Callers that already carry W3C trace context keep their trace;
	// otherwise the gateway starts one.
	ctx = tracing.Extract(ctx, r.Header)
	ctx, span := g.tracer.Start(ctx, "tokencap.request")
	defer span.End()
	if traceID := tracing.TraceID(ctx); traceID != "" {
		w.Header().Set(HeaderTraceID, traceID)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, types.NewInvalidRequestError("reading request body: "+err.Error(), "", types.CodeInvalidValue))
		g.metrics.RecordRequest(provider, "unknown", "invalid_request", time.Since(start))
		return
	}

	req, err := adapter.ParseRequest(body)
	if err != nil {
		writeError(w, types.NewInvalidRequestError(err.Error(), "", parseErrorCode(err)))
		g.metrics.RecordRequest(provider, "unknown", "invalid_request", time.Since(start))
		return
	}
	model := req.Model()
	ctx = logging.WithModel(ctx, model)
	tracing.SetRequestAttributes(span, requestID, projectID, req.Stream())
	tracing.SetProviderAttributes(span, provider, model)

	_, estSpan := g.tracer.Start(ctx, "tokencap.estimate")
	est, _, err := g.estimator.Estimate(provider, req)
	if err != nil {
		tracing.SetError(estSpan, err)
		estSpan.End()
		g.logger.ErrorContext(ctx, "token estimation failed", "error", err)
		writeError(w, types.NewInternalError("token estimation failed"))
		g.metrics.RecordRequest(provider, model, "internal_error", time.Since(start))
		return
	}
	tracing.SetEstimateAttributes(estSpan, est.TotalCostUSD, string(est.Confidence))
	estSpan.End()

	g.events.OnEstimate(ctx, events.EstimateEvent{
		RequestID:             requestID,
		ProjectID:             projectID,
		Provider:              provider,
		Model:                 model,
		InputTokens:           est.InputTokens,
		EstimatedOutputTokens: est.EstimatedOutputTokens,
		EstimatedCostUSD:      est.TotalCostUSD,
		Confidence:            string(est.Confidence),
		Streaming:             req.Stream(),
	})

	admitCtx, admitSpan := g.tracer.Start(ctx, "tokencap.admit")
	decision, err := g.controller.Admit(admitCtx, projectID, est.TotalCostUSD)
	if err != nil {
		tracing.SetError(admitSpan, err)
		admitSpan.End()
		g.logger.ErrorContext(ctx, "budget admission failed", "error", err)
		writeError(w, types.NewInternalError("budget admission failed"))
		g.metrics.RecordRequest(provider, model, "internal_error", time.Since(start))
		return
	}
	admitSpan.End()

	if !decision.Admitted {
		setEstimateHeaders(w.Header(), est)
		writeError(w, types.NewBudgetExceededError(decision.Reason, &types.BudgetDetails{
			CurrentSpendUSD:    pricing.RoundUSD(decision.Budget.SpentUSD),
			LimitUSD:           pricing.RoundUSD(decision.Budget.LimitUSD),
			EstimatedCostUSD:   pricing.RoundUSD(est.TotalCostUSD),
			RemainingBudgetUSD: pricing.RoundUSD(decision.RemainingUSD),
		}))
		g.events.OnBudgetExceeded(ctx, events.BudgetExceededEvent{
			RequestID:        requestID,
			ProjectID:        projectID,
			Provider:         provider,
			Model:            model,
			EstimatedCostUSD: est.TotalCostUSD,
			LimitUSD:         decision.Budget.LimitUSD,
			SpentUSD:         decision.Budget.SpentUSD,
			RemainingUSD:     decision.RemainingUSD,
		})
		g.metrics.RecordRequest(provider, model, "rejected", time.Since(start))
		return
	}

	fwdCtx, fwdSpan := g.tracer.Start(ctx, "tokencap.forward")
	resp, err := adapter.Forward(fwdCtx, body, r.Header, req.Stream())
	if err != nil {
		tracing.SetError(fwdSpan, err)
		fwdSpan.End()
		if errors.Is(err, upstream.ErrNoCredentials) {
			writeError(w, types.NewUnauthorizedError(
				fmt.Sprintf("no %s API key in request and no default configured", provider)))
			g.metrics.RecordRequest(provider, model, "unauthorized", time.Since(start))
			return
		}
		g.logger.ErrorContext(ctx, "upstream unreachable", "error", err)
		writeError(w, types.NewUpstreamError(err.Error()))
		g.metrics.RecordRequest(provider, model, "upstream_error", time.Since(start))
		return
	}
	fwdSpan.End()
	defer resp.Body.Close()

	setEstimateHeaders(w.Header(), est)

	pr := &pipelineRequest{
		adapter:   adapter,
		req:       req,
		est:       est,
		requestID: requestID,
		projectID: projectID,
		start:     start,
	}
	if req.Stream() && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		g.relayStream(ctx, w, resp, pr)
		return
	}
	g.respondBuffered(ctx, w, resp, pr)
}

// respondBuffered handles the non-streaming half of the pipeline: read the
// whole upstream response, charge actual usage, then hand the body through
// with estimate, actual, and budget headers attached.
func (g *Gateway) respondBuffered(ctx context.Context, w http.ResponseWriter, resp *http.Response, pr *pipelineRequest) {
	provider, model := pr.adapter.Provider(), pr.req.Model()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		g.logger.ErrorContext(ctx, "reading upstream response failed", "error", err)
		writeError(w, types.NewUpstreamError("reading upstream response: "+err.Error()))
		g.metrics.RecordRequest(provider, model, "upstream_error", time.Since(pr.start))
		return
	}

	// Upstream errors pass through with their own status and body; usage is
	// unknown, so nothing is charged.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		copyUpstreamHeaders(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		if _, err := w.Write(respBody); err != nil {
			g.logger.WarnContext(ctx, "writing passthrough response failed", "error", err)
		}
		g.metrics.RecordRequest(provider, model, "upstream_error", time.Since(pr.start))
		return
	}

	if !json.Valid(respBody) {
		writeError(w, types.NewUpstreamError(fmt.Sprintf("upstream %s returned a non-JSON response body", provider)))
		g.metrics.RecordRequest(provider, model, "upstream_error", time.Since(pr.start))
		return
	}

	usage, ok := pr.adapter.ExtractUsage(respBody)
	flagged := !ok
	if !ok {
		// Success response without a usage block: charge the counted input
		// and flag the row for reconciliation.
		usage = upstream.Usage{InputTokens: pr.est.InputTokens}
	}

	costUSD, _ := g.estimator.ActualCost(provider, model, usage)

	b, err := g.charge(ctx, ledger.UsageRecord{
		ProjectID:    pr.projectID,
		Provider:     provider,
		Model:        model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      costUSD,
		RequestID:    pr.requestID,
		Flagged:      flagged,
	}, false)
	if err != nil {
		g.logger.ErrorContext(ctx, "usage charge failed", "error", err)
		writeError(w, types.NewInternalError("usage could not be recorded"))
		g.metrics.RecordRequest(provider, model, "internal_error", time.Since(pr.start))
		return
	}

	setActualHeaders(w.Header(), usage.OutputTokens, costUSD)
	if b != nil {
		w.Header().Set(HeaderBudgetRemaining, pricing.FormatUSD(b.Remaining()))
	}

	copyUpstreamHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(respBody); err != nil {
		g.logger.WarnContext(ctx, "writing response to client failed", "error", err)
	}
	g.metrics.RecordRequest(provider, model, "success", time.Since(pr.start))
}

// relayStream handles the streaming half: bytes flow to the client as they
// arrive, untouched, while the adapter's tap reads usage out of them. The
// charge settles after the relay ends, whatever ended it.
func (g *Gateway) relayStream(ctx context.Context, w http.ResponseWriter, resp *http.Response, pr *pipelineRequest) {
	provider, model := pr.adapter.Provider(), pr.req.Model()

	h := w.Header()
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		h.Set("Content-Type", ct)
	} else {
		h.Set("Content-Type", "text/event-stream")
	}
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(resp.StatusCode)

	dst := upstream.NewFlushWriter(w)
	usage, relayErr := pr.adapter.InterceptStream(dst, resp.Body, model)

	// A stream with no usage signal at all gets the estimated input charged
	// and the row flagged; a partially observed stream is charged as seen.
	flagged := !usage.Reported && usage.OutputTokens == 0
	if usage.InputTokens == 0 {
		usage.InputTokens = pr.est.InputTokens
	}
	costUSD, _ := g.estimator.ActualCost(provider, model, usage)

	// The client may already be gone, so the charge runs on an uncancelable
	// context; losing it would mean giving away observed spend.
	if _, err := g.charge(context.WithoutCancel(ctx), ledger.UsageRecord{
		ProjectID:    pr.projectID,
		Provider:     provider,
		Model:        model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      costUSD,
		RequestID:    pr.requestID,
		Flagged:      flagged,
	}, true); err != nil {
		g.logger.ErrorContext(ctx, "stream usage charge failed", "error", err)
	}

	// A client hanging up usually surfaces as an upstream read error, not a
	// write failure: the request context cancels and the body read fails
	// first. The context tells the two apart.
	status := "success"
	switch {
	case relayErr == nil:
	case upstream.IsClientGone(relayErr) || ctx.Err() != nil:
		status = "client_disconnect"
		g.logger.InfoContext(ctx, "client disconnected mid-stream",
			"output_tokens_observed", usage.OutputTokens)
	default:
		status = "upstream_error"
		g.logger.ErrorContext(ctx, "upstream stream failed mid-flight", "error", relayErr)
	}
	g.metrics.RecordRequest(provider, model, status, time.Since(pr.start))
}

// charge commits one usage row, then reads the post-charge budget for the
// remaining-budget header and fires cost and warning events. The returned
// budget is nil when the project has none.
func (g *Gateway) charge(ctx context.Context, rec ledger.UsageRecord, streamed bool) (*ledger.Budget, error) {
	chargeCtx, span := g.tracer.Start(ctx, "tokencap.charge")
	saved, err := g.store.RecordUsage(chargeCtx, rec)
	if err != nil {
		tracing.SetError(span, err)
		span.End()
		g.metrics.RecordLedgerChargeFailure()
		return nil, err
	}
	tracing.SetTokenAttributes(span, int64(saved.InputTokens), int64(saved.OutputTokens))
	tracing.SetCostAttributes(span, saved.CostUSD, "actual")
	span.End()

	b, err := g.store.GetBudget(chargeCtx, rec.ProjectID)
	if err != nil {
		// The charge is committed; the budget read only feeds headers and
		// events.
		g.logger.WarnContext(ctx, "budget read after charge failed", "error", err)
		b = nil
	}

	ev := events.CostEvent{
		RequestID:    rec.RequestID,
		ProjectID:    rec.ProjectID,
		Provider:     rec.Provider,
		Model:        rec.Model,
		InputTokens:  rec.InputTokens,
		OutputTokens: rec.OutputTokens,
		CostUSD:      rec.CostUSD,
		Streamed:     streamed,
		Flagged:      rec.Flagged,
	}
	if b != nil && b.LimitUSD > 0 {
		util := b.SpentUSD / b.LimitUSD * 100
		ev.UtilizationPercent = &util
	}
	g.events.OnCost(ctx, ev)

	if b != nil && b.LimitUSD > 0 {
		after := b.SpentUSD / b.LimitUSD * 100
		before := (b.SpentUSD - rec.CostUSD) / b.LimitUSD * 100
		if before < events.WarnThresholdPercent && after >= events.WarnThresholdPercent {
			g.events.OnBudgetWarning(ctx, events.BudgetWarningEvent{
				ProjectID:          rec.ProjectID,
				LimitUSD:           b.LimitUSD,
				SpentUSD:           b.SpentUSD,
				UtilizationPercent: after,
			})
		}
	}

	return b, nil
}

// parseErrorCode distinguishes bodies that are not JSON from bodies that are
// JSON missing required fields.
func parseErrorCode(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return types.CodeInvalidJSON
	}
	return types.CodeMissingField
}
