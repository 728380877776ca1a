package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"mercator-hq/tokencap/pkg/gateway/types"
	"mercator-hq/tokencap/pkg/pricing"
)

// Response headers the gateway attaches. The request-id header is set by
// middleware; estimate headers appear on every forwarded response and on
// 402 rejections; actual-value headers only on buffered responses, where
// the charge is known before the body is written. The trace-id header is
// present only when tracing is enabled.
const (
	HeaderProjectID             = "X-Tokencap-Project-Id"
	HeaderInputTokens           = "X-Tokencap-Input-Tokens"
	HeaderEstimatedOutputTokens = "X-Tokencap-Estimated-Output-Tokens"
	HeaderEstimatedCostUSD      = "X-Tokencap-Estimated-Cost-USD"
	HeaderConfidence            = "X-Tokencap-Confidence"
	HeaderOutputTokens          = "X-Tokencap-Output-Tokens"
	HeaderCostUSD               = "X-Tokencap-Cost-USD"
	HeaderBudgetRemaining       = "X-Tokencap-Budget-Remaining"
	HeaderTraceID               = "X-Tokencap-Trace-Id"
)

// writeJSON writes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}

// writeError writes the gateway error envelope with the status implied by
// its error type.
func writeError(w http.ResponseWriter, resp *types.ErrorResponse) {
	writeJSON(w, resp.Error.HTTPStatusCode(), resp)
}

// writeMethodNotAllowed rejects a request with 405 and the standard envelope.
func writeMethodNotAllowed(w http.ResponseWriter, method string) {
	writeJSON(w, http.StatusMethodNotAllowed,
		types.NewInvalidRequestError(fmt.Sprintf("method %s is not allowed on this endpoint", method), "", types.CodeInvalidValue))
}

// setEstimateHeaders attaches the pre-execution estimate to the response.
func setEstimateHeaders(h http.Header, est *pricing.CostEstimate) {
	h.Set(HeaderInputTokens, strconv.Itoa(est.InputTokens))
	h.Set(HeaderEstimatedOutputTokens, strconv.Itoa(est.EstimatedOutputTokens))
	h.Set(HeaderEstimatedCostUSD, pricing.FormatUSD(est.TotalCostUSD))
	h.Set(HeaderConfidence, string(est.Confidence))
}

// setActualHeaders attaches the observed usage and the committed charge.
func setActualHeaders(h http.Header, outputTokens int, costUSD float64) {
	h.Set(HeaderOutputTokens, strconv.Itoa(outputTokens))
	h.Set(HeaderCostUSD, pricing.FormatUSD(costUSD))
}

// copyUpstreamHeaders copies the upstream's response headers onto the
// gateway response, skipping hop-by-hop headers and Content-Length, which
// the server recomputes.
func copyUpstreamHeaders(dst, src http.Header) {
	for key, values := range src {
		switch http.CanonicalHeaderKey(key) {
		case "Connection", "Keep-Alive", "Transfer-Encoding", "Content-Length", "Te", "Trailer", "Upgrade":
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
