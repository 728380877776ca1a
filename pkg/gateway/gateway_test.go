package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"mercator-hq/tokencap/internal/upstreams"
	"mercator-hq/tokencap/pkg/budget"
	"mercator-hq/tokencap/pkg/config"
	"mercator-hq/tokencap/pkg/gateway/middleware"
	"mercator-hq/tokencap/pkg/gateway/types"
	"mercator-hq/tokencap/pkg/ledger"
	"mercator-hq/tokencap/pkg/pricing"
	"mercator-hq/tokencap/pkg/telemetry/metrics"
	"mercator-hq/tokencap/pkg/telemetry/tracing"
	"mercator-hq/tokencap/pkg/tokens"
	"mercator-hq/tokencap/pkg/upstream"
)

// testGateway wires a gateway over a mock provider and a temp-file ledger,
// served through httptest behind the request-id middleware the charge path
// depends on.
type testGateway struct {
	gw    *Gateway
	store *ledger.Store
	mock  *upstreams.MockUpstream
	srv   *httptest.Server
}

func newTestGateway(t *testing.T, opts ...func(*config.Config)) *testGateway {
	t.Helper()

	mock := upstreams.NewMockUpstream()
	t.Cleanup(mock.Close)

	cfg := config.DefaultConfig()
	for _, name := range []string{upstream.ProviderOpenAI, upstream.ProviderAnthropic} {
		uc := cfg.Upstreams[name]
		uc.BaseURL = mock.URL()
		uc.APIKey = "sk-server-default"
		uc.Timeout = 10 * time.Second
		cfg.Upstreams[name] = uc
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store, err := ledger.Open(&ledger.Config{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		BusyTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("ledger.Open() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		t.Fatalf("tracing.New() failed: %v", err)
	}
	t.Cleanup(func() {
		// No collector runs in tests; give the batcher a short deadline
		// and discard the export error.
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = tracer.Shutdown(ctx)
	})

	gw := New(cfg,
		pricing.NewEstimator(pricing.NewCatalog(), cfg.Defaults.OutputTokens),
		budget.NewController(store),
		store,
		metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		tracer,
		"test",
	)

	srv := httptest.NewServer(middleware.RequestID(gw.Routes()))
	t.Cleanup(srv.Close)

	return &testGateway{gw: gw, store: store, mock: mock, srv: srv}
}

// setBudget seeds a budget row directly; the admin route is covered on its
// own in admin_test.go.
func (tg *testGateway) setBudget(t *testing.T, projectID string, limitUSD float64) {
	t.Helper()
	if _, err := tg.store.SetBudget(context.Background(), projectID, limitUSD, 0); err != nil {
		t.Fatalf("SetBudget(%q) failed: %v", projectID, err)
	}
}

func (tg *testGateway) post(t *testing.T, path, projectID, body string, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, tg.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if projectID != "" {
		req.Header.Set(HeaderProjectID, projectID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body failed: %v", err)
	}
	return body
}

func decodeErrorResponse(t *testing.T, body []byte) *types.ErrorResponse {
	t.Helper()
	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		t.Fatalf("decoding error envelope failed: %v\nbody: %s", err, body)
	}
	return &er
}

// usageForResponse looks up the ledger row the gateway charged for a
// forwarded response, keyed by the request id the middleware stamped on it.
func (tg *testGateway) usageForResponse(t *testing.T, resp *http.Response) *ledger.UsageRecord {
	t.Helper()
	requestID := resp.Header.Get(middleware.RequestIDHeader)
	if requestID == "" {
		t.Fatal("response carries no request id header")
	}
	rec, err := tg.store.GetUsageByRequestID(context.Background(), requestID)
	if err != nil {
		t.Fatalf("GetUsageByRequestID(%q) failed: %v", requestID, err)
	}
	return rec
}

func (tg *testGateway) usageCount(t *testing.T) int64 {
	t.Helper()
	n, err := tg.store.CountUsage(context.Background())
	if err != nil {
		t.Fatalf("CountUsage() failed: %v", err)
	}
	return n
}

func chatBody(model, content string, maxTokens int, stream bool) string {
	return fmt.Sprintf(`{"model":%q,"messages":[{"role":"user","content":%q}],"max_tokens":%d,"stream":%t}`,
		model, content, maxTokens, stream)
}

// gpt4oCost prices an exchange at the builtin gpt-4o rates with the same
// arithmetic the charge path uses.
func gpt4oCost(t *testing.T, inputTokens, outputTokens int) float64 {
	t.Helper()
	row, match := pricing.NewCatalog().Resolve("openai", "gpt-4o")
	if match != pricing.MatchExact {
		t.Fatalf("expected exact gpt-4o row, got match %q", match)
	}
	return row.Cost(inputTokens, outputTokens)
}

func TestForward_AdmitsWithinBudget(t *testing.T) {
	tg := newTestGateway(t)
	tg.setBudget(t, "team-alpha", 10.0)

	// 100000 in at $2.50/MTok and 50000 out at $10.00/MTok charge exactly
	// $0.75, leaving $9.25 of the $10 budget.
	tg.mock.Respond("/v1/chat/completions",
		upstreams.Response{Body: upstreams.OpenAIChatResponse("gpt-4o", "Hello there", 100000, 50000)})

	resp := tg.post(t, "/v1/chat/completions", "team-alpha",
		chatBody("gpt-4o", "hello", 64, false), nil)
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	// Estimate headers reflect the pre-flight count.
	inputTokens, err := strconv.Atoi(resp.Header.Get(HeaderInputTokens))
	if err != nil || inputTokens <= 0 {
		t.Errorf("expected positive input token header, got %q", resp.Header.Get(HeaderInputTokens))
	}
	if got := resp.Header.Get(HeaderEstimatedOutputTokens); got != "48" {
		t.Errorf("expected estimated output 48 (75%% of max_tokens 64), got %q", got)
	}
	if got := resp.Header.Get(HeaderConfidence); got != "high" {
		t.Errorf("expected high confidence, got %q", got)
	}
	if resp.Header.Get(HeaderEstimatedCostUSD) == "" {
		t.Error("expected estimated cost header")
	}

	// Actual headers reflect the reported usage.
	if got := resp.Header.Get(HeaderOutputTokens); got != "50000" {
		t.Errorf("expected output tokens header 50000, got %q", got)
	}
	if got := resp.Header.Get(HeaderCostUSD); got != "0.750000" {
		t.Errorf("expected cost header 0.750000, got %q", got)
	}
	if got := resp.Header.Get(HeaderBudgetRemaining); got != "9.250000" {
		t.Errorf("expected budget remaining 9.250000, got %q", got)
	}

	// The provider body passes through untouched.
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("response body is not JSON: %v", err)
	}
	if payload["model"] != "gpt-4o" {
		t.Errorf("expected passthrough model gpt-4o, got %v", payload["model"])
	}
	if _, ok := payload["usage"]; !ok {
		t.Error("expected usage block preserved in passthrough body")
	}

	rec := tg.usageForResponse(t, resp)
	if rec == nil {
		t.Fatal("expected a usage record for the request")
	}
	if rec.ProjectID != "team-alpha" {
		t.Errorf("expected project team-alpha, got %q", rec.ProjectID)
	}
	if rec.InputTokens != 100000 || rec.OutputTokens != 50000 {
		t.Errorf("expected charged tokens 100000/50000, got %d/%d", rec.InputTokens, rec.OutputTokens)
	}
	if rec.CostUSD != 0.75 {
		t.Errorf("expected cost 0.75, got %v", rec.CostUSD)
	}
	if rec.Flagged {
		t.Error("expected unflagged record for reported usage")
	}

	b, err := tg.store.GetBudget(context.Background(), "team-alpha")
	if err != nil {
		t.Fatalf("GetBudget() failed: %v", err)
	}
	if b.SpentUSD != 0.75 {
		t.Errorf("expected budget spend 0.75, got %v", b.SpentUSD)
	}
}

func TestForward_RejectsOverBudget(t *testing.T) {
	tg := newTestGateway(t)
	tg.setBudget(t, "team-beta", 10.0)

	// First exchange charges exactly $9.50, leaving $0.50.
	tg.mock.Respond("/v1/chat/completions",
		upstreams.Response{Body: upstreams.OpenAIChatResponse("gpt-4o", "ok", 3000000, 200000)})
	resp := tg.post(t, "/v1/chat/completions", "team-beta",
		chatBody("gpt-4o", "hello", 64, false), nil)
	readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("seed request: expected 200, got %d", resp.StatusCode)
	}

	// max_tokens 128000 estimates 96000 output tokens, $0.96 at gpt-4o
	// rates, which does not fit the remaining $0.50.
	resp = tg.post(t, "/v1/chat/completions", "team-beta",
		chatBody("gpt-4o", "write a novel", 128000, false), nil)
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", resp.StatusCode, body)
	}

	er := decodeErrorResponse(t, body)
	if er.Error.Type != types.ErrorTypeBudgetExceeded {
		t.Errorf("expected type budget_exceeded, got %q", er.Error.Type)
	}
	if er.Error.Code != types.CodeBudgetExceeded {
		t.Errorf("expected code budget_exceeded, got %q", er.Error.Code)
	}
	if er.Error.Details == nil {
		t.Fatal("expected budget details on 402")
	}
	if er.Error.Details.CurrentSpendUSD != 9.5 {
		t.Errorf("expected current spend 9.5, got %v", er.Error.Details.CurrentSpendUSD)
	}
	if er.Error.Details.LimitUSD != 10.0 {
		t.Errorf("expected limit 10, got %v", er.Error.Details.LimitUSD)
	}
	if er.Error.Details.RemainingBudgetUSD != 0.5 {
		t.Errorf("expected remaining 0.5, got %v", er.Error.Details.RemainingBudgetUSD)
	}
	if er.Error.Details.EstimatedCostUSD <= er.Error.Details.RemainingBudgetUSD {
		t.Errorf("expected estimate %v to exceed remaining %v",
			er.Error.Details.EstimatedCostUSD, er.Error.Details.RemainingBudgetUSD)
	}

	// Rejections still explain what they would have cost.
	if resp.Header.Get(HeaderInputTokens) == "" {
		t.Error("expected input token header on 402")
	}
	if resp.Header.Get(HeaderEstimatedCostUSD) == "" {
		t.Error("expected estimated cost header on 402")
	}

	// The rejected request never reached the provider and charged nothing.
	if got := tg.mock.RequestCount(); got != 1 {
		t.Errorf("expected 1 upstream request, got %d", got)
	}
	if got := tg.usageCount(t); got != 1 {
		t.Errorf("expected 1 usage record, got %d", got)
	}
}

func TestForward_NoBudgetNoGate(t *testing.T) {
	tg := newTestGateway(t)

	tg.mock.Respond("/v1/chat/completions",
		upstreams.Response{Body: upstreams.OpenAIChatResponse("gpt-4o", "hi", 100, 50)})

	resp := tg.post(t, "/v1/chat/completions", "team-ungated",
		chatBody("gpt-4o", "hello", 128000, false), nil)
	readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for ungated project, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(HeaderBudgetRemaining); got != "" {
		t.Errorf("expected no budget-remaining header without a budget, got %q", got)
	}

	// Usage is still metered.
	rec := tg.usageForResponse(t, resp)
	if rec == nil {
		t.Fatal("expected a usage record despite no budget")
	}
	if rec.InputTokens != 100 || rec.OutputTokens != 50 {
		t.Errorf("expected tokens 100/50, got %d/%d", rec.InputTokens, rec.OutputTokens)
	}
}

func TestForward_StreamRelayAndCharge(t *testing.T) {
	tg := newTestGateway(t)
	tg.setBudget(t, "team-stream", 10.0)

	streamBody := upstreams.OpenAIStreamBody("gpt-4o", []string{"Hello", " world"}, 200, 150, true)
	tg.mock.Respond("/v1/chat/completions", upstreams.Response{StreamBody: streamBody})

	resp := tg.post(t, "/v1/chat/completions", "team-stream",
		chatBody("gpt-4o", "hello", 64, true), nil)
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected event-stream content type, got %q", ct)
	}

	// The relay is byte-for-byte: clients must see exactly what the
	// provider sent, usage chunk and [DONE] included.
	if string(body) != streamBody {
		t.Errorf("stream not relayed verbatim:\nwant %q\ngot  %q", streamBody, body)
	}

	// Estimate headers were committed before the stream opened; actuals
	// cannot be, since the charge settles after the last byte.
	if resp.Header.Get(HeaderInputTokens) == "" {
		t.Error("expected input token header on stream response")
	}
	if got := resp.Header.Get(HeaderOutputTokens); got != "" {
		t.Errorf("expected no actual output header on stream, got %q", got)
	}
	if got := resp.Header.Get(HeaderCostUSD); got != "" {
		t.Errorf("expected no actual cost header on stream, got %q", got)
	}

	// The terminal usage chunk wins over delta counting.
	rec := tg.usageForResponse(t, resp)
	if rec == nil {
		t.Fatal("expected a usage record after the stream ended")
	}
	if rec.InputTokens != 200 || rec.OutputTokens != 150 {
		t.Errorf("expected reported tokens 200/150, got %d/%d", rec.InputTokens, rec.OutputTokens)
	}
	if rec.Flagged {
		t.Error("expected unflagged record for reported stream usage")
	}
	if want := gpt4oCost(t, 200, 150); rec.CostUSD != want {
		t.Errorf("expected cost %v, got %v", want, rec.CostUSD)
	}

	b, err := tg.store.GetBudget(context.Background(), "team-stream")
	if err != nil {
		t.Fatalf("GetBudget() failed: %v", err)
	}
	if want := gpt4oCost(t, 200, 150); b.SpentUSD != want {
		t.Errorf("expected budget spend %v, got %v", want, b.SpentUSD)
	}
}

func TestForward_StreamCountsDeltasWithoutUsageChunk(t *testing.T) {
	tg := newTestGateway(t)

	deltas := []string{"The quick", " brown fox", " jumps."}
	streamBody := upstreams.OpenAIStreamBody("gpt-4o", deltas, 0, 0, false)
	tg.mock.Respond("/v1/chat/completions", upstreams.Response{StreamBody: streamBody})

	resp := tg.post(t, "/v1/chat/completions", "team-counted",
		chatBody("gpt-4o", "hello", 64, true), nil)
	readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	wantOutput := 0
	for _, d := range deltas {
		n, err := tokens.CountText("gpt-4o", d)
		if err != nil {
			t.Fatalf("CountText(%q) failed: %v", d, err)
		}
		wantOutput += n
	}
	estInput, err := strconv.Atoi(resp.Header.Get(HeaderInputTokens))
	if err != nil {
		t.Fatalf("input token header not an int: %v", err)
	}

	rec := tg.usageForResponse(t, resp)
	if rec == nil {
		t.Fatal("expected a usage record")
	}
	if rec.OutputTokens != wantOutput {
		t.Errorf("expected counted output %d, got %d", wantOutput, rec.OutputTokens)
	}
	// No input count in the stream, so the estimate stands in.
	if rec.InputTokens != estInput {
		t.Errorf("expected estimated input %d charged, got %d", estInput, rec.InputTokens)
	}
	if rec.Flagged {
		t.Error("expected counted-delta stream to be unflagged")
	}
}

func TestForward_StreamWithNoSignalIsFlagged(t *testing.T) {
	tg := newTestGateway(t)

	// Nothing but the sentinel: no deltas to count, no usage chunk.
	tg.mock.Respond("/v1/chat/completions",
		upstreams.Response{StreamBody: upstreams.OpenAIStreamBody("gpt-4o", nil, 0, 0, false)})

	resp := tg.post(t, "/v1/chat/completions", "team-silent",
		chatBody("gpt-4o", "hello", 64, true), nil)
	readBody(t, resp)

	rec := tg.usageForResponse(t, resp)
	if rec == nil {
		t.Fatal("expected a usage record")
	}
	if !rec.Flagged {
		t.Error("expected flagged record for a stream with no usage signal")
	}
	if rec.OutputTokens != 0 {
		t.Errorf("expected zero output tokens, got %d", rec.OutputTokens)
	}
	if rec.InputTokens <= 0 {
		t.Errorf("expected estimated input tokens charged, got %d", rec.InputTokens)
	}
}

func TestForward_StreamOutlivesUpstreamTimeout(t *testing.T) {
	// The total upstream timeout caps buffered exchanges only. A slow but
	// healthy stream must run past it, reach the terminal usage chunk, and
	// be charged the reported numbers, not whatever was counted when the
	// timer would have fired.
	tg := newTestGateway(t, func(cfg *config.Config) {
		uc := cfg.Upstreams[upstream.ProviderOpenAI]
		uc.Timeout = 300 * time.Millisecond
		uc.IdleReadTimeout = 5 * time.Second
		cfg.Upstreams[upstream.ProviderOpenAI] = uc
	})
	tg.setBudget(t, "team-slow-stream", 10.0)

	// Four events at 150ms apiece put the stream well past the 300ms cap.
	streamBody := upstreams.OpenAIStreamBody("gpt-4o", []string{"early", " later"}, 100, 20, true)
	tg.mock.Respond("/v1/chat/completions", upstreams.Response{
		StreamBody:       streamBody,
		StreamChunkDelay: 150 * time.Millisecond,
	})

	resp := tg.post(t, "/v1/chat/completions", "team-slow-stream",
		chatBody("gpt-4o", "hello", 64, true), nil)
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if string(body) != streamBody {
		t.Errorf("stream truncated or altered:\nwant %q\ngot  %q", streamBody, body)
	}

	rec := tg.usageForResponse(t, resp)
	if rec == nil {
		t.Fatal("expected a usage record after the stream ended")
	}
	if rec.InputTokens != 100 || rec.OutputTokens != 20 {
		t.Errorf("expected reported tokens 100/20, got %d/%d", rec.InputTokens, rec.OutputTokens)
	}
	if rec.Flagged {
		t.Error("expected unflagged record for a completed stream with reported usage")
	}
}

func TestForward_ClientDisconnectMidStream(t *testing.T) {
	tg := newTestGateway(t)
	tg.setBudget(t, "team-gone", 10.0)

	deltas := []string{"one", " two", " three", " four", " five"}
	tg.mock.Respond("/v1/chat/completions", upstreams.Response{
		StreamBody:       upstreams.OpenAIStreamBody("gpt-4o", deltas, 0, 0, false),
		StreamChunkDelay: 80 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		tg.srv.URL+"/v1/chat/completions", strings.NewReader(chatBody("gpt-4o", "hello", 64, true)))
	if err != nil {
		t.Fatalf("NewRequest() failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderProjectID, "team-gone")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	requestID := resp.Header.Get(middleware.RequestIDHeader)

	// Read one chunk, then hang up mid-stream.
	buf := make([]byte, 64)
	if _, err := resp.Body.Read(buf); err != nil {
		t.Fatalf("reading first chunk failed: %v", err)
	}
	cancel()
	resp.Body.Close()

	// The charge settles on an uncancelable context after the relay ends;
	// give it a moment to land.
	var rec *ledger.UsageRecord
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec, err = tg.store.GetUsageByRequestID(context.Background(), requestID)
		if err != nil {
			t.Fatalf("GetUsageByRequestID() failed: %v", err)
		}
		if rec != nil {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if rec == nil {
		t.Fatal("expected a best-effort usage record after the disconnect")
	}
	if rec.InputTokens <= 0 {
		t.Errorf("expected estimated input tokens on the partial charge, got %d", rec.InputTokens)
	}

	// The hangup is the client's doing, not the upstream's. The sample
	// lands just after the charge, so poll for it.
	var metricsBody []byte
	for time.Now().Before(deadline) {
		metricsResp, err := http.Get(tg.srv.URL + "/metrics")
		if err != nil {
			t.Fatalf("GET /metrics failed: %v", err)
		}
		metricsBody = readBody(t, metricsResp)
		if strings.Contains(string(metricsBody), `status="client_disconnect"`) {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if !strings.Contains(string(metricsBody), `status="client_disconnect"`) {
		t.Error("expected the request metered as client_disconnect")
	}
	if strings.Contains(string(metricsBody), `status="upstream_error"`) {
		t.Error("expected no upstream_error sample for a client hangup")
	}
}

func TestForward_UpstreamErrorPassesThrough(t *testing.T) {
	tg := newTestGateway(t)
	tg.setBudget(t, "team-err", 10.0)

	tg.mock.Respond("/v1/chat/completions", upstreams.Response{
		StatusCode: http.StatusInternalServerError,
		Body:       upstreams.ProviderError("server_error", "upstream exploded"),
		Headers:    map[string]string{"X-Provider-Trace": "trace-123"},
	})

	resp := tg.post(t, "/v1/chat/completions", "team-err",
		chatBody("gpt-4o", "hello", 64, false), nil)
	body := readBody(t, resp)

	// The provider's own status, body, and headers come back verbatim; the
	// gateway envelope is reserved for gateway-originated errors.
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 passthrough, got %d", resp.StatusCode)
	}
	var payload struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("passthrough body is not JSON: %v", err)
	}
	if payload.Error.Type != "server_error" || payload.Error.Message != "upstream exploded" {
		t.Errorf("expected provider error body, got %s", body)
	}
	if got := resp.Header.Get("X-Provider-Trace"); got != "trace-123" {
		t.Errorf("expected provider header passthrough, got %q", got)
	}

	// Usage is unknown; nothing is charged.
	if got := tg.usageCount(t); got != 0 {
		t.Errorf("expected no usage records, got %d", got)
	}
	b, err := tg.store.GetBudget(context.Background(), "team-err")
	if err != nil {
		t.Fatalf("GetBudget() failed: %v", err)
	}
	if b.SpentUSD != 0 {
		t.Errorf("expected untouched budget, got spend %v", b.SpentUSD)
	}
	// The actual-cost headers never appear on a passthrough.
	if got := resp.Header.Get(HeaderCostUSD); got != "" {
		t.Errorf("expected no cost header on passthrough, got %q", got)
	}
}

func TestForward_MissingUsageBlockChargesFlaggedEstimate(t *testing.T) {
	tg := newTestGateway(t)

	tg.mock.Respond("/v1/chat/completions",
		upstreams.Response{Body: upstreams.OpenAIChatResponseNoUsage("gpt-4o", "hi")})

	resp := tg.post(t, "/v1/chat/completions", "team-nousage",
		chatBody("gpt-4o", "hello", 64, false), nil)
	readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	estInput, err := strconv.Atoi(resp.Header.Get(HeaderInputTokens))
	if err != nil {
		t.Fatalf("input token header not an int: %v", err)
	}

	rec := tg.usageForResponse(t, resp)
	if rec == nil {
		t.Fatal("expected a usage record")
	}
	if !rec.Flagged {
		t.Error("expected flagged record when the usage block is missing")
	}
	if rec.InputTokens != estInput {
		t.Errorf("expected estimated input %d charged, got %d", estInput, rec.InputTokens)
	}
	if rec.OutputTokens != 0 {
		t.Errorf("expected zero output tokens, got %d", rec.OutputTokens)
	}
	if got := resp.Header.Get(HeaderOutputTokens); got != "0" {
		t.Errorf("expected output header 0, got %q", got)
	}
	if rec.CostUSD <= 0 {
		t.Errorf("expected positive input-only cost, got %v", rec.CostUSD)
	}
}

func TestForward_NoCredentials(t *testing.T) {
	tg := newTestGateway(t, func(cfg *config.Config) {
		uc := cfg.Upstreams[upstream.ProviderOpenAI]
		uc.APIKey = ""
		cfg.Upstreams[upstream.ProviderOpenAI] = uc
	})

	resp := tg.post(t, "/v1/chat/completions", "team-nokey",
		chatBody("gpt-4o", "hello", 64, false), nil)
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", resp.StatusCode, body)
	}
	er := decodeErrorResponse(t, body)
	if er.Error.Type != types.ErrorTypeUnauthorized {
		t.Errorf("expected type unauthorized, got %q", er.Error.Type)
	}
	if er.Error.Code != types.CodeMissingCredentials {
		t.Errorf("expected code missing_credentials, got %q", er.Error.Code)
	}
	if got := tg.mock.RequestCount(); got != 0 {
		t.Errorf("expected no upstream requests, got %d", got)
	}
	if got := tg.usageCount(t); got != 0 {
		t.Errorf("expected no usage records, got %d", got)
	}
}

func TestForward_ClientKeyForwarded(t *testing.T) {
	tg := newTestGateway(t)

	tg.mock.Respond("/v1/chat/completions",
		upstreams.Response{Body: upstreams.OpenAIChatResponse("gpt-4o", "hi", 100, 50)})

	resp := tg.post(t, "/v1/chat/completions", "team-key",
		chatBody("gpt-4o", "hello", 64, false),
		map[string]string{"Authorization": "Bearer sk-client-own"})
	readBody(t, resp)

	ex := tg.mock.LastExchange()
	if ex == nil {
		t.Fatal("expected an upstream exchange")
	}
	if got := ex.Header.Get("Authorization"); got != "Bearer sk-client-own" {
		t.Errorf("expected client key forwarded, got %q", got)
	}
	// Gateway-internal headers never leak upstream.
	if got := ex.Header.Get(HeaderProjectID); got != "" {
		t.Errorf("expected project header stripped, got %q", got)
	}
}

func TestForward_UpstreamUnreachable(t *testing.T) {
	tg := newTestGateway(t, func(cfg *config.Config) {
		uc := cfg.Upstreams[upstream.ProviderOpenAI]
		uc.BaseURL = "http://127.0.0.1:1"
		uc.Timeout = 2 * time.Second
		cfg.Upstreams[upstream.ProviderOpenAI] = uc
	})

	resp := tg.post(t, "/v1/chat/completions", "team-down",
		chatBody("gpt-4o", "hello", 64, false), nil)
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", resp.StatusCode, body)
	}
	er := decodeErrorResponse(t, body)
	if er.Error.Type != types.ErrorTypeUpstreamError {
		t.Errorf("expected type upstream_error, got %q", er.Error.Type)
	}
	if er.Error.Code != types.CodeUpstreamUnreachable {
		t.Errorf("expected code upstream_unreachable, got %q", er.Error.Code)
	}
	if got := tg.usageCount(t); got != 0 {
		t.Errorf("expected no usage records, got %d", got)
	}
}

func TestForward_InvalidRequests(t *testing.T) {
	tg := newTestGateway(t)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{name: "malformed json", body: `{"model":`, wantCode: types.CodeInvalidJSON},
		{name: "missing model", body: `{"messages":[{"role":"user","content":"hi"}]}`, wantCode: types.CodeMissingField},
		{name: "no messages", body: `{"model":"gpt-4o","messages":[]}`, wantCode: types.CodeMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tg.post(t, "/v1/chat/completions", "", tt.body, nil)
			body := readBody(t, resp)

			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", resp.StatusCode, body)
			}
			er := decodeErrorResponse(t, body)
			if er.Error.Type != types.ErrorTypeInvalidRequest {
				t.Errorf("expected type invalid_request, got %q", er.Error.Type)
			}
			if er.Error.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, er.Error.Code)
			}
		})
	}

	if got := tg.mock.RequestCount(); got != 0 {
		t.Errorf("expected no upstream requests for invalid bodies, got %d", got)
	}
}

func TestForward_MethodNotAllowed(t *testing.T) {
	tg := newTestGateway(t)

	resp, err := http.Get(tg.srv.URL + "/v1/chat/completions")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	readBody(t, resp)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestForward_AnthropicMessages(t *testing.T) {
	tg := newTestGateway(t)
	tg.setBudget(t, "team-claude", 10.0)

	// 1M in at $3/MTok plus 200k out at $15/MTok is exactly $6.00.
	tg.mock.Respond("/v1/messages",
		upstreams.Response{Body: upstreams.AnthropicMessageResponse("claude-sonnet-4-20250514", "hi", 1000000, 200000)})

	body := `{"model":"claude-sonnet-4-20250514","max_tokens":100,"messages":[{"role":"user","content":"hello"}]}`
	resp := tg.post(t, "/v1/messages", "team-claude", body,
		map[string]string{"X-API-Key": "sk-ant-client"})
	respBody := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, respBody)
	}
	if got := resp.Header.Get(HeaderConfidence); got != "medium" {
		t.Errorf("expected medium confidence for the approximate counter, got %q", got)
	}
	if got := resp.Header.Get(HeaderCostUSD); got != "6.000000" {
		t.Errorf("expected cost header 6.000000, got %q", got)
	}
	if got := resp.Header.Get(HeaderBudgetRemaining); got != "4.000000" {
		t.Errorf("expected budget remaining 4.000000, got %q", got)
	}

	// The adapter speaks x-api-key and fills in the version header.
	ex := tg.mock.LastExchange()
	if ex == nil {
		t.Fatal("expected an upstream exchange")
	}
	if got := ex.Header.Get("x-api-key"); got != "sk-ant-client" {
		t.Errorf("expected x-api-key forwarded, got %q", got)
	}
	if got := ex.Header.Get("anthropic-version"); got != "2023-06-01" {
		t.Errorf("expected default anthropic-version, got %q", got)
	}
	if got := ex.Header.Get("Authorization"); got != "" {
		t.Errorf("expected no Authorization header upstream, got %q", got)
	}

	rec := tg.usageForResponse(t, resp)
	if rec == nil {
		t.Fatal("expected a usage record")
	}
	if rec.Provider != upstream.ProviderAnthropic {
		t.Errorf("expected provider anthropic, got %q", rec.Provider)
	}
	if rec.CostUSD != 6.0 {
		t.Errorf("expected cost 6.0, got %v", rec.CostUSD)
	}
}

func TestForward_BudgetResetCycle(t *testing.T) {
	tg := newTestGateway(t)
	tg.setBudget(t, "team-cycle", 10.0)

	tg.mock.Respond("/v1/chat/completions",
		upstreams.Response{Body: upstreams.OpenAIChatResponse("gpt-4o", "ok", 100000, 50000)})

	// Charge $0.75, reset, then verify the spend cleared while the ledger
	// history survived.
	resp := tg.post(t, "/v1/chat/completions", "team-cycle",
		chatBody("gpt-4o", "hello", 64, false), nil)
	readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("charge request: expected 200, got %d", resp.StatusCode)
	}

	resp = tg.post(t, "/v1/budget/reset", "team-cycle", `{"projectId":"team-cycle"}`, nil)
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var after ledger.Budget
	if err := json.Unmarshal(body, &after); err != nil {
		t.Fatalf("decoding reset body failed: %v", err)
	}
	if after.SpentUSD != 0 {
		t.Errorf("expected spend 0 after reset, got %v", after.SpentUSD)
	}
	if after.LimitUSD != 10.0 {
		t.Errorf("expected limit preserved at 10, got %v", after.LimitUSD)
	}

	summary, err := tg.store.GetUsageSummary(context.Background(), "team-cycle")
	if err != nil {
		t.Fatalf("GetUsageSummary() failed: %v", err)
	}
	if summary.TotalRequests != 1 {
		t.Errorf("expected history to survive reset, got %d records", summary.TotalRequests)
	}
	if summary.TotalCostUSD != 0.75 {
		t.Errorf("expected lifetime cost 0.75, got %v", summary.TotalCostUSD)
	}

	// The freed budget admits again.
	resp = tg.post(t, "/v1/chat/completions", "team-cycle",
		chatBody("gpt-4o", "hello again", 64, false), nil)
	readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 after reset, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(HeaderBudgetRemaining); got != "9.250000" {
		t.Errorf("expected remaining 9.250000 after second charge, got %q", got)
	}
}

func TestForward_ProjectFromQueryParameter(t *testing.T) {
	tg := newTestGateway(t)

	tg.mock.Respond("/v1/chat/completions",
		upstreams.Response{Body: upstreams.OpenAIChatResponse("gpt-4o", "hi", 100, 50)})

	resp := tg.post(t, "/v1/chat/completions?project_id=team-query", "",
		chatBody("gpt-4o", "hello", 64, false), nil)
	readBody(t, resp)

	rec := tg.usageForResponse(t, resp)
	if rec == nil {
		t.Fatal("expected a usage record")
	}
	if rec.ProjectID != "team-query" {
		t.Errorf("expected project team-query, got %q", rec.ProjectID)
	}
}

func TestForward_DefaultProject(t *testing.T) {
	tg := newTestGateway(t)

	tg.mock.Respond("/v1/chat/completions",
		upstreams.Response{Body: upstreams.OpenAIChatResponse("gpt-4o", "hi", 100, 50)})

	resp := tg.post(t, "/v1/chat/completions", "",
		chatBody("gpt-4o", "hello", 64, false), nil)
	readBody(t, resp)

	rec := tg.usageForResponse(t, resp)
	if rec == nil {
		t.Fatal("expected a usage record")
	}
	if rec.ProjectID != config.DefaultProjectID {
		t.Errorf("expected default project, got %q", rec.ProjectID)
	}
}

func TestForward_RequestIDsAlwaysGenerated(t *testing.T) {
	tg := newTestGateway(t)
	tg.setBudget(t, "team-reqid", 10.0)

	tg.mock.Respond("/v1/chat/completions",
		upstreams.Response{Body: upstreams.OpenAIChatResponse("gpt-4o", "hi", 100, 50)})

	// A client replaying the same X-Tokencap-Request-Id must not be able
	// to collide the second charge with the first: every forwarded request
	// is billed by the provider, so every one gets its own ledger row.
	supplied := map[string]string{middleware.RequestIDHeader: "req-dup"}
	var ids []string
	for i := 0; i < 2; i++ {
		resp := tg.post(t, "/v1/chat/completions", "team-reqid",
			chatBody("gpt-4o", "hello", 64, false), supplied)
		body := readBody(t, resp)

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i, resp.StatusCode, body)
		}
		id := resp.Header.Get(middleware.RequestIDHeader)
		if !strings.HasPrefix(id, "req_") {
			t.Errorf("request %d: expected a generated req_ id, got %q", i, id)
		}
		if rec := tg.usageForResponse(t, resp); rec == nil {
			t.Fatalf("request %d: expected a usage record under its own id", i)
		}
		ids = append(ids, id)
	}

	if ids[0] == ids[1] {
		t.Errorf("expected distinct generated ids, got %q twice", ids[0])
	}
	if n := tg.usageCount(t); n != 2 {
		t.Errorf("expected both forwarded requests charged, got %d rows", n)
	}
	if rec, err := tg.store.GetUsageByRequestID(context.Background(), "req-dup"); err != nil || rec != nil {
		t.Errorf("expected no ledger row under the client-supplied id, got %v (err %v)", rec, err)
	}
	b, err := tg.store.GetBudget(context.Background(), "team-reqid")
	if err != nil {
		t.Fatalf("GetBudget() failed: %v", err)
	}
	if want := 2 * gpt4oCost(t, 100, 50); b.SpentUSD != want {
		t.Errorf("expected both charges on the budget, spend %v, got %v", want, b.SpentUSD)
	}
}

func TestForward_TraceContinuation(t *testing.T) {
	// Enabled tracing registers the W3C propagator; the exporter never
	// connects here, spans just age out in the batcher.
	tg := newTestGateway(t, func(cfg *config.Config) {
		cfg.Telemetry.Tracing.Enabled = true
		cfg.Telemetry.Tracing.Sampler = "always"
		cfg.Telemetry.Tracing.Endpoint = "localhost:4317"
		cfg.Telemetry.Tracing.Insecure = true
	})

	tg.mock.Respond("/v1/chat/completions",
		upstreams.Response{Body: upstreams.OpenAIChatResponse("gpt-4o", "hi", 100, 50)})

	const (
		callerTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
		callerSpanID  = "00f067aa0ba902b7"
	)
	resp := tg.post(t, "/v1/chat/completions", "team-trace",
		chatBody("gpt-4o", "hello", 64, false),
		map[string]string{"traceparent": "00-" + callerTraceID + "-" + callerSpanID + "-01"})
	readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// The caller's trace continues through the gateway and is echoed back
	// for correlation.
	if got := resp.Header.Get(HeaderTraceID); got != callerTraceID {
		t.Errorf("expected trace id header %s, got %q", callerTraceID, got)
	}

	// The upstream request joins the same trace on the gateway's own span,
	// replacing the caller's forwarded traceparent rather than duplicating it.
	ex := tg.mock.LastExchange()
	if ex == nil {
		t.Fatal("expected the mock to receive the forwarded request")
	}
	outbound := ex.Header.Values("Traceparent")
	if len(outbound) != 1 {
		t.Fatalf("expected exactly one traceparent upstream, got %v", outbound)
	}
	if !strings.Contains(outbound[0], callerTraceID) {
		t.Errorf("expected upstream traceparent in trace %s, got %q", callerTraceID, outbound[0])
	}
	if strings.Contains(outbound[0], callerSpanID) {
		t.Errorf("expected a gateway span id upstream, got the caller's: %q", outbound[0])
	}
}
