//go:build integration

package test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/tokencap/internal/upstreams"
	"mercator-hq/tokencap/pkg/budget"
	"mercator-hq/tokencap/pkg/config"
	"mercator-hq/tokencap/pkg/gateway"
	"mercator-hq/tokencap/pkg/gateway/types"
	"mercator-hq/tokencap/pkg/ledger"
	"mercator-hq/tokencap/pkg/pricing"
	"mercator-hq/tokencap/pkg/server"
	"mercator-hq/tokencap/pkg/telemetry/metrics"
	"mercator-hq/tokencap/pkg/telemetry/tracing"
)

// stack is a full gateway behind the complete server middleware chain
// (Recovery, CORS, RequestID, Logging), the way production composes it.
type stack struct {
	url   string
	mock  *upstreams.MockUpstream
	store *ledger.Store
}

func startStack(t *testing.T) *stack {
	t.Helper()

	mock := upstreams.NewMockUpstream()
	t.Cleanup(mock.Close)

	cfg := config.DefaultConfig()
	for name, uc := range cfg.Upstreams {
		uc.BaseURL = mock.URL()
		uc.APIKey = "sk-integration"
		uc.Timeout = 10 * time.Second
		cfg.Upstreams[name] = uc
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

	gw := gateway.New(cfg,
		pricing.NewEstimator(pricing.NewCatalog(), cfg.Defaults.OutputTokens),
		budget.NewController(store),
		store,
		metrics.NewCollector(&cfg.Telemetry.Metrics, nil),
		tracer,
		"integration",
	)

	srv := server.NewServer(&cfg.Server, gw.Routes())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &stack{url: ts.URL, mock: mock, store: store}
}

func (s *stack) do(t *testing.T, method, path, project, body string) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.url+path, rd)
	if err != nil {
		t.Fatalf("NewRequest() failed: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if project != "" {
		req.Header.Set("X-Tokencap-Project-Id", project)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

func TestGatewayIntegration(t *testing.T) {
	s := startStack(t)
	s.mock.Respond("/v1/chat/completions", upstreams.Response{
		StatusCode: http.StatusOK,
		Body:       upstreams.OpenAIChatResponse("gpt-4o", "Paris.", 20, 5),
	})

	t.Run("chat completion through the full chain", func(t *testing.T) {
		resp := s.do(t, http.MethodPost, "/v1/chat/completions", "team-int",
			`{"model":"gpt-4o","messages":[{"role":"user","content":"Capital of France?"}],"max_tokens":64}`)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
		}
		if resp.Header.Get("X-Tokencap-Request-Id") == "" {
			t.Error("expected a request id from the middleware chain")
		}
		if resp.Header.Get("X-Tokencap-Cost-USD") == "" {
			t.Error("expected a charged cost header")
		}
		requestID := resp.Header.Get("X-Tokencap-Request-Id")
		rec, err := s.store.GetUsageByRequestID(context.Background(), requestID)
		if err != nil {
			t.Fatalf("GetUsageByRequestID() failed: %v", err)
		}
		if rec == nil {
			t.Fatal("expected a ledger row for the forwarded request")
		}
		if rec.ProjectID != "team-int" {
			t.Errorf("expected project team-int, got %q", rec.ProjectID)
		}
	})

	t.Run("cost headers exposed to browsers", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, s.url+"/v1/usage", nil)
		if err != nil {
			t.Fatalf("NewRequest() failed: %v", err)
		}
		req.Header.Set("Origin", "https://dashboard.example.com")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET /v1/usage failed: %v", err)
		}
		defer resp.Body.Close()

		exposed := resp.Header.Get("Access-Control-Expose-Headers")
		if !strings.Contains(exposed, "X-Tokencap-Cost-USD") {
			t.Errorf("expected cost headers exposed, got %q", exposed)
		}
	})

	t.Run("preflight short-circuits before routing", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, s.url+"/v1/chat/completions", nil)
		if err != nil {
			t.Fatalf("NewRequest() failed: %v", err)
		}
		req.Header.Set("Origin", "https://dashboard.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("OPTIONS failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("expected 204, got %d", resp.StatusCode)
		}
		if got := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
			t.Errorf("expected POST allowed, got %q", got)
		}
	})

	t.Run("health through the chain", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/health", "", "")
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("metrics endpoint reports request counters", func(t *testing.T) {
		resp := s.do(t, http.MethodGet, "/metrics", "", "")
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("reading metrics failed: %v", err)
		}
		if !strings.Contains(string(body), "tokencap_requests_total") {
			t.Error("expected tokencap_requests_total in metrics output")
		}
	})
}

func TestGatewayIntegration_BudgetLifecycle(t *testing.T) {
	s := startStack(t)
	s.mock.Respond("/v1/chat/completions", upstreams.Response{
		StatusCode: http.StatusOK,
		Body:       upstreams.OpenAIChatResponse("gpt-4o", "ok", 100, 50),
	})

	// Configure a budget over HTTP. The limit leaves room for a small
	// request but not for a max_tokens=128000 one (estimated around $0.96
	// of gpt-4o output).
	resp := s.do(t, http.MethodPost, "/v1/budget", "",
		`{"projectId":"team-cycle","limitUsd":0.5,"periodDays":30}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("budget create: expected 200, got %d", resp.StatusCode)
	}

	// A small request is admitted and charged.
	resp = s.do(t, http.MethodPost, "/v1/chat/completions", "team-cycle",
		`{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}],"max_tokens":64}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("forward: expected 200, got %d", resp.StatusCode)
	}

	// The ledger reflects it.
	resp = s.do(t, http.MethodGet, "/v1/usage", "team-cycle", "")
	var summary ledger.UsageSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decoding summary failed: %v", err)
	}
	resp.Body.Close()
	if summary.TotalRequests != 1 {
		t.Errorf("expected 1 request in summary, got %d", summary.TotalRequests)
	}
	if summary.Budget == nil || summary.Budget.SpentUSD <= 0 {
		t.Errorf("expected positive spend, got %+v", summary.Budget)
	}

	// An oversized request is rejected with the structured reason.
	resp = s.do(t, http.MethodPost, "/v1/chat/completions", "team-cycle",
		`{"model":"gpt-4o","messages":[{"role":"user","content":"write a novel"}],"max_tokens":128000}`)
	if resp.StatusCode != http.StatusPaymentRequired {
		resp.Body.Close()
		t.Fatalf("expected 402, got %d", resp.StatusCode)
	}
	var er types.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		t.Fatalf("decoding 402 envelope failed: %v", err)
	}
	resp.Body.Close()
	if er.Error.Type != types.ErrorTypeBudgetExceeded || er.Error.Details == nil {
		t.Errorf("expected budget_exceeded with details, got %+v", er.Error)
	}

	// Removing the budget removes the gate.
	resp = s.do(t, http.MethodDelete, "/v1/budget", "team-cycle", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("budget delete: expected 200, got %d", resp.StatusCode)
	}

	resp = s.do(t, http.MethodPost, "/v1/chat/completions", "team-cycle",
		`{"model":"gpt-4o","messages":[{"role":"user","content":"write a novel"}],"max_tokens":128000}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected admission without a budget, got %d", resp.StatusCode)
	}
}
