package events

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"mercator-hq/tokencap/pkg/config"
	"mercator-hq/tokencap/pkg/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// recordingSink appends every received event to a shared log, so tests can
// assert delivery and ordering across sinks.
type recordingSink struct {
	name    string
	log     *[]string
	panicOn string
}

func (s *recordingSink) record(event string) {
	if event == s.panicOn {
		panic("sink failure on " + event)
	}
	*s.log = append(*s.log, s.name+":"+event)
}

func (s *recordingSink) OnEstimate(ctx context.Context, ev EstimateEvent)             { s.record("estimate") }
func (s *recordingSink) OnCost(ctx context.Context, ev CostEvent)                     { s.record("cost") }
func (s *recordingSink) OnBudgetWarning(ctx context.Context, ev BudgetWarningEvent)   { s.record("warning") }
func (s *recordingSink) OnBudgetExceeded(ctx context.Context, ev BudgetExceededEvent) { s.record("exceeded") }

func TestDispatcherFansOutInOrder(t *testing.T) {
	var log []string
	first := &recordingSink{name: "first", log: &log}
	second := &recordingSink{name: "second", log: &log}
	d := NewDispatcher(first, second)

	ctx := context.Background()
	d.OnEstimate(ctx, EstimateEvent{RequestID: "req-1"})
	d.OnCost(ctx, CostEvent{RequestID: "req-1"})
	d.OnBudgetWarning(ctx, BudgetWarningEvent{ProjectID: "p"})
	d.OnBudgetExceeded(ctx, BudgetExceededEvent{RequestID: "req-2"})

	want := []string{
		"first:estimate", "second:estimate",
		"first:cost", "second:cost",
		"first:warning", "second:warning",
		"first:exceeded", "second:exceeded",
	}
	if len(log) != len(want) {
		t.Fatalf("expected %d deliveries, got %d: %v", len(want), len(log), log)
	}
	for i, entry := range want {
		if log[i] != entry {
			t.Errorf("delivery %d: expected %q, got %q", i, entry, log[i])
		}
	}
}

func TestDispatcherRecoversPanickingSink(t *testing.T) {
	var log []string
	broken := &recordingSink{name: "broken", log: &log, panicOn: "cost"}
	healthy := &recordingSink{name: "healthy", log: &log}
	d := NewDispatcher(broken, healthy)

	ctx := context.Background()
	d.OnCost(ctx, CostEvent{RequestID: "req-1"})
	// The dispatcher must survive the panic and keep delivering.
	d.OnEstimate(ctx, EstimateEvent{RequestID: "req-2"})

	want := []string{"healthy:cost", "broken:estimate", "healthy:estimate"}
	if len(log) != len(want) {
		t.Fatalf("expected %d deliveries, got %d: %v", len(want), len(log), log)
	}
	for i, entry := range want {
		if log[i] != entry {
			t.Errorf("delivery %d: expected %q, got %q", i, entry, log[i])
		}
	}
}

func TestDispatcherNoSinks(t *testing.T) {
	d := NewDispatcher()
	// Must be a safe no-op.
	d.OnCost(context.Background(), CostEvent{RequestID: "req-1"})
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	sink := NewLogSink(logger)
	ctx := context.Background()

	sink.OnEstimate(ctx, EstimateEvent{RequestID: "req-1", Model: "gpt-4o", Confidence: "high"})
	out := buf.String()
	if !strings.Contains(out, `"msg":"estimate computed"`) || !strings.Contains(out, `"level":"DEBUG"`) {
		t.Errorf("expected a debug estimate entry, got %s", out)
	}

	buf.Reset()
	sink.OnCost(ctx, CostEvent{RequestID: "req-1", Model: "gpt-4o", CostUSD: 0.75})
	out = buf.String()
	if !strings.Contains(out, `"msg":"usage charged"`) || !strings.Contains(out, `"level":"INFO"`) {
		t.Errorf("expected an info charge entry, got %s", out)
	}
	if strings.Contains(out, `"flagged"`) {
		t.Errorf("expected no flagged attribute on a clean charge, got %s", out)
	}

	buf.Reset()
	sink.OnCost(ctx, CostEvent{RequestID: "req-2", Model: "gpt-4o", Flagged: true})
	if out = buf.String(); !strings.Contains(out, `"flagged":true`) {
		t.Errorf("expected flagged attribute, got %s", out)
	}

	buf.Reset()
	sink.OnBudgetWarning(ctx, BudgetWarningEvent{ProjectID: "p", UtilizationPercent: 85})
	out = buf.String()
	if !strings.Contains(out, `"msg":"project approaching budget limit"`) || !strings.Contains(out, `"level":"WARN"`) {
		t.Errorf("expected a warn entry, got %s", out)
	}

	buf.Reset()
	sink.OnBudgetExceeded(ctx, BudgetExceededEvent{RequestID: "req-3", ProjectID: "p"})
	if out = buf.String(); !strings.Contains(out, `"msg":"request rejected by budget"`) {
		t.Errorf("expected a rejection entry, got %s", out)
	}
}

func TestNewLogSinkNilLogger(t *testing.T) {
	sink := NewLogSink(nil)
	if sink == nil {
		t.Fatal("expected a sink")
	}
	// Must not panic when falling back to the default logger.
	sink.OnCost(context.Background(), CostEvent{RequestID: "req-1"})
}

func TestMetricsSink(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "tokencap"}, registry)
	sink := NewMetricsSink(collector)
	ctx := context.Background()

	util := 7.5
	sink.OnEstimate(ctx, EstimateEvent{Confidence: "high"})
	sink.OnCost(ctx, CostEvent{Provider: "openai", Model: "gpt-4o", ProjectID: "p", InputTokens: 100, OutputTokens: 50, CostUSD: 0.75, UtilizationPercent: &util})
	sink.OnBudgetWarning(ctx, BudgetWarningEvent{ProjectID: "p", UtilizationPercent: 85})
	sink.OnBudgetExceeded(ctx, BudgetExceededEvent{ProjectID: "p"})

	tests := []struct {
		metric string
		want   int
	}{
		{metric: "tokencap_estimate_confidence_total", want: 1},
		{metric: "tokencap_cost_usd_total", want: 1},
		{metric: "tokencap_budget_utilization_percent", want: 1},
		{metric: "tokencap_budget_rejections_total", want: 1},
	}
	for _, tt := range tests {
		n, err := testutil.GatherAndCount(registry, tt.metric)
		if err != nil {
			t.Fatalf("GatherAndCount(%s) failed: %v", tt.metric, err)
		}
		if n != tt.want {
			t.Errorf("expected %d series for %s, got %d", tt.want, tt.metric, n)
		}
	}
}

func TestMetricsSink_NoUtilizationWithoutBudget(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "tokencap"}, registry)
	sink := NewMetricsSink(collector)

	sink.OnCost(context.Background(), CostEvent{Provider: "openai", Model: "gpt-4o", ProjectID: "p", CostUSD: 0.75})

	n, err := testutil.GatherAndCount(registry, "tokencap_budget_utilization_percent")
	if err != nil {
		t.Fatalf("GatherAndCount() failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no utilization series without a budget, got %d", n)
	}
}
