package events

import (
	"context"
	"log/slog"

	"mercator-hq/tokencap/pkg/telemetry/metrics"
)

// LogSink writes events to structured logs. Estimates log at debug to keep
// per-request noise down; committed charges log at info; budget pressure at
// warn.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink over the given logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "gateway")}
}

// OnEstimate implements Sink.
func (s *LogSink) OnEstimate(ctx context.Context, ev EstimateEvent) {
	s.logger.DebugContext(ctx, "estimate computed",
		"request_id", ev.RequestID,
		"project_id", ev.ProjectID,
		"provider", ev.Provider,
		"model", ev.Model,
		"input_tokens", ev.InputTokens,
		"estimated_output_tokens", ev.EstimatedOutputTokens,
		"estimated_cost_usd", ev.EstimatedCostUSD,
		"confidence", ev.Confidence,
		"streaming", ev.Streaming,
	)
}

// OnCost implements Sink.
func (s *LogSink) OnCost(ctx context.Context, ev CostEvent) {
	attrs := []any{
		"request_id", ev.RequestID,
		"project_id", ev.ProjectID,
		"provider", ev.Provider,
		"model", ev.Model,
		"input_tokens", ev.InputTokens,
		"output_tokens", ev.OutputTokens,
		"cost_usd", ev.CostUSD,
		"streamed", ev.Streamed,
	}
	if ev.Flagged {
		attrs = append(attrs, "flagged", true)
	}
	s.logger.InfoContext(ctx, "usage charged", attrs...)
}

// OnBudgetWarning implements Sink.
func (s *LogSink) OnBudgetWarning(ctx context.Context, ev BudgetWarningEvent) {
	s.logger.WarnContext(ctx, "project approaching budget limit",
		"project_id", ev.ProjectID,
		"limit_usd", ev.LimitUSD,
		"spent_usd", ev.SpentUSD,
		"utilization_percent", ev.UtilizationPercent,
	)
}

// OnBudgetExceeded implements Sink.
func (s *LogSink) OnBudgetExceeded(ctx context.Context, ev BudgetExceededEvent) {
	s.logger.InfoContext(ctx, "request rejected by budget",
		"request_id", ev.RequestID,
		"project_id", ev.ProjectID,
		"provider", ev.Provider,
		"model", ev.Model,
		"estimated_cost_usd", ev.EstimatedCostUSD,
		"remaining_usd", ev.RemainingUSD,
	)
}

// MetricsSink forwards events to the Prometheus collector.
type MetricsSink struct {
	collector *metrics.Collector
}

// NewMetricsSink creates a sink over the given collector.
func NewMetricsSink(collector *metrics.Collector) *MetricsSink {
	return &MetricsSink{collector: collector}
}

// OnEstimate implements Sink.
func (s *MetricsSink) OnEstimate(ctx context.Context, ev EstimateEvent) {
	s.collector.RecordEstimateConfidence(ev.Confidence)
}

// OnCost implements Sink.
func (s *MetricsSink) OnCost(ctx context.Context, ev CostEvent) {
	s.collector.RecordCost(ev.Provider, ev.Model, ev.ProjectID, ev.CostUSD)
	s.collector.RecordTokens(ev.Provider, ev.Model, int64(ev.InputTokens), int64(ev.OutputTokens))
	if ev.UtilizationPercent != nil {
		s.collector.UpdateBudgetUtilization(ev.ProjectID, *ev.UtilizationPercent)
	}
}

// OnBudgetWarning implements Sink.
func (s *MetricsSink) OnBudgetWarning(ctx context.Context, ev BudgetWarningEvent) {
	s.collector.UpdateBudgetUtilization(ev.ProjectID, ev.UtilizationPercent)
}

// OnBudgetExceeded implements Sink.
func (s *MetricsSink) OnBudgetExceeded(ctx context.Context, ev BudgetExceededEvent) {
	s.collector.RecordBudgetRejection(ev.ProjectID)
}
