package metrics

import (
	"mercator-hq/tokencap/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// BudgetMetrics tracks budget admission and ledger health.
//
// Metrics:
//   - tokencap_budget_rejections_total: Requests rejected by budget admission
//   - tokencap_budget_utilization_percent: Spend-to-limit ratio per project
//   - tokencap_ledger_charge_failures_total: Usage records that failed to persist
type BudgetMetrics struct {
	// Requests rejected at admission
	rejectionsTotal *prometheus.CounterVec

	// Spend as a percentage of the budget limit
	utilization *prometheus.GaugeVec

	// Failed ledger writes after completed upstream calls
	chargeFailures prometheus.Counter
}

// NewBudgetMetrics creates and registers budget metrics with the provided registry.
func NewBudgetMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *BudgetMetrics {
	bm := &BudgetMetrics{
		rejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "budget_rejections_total",
				Help:      "Requests rejected because the estimated cost exceeded the remaining budget",
			},
			[]string{"project"},
		),

		utilization: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "budget_utilization_percent",
				Help:      "Current spend as a percentage of the budget limit per project",
			},
			[]string{"project"},
		),

		chargeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ledger_charge_failures_total",
				Help:      "Usage records that could not be persisted after the upstream call",
			},
		),
	}

	registry.MustRegister(
		bm.rejectionsTotal,
		bm.utilization,
		bm.chargeFailures,
	)

	return bm
}

// RecordRejection counts one rejected request for a project.
func (bm *BudgetMetrics) RecordRejection(project string) {
	bm.rejectionsTotal.WithLabelValues(project).Inc()
}

// UpdateUtilization sets the utilization gauge for a project. Values over
// 100 indicate the budget has been overshot.
func (bm *BudgetMetrics) UpdateUtilization(project string, percent float64) {
	bm.utilization.WithLabelValues(project).Set(percent)
}

// RecordChargeFailure counts one failed ledger write.
func (bm *BudgetMetrics) RecordChargeFailure() {
	bm.chargeFailures.Inc()
}
