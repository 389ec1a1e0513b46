package agent

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ranstack/oai-ue-operator/internal/controller"
)

// Metrics holds the operator's Prometheus collectors.
type Metrics struct {
	Reconciles     *prometheus.CounterVec
	ReconcileFails prometheus.Counter
	Restarts       prometheus.Counter
	ConfigWrites   prometheus.Counter
	UnitStatus     *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ue_operator_reconciles_total",
			Help: "Reconciliation passes, labelled by trigger.",
		}, []string{"trigger"}),
		ReconcileFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ue_operator_reconcile_failures_total",
			Help: "Reconciliation passes that returned an error.",
		}),
		Restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ue_operator_service_restarts_total",
			Help: "Workload service restarts after configuration changes.",
		}),
		ConfigWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ue_operator_config_writes_total",
			Help: "Workload configuration file writes.",
		}),
		UnitStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ue_operator_unit_status",
			Help: "Current unit status, 1 for the active kind and 0 otherwise.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.Reconciles, m.ReconcileFails, m.Restarts, m.ConfigWrites, m.UnitStatus)
	return m
}

// SetStatus flips the status gauge so exactly one kind reads 1.
func (m *Metrics) SetStatus(kind controller.StatusKind) {
	for _, k := range []controller.StatusKind{controller.StatusActive, controller.StatusWaiting, controller.StatusBlocked} {
		v := 0.0
		if k == kind {
			v = 1.0
		}
		m.UnitStatus.WithLabelValues(string(k)).Set(v)
	}
}
