// Package metrics exposes Prometheus collectors for power operations and
// liveness probes.
package metrics

import (
	"github.com/fgeck/wakehub/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wakehub"

// Request outcomes.
const (
	OutcomeAccepted    = "accepted"
	OutcomeBusy        = "rejected_busy"
	OutcomeUnknownHost = "rejected_unknown"
)

var allStatuses = []models.Status{
	models.StatusUnknown,
	models.StatusOnline,
	models.StatusOffline,
	models.StatusWaking,
	models.StatusShuttingDown,
}

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	dispatches *prometheus.CounterVec
	probes     *prometheus.CounterVec
	hostStatus *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_requests_total",
				Help:      "Number of wake and shutdown requests by outcome",
			},
			[]string{"kind", "outcome"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Number of magic packets and shutdown commands sent by result",
			},
			[]string{"kind", "result"},
		),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Number of status observations by host and status",
			},
			[]string{"host", "status"},
		),
		hostStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "host_status",
				Help:      "Current status of a host (1 for the active status)",
			},
			[]string{"host", "status"},
		),
	}

	reg.MustRegister(m.operations, m.dispatches, m.probes, m.hostStatus)
	return m
}

// OperationRequested counts a wake or shutdown request.
func (m *Metrics) OperationRequested(kind models.OperationKind, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(string(kind), outcome).Inc()
}

// DispatchFinished counts a sent magic packet or shutdown command.
func (m *Metrics) DispatchFinished(kind models.OperationKind, success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.dispatches.WithLabelValues(string(kind), result).Inc()
}

// StatusObserved records the status written for a host.
func (m *Metrics) StatusObserved(host string, status models.Status) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(host, string(status)).Inc()
	for _, s := range allStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.hostStatus.WithLabelValues(host, string(s)).Set(v)
	}
}
