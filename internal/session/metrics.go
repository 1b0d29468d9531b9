package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation names used as metric labels.
const (
	opSearch   = "search"
	opLoadMore = "load_more"
	opChat     = "chat"
)

// Operation outcomes used as metric labels.
const (
	outcomeApplied    = "applied"
	outcomeIgnored    = "ignored"
	outcomeRejected   = "rejected"
	outcomeSuperseded = "superseded"
	outcomeCancelled  = "cancelled"
	outcomeFailed     = "failed"
)

// Metrics holds the Prometheus collectors for session activity. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	sessions   prometheus.Gauge
	archived   *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "findify",
			Name:      "session_operations_total",
			Help:      "Session operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "findify",
			Name:      "session_operation_duration_seconds",
			Help:      "Time from operation start to its effect being applied or abandoned.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 5},
		}, []string{"operation"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "findify",
			Name:      "sessions_active",
			Help:      "Sessions currently held by the manager.",
		}),
		archived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "findify",
			Name:      "sessions_archived_total",
			Help:      "Closed sessions by archive result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.operations, m.duration, m.sessions, m.archived)
	return m
}

func (m *Metrics) observe(op, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	if !start.IsZero() {
		m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) setSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}

func (m *Metrics) archiveResult(result string) {
	if m == nil {
		return
	}
	m.archived.WithLabelValues(result).Inc()
}
