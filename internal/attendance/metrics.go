package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the protocol's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	scans          *prometheus.CounterVec
	started        prometheus.Counter
	expired        *prometheus.CounterVec
	rotations      prometheus.Counter
	active         prometheus.Gauge
	counterFailure prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_scans_total",
			Help: "QR scans by outcome.",
		}, []string{"outcome"}),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_sessions_started_total",
			Help: "QR sessions started.",
		}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_sessions_expired_total",
			Help: "QR sessions ended, by reason.",
		}, []string{"reason"}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_token_rotations_total",
			Help: "QR token rotations written.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "attendance_active_sessions",
			Help: "Sessions with a running rotation timer.",
		}),
		counterFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "attendance_counter_failures_total",
			Help: "Attendance counter increments that failed after the record was written.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.scans, m.started, m.expired, m.rotations, m.active, m.counterFailure)
	}
	return m
}

func (m *Metrics) scan(outcome string) {
	if m != nil {
		m.scans.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) sessionStarted() {
	if m != nil {
		m.started.Inc()
	}
}

func (m *Metrics) sessionExpired(reason string) {
	if m != nil {
		m.expired.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) rotated() {
	if m != nil {
		m.rotations.Inc()
	}
}

func (m *Metrics) timers(delta float64) {
	if m != nil {
		m.active.Add(delta)
	}
}

func (m *Metrics) counterFailed() {
	if m != nil {
		m.counterFailure.Inc()
	}
}
