package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the control plane exports.
// Grounded on internal/interfaces/http/metrics.go's MetricsRegistry:
// one struct field per collector, constructed once and registered
// against a dedicated registry rather than the global default so
// tests can spin up independent instances.
type Metrics struct {
	TickDuration      prometheus.Histogram
	TickScheduled     prometheus.Counter
	TickRejected      prometheus.Counter
	PendingQueueDepth prometheus.Gauge
	RunningJobs       prometheus.Gauge

	HedgeAttempts *prometheus.CounterVec
	HedgeFailures *prometheus.CounterVec
	UnhedgedTime  *prometheus.HistogramVec

	ConnectionState *prometheus.GaugeVec
	KillSwitchOn    prometheus.Gauge
}

// NewMetrics creates and registers every collector against registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hedgemesh_tick_duration_seconds",
			Help:    "Duration of one scheduler tick.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		TickScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hedgemesh_tick_scheduled_total",
			Help: "Total jobs dispatched across all ticks.",
		}),
		TickRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hedgemesh_tick_rejected_total",
			Help: "Total jobs hard-rejected by the risk evaluator across all ticks.",
		}),
		PendingQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hedgemesh_pending_queue_depth",
			Help: "Current pending job queue depth.",
		}),
		RunningJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hedgemesh_running_jobs",
			Help: "Current number of jobs running across all venues.",
		}),
		HedgeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hedgemesh_hedge_attempts_total",
			Help: "Total hedge attempts by mode.",
		}, []string{"mode"}),
		HedgeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hedgemesh_hedge_failures_total",
			Help: "Total failed hedge attempts by mode.",
		}, []string{"mode"}),
		UnhedgedTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hedgemesh_unhedged_time_ms",
			Help:    "Unhedged exposure duration per hedge in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"venue_pair"}),
		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hedgemesh_connection_state",
			Help: "Current connection state per (venue, role), 0=Disconnected..4=CircuitOpen.",
		}, []string{"venue", "role"}),
		KillSwitchOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hedgemesh_global_kill_switch",
			Help: "1 if the global trading kill switch is engaged.",
		}),
	}

	registry.MustRegister(
		m.TickDuration, m.TickScheduled, m.TickRejected, m.PendingQueueDepth, m.RunningJobs,
		m.HedgeAttempts, m.HedgeFailures, m.UnhedgedTime, m.ConnectionState, m.KillSwitchOn,
	)
	return m
}

// ConnectionStateValue maps a supervisor state name to the numeric
// gauge value the dashboard expects.
func ConnectionStateValue(state string) float64 {
	switch state {
	case "disconnected":
		return 0
	case "connecting":
		return 1
	case "connected":
		return 2
	case "degraded":
		return 3
	case "circuit_open":
		return 4
	default:
		return -1
	}
}
