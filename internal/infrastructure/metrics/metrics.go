package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Sweep metrics
	MovementsProcessed *prometheus.CounterVec
	SweepFailures      *prometheus.CounterVec
	SweepDuration      prometheus.Histogram
	SweepsTotal        prometheus.Counter

	// Escalation metrics
	AlertsFired   *prometheus.CounterVec
	AlertErrors   prometheus.Counter
	AlertDuration prometheus.Histogram
	AlertRuns     prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		MovementsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywatch_movements_processed_total",
				Help: "Bank movements processed, by terminal status",
			},
			[]string{"status"},
		),
		SweepFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywatch_sweep_failures_total",
				Help: "Per-item sweep failures, by kind",
			},
			[]string{"kind"},
		),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "paywatch_sweep_duration_seconds",
			Help:    "Duration of mailbox sweep runs",
			Buckets: prometheus.DefBuckets,
		}),
		SweepsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paywatch_sweeps_total",
			Help: "Total number of completed mailbox sweeps",
		}),
		AlertsFired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywatch_alerts_fired_total",
				Help: "Payment reminders fired, by tier",
			},
			[]string{"tier"},
		),
		AlertErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paywatch_alert_errors_total",
			Help: "Invoices whose escalation failed this run",
		}),
		AlertDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "paywatch_alert_duration_seconds",
			Help:    "Duration of escalation runs",
			Buckets: prometheus.DefBuckets,
		}),
		AlertRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paywatch_alert_runs_total",
			Help: "Total number of completed escalation runs",
		}),
	}
}
