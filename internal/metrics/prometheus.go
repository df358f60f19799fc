package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// promMetrics is the Prometheus implementation of Metrics.
type promMetrics struct {
	txTotal         *prometheus.CounterVec
	txDuration      *prometheus.HistogramVec
	txDegraded      prometheus.Counter
	snapshotTotal   *prometheus.CounterVec
	snapshotLatency *prometheus.HistogramVec

	harnessOps      prometheus.Counter
	harnessConflict *prometheus.CounterVec
	harnessLost     prometheus.Gauge
	harnessObserved prometheus.Gauge
	harnessDuration prometheus.Gauge
}

// New registers the collectors with reg and returns a Metrics backed by them.
// A nil reg returns the no-op implementation.
func New(reg prometheus.Registerer) Metrics {
	if reg == nil {
		return noop{}
	}
	f := promauto.With(reg)

	return &promMetrics{
		txTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txguard_transactions_total",
				Help: "Transactions that reached a terminal state, by outcome",
			},
			[]string{"outcome"},
		),
		txDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "txguard_transaction_duration_seconds",
				Help: "Time from begin to terminal state",
				Buckets: []float64{
					0.001, // 1ms
					0.01,  // 10ms
					0.1,   // 100ms
					1,     // 1s
					10,    // 10s
				},
			},
			[]string{"outcome"},
		),
		txDegraded: f.NewCounter(prometheus.CounterOpts{
			Name: "txguard_transactions_degraded_total",
			Help: "Transactions begun without a valid snapshot",
		}),
		snapshotTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txguard_snapshot_operations_total",
				Help: "Snapshot primitive invocations by operation and status",
			},
			[]string{"op", "status"},
		),
		snapshotLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txguard_snapshot_duration_seconds",
				Help:    "Duration of snapshot primitive invocations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		harnessOps: f.NewCounter(prometheus.CounterOpts{
			Name: "txguard_harness_operations_total",
			Help: "Operations executed by harness runs",
		}),
		harnessConflict: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txguard_harness_conflicts_total",
				Help: "Conflicts counted by harness runs, by kind",
			},
			[]string{"kind"},
		),
		harnessLost: f.NewGauge(prometheus.GaugeOpts{
			Name: "txguard_harness_lost_updates",
			Help: "Committed appends missing from the target after the last run",
		}),
		harnessObserved: f.NewGauge(prometheus.GaugeOpts{
			Name: "txguard_harness_observed_writes",
			Help: "Writes seen by the advisory watcher during the last run",
		}),
		harnessDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "txguard_harness_duration_seconds",
			Help: "Wall time of the last harness run",
		}),
	}
}

func (m *promMetrics) TxBegan(degraded bool) {
	if degraded {
		m.txDegraded.Inc()
	}
}

func (m *promMetrics) TxFinished(outcome string, duration time.Duration) {
	m.txTotal.WithLabelValues(outcome).Inc()
	m.txDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *promMetrics) SnapshotOp(op string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.snapshotTotal.WithLabelValues(op, status).Inc()
	m.snapshotLatency.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *promMetrics) HarnessRun(run HarnessRun) {
	m.harnessOps.Add(float64(run.Operations))
	m.harnessConflict.WithLabelValues("total").Add(float64(run.Conflicts))
	m.harnessConflict.WithLabelValues("injected").Add(float64(run.Injected))
	m.harnessConflict.WithLabelValues("failure").Add(float64(run.Failures))
	m.harnessLost.Set(float64(run.LostUpdates))
	m.harnessObserved.Set(float64(run.ObservedWrites))
	m.harnessDuration.Set(run.Duration.Seconds())
}
