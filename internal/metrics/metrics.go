// Package metrics provides Prometheus metrics for transactions and harness runs.
//
// Metrics are optional. Components accept a Metrics value and fall back to a
// no-op implementation when given nil, so the coordinator and harness run the
// same way with or without collection enabled.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New(reg)
//	factory := txn.Factory{..., Metrics: m}
//	...
//	_ = metrics.WriteTextfile(reg, "/var/lib/node_exporter/txguard.prom")
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transaction outcomes used as the "outcome" label.
const (
	OutcomeCommitted       = "committed"
	OutcomeConflict        = "conflict"
	OutcomeDetectionFailed = "detection_failed"
	OutcomeRolledBack      = "rolled_back"
)

// Metrics records transaction and harness observations.
type Metrics interface {
	// TxBegan counts a begun transaction. degraded is true when its snapshot
	// could not be created.
	TxBegan(degraded bool)

	// TxFinished records a transaction reaching a terminal state.
	TxFinished(outcome string, duration time.Duration)

	// SnapshotOp records one primitive invocation ("create" or "rollback").
	SnapshotOp(op string, duration time.Duration, err error)

	// HarnessRun records the totals of a completed harness run.
	HarnessRun(run HarnessRun)
}

// HarnessRun is the summary passed to Metrics.HarnessRun.
type HarnessRun struct {
	Operations     int
	Conflicts      int
	Injected       int
	Failures       int
	LostUpdates    int
	ObservedWrites int
	Duration       time.Duration
}

// OrNoop returns m, or a no-op implementation if m is nil.
func OrNoop(m Metrics) Metrics {
	if m == nil {
		return noop{}
	}
	return m
}

// Noop returns a Metrics that discards everything.
func Noop() Metrics {
	return noop{}
}

type noop struct{}

func (noop) TxBegan(bool)                            {}
func (noop) TxFinished(string, time.Duration)        {}
func (noop) SnapshotOp(string, time.Duration, error) {}
func (noop) HarnessRun(HarnessRun)                   {}

// WriteTextfile writes every metric gathered from g to path in the Prometheus
// text exposition format, for pickup by a node exporter textfile collector.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	return prometheus.WriteToTextfile(path, g)
}
