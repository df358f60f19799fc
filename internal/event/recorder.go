package event

import (
	"sync"

	"github.com/Iron-Ham/txguard/internal/logging"
)

// Recorder is the reporting sink every component is constructed with.
type Recorder interface {
	Record(Event)
}

// RecorderFunc adapts a plain function to Recorder.
type RecorderFunc func(Event)

// Record implements Recorder.
func (f RecorderFunc) Record(e Event) { f(e) }

// Discard returns a Recorder that drops every event.
func Discard() Recorder {
	return RecorderFunc(func(Event) {})
}

// OrDiscard returns r, or a discarding Recorder when r is nil.
func OrDiscard(r Recorder) Recorder {
	if r == nil {
		return Discard()
	}
	return r
}

// Collector keeps every recorded event in memory. It is safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Record implements Recorder.
func (c *Collector) Record(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// OfType returns the recorded events with the given type, in order.
func (c *Collector) OfType(eventType string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Event
	for _, e := range c.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many events of the given type were recorded.
func (c *Collector) Count(eventType string) int {
	return len(c.OfType(eventType))
}

// LogHandler returns a Handler that writes each event to l as one structured
// line. Failures are logged at ERROR, conflicts and rollbacks at WARN, the
// per-file noise at DEBUG and everything else at INFO.
func LogHandler(l *logging.Logger) Handler {
	return func(e Event) {
		switch ev := e.(type) {
		case TxBeganEvent:
			if ev.Degraded {
				l.Warn("transaction began without rollback point", "tx", ev.TxID, "snapshot", ev.Snapshot)
				return
			}
			l.Info("transaction began", "tx", ev.TxID, "snapshot", ev.Snapshot)
		case FileRegisteredEvent:
			l.Debug("file registered", "tx", ev.TxID, "path", ev.Path, "fingerprint", ev.Fingerprint)
		case FileWrittenEvent:
			l.Debug("file written", "tx", ev.TxID, "path", ev.Path, "bytes", ev.Bytes)
		case ConflictDetectedEvent:
			l.Warn("conflict detected",
				"tx", ev.TxID,
				"path", ev.Path,
				"baseline", ev.Baseline,
				"current", ev.Current,
				"reason", ev.Reason,
			)
		case TxCommittedEvent:
			l.Info("transaction committed", "tx", ev.TxID, "files", ev.Files)
		case TxRolledBackEvent:
			if ev.Error != "" {
				l.Error("rollback failed", "tx", ev.TxID, "snapshot", ev.Snapshot, "reason", ev.Reason, "error", ev.Error)
				return
			}
			l.Warn("transaction rolled back", "tx", ev.TxID, "snapshot", ev.Snapshot, "reason", ev.Reason)
		case TxFailureEvent:
			l.Error("transaction i/o failure", "tx", ev.TxID, "path", ev.Path, "error", ev.Error)
		case SnapshotCreatedEvent:
			l.Info("snapshot created", "backend", ev.Backend, "volume", ev.Volume, "snapshot", ev.Name)
		case SnapshotRestoredEvent:
			l.Info("snapshot restored", "backend", ev.Backend, "volume", ev.Volume, "snapshot", ev.Name)
		case SnapshotFailedEvent:
			l.Error("snapshot command failed",
				"op", ev.Op,
				"backend", ev.Backend,
				"volume", ev.Volume,
				"snapshot", ev.Name,
				"error", ev.Error,
				"output", ev.Output,
			)
		case WorkerDoneEvent:
			l.Info("worker finished", "worker", ev.Worker, "ops", ev.Ops, "conflicts", ev.Conflicts)
		case HarnessCompletedEvent:
			l.Info("validation run completed",
				"workers", ev.Workers,
				"operations", ev.Operations,
				"total_conflicts", ev.TotalConflicts,
				"duration_ms", ev.Duration.Milliseconds(),
			)
		case FileModifiedEvent:
			l.Debug("file modified", "path", ev.Path, "op", ev.Op)
		default:
			l.Info(e.EventType())
		}
	}
}
