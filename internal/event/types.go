// Package event defines the events reported by transactions, snapshots and
// validation runs, plus the sink components report them through.
package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "tx.committed", "snapshot.created")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event type identifiers.
const (
	TypeTxBegan          = "tx.began"
	TypeFileRegistered   = "tx.file_registered"
	TypeFileWritten      = "tx.file_written"
	TypeConflictDetected = "tx.conflict_detected"
	TypeTxCommitted      = "tx.committed"
	TypeTxRolledBack     = "tx.rolled_back"
	TypeSnapshotCreated  = "snapshot.created"
	TypeSnapshotFailed   = "snapshot.failed"
	TypeSnapshotRestored = "snapshot.restored"
	TypeWorkerDone       = "harness.worker_done"
	TypeHarnessCompleted = "harness.completed"
	TypeFileModified     = "file.modified"
	TypeTxFailure        = "tx.failure"
)

// -----------------------------------------------------------------------------
// Transaction Lifecycle Events
// -----------------------------------------------------------------------------

// TxBeganEvent is emitted when a transaction leaves Idle.
type TxBeganEvent struct {
	baseEvent
	TxID     string // Transaction identifier
	Snapshot string // Snapshot name taken for the transaction (may be empty)
	Degraded bool   // True when the snapshot could not be created
}

// NewTxBeganEvent creates a TxBeganEvent.
func NewTxBeganEvent(txID, snapshot string, degraded bool) TxBeganEvent {
	return TxBeganEvent{
		baseEvent: newBaseEvent(TypeTxBegan),
		TxID:      txID,
		Snapshot:  snapshot,
		Degraded:  degraded,
	}
}

// FileRegisteredEvent is emitted when a path's baseline fingerprint is captured.
// Fingerprint holds the modification time, size and digest.
type FileRegisteredEvent struct {
	baseEvent
	TxID        string
	Path        string
	Fingerprint string
}

// NewFileRegisteredEvent creates a FileRegisteredEvent.
func NewFileRegisteredEvent(txID, path, fingerprint string) FileRegisteredEvent {
	return FileRegisteredEvent{
		baseEvent:   newBaseEvent(TypeFileRegistered),
		TxID:        txID,
		Path:        path,
		Fingerprint: fingerprint,
	}
}

// FileWrittenEvent is emitted after a transaction writes a file itself.
type FileWrittenEvent struct {
	baseEvent
	TxID  string
	Path  string
	Bytes int
}

// NewFileWrittenEvent creates a FileWrittenEvent.
func NewFileWrittenEvent(txID, path string, n int) FileWrittenEvent {
	return FileWrittenEvent{
		baseEvent: newBaseEvent(TypeFileWritten),
		TxID:      txID,
		Path:      path,
		Bytes:     n,
	}
}

// ConflictDetectedEvent is emitted once per divergent path during commit.
// Baseline and Current are full fingerprints. Current is empty when the path
// could no longer be fingerprinted; Reason then holds the failure.
type ConflictDetectedEvent struct {
	baseEvent
	TxID     string
	Path     string
	Baseline string
	Current  string
	Reason   string
}

// NewConflictDetectedEvent creates a ConflictDetectedEvent.
func NewConflictDetectedEvent(txID, path, baseline, current, reason string) ConflictDetectedEvent {
	return ConflictDetectedEvent{
		baseEvent: newBaseEvent(TypeConflictDetected),
		TxID:      txID,
		Path:      path,
		Baseline:  baseline,
		Current:   current,
		Reason:    reason,
	}
}

// TxCommittedEvent is emitted when a commit finds no conflict.
type TxCommittedEvent struct {
	baseEvent
	TxID  string
	Files int // Number of registered paths that were validated
}

// NewTxCommittedEvent creates a TxCommittedEvent.
func NewTxCommittedEvent(txID string, files int) TxCommittedEvent {
	return TxCommittedEvent{
		baseEvent: newBaseEvent(TypeTxCommitted),
		TxID:      txID,
		Files:     files,
	}
}

// TxRolledBackEvent is emitted when a transaction reaches RolledBack.
// Error is non-empty when the restore itself failed.
type TxRolledBackEvent struct {
	baseEvent
	TxID     string
	Snapshot string
	Reason   string // "conflict", "detection_failed" or "explicit"
	Error    string
}

// NewTxRolledBackEvent creates a TxRolledBackEvent.
func NewTxRolledBackEvent(txID, snapshot, reason, errMsg string) TxRolledBackEvent {
	return TxRolledBackEvent{
		baseEvent: newBaseEvent(TypeTxRolledBack),
		TxID:      txID,
		Snapshot:  snapshot,
		Reason:    reason,
		Error:     errMsg,
	}
}

// TxFailureEvent reports an I/O failure inside a transaction's open window.
type TxFailureEvent struct {
	baseEvent
	TxID  string
	Path  string
	Error string
}

// NewTxFailureEvent creates a TxFailureEvent.
func NewTxFailureEvent(txID, path, errMsg string) TxFailureEvent {
	return TxFailureEvent{
		baseEvent: newBaseEvent(TypeTxFailure),
		TxID:      txID,
		Path:      path,
		Error:     errMsg,
	}
}

// -----------------------------------------------------------------------------
// Snapshot Events
// -----------------------------------------------------------------------------

// SnapshotCreatedEvent is emitted after the external primitive created a snapshot.
type SnapshotCreatedEvent struct {
	baseEvent
	Backend string
	Volume  string
	Name    string
	Output  string
}

// NewSnapshotCreatedEvent creates a SnapshotCreatedEvent.
func NewSnapshotCreatedEvent(backend, volume, name, output string) SnapshotCreatedEvent {
	return SnapshotCreatedEvent{
		baseEvent: newBaseEvent(TypeSnapshotCreated),
		Backend:   backend,
		Volume:    volume,
		Name:      name,
		Output:    output,
	}
}

// SnapshotRestoredEvent is emitted after the volume was rolled back.
type SnapshotRestoredEvent struct {
	baseEvent
	Backend string
	Volume  string
	Name    string
	Output  string
}

// NewSnapshotRestoredEvent creates a SnapshotRestoredEvent.
func NewSnapshotRestoredEvent(backend, volume, name, output string) SnapshotRestoredEvent {
	return SnapshotRestoredEvent{
		baseEvent: newBaseEvent(TypeSnapshotRestored),
		Backend:   backend,
		Volume:    volume,
		Name:      name,
		Output:    output,
	}
}

// SnapshotFailedEvent is emitted when a create or rollback invocation fails.
type SnapshotFailedEvent struct {
	baseEvent
	Op      string // "create" or "rollback"
	Backend string
	Volume  string
	Name    string
	Error   string
	Output  string
}

// NewSnapshotFailedEvent creates a SnapshotFailedEvent.
func NewSnapshotFailedEvent(op, backend, volume, name, errMsg, output string) SnapshotFailedEvent {
	return SnapshotFailedEvent{
		baseEvent: newBaseEvent(TypeSnapshotFailed),
		Op:        op,
		Backend:   backend,
		Volume:    volume,
		Name:      name,
		Error:     errMsg,
		Output:    output,
	}
}

// -----------------------------------------------------------------------------
// Harness Events
// -----------------------------------------------------------------------------

// WorkerDoneEvent is emitted when a validation worker finished all its cycles.
type WorkerDoneEvent struct {
	baseEvent
	Worker    int
	Ops       int
	Conflicts int
}

// NewWorkerDoneEvent creates a WorkerDoneEvent.
func NewWorkerDoneEvent(worker, ops, conflicts int) WorkerDoneEvent {
	return WorkerDoneEvent{
		baseEvent: newBaseEvent(TypeWorkerDone),
		Worker:    worker,
		Ops:       ops,
		Conflicts: conflicts,
	}
}

// HarnessCompletedEvent is emitted once every worker has been joined.
type HarnessCompletedEvent struct {
	baseEvent
	Workers        int
	Operations     int
	TotalConflicts int
	Duration       time.Duration
}

// NewHarnessCompletedEvent creates a HarnessCompletedEvent.
func NewHarnessCompletedEvent(workers, ops, conflicts int, d time.Duration) HarnessCompletedEvent {
	return HarnessCompletedEvent{
		baseEvent:      newBaseEvent(TypeHarnessCompleted),
		Workers:        workers,
		Operations:     ops,
		TotalConflicts: conflicts,
		Duration:       d,
	}
}

// -----------------------------------------------------------------------------
// Watcher Events
// -----------------------------------------------------------------------------

// FileModifiedEvent is emitted by the advisory watcher for a write it observed.
type FileModifiedEvent struct {
	baseEvent
	Path string
	Op   string
}

// NewFileModifiedEvent creates a FileModifiedEvent.
func NewFileModifiedEvent(path, op string) FileModifiedEvent {
	return FileModifiedEvent{
		baseEvent: newBaseEvent(TypeFileModified),
		Path:      path,
		Op:        op,
	}
}
