// Package txn brackets a unit of file mutation between a snapshot-backed Begin
// and a fingerprint-validated Commit.
//
// Concurrency control is optimistic: nothing is locked. Commit re-fingerprints
// every registered path and, if any changed since its baseline, rolls the
// volume back to the snapshot taken by Begin. Only the registering
// transaction's own baseline is protected; two writers of the same path can
// still lose each other's updates. Rollback is volume-wide and also undoes
// changes made by other transactions since the snapshot.
package txn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Iron-Ham/txguard/internal/conflict"
	"github.com/Iron-Ham/txguard/internal/event"
	"github.com/Iron-Ham/txguard/internal/fingerprint"
	"github.com/Iron-Ham/txguard/internal/metrics"
	"github.com/Iron-Ham/txguard/internal/snapshot"
	"github.com/spf13/afero"
)

// ErrInvalidState is returned when a lifecycle method is called out of order.
var ErrInvalidState = errors.New("invalid transaction state")

// State is a transaction lifecycle state.
type State int

const (
	Idle State = iota
	Open
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Open:
		return "open"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further lifecycle calls are allowed.
func (s State) Terminal() bool {
	return s == Committed || s == RolledBack
}

// CommitResult is the outcome of Commit. A conflict is a normal result, not
// an error.
type CommitResult struct {
	Committed bool
	Report    conflict.Report
	// RollbackErr is set when a conflict triggered a rollback that failed.
	// The transaction is RolledBack regardless.
	RollbackErr error
}

// Conflict reports whether the commit found a conflict and rolled back.
func (r CommitResult) Conflict() bool {
	return !r.Committed
}

// Coordinator drives a single transaction. It is NOT safe for concurrent use;
// build one per unit of work with Factory.New.
type Coordinator struct {
	id       string
	ctrl     *snapshot.Controller
	capturer *fingerprint.Capturer
	detector *conflict.Detector
	fs       afero.Fs
	rec      event.Recorder
	metrics  metrics.Metrics
	now      func() time.Time

	state    State
	files    fingerprint.Set
	snapErr  error
	snapName string
	beganAt  time.Time
}

// ID returns the transaction identifier used in events.
func (c *Coordinator) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Coordinator) State() State { return c.state }

// Degraded reports whether Begin failed to create a snapshot, leaving the
// transaction without a valid rollback point.
func (c *Coordinator) Degraded() bool { return c.snapErr != nil }

// SnapshotErr returns the snapshot creation failure from Begin, if any.
func (c *Coordinator) SnapshotErr() error { return c.snapErr }

// Snapshot returns the name of the snapshot taken by Begin.
func (c *Coordinator) Snapshot() string { return c.snapName }

// Registered returns a copy of the registered baselines.
func (c *Coordinator) Registered() fingerprint.Set { return c.files.Clone() }

// Begin takes a snapshot and opens the transaction. A snapshot failure does
// not fail Begin: it is reported, and the transaction opens in a degraded
// state where any later rollback fails with snapshot.ErrRollbackFailed.
func (c *Coordinator) Begin(ctx context.Context) error {
	if c.state != Idle {
		return fmt.Errorf("%w: begin called while %s", ErrInvalidState, c.state)
	}

	start := c.now()
	snap, err := c.ctrl.CreateSnapshot(ctx)
	c.metrics.SnapshotOp("create", c.now().Sub(start), err)

	c.snapName = snap.Name
	c.snapErr = err
	c.beganAt = start
	c.state = Open

	c.rec.Record(event.NewTxBeganEvent(c.id, snap.Name, err != nil))
	c.metrics.TxBegan(err != nil)
	return nil
}

// Register captures path's baseline fingerprint. Registering a path again
// replaces its baseline. Capture failures wrap fingerprint.ErrIO and leave
// the transaction open; the caller decides whether to roll back.
func (c *Coordinator) Register(path string) error {
	if c.state != Open {
		return fmt.Errorf("%w: register called while %s", ErrInvalidState, c.state)
	}

	fp, err := c.capturer.Capture(path)
	if err != nil {
		c.rec.Record(event.NewTxFailureEvent(c.id, path, err.Error()))
		return err
	}

	c.files[path] = fp
	c.rec.Record(event.NewFileRegisteredEvent(c.id, path, fp.String()))
	return nil
}

// Commit checks every registered path against its baseline. Without a
// conflict the transaction is Committed. Otherwise it is rolled back exactly
// once and the result reports the conflict; a failed rollback is carried in
// CommitResult.RollbackErr.
func (c *Coordinator) Commit(ctx context.Context) (CommitResult, error) {
	if c.state != Open {
		return CommitResult{}, fmt.Errorf("%w: commit called while %s", ErrInvalidState, c.state)
	}

	report := c.detector.Detect(c.files)
	for _, d := range report.Divergences {
		current := ""
		if d.Current != nil {
			current = d.Current.String()
		}
		c.rec.Record(event.NewConflictDetectedEvent(c.id, d.Path, d.Baseline.String(), current, d.Reason()))
	}

	if !report.HasConflict() {
		c.state = Committed
		c.rec.Record(event.NewTxCommittedEvent(c.id, report.Checked))
		c.metrics.TxFinished(metrics.OutcomeCommitted, c.now().Sub(c.beganAt))
		return CommitResult{Committed: true, Report: report}, nil
	}

	outcome := metrics.OutcomeConflict
	if report.Outcome == conflict.DetectionFailed {
		outcome = metrics.OutcomeDetectionFailed
	}
	rbErr := c.rollback(ctx, report.Outcome.String(), outcome)
	return CommitResult{Report: report, RollbackErr: rbErr}, nil
}

// Check compares every registered path against its baseline without ending
// the transaction or recording conflict events. Use it before writing back
// changes staged elsewhere; Commit repeats the comparison.
func (c *Coordinator) Check() (conflict.Report, error) {
	if c.state != Open {
		return conflict.Report{}, fmt.Errorf("%w: check called while %s", ErrInvalidState, c.state)
	}
	return c.detector.Detect(c.files), nil
}

// Rollback restores the snapshot taken by Begin and ends the transaction.
// Use it when a file operation fails mid-transaction.
func (c *Coordinator) Rollback(ctx context.Context) error {
	if c.state != Open {
		return fmt.Errorf("%w: rollback called while %s", ErrInvalidState, c.state)
	}
	return c.rollback(ctx, "explicit", metrics.OutcomeRolledBack)
}

func (c *Coordinator) rollback(ctx context.Context, reason, outcome string) error {
	start := c.now()
	err := c.ctrl.Rollback(ctx)
	c.metrics.SnapshotOp("rollback", c.now().Sub(start), err)

	c.state = RolledBack

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	c.rec.Record(event.NewTxRolledBackEvent(c.id, c.snapName, reason, errMsg))
	c.metrics.TxFinished(outcome, c.now().Sub(c.beganAt))
	return err
}
