// Package snapshot orchestrates an external snapshot-capable file system.
//
// A Controller takes uniquely named snapshots through a Primitive and can roll
// the volume back to the most recent one it took. Rollback is volume-wide: it
// undoes every change made on the volume since the snapshot, including changes
// by other processes and other transactions, not only the caller's writes.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/txguard/internal/event"
)

// Sentinel errors. Failures from the primitive are wrapped so that both the
// sentinel and the underlying *CommandError match with errors.Is / errors.As.
var (
	// ErrCreateFailed is returned when the snapshot command failed or could not be launched.
	ErrCreateFailed = errors.New("snapshot creation failed")

	// ErrRollbackFailed is returned when the restore failed or no valid rollback point exists.
	ErrRollbackFailed = errors.New("rollback failed")

	// ErrNoSnapshot is returned by Rollback when no snapshot was ever attempted.
	ErrNoSnapshot = errors.New("no snapshot available")
)

// NamePrefix starts every generated snapshot name.
const NamePrefix = "transaction_snapshot_"

var nameSeq atomic.Uint64

// NewName returns a snapshot name that is unique within the process, even for
// calls within the same millisecond.
func NewName(now time.Time) string {
	return fmt.Sprintf("%s%d_%d", NamePrefix, now.UnixMilli(), nameSeq.Add(1))
}

// Snapshot identifies a point-in-time capture of the whole volume.
type Snapshot struct {
	Name      string
	Volume    string
	CreatedAt time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeout bounds each primitive invocation. Zero waits for process exit.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller tracks at most one current snapshot; each CreateSnapshot replaces
// the reference to the previous one, which may still exist on the volume.
//
// A Controller is NOT safe for concurrent use. Every transaction owns its own.
type Controller struct {
	prim    Primitive
	rec     event.Recorder
	timeout time.Duration
	now     func() time.Time

	current   *Snapshot
	createErr error // failure of the attempt recorded in current
}

// NewController creates a Controller reporting to rec.
func NewController(p Primitive, rec event.Recorder, opts ...Option) *Controller {
	c := &Controller{
		prim: p,
		rec:  event.OrDiscard(rec),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSnapshot takes a new snapshot and makes it current. On failure the
// attempt still becomes current so a later Rollback reports that no valid
// rollback point exists; the returned error wraps ErrCreateFailed.
func (c *Controller) CreateSnapshot(ctx context.Context) (Snapshot, error) {
	now := c.now()
	snap := Snapshot{
		Name:      NewName(now),
		Volume:    c.prim.Volume(),
		CreatedAt: now,
	}
	c.current = &snap
	c.createErr = nil

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	out, err := c.prim.Create(ctx, snap.Name)
	if err != nil {
		c.createErr = err
		c.rec.Record(event.NewSnapshotFailedEvent("create", c.prim.Backend(), snap.Volume, snap.Name, err.Error(), trimOutput(out)))
		return snap, fmt.Errorf("%w: %s: %w", ErrCreateFailed, snap.Name, err)
	}

	c.rec.Record(event.NewSnapshotCreatedEvent(c.prim.Backend(), snap.Volume, snap.Name, trimOutput(out)))
	return snap, nil
}

// Rollback restores the volume to the current snapshot.
//
// Returns ErrNoSnapshot if CreateSnapshot was never called, and an error
// wrapping ErrRollbackFailed if the current snapshot's creation failed or the
// restore command failed.
func (c *Controller) Rollback(ctx context.Context) error {
	if c.current == nil {
		return ErrNoSnapshot
	}
	snap := *c.current

	if c.createErr != nil {
		err := fmt.Errorf("%w: snapshot %s was never created: %w", ErrRollbackFailed, snap.Name, c.createErr)
		c.rec.Record(event.NewSnapshotFailedEvent("rollback", c.prim.Backend(), snap.Volume, snap.Name, err.Error(), ""))
		return err
	}

	return c.restore(ctx, snap.Name)
}

// RollbackTo restores the volume to the named snapshot, which need not have
// been created by this Controller. The current snapshot is left unchanged.
func (c *Controller) RollbackTo(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty snapshot name", ErrRollbackFailed)
	}
	return c.restore(ctx, name)
}

func (c *Controller) restore(ctx context.Context, name string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	volume := c.prim.Volume()
	out, err := c.prim.Rollback(ctx, name)
	if err != nil {
		c.rec.Record(event.NewSnapshotFailedEvent("rollback", c.prim.Backend(), volume, name, err.Error(), trimOutput(out)))
		return fmt.Errorf("%w: %s: %w", ErrRollbackFailed, name, err)
	}

	c.rec.Record(event.NewSnapshotRestoredEvent(c.prim.Backend(), volume, name, trimOutput(out)))
	return nil
}

// Current returns the current snapshot, if any attempt was made.
func (c *Controller) Current() (Snapshot, bool) {
	if c.current == nil {
		return Snapshot{}, false
	}
	return *c.current, true
}

// Valid reports whether the current snapshot exists on the volume.
func (c *Controller) Valid() bool {
	return c.current != nil && c.createErr == nil
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func trimOutput(out []byte) string {
	return strings.TrimSpace(string(out))
}
