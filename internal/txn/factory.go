package txn

import (
	"time"

	"github.com/Iron-Ham/txguard/internal/conflict"
	"github.com/Iron-Ham/txguard/internal/event"
	"github.com/Iron-Ham/txguard/internal/fingerprint"
	"github.com/Iron-Ham/txguard/internal/metrics"
	"github.com/Iron-Ham/txguard/internal/snapshot"
	"github.com/spf13/afero"
)

// Factory builds fresh, independent Coordinators. The collaborators it holds
// are shared between the coordinators it builds and must be safe for
// concurrent use; per-transaction state never is.
type Factory struct {
	// Primitive performs snapshot create and rollback. Required.
	Primitive snapshot.Primitive

	// FS is the file system for registration, writes and detection.
	// Defaults to the host file system.
	FS afero.Fs

	// Capturer fingerprints files. Defaults to SHA-256 over FS.
	Capturer *fingerprint.Capturer

	// Recorder receives every lifecycle event. Defaults to discard.
	Recorder event.Recorder

	// Metrics defaults to no-op.
	Metrics metrics.Metrics

	// SnapshotTimeout bounds each primitive invocation. Zero waits forever.
	SnapshotTimeout time.Duration
}

// New returns an Idle Coordinator identified by id.
func (f Factory) New(id string) *Coordinator {
	fs := f.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	capturer := f.Capturer
	if capturer == nil {
		// SHA256 is always valid.
		capturer, _ = fingerprint.NewCapturer(fs, fingerprint.SHA256)
	}
	rec := event.OrDiscard(f.Recorder)

	return &Coordinator{
		id:       id,
		ctrl:     snapshot.NewController(f.Primitive, rec, snapshot.WithTimeout(f.SnapshotTimeout)),
		capturer: capturer,
		detector: conflict.NewDetector(capturer),
		fs:       fs,
		rec:      rec,
		metrics:  metrics.OrNoop(f.Metrics),
		now:      time.Now,
		state:    Idle,
		files:    fingerprint.Set{},
	}
}
