// Package conflict decides whether registered files changed since their
// baseline fingerprints were taken.
package conflict

import (
	"fmt"

	"github.com/Iron-Ham/txguard/internal/fingerprint"
)

// Outcome is the tagged result of a detection pass.
type Outcome int

const (
	// NoConflict means every registered path still has its baseline digest.
	NoConflict Outcome = iota
	// Conflict means at least one path's digest differs from its baseline.
	Conflict
	// DetectionFailed means at least one path could not be re-fingerprinted.
	// Callers treat it exactly like Conflict.
	DetectionFailed
)

func (o Outcome) String() string {
	switch o {
	case NoConflict:
		return "no_conflict"
	case Conflict:
		return "conflict"
	case DetectionFailed:
		return "detection_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// IsConflict reports whether the outcome requires rollback.
func (o Outcome) IsConflict() bool {
	return o != NoConflict
}

// Divergence describes one registered path that failed the check.
type Divergence struct {
	Path     string
	Baseline fingerprint.Fingerprint
	Current  *fingerprint.Fingerprint // nil when Err is set
	Err      error
}

// Reason is a short human-readable cause.
func (d Divergence) Reason() string {
	if d.Err != nil {
		return "unreadable: " + d.Err.Error()
	}
	return "content changed"
}

// Report is the result of Detect.
type Report struct {
	Outcome     Outcome
	Divergences []Divergence // in path order
	Checked     int
}

// HasConflict reports whether the report requires rollback.
func (r Report) HasConflict() bool {
	return r.Outcome.IsConflict()
}

// Source captures current fingerprints. *fingerprint.Capturer satisfies it.
type Source interface {
	Capture(path string) (fingerprint.Fingerprint, error)
}

// Detector compares a baseline set against the file system. It keeps no state
// between calls and is safe for concurrent use if its Source is.
type Detector struct {
	source Source
}

// NewDetector creates a Detector reading current state from source.
func NewDetector(source Source) *Detector {
	return &Detector{source: source}
}

// Detect re-captures every path in baseline and compares digests only.
// Modification time and size are ignored: a touched but identical file is
// not a conflict. Every path is checked so the report lists all divergences.
// An unreadable path yields DetectionFailed, which takes precedence over
// Conflict in the outcome.
func (d *Detector) Detect(baseline fingerprint.Set) Report {
	report := Report{Outcome: NoConflict}

	for _, path := range baseline.Paths() {
		base := baseline[path]
		report.Checked++

		current, err := d.source.Capture(path)
		if err != nil {
			report.Divergences = append(report.Divergences, Divergence{Path: path, Baseline: base, Err: err})
			report.Outcome = DetectionFailed
			continue
		}

		if !current.SameContent(base) {
			report.Divergences = append(report.Divergences, Divergence{Path: path, Baseline: base, Current: &current})
			if report.Outcome == NoConflict {
				report.Outcome = Conflict
			}
		}
	}

	return report
}

// HasConflict is shorthand for Detect(baseline).HasConflict().
func (d *Detector) HasConflict(baseline fingerprint.Set) bool {
	return d.Detect(baseline).HasConflict()
}
