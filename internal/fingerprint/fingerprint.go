// Package fingerprint captures content fingerprints of files: modification
// time, size and a 256-bit digest of the full contents. Conflict detection
// compares digests only; time and size are carried for diagnostics.
package fingerprint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/spf13/afero"
)

// ErrIO is returned when a file cannot be stat'ed or read.
var ErrIO = errors.New("fingerprint i/o failure")

// Fingerprint is an immutable summary of a file's state.
type Fingerprint struct {
	ModifiedAt time.Time
	Size       int64
	Digest     string // lowercase hex
}

// SameContent reports whether f and other were computed over identical bytes.
func (f Fingerprint) SameContent(other Fingerprint) bool {
	return f.Digest == other.Digest
}

// String renders the fingerprint for diagnostic output.
func (f Fingerprint) String() string {
	return fmt.Sprintf("modified=%s size=%d digest=%s",
		f.ModifiedAt.UTC().Format(time.RFC3339Nano), f.Size, f.Digest)
}

// Set maps a registered path to the fingerprint captured when it was
// registered. The last registration of a path wins.
type Set map[string]Fingerprint

// Paths returns the registered paths in sorted order.
func (s Set) Paths() []string {
	return slices.Sorted(maps.Keys(s))
}

// Clone returns an independent copy of s.
func (s Set) Clone() Set {
	return maps.Clone(s)
}

// Capturer computes fingerprints on a file system with a fixed digest algorithm.
// It holds no mutable state and may be shared between goroutines.
type Capturer struct {
	fs   afero.Fs
	algo Algorithm
}

// NewCapturer returns a Capturer for fs using algo. An empty algo selects SHA256.
func NewCapturer(fs afero.Fs, algo Algorithm) (*Capturer, error) {
	if algo == "" {
		algo = SHA256
	}
	if _, err := algo.newHash(); err != nil {
		return nil, err
	}
	return &Capturer{fs: fs, algo: algo}, nil
}

// Algorithm returns the digest algorithm in use.
func (c *Capturer) Algorithm() Algorithm {
	return c.algo
}

// Capture reads the metadata and full contents of path. Errors wrap ErrIO.
func (c *Capturer) Capture(path string) (Fingerprint, error) {
	info, err := c.fs.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}
	if info.IsDir() {
		return Fingerprint{}, fmt.Errorf("%w: %s is a directory", ErrIO, path)
	}

	f, err := c.fs.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}
	defer f.Close()

	h, _ := c.algo.newHash()
	n, err := io.Copy(h, f)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}

	return Fingerprint{
		ModifiedAt: info.ModTime(),
		Size:       n,
		Digest:     hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Bytes fingerprints an in-memory buffer with the Capturer's algorithm.
// ModifiedAt is left zero.
func (c *Capturer) Bytes(data []byte) Fingerprint {
	h, _ := c.algo.newHash()
	h.Write(data)
	return Fingerprint{Size: int64(len(data)), Digest: hex.EncodeToString(h.Sum(nil))}
}
