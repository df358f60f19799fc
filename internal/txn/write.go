package txn

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/txguard/internal/event"
	"github.com/Iron-Ham/txguard/internal/fingerprint"
	"github.com/spf13/afero"
)

// Write replaces path's contents atomically through a temp file and rename.
// If path is registered and still matches its baseline, the baseline is
// re-captured afterwards, so the transaction's own writes are not reported as
// conflicts at commit. If path already diverged from its baseline the old
// baseline is kept and Commit reports the conflict.
//
// The check and the write are not atomic. A change that lands between them is
// silently replaced.
func (c *Coordinator) Write(path string, data []byte) error {
	if c.state != Open {
		return fmt.Errorf("%w: write called while %s", ErrInvalidState, c.state)
	}

	base, registered := c.files[path]
	rebaseline := registered
	if registered {
		current, err := c.capturer.Capture(path)
		rebaseline = err == nil && current.SameContent(base)
	}

	if err := writeAtomic(c.fs, path, data); err != nil {
		c.rec.Record(event.NewTxFailureEvent(c.id, path, err.Error()))
		return err
	}

	if rebaseline {
		fp, err := c.capturer.Capture(path)
		if err != nil {
			c.rec.Record(event.NewTxFailureEvent(c.id, path, err.Error()))
			return err
		}
		c.files[path] = fp
	}

	c.rec.Record(event.NewFileWrittenEvent(c.id, path, len(data)))
	return nil
}

// ReadFile returns path's current contents through the transaction's file
// system. It is not tracked.
func (c *Coordinator) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", fingerprint.ErrIO, path, err)
	}
	return data, nil
}

func writeAtomic(fs afero.Fs, path string, data []byte) error {
	perm := os.FileMode(0644)
	if info, err := fs.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := afero.TempFile(fs, filepath.Dir(path), "."+filepath.Base(path)+".txguard-*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %w", fingerprint.ErrIO, path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %w", fingerprint.ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %w", fingerprint.ErrIO, path, err)
	}
	if err := fs.Chmod(tmpName, perm); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %w", fingerprint.ErrIO, path, err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("%w: rename into %s: %w", fingerprint.ErrIO, path, err)
	}
	return nil
}
