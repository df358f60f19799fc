package conflict

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/txguard/internal/event"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events many writers produce for a
// single save.
const DefaultDebounce = 50 * time.Millisecond

// Watcher counts writes it observes on a set of files. It is advisory only:
// bursts within the debounce window collapse into one observation, and no
// transaction decision depends on it.
type Watcher struct {
	watcher  *fsnotify.Watcher
	rec      event.Recorder
	debounce time.Duration

	// Cleaned absolute path -> number of observed writes
	targets map[string]int
	// Parent directories already added to fsnotify
	dirs map[string]bool

	mu       sync.RWMutex
	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher creates a Watcher reporting file.modified events to rec.
func NewWatcher(rec event.Recorder) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:  watcher,
		rec:      event.OrDiscard(rec),
		debounce: DefaultDebounce,
		targets:  make(map[string]int),
		dirs:     make(map[string]bool),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Add starts watching path. The parent directory is watched rather than the
// file itself so that replacements by rename are still seen.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("watch directory does not exist: %s", dir)
		}
		return fmt.Errorf("failed to access watch directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path is not a directory: %s", dir)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.dirs[dir] {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	if _, ok := w.targets[abs]; !ok {
		w.targets[abs] = 0
	}
	return nil
}

// Start begins processing file system events.
func (w *Watcher) Start() {
	if w.started.CompareAndSwap(false, true) {
		go w.watchLoop()
	}
}

// Stop ends event processing and releases the underlying watcher. Events
// arriving within one debounce window are still counted, and Stop returns
// only once they have been. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.started.Load() {
			<-w.done
		}
		_ = w.watcher.Close()
	})
}

// Observed returns the number of writes seen on path.
func (w *Watcher) Observed(path string) int {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.targets[abs]
}

// Total returns the number of writes seen across all watched paths.
func (w *Watcher) Total() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	total := 0
	for _, n := range w.targets {
		total += n
	}
	return total
}

func (w *Watcher) watchLoop() {
	defer close(w.done)

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C

	pending := make(map[string]fsnotify.Op)

	flush := func() {
		for path, op := range pending {
			w.handle(path, op)
		}
		clear(pending)
	}

	for {
		select {
		case <-w.stopCh:
			w.drain(pending)
			flush()
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				flush()
				return
			}
			if w.queue(pending, ev) {
				debounceTimer.Reset(w.debounce)
			}

		case <-debounceTimer.C:
			flush()

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Overflow and similar errors only reduce the advisory count.
		}
	}
}

// queue adds ev to pending if it is a write to a watched file.
func (w *Watcher) queue(pending map[string]fsnotify.Op, ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	if !w.isTarget(ev.Name) {
		return false
	}
	pending[filepath.Clean(ev.Name)] |= ev.Op
	return true
}

// drain collects events still in flight for one debounce window.
func (w *Watcher) drain(pending map[string]fsnotify.Op) {
	grace := time.NewTimer(w.debounce)
	defer grace.Stop()

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.queue(pending, ev)
		case <-grace.C:
			return
		}
	}
}

func (w *Watcher) isTarget(name string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.targets[filepath.Clean(name)]
	return ok
}

func (w *Watcher) handle(path string, op fsnotify.Op) {
	w.mu.Lock()
	w.targets[path]++
	w.mu.Unlock()

	w.rec.Record(event.NewFileModifiedEvent(path, op.String()))
}
