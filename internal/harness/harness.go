// Package harness stress-tests transaction coordination by running many
// overlapping transactions against one shared file.
//
// Each worker repeatedly begins a fresh transaction, registers the target,
// appends a uniquely tagged line and commits. Workers are not serialized, so
// a worker can overwrite another's append without either noticing. The
// result reports those lost updates next to the conflict count instead of
// preventing them.
package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/txguard/internal/conflict"
	"github.com/Iron-Ham/txguard/internal/event"
	"github.com/Iron-Ham/txguard/internal/metrics"
	"github.com/Iron-Ham/txguard/internal/txn"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
)

// TagPrefix starts every line a worker appends.
const TagPrefix = "Worker "

// injectedPrefix marks lines written behind a transaction's back to force a conflict.
const injectedPrefix = "# injected "

// Config describes one harness run.
type Config struct {
	Workers      int
	OpsPerWorker int
	TargetPath   string

	// InjectedConflictRate is the probability in [0,1] that an operation
	// mutates the target outside its transaction before committing.
	InjectedConflictRate float64
	// Seed makes injection decisions reproducible.
	Seed uint64

	// ResetTarget truncates the target before the run. A missing target is
	// always created empty.
	ResetTarget bool
	// Watch counts writes on the target with an fsnotify watcher. Only
	// meaningful when Factory.FS is the host file system.
	Watch bool

	// Factory builds each operation's coordinator.
	Factory txn.Factory

	// Recorder receives harness and watcher events. Defaults to discard.
	Recorder event.Recorder
	Metrics  metrics.Metrics
}

// Validate checks the run parameters.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.OpsPerWorker < 1 {
		errs = append(errs, fmt.Errorf("ops per worker must be at least 1, got %d", c.OpsPerWorker))
	}
	if c.TargetPath == "" {
		errs = append(errs, errors.New("target path is required"))
	}
	if c.InjectedConflictRate < 0 || c.InjectedConflictRate > 1 {
		errs = append(errs, fmt.Errorf("injected conflict rate must be within [0,1], got %g", c.InjectedConflictRate))
	}
	if c.Factory.Primitive == nil {
		errs = append(errs, errors.New("snapshot primitive is required"))
	}
	return errors.Join(errs...)
}

// WorkerResult is one worker's tally.
type WorkerResult struct {
	Worker    int
	Ops       int
	Committed int
	// Conflicts counts commit-time conflicts plus write-path failures.
	Conflicts int
	Injected  int
	Failures  int

	committedTags []string
}

// Result aggregates a completed run. It is only produced after every worker
// has finished.
type Result struct {
	Workers        []WorkerResult // ordered by worker index
	Operations     int
	TotalConflicts int
	Committed      int
	Injected       int
	Failures       int

	// FinalLines is the number of tagged lines left in the target.
	FinalLines int
	// LostUpdates counts committed appends missing from the target.
	LostUpdates int
	// ObservedWrites is the watcher's count, zero unless Config.Watch is set.
	ObservedWrites int

	Duration time.Duration
}

// Tag returns the line a worker appends for one operation. It embeds the
// worker and operation index so a surviving line can be attributed.
func Tag(worker, op int) string {
	return fmt.Sprintf("%s%d Op %d: %s", TagPrefix, worker, op, uuid.NewString())
}

// Run executes the configured workload and blocks until every worker has
// finished. The context is passed to snapshot invocations; the run itself
// is not cancellable midway.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if cfg.Factory.FS == nil {
		cfg.Factory.FS = afero.NewOsFs()
	}
	fs := cfg.Factory.FS
	rec := event.OrDiscard(cfg.Recorder)

	if err := prepareTarget(fs, cfg.TargetPath, cfg.ResetTarget); err != nil {
		return Result{}, err
	}

	var watcher *conflict.Watcher
	if cfg.Watch {
		w, err := conflict.NewWatcher(rec)
		if err != nil {
			return Result{}, fmt.Errorf("failed to start watcher: %w", err)
		}
		if err := w.Add(cfg.TargetPath); err != nil {
			w.Stop()
			return Result{}, fmt.Errorf("failed to watch target: %w", err)
		}
		w.Start()
		watcher = w
	}

	start := time.Now()

	p := pool.NewWithResults[WorkerResult]().WithMaxGoroutines(cfg.Workers)
	for w := range cfg.Workers {
		p.Go(func() WorkerResult {
			wr := runWorker(ctx, cfg, w)
			rec.Record(event.NewWorkerDoneEvent(w, wr.Ops, wr.Conflicts))
			return wr
		})
	}
	workers := p.Wait()
	slices.SortFunc(workers, func(a, b WorkerResult) int { return a.Worker - b.Worker })

	res := Result{Workers: workers, Duration: time.Since(start)}
	var committedTags []string
	for _, wr := range workers {
		res.Operations += wr.Ops
		res.TotalConflicts += wr.Conflicts
		res.Committed += wr.Committed
		res.Injected += wr.Injected
		res.Failures += wr.Failures
		committedTags = append(committedTags, wr.committedTags...)
	}

	if watcher != nil {
		watcher.Stop()
		res.ObservedWrites = watcher.Observed(cfg.TargetPath)
	}

	final, err := afero.ReadFile(fs, cfg.TargetPath)
	if err != nil {
		return res, fmt.Errorf("failed to read target after run: %w", err)
	}
	res.FinalLines, res.LostUpdates = tally(final, committedTags)

	rec.Record(event.NewHarnessCompletedEvent(len(workers), res.Operations, res.TotalConflicts, res.Duration))
	metrics.OrNoop(cfg.Metrics).HarnessRun(metrics.HarnessRun{
		Operations:     res.Operations,
		Conflicts:      res.TotalConflicts,
		Injected:       res.Injected,
		Failures:       res.Failures,
		LostUpdates:    res.LostUpdates,
		ObservedWrites: res.ObservedWrites,
		Duration:       res.Duration,
	})
	return res, nil
}

func prepareTarget(fs afero.Fs, path string, reset bool) error {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return fmt.Errorf("failed to check target %s: %w", path, err)
	}
	if exists && !reset {
		return nil
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for target %s: %w", path, err)
	}
	if err := afero.WriteFile(fs, path, nil, 0644); err != nil {
		return fmt.Errorf("failed to prepare target %s: %w", path, err)
	}
	return nil
}

func runWorker(ctx context.Context, cfg Config, worker int) WorkerResult {
	wr := WorkerResult{Worker: worker}
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(worker)))

	for op := range cfg.OpsPerWorker {
		inject := cfg.InjectedConflictRate > 0 && rng.Float64() < cfg.InjectedConflictRate
		tag := Tag(worker, op)

		wr.Ops++
		if inject {
			wr.Injected++
		}

		switch runOp(ctx, cfg, fmt.Sprintf("w%d-op%d", worker, op), tag, inject) {
		case opCommitted:
			wr.Committed++
			wr.committedTags = append(wr.committedTags, tag)
		case opConflict:
			wr.Conflicts++
		case opFailed:
			wr.Conflicts++
			wr.Failures++
		}
	}
	return wr
}

type opOutcome int

const (
	opCommitted opOutcome = iota
	opConflict
	opFailed
)

// runOp performs one begin, register, read, append, write, commit cycle on
// a fresh coordinator. A failure anywhere on the write path rolls back.
func runOp(ctx context.Context, cfg Config, id, tag string, inject bool) opOutcome {
	c := cfg.Factory.New(id)
	target := cfg.TargetPath

	if err := c.Begin(ctx); err != nil {
		return opFailed
	}

	fail := func() opOutcome {
		_ = c.Rollback(ctx)
		return opFailed
	}

	if err := c.Register(target); err != nil {
		return fail()
	}
	data, err := c.ReadFile(target)
	if err != nil {
		return fail()
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	if err := c.Write(target, append(data, tag+"\n"...)); err != nil {
		return fail()
	}
	if inject {
		if err := appendLine(cfg.Factory.FS, target, injectedPrefix+tag); err != nil {
			return fail()
		}
	}

	res, err := c.Commit(ctx)
	if err != nil {
		return opFailed
	}
	if res.Conflict() {
		return opConflict
	}
	return opCommitted
}

func appendLine(fs afero.Fs, path, line string) error {
	f, err := fs.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// tally counts tagged lines in content and how many committed tags are absent.
// Lines of any length are accepted.
func tally(content []byte, committed []string) (lines, lost int) {
	present := make(map[string]bool)
	for _, raw := range bytes.Split(content, []byte("\n")) {
		line := string(bytes.TrimSuffix(raw, []byte("\r")))
		if strings.HasPrefix(line, TagPrefix) {
			lines++
			present[line] = true
		}
	}
	for _, tag := range committed {
		if !present[tag] {
			lost++
		}
	}
	return lines, lost
}
