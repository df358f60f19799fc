package cmd

import (
	"errors"
	"fmt"

	"github.com/Iron-Ham/txguard/internal/config"
	"github.com/Iron-Ham/txguard/internal/event"
	"github.com/Iron-Ham/txguard/internal/fingerprint"
	"github.com/Iron-Ham/txguard/internal/logging"
	"github.com/Iron-Ham/txguard/internal/metrics"
	"github.com/Iron-Ham/txguard/internal/snapshot"
	"github.com/Iron-Ham/txguard/internal/txn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
)

// runtime holds the collaborators shared by every command that touches the
// volume: logger, event bus, metrics, file system and snapshot primitive.
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	bus      *event.Bus
	registry *prometheus.Registry
	metrics  metrics.Metrics
	fs       afero.Fs
	capturer *fingerprint.Capturer
	prim     snapshot.Primitive
}

// newRuntime loads and validates the configuration and wires the runtime.
func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	fs := afero.NewOsFs()
	capturer, err := fingerprint.NewCapturer(fs, fingerprint.Algorithm(cfg.Fingerprint.Algorithm))
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		bus:      event.NewBus(),
		metrics:  metrics.Noop(),
		fs:       fs,
		capturer: capturer,
		prim:     newPrimitive(cfg.Snapshot),
	}
	rt.bus.SubscribeAll(event.LogHandler(logger))

	if cfg.Metrics.Enabled {
		rt.registry = prometheus.NewRegistry()
		rt.metrics = metrics.New(rt.registry)
	}
	return rt, nil
}

func newPrimitive(sc config.SnapshotConfig) snapshot.Primitive {
	runner := snapshot.ExecRunner{}
	if sc.Backend == "command" {
		return snapshot.NewCommandPrimitive(runner, sc.Command, sc.Volume)
	}
	return snapshot.NewZFSPrimitive(runner, sc.Volume, snapshot.ZFSOptions{
		Sudo:              sc.Sudo,
		RecursiveRollback: sc.RecursiveRollback,
	})
}

// factory returns a transaction factory over the runtime's collaborators.
func (r *runtime) factory() txn.Factory {
	return txn.Factory{
		Primitive:       r.prim,
		FS:              r.fs,
		Capturer:        r.capturer,
		Recorder:        r.bus,
		Metrics:         r.metrics,
		SnapshotTimeout: r.cfg.Snapshot.Timeout,
	}
}

// controller returns a standalone snapshot controller reporting to the bus.
func (r *runtime) controller() *snapshot.Controller {
	return snapshot.NewController(r.prim, r.bus, snapshot.WithTimeout(r.cfg.Snapshot.Timeout))
}

// close writes the metrics textfile, if configured, and closes the log.
func (r *runtime) close() error {
	var errs []error
	if r.registry != nil && r.cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(r.registry, r.cfg.Metrics.Textfile); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if err := r.logger.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
