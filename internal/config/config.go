package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete txguard configuration
type Config struct {
	Snapshot    SnapshotConfig    `mapstructure:"snapshot" yaml:"snapshot"`
	Fingerprint FingerprintConfig `mapstructure:"fingerprint" yaml:"fingerprint"`
	Harness     HarnessConfig     `mapstructure:"harness" yaml:"harness"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// SnapshotConfig selects and configures the snapshot primitive
type SnapshotConfig struct {
	// Backend is the primitive implementation.
	// Options: "command", "zfs"
	Backend string `mapstructure:"backend" yaml:"backend" validate:"required,oneof=command zfs"`
	// Volume is the managed volume; for zfs this is the dataset (pool/fs)
	Volume string `mapstructure:"volume" yaml:"volume"`
	// Command is the snapshot tool binary for the command backend, invoked as
	// "<command> create|rollback <volume> <name>"
	Command string `mapstructure:"command" yaml:"command"`
	// Sudo prefixes zfs invocations with sudo
	Sudo bool `mapstructure:"sudo" yaml:"sudo"`
	// RecursiveRollback passes -r to zfs rollback
	RecursiveRollback bool `mapstructure:"recursive_rollback" yaml:"recursive_rollback"`
	// Timeout bounds each snapshot invocation (0 = wait until the process exits)
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

// FingerprintConfig controls content fingerprinting
type FingerprintConfig struct {
	// Algorithm is the 256-bit digest.
	// Options: "sha256", "sha3-256", "blake2b-256"
	Algorithm string `mapstructure:"algorithm" yaml:"algorithm" validate:"required,oneof=sha256 sha3-256 blake2b-256"`
}

// HarnessConfig controls the concurrent validation harness
type HarnessConfig struct {
	// Workers is the number of concurrent workers
	Workers int `mapstructure:"workers" yaml:"workers" validate:"gte=1,lte=1024"`
	// OpsPerWorker is the number of sequential transactions per worker
	OpsPerWorker int `mapstructure:"ops_per_worker" yaml:"ops_per_worker" validate:"gte=1"`
	// TargetPath is the shared file every worker appends to
	TargetPath string `mapstructure:"target_path" yaml:"target_path" validate:"required"`
	// InjectedConflictRate is the probability of forcing a conflict per operation
	InjectedConflictRate float64 `mapstructure:"injected_conflict_rate" yaml:"injected_conflict_rate" validate:"gte=0,lte=1"`
	// Seed makes conflict injection reproducible
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
	// Watch counts observed writes on the target with fsnotify
	Watch bool `mapstructure:"watch" yaml:"watch"`
	// ResetTarget truncates the target before each run
	ResetTarget bool `mapstructure:"reset_target" yaml:"reset_target"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level to record
	// Options: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	// Dir is the directory for txguard.log (empty = log to stderr)
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb" validate:"gte=1,lte=100"`
	// MaxBackups is the number of rotated backup files to keep
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups" validate:"gte=0,lte=10"`
	// Compress gzips rotated backups
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// MetricsConfig controls Prometheus metrics collection
type MetricsConfig struct {
	// Enabled turns on collection
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Textfile is written in the Prometheus text format after each command
	// (empty = not written)
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Snapshot: SnapshotConfig{
			Backend:           "zfs",
			Volume:            "os_trans_pool/os_trans_fs",
			Command:           "",
			Sudo:              true,
			RecursiveRollback: false,
			Timeout:           0, // Wait for the process to exit
		},
		Fingerprint: FingerprintConfig{
			Algorithm: "sha256",
		},
		Harness: HarnessConfig{
			Workers:              10,
			OpsPerWorker:         50,
			TargetPath:           "shared/validation.txt",
			InjectedConflictRate: 0,
			Seed:                 1,
			Watch:                false,
			ResetTarget:          true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Textfile: "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Snapshot defaults
	viper.SetDefault("snapshot.backend", defaults.Snapshot.Backend)
	viper.SetDefault("snapshot.volume", defaults.Snapshot.Volume)
	viper.SetDefault("snapshot.command", defaults.Snapshot.Command)
	viper.SetDefault("snapshot.sudo", defaults.Snapshot.Sudo)
	viper.SetDefault("snapshot.recursive_rollback", defaults.Snapshot.RecursiveRollback)
	viper.SetDefault("snapshot.timeout", defaults.Snapshot.Timeout)

	// Fingerprint defaults
	viper.SetDefault("fingerprint.algorithm", defaults.Fingerprint.Algorithm)

	// Harness defaults
	viper.SetDefault("harness.workers", defaults.Harness.Workers)
	viper.SetDefault("harness.ops_per_worker", defaults.Harness.OpsPerWorker)
	viper.SetDefault("harness.target_path", defaults.Harness.TargetPath)
	viper.SetDefault("harness.injected_conflict_rate", defaults.Harness.InjectedConflictRate)
	viper.SetDefault("harness.seed", defaults.Harness.Seed)
	viper.SetDefault("harness.watch", defaults.Harness.Watch)
	viper.SetDefault("harness.reset_target", defaults.Harness.ResetTarget)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.textfile", defaults.Metrics.Textfile)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "txguard")
	}
	// Fall back to ~/.config/txguard
	home, err := os.UserHomeDir()
	if err != nil {
		return ".txguard"
	}
	return filepath.Join(home, ".config", "txguard")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidBackends returns the list of valid snapshot backends
func ValidBackends() []string {
	return []string{"command", "zfs"}
}
