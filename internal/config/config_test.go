package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default snapshot config
	if cfg.Snapshot.Backend != "zfs" {
		t.Errorf("Snapshot.Backend = %q, want %q", cfg.Snapshot.Backend, "zfs")
	}
	if cfg.Snapshot.Volume != "os_trans_pool/os_trans_fs" {
		t.Errorf("Snapshot.Volume = %q", cfg.Snapshot.Volume)
	}
	if !cfg.Snapshot.Sudo {
		t.Error("Snapshot.Sudo should be true by default")
	}
	if cfg.Snapshot.Timeout != 0 {
		t.Errorf("Snapshot.Timeout = %v, want 0 (no deadline)", cfg.Snapshot.Timeout)
	}

	// Verify default fingerprint config
	if cfg.Fingerprint.Algorithm != "sha256" {
		t.Errorf("Fingerprint.Algorithm = %q, want %q", cfg.Fingerprint.Algorithm, "sha256")
	}

	// Verify default harness config
	if cfg.Harness.Workers != 10 {
		t.Errorf("Harness.Workers = %d, want 10", cfg.Harness.Workers)
	}
	if cfg.Harness.OpsPerWorker != 50 {
		t.Errorf("Harness.OpsPerWorker = %d, want 50", cfg.Harness.OpsPerWorker)
	}
	if cfg.Harness.TargetPath != "shared/validation.txt" {
		t.Errorf("Harness.TargetPath = %q", cfg.Harness.TargetPath)
	}
	if !cfg.Harness.ResetTarget {
		t.Error("Harness.ResetTarget should be true by default")
	}

	// Verify default logging config
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.MaxSizeMB != 10 || cfg.Logging.MaxBackups != 3 {
		t.Errorf("Logging rotation = %d MB / %d backups, want 10/3", cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups)
	}

	// Verify default metrics config
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false by default")
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/txguard"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		// Should be based on home directory
		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "txguard")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/txguard/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}

func TestGet(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	// Get() should return defaults when no config file exists
	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Harness.Workers != 10 {
		t.Errorf("Get().Harness.Workers = %d, want 10", cfg.Harness.Workers)
	}
}

func TestLoad_FromFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
snapshot:
  backend: command
  volume: tank
  command: /usr/local/bin/snapctl
  timeout: 30s
fingerprint:
  algorithm: blake2b-256
harness:
  workers: 4
  injected_conflict_rate: 0.25
  seed: 99
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Snapshot.Backend != "command" || cfg.Snapshot.Command != "/usr/local/bin/snapctl" {
		t.Errorf("Snapshot = %+v", cfg.Snapshot)
	}
	if cfg.Snapshot.Timeout != 30*time.Second {
		t.Errorf("Snapshot.Timeout = %v, want 30s", cfg.Snapshot.Timeout)
	}
	if cfg.Fingerprint.Algorithm != "blake2b-256" {
		t.Errorf("Fingerprint.Algorithm = %q", cfg.Fingerprint.Algorithm)
	}
	if cfg.Harness.Workers != 4 || cfg.Harness.InjectedConflictRate != 0.25 || cfg.Harness.Seed != 99 {
		t.Errorf("Harness = %+v", cfg.Harness)
	}
	// Unset keys keep their defaults
	if cfg.Harness.OpsPerWorker != 50 {
		t.Errorf("Harness.OpsPerWorker = %d, want default 50", cfg.Harness.OpsPerWorker)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	viper.Set("harness.workers", 0)
	viper.Set("fingerprint.algorithm", "md5")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should reject invalid values")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(verrs), verrs)
	}

	// Get falls back to defaults
	if Get().Harness.Workers != 10 {
		t.Error("Get() should fall back to defaults on invalid config")
	}
}

func TestValidBackends(t *testing.T) {
	backends := ValidBackends()
	if len(backends) != 2 || backends[0] != "command" || backends[1] != "zfs" {
		t.Errorf("ValidBackends() = %v", backends)
	}
}
