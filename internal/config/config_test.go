package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/config"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ArtifactDir = filepath.Join(base, "artifacts")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.WorkDir, cfg.Paths.ArtifactDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestLoadAppliesFileValues(t *testing.T) {
	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	content := strings.Join([]string{
		"[paths]",
		`data_dir = "` + filepath.Join(base, "data") + `"`,
		`work_dir = "` + filepath.Join(base, "work") + `"`,
		`log_dir = "` + filepath.Join(base, "logs") + `"`,
		`artifact_dir = "` + filepath.Join(base, "artifacts") + `"`,
		"[worker]",
		"max_concurrent = 5",
		"lease_seconds = 120",
		"lease_renew_interval = 30",
		"[frames]",
		"max_frames = 4",
		"[assemble]",
		`orientation = "portrait"`,
	}, "\n")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Worker.MaxConcurrent != 5 {
		t.Fatalf("expected max_concurrent 5, got %d", cfg.Worker.MaxConcurrent)
	}
	if cfg.Frames.MaxFrames != 4 {
		t.Fatalf("expected max_frames 4, got %d", cfg.Frames.MaxFrames)
	}
	if cfg.Assemble.Orientation != "P" {
		t.Fatalf("expected orientation normalized to P, got %q", cfg.Assemble.Orientation)
	}
	if cfg.Worker.PollInterval == 0 {
		t.Fatal("expected defaults applied to unset worker fields")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	content := strings.Join([]string{
		"[worker]",
		"lease_seconds = 60",
		"lease_renew_interval = 90",
	}, "\n")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected validation error for renew interval >= lease duration")
	}
}

func TestSampleConfigParses(t *testing.T) {
	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	if err := os.WriteFile(configPath, []byte(config.SampleConfig()), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	defaults := config.Default()
	if cfg.Worker.PollInterval != defaults.Worker.PollInterval {
		t.Fatalf("sample poll_interval %d diverges from default %d", cfg.Worker.PollInterval, defaults.Worker.PollInterval)
	}
	if cfg.Frames.MaxFrames != defaults.Frames.MaxFrames {
		t.Fatalf("sample max_frames %d diverges from default %d", cfg.Frames.MaxFrames, defaults.Frames.MaxFrames)
	}
}
