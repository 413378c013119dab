package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	WorkDir     string `toml:"work_dir"`
	LogDir      string `toml:"log_dir"`
	ArtifactDir string `toml:"artifact_dir"`
	APIBind     string `toml:"api_bind"`
}

// Worker contains polling, concurrency, and lease tuning.
type Worker struct {
	PollInterval       int  `toml:"poll_interval"`
	PollJitterPercent  int  `toml:"poll_jitter_percent"`
	ErrorRetryInterval int  `toml:"error_retry_interval"`
	MaxConcurrent      int  `toml:"max_concurrent"`
	LeaseSeconds       int  `toml:"lease_seconds"`
	LeaseRenewInterval int  `toml:"lease_renew_interval"`
	TaskTimeout        int  `toml:"task_timeout"`
	ReclaimStale       bool `toml:"reclaim_stale"`
}

// Transcribe contains configuration for the speech-to-text stage.
type Transcribe struct {
	Binary   string `toml:"binary"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// Frames contains configuration for keyframe selection.
type Frames struct {
	SampleIntervalMS int     `toml:"sample_interval_ms"`
	PixelDelta       int     `toml:"pixel_delta"`
	MinChangedFrac   float64 `toml:"min_changed_frac"`
	StabilityWindow  int     `toml:"stability_window"`
	MinSpacingMS     int     `toml:"min_spacing_ms"`
	MaxFrames        int     `toml:"max_frames"`
}

// Assemble contains configuration for document layout.
type Assemble struct {
	PageSize    string `toml:"page_size"`
	Orientation string `toml:"orientation"`
}

// Upload contains retry tuning for artifact publication.
type Upload struct {
	MaxAttempts    int `toml:"max_attempts"`
	BackoffSeconds int `toml:"backoff_seconds"`
}

// Tools names the external binaries the pipeline shells out to.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for lectern.
//
// Configuration sections by subsystem:
//   - Paths: data, scratch, log, and artifact directories plus API bind
//   - Worker: polling intervals, concurrency bound, lease and timeout tuning
//   - Transcribe: speech-to-text binary and model selection
//   - Frames: keyframe selection thresholds and bounds
//   - Assemble: document page geometry
//   - Upload: artifact publication retry policy
//   - Tools: external binary names
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Worker     Worker     `toml:"worker"`
	Transcribe Transcribe `toml:"transcribe"`
	Frames     Frames     `toml:"frames"`
	Assemble   Assemble   `toml:"assemble"`
	Upload     Upload     `toml:"upload"`
	Tools      Tools      `toml:"tools"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lectern/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lectern.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for worker operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.LogDir, c.Paths.ArtifactDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
