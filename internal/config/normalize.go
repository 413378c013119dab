package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorker()
	c.normalizeStages()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ArtifactDir, err = expandPath(c.Paths.ArtifactDir); err != nil {
		return fmt.Errorf("paths.artifact_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	return nil
}

func (c *Config) normalizeWorker() {
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = defaultPollInterval
	}
	if c.Worker.PollJitterPercent < 0 {
		c.Worker.PollJitterPercent = 0
	}
	if c.Worker.ErrorRetryInterval <= 0 {
		c.Worker.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Worker.MaxConcurrent <= 0 {
		c.Worker.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Worker.LeaseSeconds <= 0 {
		c.Worker.LeaseSeconds = defaultLeaseSeconds
	}
	if c.Worker.LeaseRenewInterval <= 0 {
		c.Worker.LeaseRenewInterval = defaultLeaseRenewInterval
	}
	if c.Worker.TaskTimeout <= 0 {
		c.Worker.TaskTimeout = defaultTaskTimeout
	}
}

func (c *Config) normalizeStages() {
	c.Transcribe.Binary = strings.TrimSpace(c.Transcribe.Binary)
	if c.Transcribe.Binary == "" {
		c.Transcribe.Binary = defaultTranscribeBinary
	}
	c.Transcribe.Model = strings.TrimSpace(c.Transcribe.Model)
	if c.Transcribe.Model == "" {
		c.Transcribe.Model = defaultTranscribeModel
	}
	c.Transcribe.Language = strings.ToLower(strings.TrimSpace(c.Transcribe.Language))

	if c.Frames.SampleIntervalMS <= 0 {
		c.Frames.SampleIntervalMS = defaultSampleIntervalMS
	}
	if c.Frames.PixelDelta <= 0 {
		c.Frames.PixelDelta = defaultPixelDelta
	}
	if c.Frames.MinChangedFrac <= 0 {
		c.Frames.MinChangedFrac = defaultMinChangedFrac
	}
	if c.Frames.StabilityWindow <= 0 {
		c.Frames.StabilityWindow = defaultStabilityWindow
	}
	if c.Frames.MinSpacingMS < 0 {
		c.Frames.MinSpacingMS = defaultMinSpacingMS
	}
	if c.Frames.MaxFrames <= 0 {
		c.Frames.MaxFrames = defaultMaxFrames
	}

	c.Assemble.PageSize = strings.TrimSpace(c.Assemble.PageSize)
	if c.Assemble.PageSize == "" {
		c.Assemble.PageSize = defaultPageSize
	}
	c.Assemble.Orientation = strings.ToUpper(strings.TrimSpace(c.Assemble.Orientation))
	switch c.Assemble.Orientation {
	case "", "LANDSCAPE":
		c.Assemble.Orientation = "L"
	case "PORTRAIT":
		c.Assemble.Orientation = "P"
	}

	if c.Upload.MaxAttempts <= 0 {
		c.Upload.MaxAttempts = defaultUploadMaxAttempts
	}
	if c.Upload.BackoffSeconds <= 0 {
		c.Upload.BackoffSeconds = defaultUploadBackoff
	}

	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpegBinary
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobeBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
