package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.ArtifactDir == "" {
		return errors.New("paths.artifact_dir must be set")
	}
	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.MaxConcurrent > 32 {
		return fmt.Errorf("worker.max_concurrent %d exceeds the supported bound of 32", c.Worker.MaxConcurrent)
	}
	if c.Worker.PollJitterPercent > 100 {
		return errors.New("worker.poll_jitter_percent must be between 0 and 100")
	}
	if c.Worker.LeaseRenewInterval >= c.Worker.LeaseSeconds {
		return errors.New("worker.lease_renew_interval must be shorter than worker.lease_seconds")
	}
	return nil
}

func (c *Config) validateStages() error {
	if c.Frames.PixelDelta > 255 {
		return errors.New("frames.pixel_delta must be between 1 and 255")
	}
	if c.Frames.MinChangedFrac >= 1 {
		return errors.New("frames.min_changed_frac must be below 1")
	}
	switch c.Assemble.Orientation {
	case "L", "P":
	default:
		return fmt.Errorf("assemble.orientation: unsupported value %q", c.Assemble.Orientation)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
