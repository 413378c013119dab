package config

const (
	defaultDataDir            = "~/.local/share/lectern"
	defaultWorkDir            = "~/.local/share/lectern/work"
	defaultLogDir             = "~/.local/share/lectern/logs"
	defaultArtifactDir        = "~/.local/share/lectern/artifacts"
	defaultAPIBind            = "127.0.0.1:7519"
	defaultPollInterval       = 10
	defaultPollJitterPercent  = 20
	defaultErrorRetryInterval = 30
	defaultMaxConcurrent      = 2
	defaultLeaseSeconds       = 300
	defaultLeaseRenewInterval = 60
	defaultTaskTimeout        = 1800
	defaultTranscribeBinary   = "whisper"
	defaultTranscribeModel    = "base"
	defaultSampleIntervalMS   = 500
	defaultPixelDelta         = 50
	defaultMinChangedFrac     = 0.05
	defaultStabilityWindow    = 5
	defaultMinSpacingMS       = 15000
	defaultMaxFrames          = 10
	defaultPageSize           = "A4"
	defaultOrientation        = "L"
	defaultUploadMaxAttempts  = 3
	defaultUploadBackoff      = 2
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			WorkDir:     defaultWorkDir,
			LogDir:      defaultLogDir,
			ArtifactDir: defaultArtifactDir,
			APIBind:     defaultAPIBind,
		},
		Worker: Worker{
			PollInterval:       defaultPollInterval,
			PollJitterPercent:  defaultPollJitterPercent,
			ErrorRetryInterval: defaultErrorRetryInterval,
			MaxConcurrent:      defaultMaxConcurrent,
			LeaseSeconds:       defaultLeaseSeconds,
			LeaseRenewInterval: defaultLeaseRenewInterval,
			TaskTimeout:        defaultTaskTimeout,
			ReclaimStale:       true,
		},
		Transcribe: Transcribe{
			Binary: defaultTranscribeBinary,
			Model:  defaultTranscribeModel,
		},
		Frames: Frames{
			SampleIntervalMS: defaultSampleIntervalMS,
			PixelDelta:       defaultPixelDelta,
			MinChangedFrac:   defaultMinChangedFrac,
			StabilityWindow:  defaultStabilityWindow,
			MinSpacingMS:     defaultMinSpacingMS,
			MaxFrames:        defaultMaxFrames,
		},
		Assemble: Assemble{
			PageSize:    defaultPageSize,
			Orientation: defaultOrientation,
		},
		Upload: Upload{
			MaxAttempts:    defaultUploadMaxAttempts,
			BackoffSeconds: defaultUploadBackoff,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpegBinary,
			FFprobe: defaultFFprobeBinary,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
