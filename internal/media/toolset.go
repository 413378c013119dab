// Package media wraps the external ffmpeg/ffprobe binaries behind an
// injectable command runner: container inspection, audio extraction, and
// sampled frame extraction.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lectern/internal/config"
)

const framePattern = "frame-%06d.png"

// Toolset runs ffmpeg and ffprobe for one pipeline.
type Toolset struct {
	ffmpeg  string
	ffprobe string
	runner  CommandRunner
}

// NewToolset builds a Toolset from configured binary names.
func NewToolset(tools config.Tools) *Toolset {
	ffmpeg := strings.TrimSpace(tools.FFmpeg)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffprobe := strings.TrimSpace(tools.FFprobe)
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &Toolset{ffmpeg: ffmpeg, ffprobe: ffprobe}
}

// WithCommandRunner sets a custom command runner (for testing).
func (t *Toolset) WithCommandRunner(runner CommandRunner) {
	t.runner = runner
}

func (t *Toolset) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if t.runner != nil {
		return t.runner(ctx, name, args...)
	}
	return runCommand(ctx, name, args...)
}

// ExtractAudio writes the source's audio track as mono 16kHz WAV, the input
// format speech recognizers expect.
func (t *Toolset) ExtractAudio(ctx context.Context, source, dest string) error {
	if source == "" || dest == "" {
		return fmt.Errorf("extract audio: source and dest required")
	}
	_, err := t.run(ctx, t.ffmpeg,
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", source,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		dest,
	)
	if err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	return nil
}

// SampledFrame is one extracted candidate frame with its source timestamp.
type SampledFrame struct {
	Timestamp time.Duration
	Path      string
}

// SampleFrames extracts frames from the source at a fixed interval into
// destDir and returns them in temporal order. Timestamps are derived from
// the sampling interval, which keeps selection deterministic for a given
// input and tuning.
func (t *Toolset) SampleFrames(ctx context.Context, source, destDir string, interval time.Duration) ([]SampledFrame, error) {
	if source == "" || destDir == "" {
		return nil, fmt.Errorf("sample frames: source and destDir required")
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("sample frames: ensure dest dir: %w", err)
	}

	fps := 1.0 / interval.Seconds()
	_, err := t.run(ctx, t.ffmpeg,
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", source,
		"-vf", fmt.Sprintf("fps=%g", fps),
		"-vsync", "vfr",
		filepath.Join(destDir, framePattern),
	)
	if err != nil {
		return nil, fmt.Errorf("sample frames: %w", err)
	}

	return collectFrames(destDir, interval)
}

func collectFrames(destDir string, interval time.Duration) ([]SampledFrame, error) {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return nil, fmt.Errorf("sample frames: read dest dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".png") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	frames := make([]SampledFrame, 0, len(names))
	for i, name := range names {
		frames = append(frames, SampledFrame{
			Timestamp: time.Duration(i) * interval,
			Path:      filepath.Join(destDir, name),
		})
	}
	return frames, nil
}
