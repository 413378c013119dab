// Package transcribe drives an external whisper-style speech recognizer and
// shapes its output into the ordered transcript the document assembler
// consumes.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"lectern/internal/config"
	"lectern/internal/faults"
)

// Transcriber shells out to a whisper-compatible CLI.
type Transcriber struct {
	binary        string
	model         string
	language      string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// New builds a Transcriber from configuration.
func New(cfg config.Transcribe) *Transcriber {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = "whisper"
	}
	return &Transcriber{
		binary:   binary,
		model:    strings.TrimSpace(cfg.Model),
		language: strings.TrimSpace(cfg.Language),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (t *Transcriber) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	t.commandRunner = runner
}

// Transcribe runs the recognizer over the audio file, writing recognizer
// output under outputDir, and returns the normalized transcript. All
// failures carry the transcription marker; callers decide whether to degrade
// to an empty transcript.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath, outputDir string) (Transcript, error) {
	if audioPath == "" {
		return nil, faults.Wrap(faults.ErrTranscription, "transcribe", "run recognizer", "audio path required", nil)
	}
	if outputDir == "" {
		outputDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrTranscription, "transcribe", "ensure output dir", outputDir, err)
	}

	args := t.buildArgs(audioPath, outputDir)
	if err := t.run(ctx, t.binary, args...); err != nil {
		return nil, faults.Wrap(faults.ErrTranscription, "transcribe", "run recognizer", filepath.Base(audioPath), err)
	}

	jsonPath := outputJSONPath(audioPath, outputDir)
	transcript, err := loadSegments(jsonPath)
	if err != nil {
		return nil, faults.Wrap(faults.ErrTranscription, "transcribe", "parse recognizer output", jsonPath, err)
	}
	return transcript, nil
}

func (t *Transcriber) buildArgs(audioPath, outputDir string) []string {
	args := []string{
		audioPath,
		"--output_format", "json",
		"--output_dir", outputDir,
	}
	if t.model != "" {
		args = append(args, "--model", t.model)
	}
	if t.language != "" {
		args = append(args, "--language", t.language)
	}
	return args
}

func (t *Transcriber) run(ctx context.Context, name string, args ...string) error {
	if t.commandRunner != nil {
		return t.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// outputJSONPath mirrors the whisper CLI convention of writing
// <audio base>.json into the output directory.
func outputJSONPath(audioPath, outputDir string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(outputDir, base+".json")
}

type recognizerOutput struct {
	Segments []recognizerSegment `json:"segments"`
}

type recognizerSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func loadSegments(path string) (Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var output recognizerOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, err
	}
	raw := make([]Segment, 0, len(output.Segments))
	for _, segment := range output.Segments {
		raw = append(raw, Segment{
			Start: secondsToDuration(segment.Start),
			End:   secondsToDuration(segment.End),
			Text:  segment.Text,
		})
	}
	return Normalize(raw), nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
