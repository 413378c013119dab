package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lectern/internal/artifact"
	"lectern/internal/claim"
	"lectern/internal/config"
	"lectern/internal/ledger"
	"lectern/internal/media"
	"lectern/internal/pipeline"
	"lectern/internal/testsupport"
	"lectern/internal/transcribe"
)

const probeVideoAudio = `{
    "streams": [
        {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 640, "height": 360},
        {"index": 1, "codec_type": "audio", "codec_name": "aac", "channels": 1}
    ],
    "format": {"filename": "lecture.mp4", "nb_streams": 2, "duration": "10.0"}
}`

const probeVideoOnly = `{
    "streams": [{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 640, "height": 360}],
    "format": {"filename": "lecture.mp4", "nb_streams": 1, "duration": "10.0"}
}`

const probeNoVideo = `{
    "streams": [{"index": 0, "codec_type": "audio", "codec_name": "aac", "channels": 1}],
    "format": {"filename": "lecture.mp3", "nb_streams": 1, "duration": "10.0"}
}`

// helloWorldSegments matches speech at 0-1s and 6-8s.
const helloWorldSegments = `{"segments": [
    {"start": 0.0, "end": 1.0, "text": " hello"},
    {"start": 6.0, "end": 8.0, "text": " world"}
]}`

// tenSecondLevels produces frame changes at t=2s and t=7s when sampled every
// 500ms.
func tenSecondLevels() []uint8 {
	var levels []uint8
	for i := 0; i < 4; i++ {
		levels = append(levels, 0)
	}
	for i := 0; i < 10; i++ {
		levels = append(levels, 180)
	}
	for i := 0; i < 6; i++ {
		levels = append(levels, 255)
	}
	return levels
}

func writeSolidPNG(path string, level uint8) error {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

type fixture struct {
	cfg    *config.Config
	ledger *ledger.Memory
	store  *artifact.Memory
	claims *claim.Manager
	orch   *pipeline.Orchestrator
}

type fixtureOptions struct {
	probeJSON    string
	frameLevels  []uint8
	segmentsJSON string
	recognizeErr error
	frameDelay   time.Duration
	taskTimeout  int
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Frames.SampleIntervalMS = 500
	cfg.Frames.PixelDelta = 50
	cfg.Frames.MinChangedFrac = 0.05
	cfg.Frames.StabilityWindow = 2
	cfg.Frames.MinSpacingMS = 1000
	cfg.Frames.MaxFrames = 10
	cfg.Upload.MaxAttempts = 3
	cfg.Upload.BackoffSeconds = 0
	if opts.taskTimeout > 0 {
		cfg.Worker.TaskTimeout = opts.taskTimeout
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	tools := media.NewToolset(cfg.Tools)
	tools.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		switch {
		case strings.Contains(name, "ffprobe"):
			return []byte(opts.probeJSON), nil
		case hasArg(args, "-vn"):
			return nil, os.WriteFile(args[len(args)-1], []byte("wav"), 0o644)
		default:
			if opts.frameDelay > 0 {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(opts.frameDelay):
				}
			}
			dir := filepath.Dir(args[len(args)-1])
			for i, level := range opts.frameLevels {
				path := filepath.Join(dir, fmt.Sprintf("frame-%06d.png", i+1))
				if err := writeSolidPNG(path, level); err != nil {
					return nil, err
				}
			}
			return nil, nil
		}
	})

	transcriber := transcribe.New(cfg.Transcribe)
	transcriber.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		if opts.recognizeErr != nil {
			return opts.recognizeErr
		}
		outputDir := valueAfter(args, "--output_dir")
		base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		payload := opts.segmentsJSON
		if payload == "" {
			payload = `{"segments": []}`
		}
		return os.WriteFile(filepath.Join(outputDir, base+".json"), []byte(payload), 0o644)
	})

	ledgerClient := ledger.NewMemory()
	store := artifact.NewMemory()
	claims := claim.NewManager(ledgerClient, cfg.Worker, nil)
	orch := pipeline.New(cfg, pipeline.Deps{
		Ledger:      ledgerClient,
		Store:       store,
		Claims:      claims,
		Tools:       tools,
		Transcriber: transcriber,
	})

	return &fixture{cfg: cfg, ledger: ledgerClient, store: store, claims: claims, orch: orch}
}

func hasArg(args []string, want string) bool {
	for _, arg := range args {
		if arg == want {
			return true
		}
	}
	return false
}

func valueAfter(args []string, flag string) string {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func (f *fixture) claimSeededTask(t *testing.T) *ledger.Task {
	t.Helper()
	testsupport.NewTask(t, f.ledger, "task-1", "lecture.mp4")
	f.store.Seed(artifact.InputKey("task-1", "lecture.mp4"), []byte("video-bytes"))

	task, err := f.claims.ClaimNext(context.Background())
	if err != nil || task == nil {
		t.Fatalf("ClaimNext: %v %v", task, err)
	}
	return task
}

func (f *fixture) assertWorksetReleased(t *testing.T, taskID string) {
	t.Helper()
	dir := filepath.Join(f.cfg.Paths.WorkDir, "task-"+taskID)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("working set %s not released: %v", dir, err)
	}
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		probeJSON:    probeVideoAudio,
		frameLevels:  tenSecondLevels(),
		segmentsJSON: helloWorldSegments,
	})
	task := f.claimSeededTask(t)

	outcome, err := f.orch.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != ledger.StatusDone {
		t.Fatalf("expected done, got %+v", outcome)
	}

	stored, err := f.ledger.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != ledger.StatusDone {
		t.Fatalf("ledger status %s", stored.Status)
	}
	if stored.DocumentKey != "documents/task-1.pdf" || stored.TranscriptKey != "transcripts/task-1.srt" {
		t.Fatalf("artifact keys not recorded: %+v", stored)
	}
	if stored.CompletedAt == nil {
		t.Fatal("completion timestamp missing")
	}

	document := f.store.Object(stored.DocumentKey)
	if !bytes.HasPrefix(document, []byte("%PDF")) {
		t.Fatal("document is not a PDF")
	}
	if !bytes.Contains(document, []byte("/Count 2")) {
		t.Fatal("expected one page per frame change (2 pages)")
	}

	srt := string(f.store.Object(stored.TranscriptKey))
	if !strings.Contains(srt, "hello") || !strings.Contains(srt, "world") {
		t.Fatalf("transcript artifact incomplete:\n%s", srt)
	}

	f.assertWorksetReleased(t, task.ID)
}

func TestRunSilentInputStillCompletes(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		probeJSON:   probeVideoOnly,
		frameLevels: tenSecondLevels(),
	})
	task := f.claimSeededTask(t)

	outcome, err := f.orch.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != ledger.StatusDone {
		t.Fatalf("silent input must still complete, got %+v", outcome)
	}

	stored, _ := f.ledger.Get(context.Background(), task.ID)
	if stored.TranscriptKey != "" {
		t.Fatalf("no transcript artifact expected, got %q", stored.TranscriptKey)
	}
	if f.store.Object(artifact.TranscriptKey(task.ID)) != nil {
		t.Fatal("transcript must not be uploaded for silent input")
	}
	f.assertWorksetReleased(t, task.ID)
}

func TestRunTranscriptionFailureDegrades(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		probeJSON:    probeVideoAudio,
		frameLevels:  tenSecondLevels(),
		recognizeErr: errors.New("recognizer crashed"),
	})
	task := f.claimSeededTask(t)

	outcome, err := f.orch.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != ledger.StatusDone {
		t.Fatalf("transcription failure must degrade, got %+v", outcome)
	}
	stored, _ := f.ledger.Get(context.Background(), task.ID)
	if stored.TranscriptKey != "" {
		t.Fatalf("degraded run must not record a transcript key: %+v", stored)
	}
}

func TestRunFailsWithoutDecodableFrames(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		probeJSON:   probeVideoAudio,
		frameLevels: nil, // sampler yields nothing
	})
	task := f.claimSeededTask(t)

	outcome, err := f.orch.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != ledger.StatusFailed {
		t.Fatalf("expected failed, got %+v", outcome)
	}
	if !strings.Contains(outcome.Reason, "frame extraction") {
		t.Fatalf("reason should name frame extraction: %q", outcome.Reason)
	}
	f.assertWorksetReleased(t, task.ID)
}

func TestRunFailsOnUndecodableContainer(t *testing.T) {
	f := newFixture(t, fixtureOptions{probeJSON: probeNoVideo})
	task := f.claimSeededTask(t)

	outcome, err := f.orch.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != ledger.StatusFailed || !strings.Contains(outcome.Reason, "decode error") {
		t.Fatalf("expected decode failure, got %+v", outcome)
	}
	f.assertWorksetReleased(t, task.ID)
}

func TestRunFailsOnMissingInput(t *testing.T) {
	f := newFixture(t, fixtureOptions{probeJSON: probeVideoAudio, frameLevels: tenSecondLevels()})
	testsupport.NewTask(t, f.ledger, "task-1", "lecture.mp4")
	// No input seeded in the store.
	task, err := f.claims.ClaimNext(context.Background())
	if err != nil || task == nil {
		t.Fatalf("ClaimNext: %v %v", task, err)
	}

	outcome, err := f.orch.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != ledger.StatusFailed || !strings.Contains(outcome.Reason, "fetch error") {
		t.Fatalf("expected fetch failure, got %+v", outcome)
	}
	f.assertWorksetReleased(t, task.ID)
}

func TestRunUploadRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		probeJSON:    probeVideoAudio,
		frameLevels:  tenSecondLevels(),
		segmentsJSON: helloWorldSegments,
	})
	task := f.claimSeededTask(t)
	f.store.FailNextStores = 2

	outcome, err := f.orch.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != ledger.StatusDone {
		t.Fatalf("bounded retry should recover, got %+v", outcome)
	}
}

func TestRunUploadExhaustionFails(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		probeJSON:   probeVideoAudio,
		frameLevels: tenSecondLevels(),
	})
	task := f.claimSeededTask(t)
	f.store.FailNextStores = 10

	outcome, err := f.orch.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != ledger.StatusFailed || !strings.Contains(outcome.Reason, "upload error") {
		t.Fatalf("expected upload failure, got %+v", outcome)
	}
	f.assertWorksetReleased(t, task.ID)
}

func TestRunTimeoutFailsTask(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		probeJSON:   probeVideoAudio,
		frameLevels: tenSecondLevels(),
		frameDelay:  2 * time.Second,
		taskTimeout: 1,
	})
	task := f.claimSeededTask(t)

	outcome, err := f.orch.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != ledger.StatusFailed || !strings.Contains(outcome.Reason, "task timeout") {
		t.Fatalf("expected timeout failure, got %+v", outcome)
	}
	f.assertWorksetReleased(t, task.ID)
}

func TestRunSupersededWorkerWritesNothing(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		probeJSON:   probeVideoAudio,
		frameLevels: tenSecondLevels(),
	})
	task := f.claimSeededTask(t)

	// Another worker takes the task over before processing starts.
	takeover, err := f.ledger.Claim(context.Background(), task, "other-worker", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("takeover claim: %v", err)
	}

	outcome, err := f.orch.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != "" {
		t.Fatalf("superseded run must write nothing, got %+v", outcome)
	}

	stored, _ := f.ledger.Get(context.Background(), task.ID)
	if stored.LeaseOwner != takeover.LeaseOwner {
		t.Fatalf("takeover lease disturbed: %+v", stored)
	}
}

func TestRunEscalatesUnacknowledgedLedgerWrite(t *testing.T) {
	f := newFixture(t, fixtureOptions{
		probeJSON:   probeVideoAudio,
		frameLevels: tenSecondLevels(),
	})
	task := f.claimSeededTask(t)
	f.ledger.FailWrites = true

	_, err := f.orch.Run(context.Background(), task)
	if err == nil {
		t.Fatal("unacknowledged ledger write must be escalated")
	}
}
