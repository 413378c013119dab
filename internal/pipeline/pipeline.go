// Package pipeline drives one claimed task through the fixed stage sequence:
// fetch input, transcribe and select keyframes concurrently, assemble the
// document, publish artifacts, and record the terminal status in the ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lectern/internal/artifact"
	"lectern/internal/assemble"
	"lectern/internal/claim"
	"lectern/internal/config"
	"lectern/internal/faults"
	"lectern/internal/frames"
	"lectern/internal/ledger"
	"lectern/internal/logging"
	"lectern/internal/media"
	"lectern/internal/transcribe"
	"lectern/internal/workset"
)

// Outcome summarizes one pipeline run. Status is empty when the run was
// superseded by another worker and wrote nothing.
type Outcome struct {
	TaskID string
	Status ledger.Status
	Reason string
}

// Deps bundles the orchestrator's collaborators. Nil stage fields are built
// from configuration; Ledger, Store, and Claims are required.
type Deps struct {
	Ledger      ledger.Client
	Store       artifact.Client
	Claims      *claim.Manager
	Tools       *media.Toolset
	Transcriber *transcribe.Transcriber
	Selector    *frames.Selector
	Assembler   *assemble.Assembler
	Logger      *slog.Logger
}

// Orchestrator runs claimed tasks to completion.
type Orchestrator struct {
	cfg         *config.Config
	ledger      ledger.Client
	store       artifact.Client
	claims      *claim.Manager
	tools       *media.Toolset
	transcriber *transcribe.Transcriber
	selector    *frames.Selector
	assembler   *assemble.Assembler
	logger      *slog.Logger
}

// New builds an Orchestrator, deriving any missing stage executors from the
// configuration.
func New(cfg *config.Config, deps Deps) *Orchestrator {
	if deps.Tools == nil {
		deps.Tools = media.NewToolset(cfg.Tools)
	}
	if deps.Transcriber == nil {
		deps.Transcriber = transcribe.New(cfg.Transcribe)
	}
	if deps.Selector == nil {
		deps.Selector = frames.NewSelector(cfg.Frames)
	}
	if deps.Assembler == nil {
		deps.Assembler = assemble.New(cfg.Assemble)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:         cfg,
		ledger:      deps.Ledger,
		store:       deps.Store,
		claims:      deps.Claims,
		tools:       deps.Tools,
		transcriber: deps.Transcriber,
		selector:    deps.Selector,
		assembler:   deps.Assembler,
		logger:      deps.Logger.With(logging.String(logging.FieldComponent, "pipeline")),
	}
}

// Run processes one claimed task end to end. The returned error is non-nil
// only when a terminal ledger write could not be acknowledged; the caller
// must treat that as a logged slot return, never a crash, since the expiring
// lease guarantees eventual re-claim.
func (o *Orchestrator) Run(ctx context.Context, task *ledger.Task) (Outcome, error) {
	outcome := Outcome{TaskID: task.ID}
	owner := o.claims.Owner()
	log := o.logger.With(logging.String(logging.FieldTaskID, task.ID))
	ctx = faults.WithTaskID(ctx, task.ID)

	stopRenewal := o.claims.StartRenewal(ctx, task.ID)
	defer stopRenewal()

	if err := o.ledger.MarkInProgress(ctx, task.ID, owner); err != nil {
		if errors.Is(err, faults.ErrLeaseConflict) {
			log.Warn("superseded before processing started")
			return outcome, nil
		}
		return outcome, err
	}

	ws, err := workset.Acquire(o.cfg.Paths.WorkDir, task.ID)
	if err != nil {
		return o.finishFailed(ctx, log, outcome, owner, faults.Wrap(faults.ErrFetch, "workset", "acquire scratch dir", "", err))
	}
	defer func() {
		if releaseErr := ws.Release(); releaseErr != nil {
			log.Warn("working set release failed", logging.Error(releaseErr))
		}
	}()

	timeout := time.Duration(o.cfg.Worker.TaskTimeout) * time.Second
	taskCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	document, transcript, runErr := o.produce(taskCtx, log, task, ws)
	if runErr != nil {
		if taskCtx.Err() != nil && ctx.Err() == nil {
			runErr = fmt.Errorf("task timeout after %s: %w", timeout, runErr)
		}
		return o.finishFailed(ctx, log, outcome, owner, runErr)
	}

	documentKey, transcriptKey, uploadErr := o.publish(taskCtx, log, task.ID, document, transcript)
	if uploadErr != nil {
		if taskCtx.Err() != nil && ctx.Err() == nil {
			uploadErr = fmt.Errorf("task timeout after %s: %w", timeout, uploadErr)
		}
		return o.finishFailed(ctx, log, outcome, owner, uploadErr)
	}

	if err := o.ledger.Complete(ctx, task.ID, owner, documentKey, transcriptKey); err != nil {
		if errors.Is(err, faults.ErrLeaseConflict) {
			log.Warn("completion superseded by another worker")
			return outcome, nil
		}
		return outcome, err
	}

	outcome.Status = ledger.StatusDone
	log.Info("task done",
		logging.String("document_key", documentKey),
		logging.String("transcript_key", transcriptKey))
	return outcome, nil
}

// produce runs fetch, probe, and the concurrent transcribe/select stages,
// then assembly.
func (o *Orchestrator) produce(ctx context.Context, log *slog.Logger, task *ledger.Task, ws *workset.Set) ([]byte, transcribe.Transcript, error) {
	inputPath, err := o.fetchInput(ctx, task, ws)
	if err != nil {
		return nil, nil, err
	}

	probe, err := o.tools.Inspect(ctx, inputPath)
	if err != nil {
		return nil, nil, faults.Wrap(faults.ErrDecode, "probe", "inspect container", task.Filename, err)
	}
	if !probe.HasVideo() {
		return nil, nil, faults.Wrap(faults.ErrDecode, "probe", "inspect container", "no video stream", nil)
	}

	var (
		wg         sync.WaitGroup
		transcript transcribe.Transcript
		keyframes  []frames.Keyframe
		framesErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		transcript = o.transcribeInput(ctx, log, probe, inputPath, ws)
	}()
	go func() {
		defer wg.Done()
		keyframes, framesErr = o.selectKeyframes(ctx, inputPath, ws)
	}()
	wg.Wait()

	if framesErr != nil {
		return nil, nil, framesErr
	}

	document, err := o.assembler.Build(ctx, keyframes, transcript)
	if err != nil {
		if !errors.Is(err, faults.ErrAssembly) && ctx.Err() == nil {
			err = faults.Wrap(faults.ErrAssembly, "assemble", "build document", "", err)
		}
		return nil, nil, err
	}
	log.Info("document assembled",
		logging.Int("pages", len(keyframes)),
		logging.Int("segments", len(transcript)))
	return document, transcript, nil
}

func (o *Orchestrator) fetchInput(ctx context.Context, task *ledger.Task, ws *workset.Set) (string, error) {
	key := task.InputKey
	if key == "" {
		key = artifact.InputKey(task.ID, task.Filename)
	}
	filename := task.Filename
	if filename == "" {
		filename = "input"
	}
	dest := ws.Path(filename)

	written, err := o.store.Fetch(ctx, key, dest)
	if err != nil {
		return "", faults.Wrap(faults.ErrFetch, "fetch", "download input", key, err)
	}
	if written == 0 {
		return "", faults.Wrap(faults.ErrFetch, "fetch", "download input", "empty input artifact", nil)
	}
	return dest, nil
}

// transcribeInput is best-effort: any failure degrades to an empty
// transcript rather than failing the task.
func (o *Orchestrator) transcribeInput(ctx context.Context, log *slog.Logger, probe media.Probe, inputPath string, ws *workset.Set) transcribe.Transcript {
	if !probe.HasAudio() {
		log.Info("input has no audio stream, skipping transcription")
		return nil
	}

	audioPath := ws.Path("audio.wav")
	if err := o.tools.ExtractAudio(ctx, inputPath, audioPath); err != nil {
		log.Warn("audio extraction failed, continuing without transcript", logging.Error(err))
		return nil
	}

	outputDir, err := ws.Subdir("transcript")
	if err != nil {
		log.Warn("transcript dir unavailable, continuing without transcript", logging.Error(err))
		return nil
	}
	transcript, err := o.transcriber.Transcribe(ctx, audioPath, outputDir)
	if err != nil {
		log.Warn("transcription failed, continuing without transcript", logging.Error(err))
		return nil
	}
	return transcript
}

func (o *Orchestrator) selectKeyframes(ctx context.Context, inputPath string, ws *workset.Set) ([]frames.Keyframe, error) {
	framesDir, err := ws.Subdir("frames")
	if err != nil {
		return nil, faults.Wrap(faults.ErrFrameExtraction, "frames", "prepare frame dir", "", err)
	}
	interval := time.Duration(o.cfg.Frames.SampleIntervalMS) * time.Millisecond
	candidates, err := o.tools.SampleFrames(ctx, inputPath, framesDir, interval)
	if err != nil {
		return nil, faults.Wrap(faults.ErrFrameExtraction, "frames", "sample frames", "", err)
	}
	return o.selector.Select(ctx, candidates)
}

// publish uploads the document and, when speech was recognized, the SRT
// transcript. Each upload is retried with exponential backoff before the
// whole step is declared fatal.
func (o *Orchestrator) publish(ctx context.Context, log *slog.Logger, taskID string, document []byte, transcript transcribe.Transcript) (string, string, error) {
	documentKey := artifact.DocumentKey(taskID)
	if err := o.uploadWithRetry(ctx, log, documentKey, document); err != nil {
		return "", "", faults.Wrap(faults.ErrUpload, "publish", "upload document", documentKey, err)
	}

	transcriptKey := ""
	if srt := transcribe.FormatSRT(transcript); len(srt) > 0 {
		transcriptKey = artifact.TranscriptKey(taskID)
		if err := o.uploadWithRetry(ctx, log, transcriptKey, srt); err != nil {
			return "", "", faults.Wrap(faults.ErrUpload, "publish", "upload transcript", transcriptKey, err)
		}
	}
	return documentKey, transcriptKey, nil
}

func (o *Orchestrator) uploadWithRetry(ctx context.Context, log *slog.Logger, key string, data []byte) error {
	attempts := o.cfg.Upload.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := time.Duration(o.cfg.Upload.BackoffSeconds) * time.Second

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = o.store.StoreBytes(ctx, key, data)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts || ctx.Err() != nil {
			break
		}
		log.Warn("upload attempt failed, backing off",
			logging.String("key", key),
			logging.Int("attempt", attempt),
			logging.Duration("backoff", backoff),
			logging.Error(lastErr))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}

// finishFailed records the failed status. An unacknowledged write is
// escalated to the caller; a lease conflict means another worker took over
// and this run's result is discarded.
func (o *Orchestrator) finishFailed(ctx context.Context, log *slog.Logger, outcome Outcome, owner string, cause error) (Outcome, error) {
	reason := faults.Reason(cause)
	log.Error("task failed", logging.String("reason", reason))

	if err := o.ledger.Fail(ctx, outcome.TaskID, owner, reason); err != nil {
		if errors.Is(err, faults.ErrLeaseConflict) {
			log.Warn("failure superseded by another worker")
			return outcome, nil
		}
		return outcome, err
	}
	outcome.Status = ledger.StatusFailed
	outcome.Reason = reason
	return outcome, nil
}
