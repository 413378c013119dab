// Package worker runs the polling loop: it claims eligible tasks through the
// claim manager, bounds the number of concurrent pipeline runs, and backs
// off on empty polls and ledger errors.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"lectern/internal/claim"
	"lectern/internal/config"
	"lectern/internal/ledger"
	"lectern/internal/logging"
	"lectern/internal/pipeline"
)

// Consecutive ledger errors scale the retry pause up to this factor.
const maxErrorBackoffFactor = 5

// TaskRunner executes one claimed task. *pipeline.Orchestrator is the
// production implementation.
type TaskRunner interface {
	Run(ctx context.Context, task *ledger.Task) (pipeline.Outcome, error)
}

// Worker owns the poll/claim/dispatch loop for one process.
type Worker struct {
	cfg    *config.Config
	claims *claim.Manager
	runner TaskRunner
	logger *slog.Logger

	slots    chan struct{}
	inFlight atomic.Int32
	wg       sync.WaitGroup
}

// New builds a Worker with cfg.Worker.MaxConcurrent slots.
func New(cfg *config.Config, claims *claim.Manager, runner TaskRunner, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	maxConcurrent := cfg.Worker.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Worker{
		cfg:    cfg,
		claims: claims,
		runner: runner,
		logger: logger.With(logging.String(logging.FieldComponent, "worker")),
		slots:  make(chan struct{}, maxConcurrent),
	}
}

// InFlight reports the number of tasks currently being processed.
func (w *Worker) InFlight() int {
	return int(w.inFlight.Load())
}

// Owner returns the lease owner token this worker claims under.
func (w *Worker) Owner() string {
	return w.claims.Owner()
}

// Run polls until the context ends, then waits for in-flight tasks to
// finish. Pipeline errors never stop the loop; an unacknowledged ledger
// write is logged and the slot returned, since the expiring lease guarantees
// re-claim by some worker.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker loop started",
		logging.String("owner", w.claims.Owner()),
		logging.Int("max_concurrent", cap(w.slots)))

	consecutiveErrors := 0
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case w.slots <- struct{}{}:
		}

		task, err := w.claims.ClaimNext(ctx)
		if err != nil {
			<-w.slots
			if ctx.Err() != nil {
				w.drain()
				return nil
			}
			consecutiveErrors++
			w.logger.Error("claim failed", logging.Error(err),
				logging.Int("consecutive_errors", consecutiveErrors))
			if !w.sleep(ctx, w.errorPause(consecutiveErrors)) {
				w.drain()
				return nil
			}
			continue
		}
		if task == nil {
			<-w.slots
			consecutiveErrors = 0
			if !w.sleep(ctx, w.pollPause()) {
				w.drain()
				return nil
			}
			continue
		}

		consecutiveErrors = 0
		w.dispatch(ctx, task)
	}
}

// RunOnce claims and processes one named task, bypassing the poll loop.
func (w *Worker) RunOnce(ctx context.Context, taskID string) (pipeline.Outcome, error) {
	task, err := w.claims.ClaimTask(ctx, taskID)
	if err != nil {
		return pipeline.Outcome{TaskID: taskID}, fmt.Errorf("claim task: %w", err)
	}
	w.inFlight.Add(1)
	defer w.inFlight.Add(-1)
	return w.runner.Run(ctx, task)
}

func (w *Worker) dispatch(ctx context.Context, task *ledger.Task) {
	w.wg.Add(1)
	w.inFlight.Add(1)
	w.logger.Info("task claimed",
		logging.String(logging.FieldTaskID, task.ID),
		logging.Int("in_flight", w.InFlight()))

	go func() {
		defer func() {
			w.inFlight.Add(-1)
			w.wg.Done()
			<-w.slots
		}()
		outcome, err := w.runner.Run(ctx, task)
		if err != nil {
			w.logger.Error("terminal ledger write unacknowledged, slot returned",
				logging.String(logging.FieldTaskID, task.ID),
				logging.Error(err))
			return
		}
		if outcome.Status != "" {
			w.logger.Info("task finished",
				logging.String(logging.FieldTaskID, task.ID),
				logging.String("status", string(outcome.Status)))
		}
	}()
}

func (w *Worker) drain() {
	w.logger.Info("worker loop stopping, draining in-flight tasks",
		logging.Int("in_flight", w.InFlight()))
	w.wg.Wait()
}

// pollPause is the jittered empty-poll interval. Jitter desynchronizes
// replicas polling the same ledger.
func (w *Worker) pollPause() time.Duration {
	base := time.Duration(w.cfg.Worker.PollInterval) * time.Second
	if base <= 0 {
		base = time.Second
	}
	jitter := w.cfg.Worker.PollJitterPercent
	if jitter <= 0 {
		return base
	}
	span := float64(base) * float64(jitter) / 100
	offset := time.Duration((rand.Float64()*2 - 1) * span)
	return base + offset
}

func (w *Worker) errorPause(consecutive int) time.Duration {
	base := time.Duration(w.cfg.Worker.ErrorRetryInterval) * time.Second
	if base <= 0 {
		base = time.Second
	}
	factor := consecutive
	if factor > maxErrorBackoffFactor {
		factor = maxErrorBackoffFactor
	}
	return base * time.Duration(factor)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
