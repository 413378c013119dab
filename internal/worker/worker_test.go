package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"lectern/internal/claim"
	"lectern/internal/config"
	"lectern/internal/ledger"
	"lectern/internal/pipeline"
	"lectern/internal/testsupport"
	"lectern/internal/worker"
)

type stubRunner struct {
	mu      sync.Mutex
	ran     []string
	block   chan struct{}
	outcome func(task *ledger.Task) (pipeline.Outcome, error)
}

func (s *stubRunner) Run(ctx context.Context, task *ledger.Task) (pipeline.Outcome, error) {
	s.mu.Lock()
	s.ran = append(s.ran, task.ID)
	s.mu.Unlock()
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
		}
	}
	if s.outcome != nil {
		return s.outcome(task)
	}
	return pipeline.Outcome{TaskID: task.ID, Status: ledger.StatusDone}, nil
}

func (s *stubRunner) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ran)
}

func newWorker(t *testing.T, client ledger.Client, runner worker.TaskRunner, tune func(*config.Worker)) *worker.Worker {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Worker.PollInterval = 1
	cfg.Worker.ErrorRetryInterval = 1
	if tune != nil {
		tune(&cfg.Worker)
	}
	claims := claim.NewManager(client, cfg.Worker, nil)
	return worker.New(cfg, claims, runner, nil)
}

func TestRunProcessesAllQueuedTasks(t *testing.T) {
	client := ledger.NewMemory()
	for _, id := range []string{"a", "b", "c"} {
		testsupport.NewTask(t, client, id, "lecture.mp4")
	}
	runner := &stubRunner{}
	w := newWorker(t, client, runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for runner.runCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d of 3 tasks processed", runner.runCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if w.InFlight() != 0 {
		t.Fatalf("in-flight count not drained: %d", w.InFlight())
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	client := ledger.NewMemory()
	for _, id := range []string{"a", "b", "c", "d"} {
		testsupport.NewTask(t, client, id, "lecture.mp4")
	}
	release := make(chan struct{})
	runner := &stubRunner{block: release}
	w := newWorker(t, client, runner, func(cfg *config.Worker) {
		cfg.MaxConcurrent = 2
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for w.InFlight() < 2 {
		select {
		case <-deadline:
			t.Fatalf("never reached 2 in-flight tasks: %d", w.InFlight())
		case <-time.After(10 * time.Millisecond):
		}
	}
	// With both slots blocked, no further task may start.
	time.Sleep(50 * time.Millisecond)
	if got := w.InFlight(); got != 2 {
		t.Fatalf("concurrency bound exceeded: %d", got)
	}

	close(release)
	cancel()
	<-done
}

func TestRunSurvivesLedgerErrors(t *testing.T) {
	client := ledger.NewMemory()
	testsupport.NewTask(t, client, "a", "lecture.mp4")
	client.FailWrites = true

	runner := &stubRunner{}
	w := newWorker(t, client, runner, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("worker must not crash on ledger errors: %v", err)
	}
	if runner.runCount() != 0 {
		t.Fatalf("no task should run while claims fail, ran %d", runner.runCount())
	}
	if w.InFlight() != 0 {
		t.Fatalf("slots leaked: %d", w.InFlight())
	}
}

func TestRunOnceProcessesNamedTask(t *testing.T) {
	client := ledger.NewMemory()
	testsupport.NewTask(t, client, "target", "lecture.mp4")
	testsupport.NewTask(t, client, "other", "lecture.mp4")

	runner := &stubRunner{}
	w := newWorker(t, client, runner, nil)

	outcome, err := w.RunOnce(context.Background(), "target")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if outcome.Status != ledger.StatusDone {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if runner.runCount() != 1 || runner.ran[0] != "target" {
		t.Fatalf("wrong task processed: %v", runner.ran)
	}

	if _, err := w.RunOnce(context.Background(), "missing"); err == nil {
		t.Fatal("missing task must error in single-task mode")
	}
}
