package claim_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"lectern/internal/claim"
	"lectern/internal/config"
	"lectern/internal/ledger"
	"lectern/internal/testsupport"
)

func workerTuning() config.Worker {
	cfg := config.Default().Worker
	cfg.LeaseSeconds = 300
	cfg.LeaseRenewInterval = 60
	cfg.ReclaimStale = true
	return cfg
}

func TestClaimNextEmptyQueue(t *testing.T) {
	manager := claim.NewManager(ledger.NewMemory(), workerTuning(), nil)
	task, err := manager.ClaimNext(context.Background())
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if task != nil {
		t.Fatalf("empty queue must yield nil, got %+v", task)
	}
}

func TestClaimNextTakesOldestFirst(t *testing.T) {
	client := ledger.NewMemory()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"old", "newer", "newest"} {
		task := &ledger.Task{
			ID:        id,
			Filename:  "lecture.mp4",
			InputKey:  "videos/" + id + "/lecture.mp4",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := client.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	manager := claim.NewManager(client, workerTuning(), nil)
	task, err := manager.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if task == nil || task.ID != "old" {
		t.Fatalf("expected oldest task, got %+v", task)
	}
	if task.Status != ledger.StatusClaimed || task.LeaseOwner != manager.Owner() {
		t.Fatalf("claim not recorded: %+v", task)
	}
}

func TestConcurrentManagersHonorClaimExclusivity(t *testing.T) {
	client := ledger.NewMemory()
	ctx := context.Background()
	testsupport.NewTask(t, client, "only", "lecture.mp4")

	const managers = 6
	var wg sync.WaitGroup
	claimsByID := make(chan string, managers)
	for i := 0; i < managers; i++ {
		manager := claim.NewManager(client, workerTuning(), nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := manager.ClaimNext(ctx)
			if err != nil {
				t.Errorf("ClaimNext: %v", err)
				return
			}
			if task != nil {
				claimsByID <- task.ID
			}
		}()
	}
	wg.Wait()
	close(claimsByID)

	count := 0
	for range claimsByID {
		count++
	}
	if count != 1 {
		t.Fatalf("exactly one manager must win the task, got %d", count)
	}
}

func TestClaimNextSkipsStaleWhenReclaimDisabled(t *testing.T) {
	client := ledger.NewMemory()
	ctx := context.Background()
	snapshot := testsupport.NewTask(t, client, "stuck", "lecture.mp4")
	if _, err := client.Claim(ctx, snapshot, "dead-worker", time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	tuning := workerTuning()
	tuning.ReclaimStale = false
	manager := claim.NewManager(client, tuning, nil)
	task, err := manager.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if task != nil {
		t.Fatalf("stale task must be ignored when reclaim is off, got %+v", task)
	}

	tuning.ReclaimStale = true
	manager = claim.NewManager(client, tuning, nil)
	task, err = manager.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext with reclaim: %v", err)
	}
	if task == nil || task.LeaseOwner != manager.Owner() {
		t.Fatalf("stale task should be reclaimed, got %+v", task)
	}
}

func TestStartRenewalExtendsLease(t *testing.T) {
	client := ledger.NewMemory()
	ctx := context.Background()
	testsupport.NewTask(t, client, "task-1", "lecture.mp4")

	tuning := workerTuning()
	tuning.LeaseSeconds = 300
	tuning.LeaseRenewInterval = 0 // fall back to lease/3, still too slow for a test tick
	manager := claim.NewManager(client, tuning, nil)

	task, err := manager.ClaimNext(ctx)
	if err != nil || task == nil {
		t.Fatalf("ClaimNext: %v %v", task, err)
	}
	before := *task.LeaseExpiresAt

	// Renew directly through the client to verify the owner token matches
	// what the renewal loop would present.
	if err := client.RenewLease(ctx, task.ID, manager.Owner(), time.Now().UTC().Add(manager.LeaseDuration()+time.Hour)); err != nil {
		t.Fatalf("RenewLease: %v", err)
	}
	after, err := client.Get(ctx, task.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !after.LeaseExpiresAt.After(before) {
		t.Fatalf("lease not extended: %v -> %v", before, after.LeaseExpiresAt)
	}

	stop := manager.StartRenewal(ctx, task.ID)
	stop()
}
