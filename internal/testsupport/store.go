package testsupport

import (
	"context"
	"testing"
	"time"

	"lectern/internal/config"
	"lectern/internal/ledger"
)

// MustOpenStore opens a ledger.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTask enqueues a fresh task for tests using the provided client.
func NewTask(t testing.TB, client ledger.Client, id, filename string) *ledger.Task {
	t.Helper()

	task := &ledger.Task{
		ID:       id,
		OwnerID:  "owner-" + id,
		Filename: filename,
		InputKey: "videos/" + id + "/" + filename,
	}
	if err := client.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("client.Enqueue: %v", err)
	}
	stored, err := client.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("client.Get: %v", err)
	}
	if stored == nil {
		t.Fatalf("task %s missing after enqueue", id)
	}
	return stored
}

// AdvanceLease returns a lease expiry the given duration from now.
func AdvanceLease(d time.Duration) time.Time {
	return time.Now().UTC().Add(d)
}
