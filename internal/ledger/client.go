package ledger

import (
	"context"
	"time"
)

// Client is the typed contract over the external task ledger. Every write is
// a single-record conditional update; a rejected condition surfaces as a
// faults.ErrLeaseConflict so callers can distinguish a lost race from an
// unreachable ledger (faults.ErrLedgerWrite).
type Client interface {
	// Get returns a task by ID, or nil when absent.
	Get(ctx context.Context, id string) (*Task, error)

	// Enqueue inserts a new task in StatusQueued. Production enqueue is the
	// front door's job; workers use this only for local tooling and tests.
	Enqueue(ctx context.Context, task *Task) error

	// NextEligible returns the oldest-created task that is queued or, when
	// includeStale is set, stuck under an expired lease. Nil means nothing
	// is eligible.
	NextEligible(ctx context.Context, now time.Time, includeStale bool) (*Task, error)

	// Claim transitions the snapshot to StatusClaimed under the given owner,
	// conditional on the stored status and lease owner still matching the
	// snapshot. The returned task reflects the stored state after the claim.
	Claim(ctx context.Context, snapshot *Task, owner string, leaseUntil time.Time) (*Task, error)

	// MarkInProgress moves a claimed task to StatusInProgress, conditional on
	// the lease owner, and stamps the stage-entered time.
	MarkInProgress(ctx context.Context, id, owner string) error

	// RenewLease extends the lease expiry, conditional on the lease owner.
	RenewLease(ctx context.Context, id, owner string, leaseUntil time.Time) error

	// Complete records the terminal done state with output artifact keys and
	// clears the lease, conditional on the lease owner.
	Complete(ctx context.Context, id, owner, documentKey, transcriptKey string) error

	// Fail records the terminal failed state with a bounded reason and clears
	// the lease, conditional on the lease owner.
	Fail(ctx context.Context, id, owner, reason string) error

	// Requeue moves a failed task back to StatusQueued (operator retry path).
	Requeue(ctx context.Context, id string) error

	// List returns tasks filtered by status set (all tasks when empty),
	// ordered by creation time.
	List(ctx context.Context, statuses ...Status) ([]*Task, error)

	// Summary returns aggregate counts per lifecycle state.
	Summary(ctx context.Context) (Summary, error)
}
