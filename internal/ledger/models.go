package ledger

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a task as seen by polling clients.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusClaimed    Status = "claimed"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusClaimed,
	StatusInProgress,
	StatusDone,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether a status ends the task lifecycle. Terminal tasks
// are never reclaimed automatically.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Claimable reports whether a task in this status may carry a lease.
func (s Status) Claimable() bool {
	return s == StatusQueued || s == StatusClaimed || s == StatusInProgress
}

var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusClaimed},
	StatusClaimed:    {StatusInProgress, StatusClaimed},
	StatusInProgress: {StatusDone, StatusFailed, StatusClaimed},
	StatusFailed:     {StatusQueued},
}

// ValidTransition reports whether from→to is a permitted lifecycle move.
// claimed→claimed and in_progress→claimed cover stale-lease re-claim by a
// different owner; failed→queued covers the external operator retry path.
func ValidTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task is a single unit of media-to-document work persisted in the ledger.
// The enqueuing system creates tasks in StatusQueued; workers own every
// mutation after that.
type Task struct {
	ID       string
	OwnerID  string
	Filename string
	InputKey string
	Status   Status

	ErrorMessage  string
	DocumentKey   string
	TranscriptKey string

	LeaseOwner     string
	LeaseExpiresAt *time.Time
	Attempts       int

	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClaimedAt      *time.Time
	StageEnteredAt *time.Time
	CompletedAt    *time.Time
}

// LeaseExpired reports whether the task's lease has lapsed at the given
// instant. A task without a lease is not expired.
func (t *Task) LeaseExpired(now time.Time) bool {
	return t.LeaseOwner != "" && t.LeaseExpiresAt != nil && t.LeaseExpiresAt.Before(now)
}

// Eligible reports whether a task can be claimed at the given instant:
// either freshly queued or stuck under an expired lease.
func (t *Task) Eligible(now time.Time) bool {
	if t.Status == StatusQueued {
		return true
	}
	if t.Status.Terminal() {
		return false
	}
	return t.LeaseExpired(now)
}

// Summary describes aggregated task counts per lifecycle state.
type Summary struct {
	Total      int
	Queued     int
	Claimed    int
	InProgress int
	Done       int
	Failed     int
}
