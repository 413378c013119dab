package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"lectern/internal/faults"
)

// Memory is an in-memory Client with the same conditional-write semantics as
// the SQLite store. It backs tests and local experimentation.
type Memory struct {
	mu    sync.Mutex
	tasks map[string]*Task

	// FailWrites, when set, makes every mutation return a ledger write
	// error. Tests use it to simulate an unreachable ledger.
	FailWrites bool
}

var _ Client = (*Memory)(nil)

// NewMemory constructs an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{tasks: make(map[string]*Task)}
}

func (m *Memory) Get(ctx context.Context, id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *task
	return &cp, nil
}

func (m *Memory) Enqueue(ctx context.Context, task *Task) error {
	if task == nil || task.ID == "" {
		return errors.New("task with id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return faults.Wrap(faults.ErrLedgerWrite, "ledger", "enqueue task", task.ID, errors.New("ledger unavailable"))
	}
	now := time.Now().UTC()
	cp := *task
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	cp.Status = StatusQueued
	m.tasks[cp.ID] = &cp
	return nil
}

func (m *Memory) NextEligible(ctx context.Context, now time.Time, includeStale bool) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		if task.Status == StatusQueued || (includeStale && task.Eligible(now)) {
			candidates = append(candidates, task)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

func (m *Memory) Claim(ctx context.Context, snapshot *Task, owner string, leaseUntil time.Time) (*Task, error) {
	if snapshot == nil {
		return nil, errors.New("snapshot is required")
	}
	if owner == "" {
		return nil, errors.New("owner token is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return nil, faults.Wrap(faults.ErrLedgerWrite, "ledger", "claim task", snapshot.ID, errors.New("ledger unavailable"))
	}
	stored, ok := m.tasks[snapshot.ID]
	if !ok || stored.Status != snapshot.Status || stored.LeaseOwner != snapshot.LeaseOwner {
		return nil, faults.Wrap(faults.ErrLeaseConflict, "ledger", "claim task", snapshot.ID, nil)
	}
	now := time.Now().UTC()
	expiry := leaseUntil.UTC()
	stored.Status = StatusClaimed
	stored.LeaseOwner = owner
	stored.LeaseExpiresAt = &expiry
	stored.ClaimedAt = &now
	stored.Attempts++
	stored.ErrorMessage = ""
	stored.UpdatedAt = now
	cp := *stored
	return &cp, nil
}

func (m *Memory) MarkInProgress(ctx context.Context, id, owner string) error {
	return m.conditional(id, "mark in progress", func(stored *Task) bool {
		return stored.Status == StatusClaimed && stored.LeaseOwner == owner
	}, func(stored *Task, now time.Time) {
		stored.Status = StatusInProgress
		stored.StageEnteredAt = &now
	})
}

func (m *Memory) RenewLease(ctx context.Context, id, owner string, leaseUntil time.Time) error {
	return m.conditional(id, "renew lease", func(stored *Task) bool {
		return (stored.Status == StatusClaimed || stored.Status == StatusInProgress) && stored.LeaseOwner == owner
	}, func(stored *Task, now time.Time) {
		expiry := leaseUntil.UTC()
		stored.LeaseExpiresAt = &expiry
	})
}

func (m *Memory) Complete(ctx context.Context, id, owner, documentKey, transcriptKey string) error {
	return m.conditional(id, "complete task", func(stored *Task) bool {
		return stored.Status == StatusInProgress && stored.LeaseOwner == owner
	}, func(stored *Task, now time.Time) {
		stored.Status = StatusDone
		stored.DocumentKey = documentKey
		stored.TranscriptKey = transcriptKey
		stored.CompletedAt = &now
		stored.LeaseOwner = ""
		stored.LeaseExpiresAt = nil
		stored.ErrorMessage = ""
	})
}

func (m *Memory) Fail(ctx context.Context, id, owner, reason string) error {
	if len(reason) > faults.MaxReasonLength {
		reason = reason[:faults.MaxReasonLength]
	}
	return m.conditional(id, "fail task", func(stored *Task) bool {
		return (stored.Status == StatusClaimed || stored.Status == StatusInProgress) && stored.LeaseOwner == owner
	}, func(stored *Task, now time.Time) {
		stored.Status = StatusFailed
		stored.ErrorMessage = reason
		stored.CompletedAt = &now
		stored.LeaseOwner = ""
		stored.LeaseExpiresAt = nil
	})
}

func (m *Memory) Requeue(ctx context.Context, id string) error {
	return m.conditional(id, "requeue task", func(stored *Task) bool {
		return stored.Status == StatusFailed
	}, func(stored *Task, now time.Time) {
		stored.Status = StatusQueued
		stored.ErrorMessage = ""
		stored.CompletedAt = nil
		stored.LeaseOwner = ""
		stored.LeaseExpiresAt = nil
	})
}

func (m *Memory) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	filter := make(map[Status]struct{}, len(statuses))
	for _, status := range statuses {
		filter[status] = struct{}{}
	}

	var tasks []*Task
	for _, task := range m.tasks {
		if len(filter) > 0 {
			if _, ok := filter[task.Status]; !ok {
				continue
			}
		}
		cp := *task
		tasks = append(tasks, &cp)
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (m *Memory) Summary(ctx context.Context) (Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var summary Summary
	for _, task := range m.tasks {
		summary.Total++
		switch task.Status {
		case StatusQueued:
			summary.Queued++
		case StatusClaimed:
			summary.Claimed++
		case StatusInProgress:
			summary.InProgress++
		case StatusDone:
			summary.Done++
		case StatusFailed:
			summary.Failed++
		}
	}
	return summary, nil
}

func (m *Memory) conditional(id, operation string, check func(*Task) bool, apply func(*Task, time.Time)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return faults.Wrap(faults.ErrLedgerWrite, "ledger", operation, id, errors.New("ledger unavailable"))
	}
	stored, ok := m.tasks[id]
	if !ok || !check(stored) {
		return faults.Wrap(faults.ErrLeaseConflict, "ledger", operation, id, nil)
	}
	now := time.Now().UTC()
	apply(stored, now)
	stored.UpdatedAt = now
	return nil
}
