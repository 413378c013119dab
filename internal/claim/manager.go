// Package claim implements the at-most-one-active-worker protocol over the
// task ledger: oldest-first candidate selection, optimistic-concurrency
// claims under a per-process owner token, and lease renewal while a task is
// being processed.
package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lectern/internal/config"
	"lectern/internal/faults"
	"lectern/internal/ledger"
	"lectern/internal/logging"
)

// A lost race is expected under contention; bounding the retries keeps one
// poll cycle from spinning against a hot queue.
const maxClaimAttempts = 5

// Manager claims and leases tasks for a single worker process.
type Manager struct {
	client       ledger.Client
	logger       *slog.Logger
	owner        string
	lease        time.Duration
	renewEvery   time.Duration
	reclaimStale bool
}

// NewManager builds a Manager with a fresh owner token.
func NewManager(client ledger.Client, cfg config.Worker, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		client:       client,
		logger:       logger.With(logging.String(logging.FieldComponent, "claim")),
		owner:        uuid.NewString(),
		lease:        time.Duration(cfg.LeaseSeconds) * time.Second,
		renewEvery:   time.Duration(cfg.LeaseRenewInterval) * time.Second,
		reclaimStale: cfg.ReclaimStale,
	}
}

// Owner returns this worker instance's lease owner token.
func (m *Manager) Owner() string {
	return m.owner
}

// LeaseDuration returns the configured lease length.
func (m *Manager) LeaseDuration() time.Duration {
	return m.lease
}

// ClaimNext selects and claims the next eligible task. A lost claim race is
// not an error: selection simply moves on to the next candidate. Nil with no
// error means the queue is empty.
func (m *Manager) ClaimNext(ctx context.Context) (*ledger.Task, error) {
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		now := time.Now().UTC()
		snapshot, err := m.client.NextEligible(ctx, now, m.reclaimStale)
		if err != nil {
			return nil, err
		}
		if snapshot == nil {
			return nil, nil
		}

		claimed, err := m.client.Claim(ctx, snapshot, m.owner, now.Add(m.lease))
		if errors.Is(err, faults.ErrLeaseConflict) {
			m.logger.Debug("lost claim race",
				logging.String(logging.FieldTaskID, snapshot.ID),
				logging.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		if snapshot.Status != ledger.StatusQueued {
			m.logger.Info("reclaimed stale lease",
				logging.String(logging.FieldTaskID, claimed.ID),
				logging.String("previous_owner", snapshot.LeaseOwner),
				logging.Int("attempts", claimed.Attempts))
		}
		return claimed, nil
	}
	return nil, nil
}

// ClaimTask claims one specific task for single-task processing. Unlike
// ClaimNext, an ineligible or missing task is an error here because the
// caller named it explicitly.
func (m *Manager) ClaimTask(ctx context.Context, id string) (*ledger.Task, error) {
	now := time.Now().UTC()
	snapshot, err := m.client.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("task %s not found", id)
	}
	if !snapshot.Eligible(now) {
		return nil, fmt.Errorf("task %s is %s and not claimable", id, snapshot.Status)
	}
	return m.client.Claim(ctx, snapshot, m.owner, now.Add(m.lease))
}

// StartRenewal keeps the lease on a task alive until the returned stop
// function runs or the context ends. Losing ownership stops renewal; the
// superseded pipeline run discovers the loss through its own rejected
// terminal write.
func (m *Manager) StartRenewal(ctx context.Context, taskID string) (stop func()) {
	renewCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	interval := m.renewEvery
	if interval <= 0 {
		interval = m.lease / 3
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
				err := m.client.RenewLease(renewCtx, taskID, m.owner, time.Now().UTC().Add(m.lease))
				if err == nil {
					continue
				}
				if errors.Is(err, faults.ErrLeaseConflict) {
					m.logger.Warn("lease ownership lost",
						logging.String(logging.FieldTaskID, taskID))
					return
				}
				if renewCtx.Err() != nil {
					return
				}
				m.logger.Warn("lease renewal failed",
					logging.String(logging.FieldTaskID, taskID),
					logging.Error(err))
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
