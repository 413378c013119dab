package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"lectern/internal/config"
	"lectern/internal/faults"
)

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var _ Client = (*Store)(nil)

// Open initializes or connects to the ledger database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "ledger.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the on-disk location of the ledger database.
func (s *Store) Path() string {
	return s.path
}

// Get fetches a task by identifier.
func (s *Store) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrLedgerWrite, "ledger", "get task", id, err)
	}
	return task, nil
}

// Enqueue inserts a new task in StatusQueued.
func (s *Store) Enqueue(ctx context.Context, task *Task) error {
	if task == nil || task.ID == "" {
		return errors.New("task with id is required")
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	task.Status = StatusQueued

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tasks (
            id, owner_id, filename, input_key, status, attempts, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		task.ID,
		nullableString(task.OwnerID),
		nullableString(task.Filename),
		nullableString(task.InputKey),
		task.Status,
		task.CreatedAt.Format(time.RFC3339Nano),
		task.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return faults.Wrap(faults.ErrLedgerWrite, "ledger", "enqueue task", task.ID, err)
	}
	return nil
}

// NextEligible returns the oldest queued task, optionally considering tasks
// stuck under an expired lease, or nil when neither exists.
func (s *Store) NextEligible(ctx context.Context, now time.Time, includeStale bool) (*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = ?`
	args := []any{StatusQueued}
	if includeStale {
		query += ` OR (status IN (?, ?) AND lease_expires_at IS NOT NULL AND lease_expires_at < ?)`
		args = append(args, StatusClaimed, StatusInProgress, now.UTC().Format(time.RFC3339Nano))
	}
	query += ` ORDER BY created_at ASC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrLedgerWrite, "ledger", "next eligible", "", err)
	}
	return task, nil
}

// Claim performs the conditional claim transition. The write succeeds only
// when the stored status and lease owner still match the snapshot the caller
// read; otherwise another worker won the race and faults.ErrLeaseConflict is
// returned.
func (s *Store) Claim(ctx context.Context, snapshot *Task, owner string, leaseUntil time.Time) (*Task, error) {
	if snapshot == nil {
		return nil, errors.New("snapshot is required")
	}
	if owner == "" {
		return nil, errors.New("owner token is required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tasks
         SET status = ?, lease_owner = ?, lease_expires_at = ?, claimed_at = ?,
             attempts = attempts + 1, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND COALESCE(lease_owner, '') = ?`,
		StatusClaimed,
		owner,
		leaseUntil.UTC().Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		snapshot.ID,
		snapshot.Status,
		snapshot.LeaseOwner,
	)
	if err != nil {
		return nil, faults.Wrap(faults.ErrLedgerWrite, "ledger", "claim task", snapshot.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, faults.Wrap(faults.ErrLedgerWrite, "ledger", "claim task", snapshot.ID, err)
	}
	if affected == 0 {
		return nil, faults.Wrap(faults.ErrLeaseConflict, "ledger", "claim task", snapshot.ID, nil)
	}
	return s.Get(ctx, snapshot.ID)
}

// MarkInProgress moves a claimed task to StatusInProgress, conditional on the
// lease owner.
func (s *Store) MarkInProgress(ctx context.Context, id, owner string) error {
	now := time.Now().UTC()
	return s.conditionalUpdate(
		ctx, "mark in progress", id,
		`UPDATE tasks
         SET status = ?, stage_entered_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND lease_owner = ?`,
		StatusInProgress,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
		StatusClaimed,
		owner,
	)
}

// RenewLease extends the lease expiry, conditional on the lease owner.
func (s *Store) RenewLease(ctx context.Context, id, owner string, leaseUntil time.Time) error {
	return s.conditionalUpdate(
		ctx, "renew lease", id,
		`UPDATE tasks
         SET lease_expires_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?) AND lease_owner = ?`,
		leaseUntil.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusClaimed,
		StatusInProgress,
		owner,
	)
}

// Complete records the done state, stores output keys, and releases the lease.
func (s *Store) Complete(ctx context.Context, id, owner, documentKey, transcriptKey string) error {
	now := time.Now().UTC()
	return s.conditionalUpdate(
		ctx, "complete task", id,
		`UPDATE tasks
         SET status = ?, document_key = ?, transcript_key = ?, completed_at = ?,
             lease_owner = NULL, lease_expires_at = NULL, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND lease_owner = ?`,
		StatusDone,
		nullableString(documentKey),
		nullableString(transcriptKey),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
		StatusInProgress,
		owner,
	)
}

// Fail records the failed state with a bounded reason and releases the lease.
func (s *Store) Fail(ctx context.Context, id, owner, reason string) error {
	if len(reason) > faults.MaxReasonLength {
		reason = reason[:faults.MaxReasonLength]
	}
	now := time.Now().UTC()
	return s.conditionalUpdate(
		ctx, "fail task", id,
		`UPDATE tasks
         SET status = ?, error_message = ?, completed_at = ?,
             lease_owner = NULL, lease_expires_at = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?) AND lease_owner = ?`,
		StatusFailed,
		nullableString(reason),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
		StatusClaimed,
		StatusInProgress,
		owner,
	)
}

// Requeue moves a failed task back to StatusQueued for another attempt.
func (s *Store) Requeue(ctx context.Context, id string) error {
	return s.conditionalUpdate(
		ctx, "requeue task", id,
		`UPDATE tasks
         SET status = ?, error_message = NULL, completed_at = NULL,
             lease_owner = NULL, lease_expires_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusQueued,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusFailed,
	)
}

// List returns tasks filtered by status set, ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrLedgerWrite, "ledger", "list tasks", "", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Summary returns aggregate task counts per lifecycle state.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return Summary{}, faults.Wrap(faults.ErrLedgerWrite, "ledger", "summary", "", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Summary{}, err
		}
		summary.Total += count
		switch Status(status) {
		case StatusQueued:
			summary.Queued = count
		case StatusClaimed:
			summary.Claimed = count
		case StatusInProgress:
			summary.InProgress = count
		case StatusDone:
			summary.Done = count
		case StatusFailed:
			summary.Failed = count
		}
	}
	return summary, rows.Err()
}

func (s *Store) conditionalUpdate(ctx context.Context, operation, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return faults.Wrap(faults.ErrLedgerWrite, "ledger", operation, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return faults.Wrap(faults.ErrLedgerWrite, "ledger", operation, id, err)
	}
	if affected == 0 {
		return faults.Wrap(faults.ErrLeaseConflict, "ledger", operation, id, nil)
	}
	return nil
}
