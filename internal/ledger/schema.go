package ledger

import (
	"context"
	"fmt"
)

const schemaVersion = 1

const createTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    owner_id TEXT,
    filename TEXT,
    input_key TEXT,
    status TEXT NOT NULL,
    error_message TEXT,
    document_key TEXT,
    transcript_key TEXT,
    lease_owner TEXT,
    lease_expires_at TEXT,
    attempts INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    claimed_at TEXT,
    stage_entered_at TEXT,
    completed_at TEXT
)`

const createStatusIndex = `
CREATE INDEX IF NOT EXISTS idx_tasks_status_created ON tasks (status, created_at)`

const createSchemaTable = `
CREATE TABLE IF NOT EXISTS schema_info (
    version INTEGER NOT NULL
)`

func (s *Store) applySchema(ctx context.Context) error {
	for _, stmt := range []string{createTasksTable, createStatusIndex, createSchemaTable} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	var version int
	row := s.db.QueryRowContext(ctx, `SELECT version FROM schema_info LIMIT 1`)
	if err := row.Scan(&version); err != nil {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_info (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	}
	if version > schemaVersion {
		return fmt.Errorf("ledger database schema version %d is newer than supported version %d", version, schemaVersion)
	}
	return nil
}
