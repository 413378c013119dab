package ledger

import (
	"database/sql"
	"errors"
	"time"
)

const taskColumns = "id, owner_id, filename, input_key, status, error_message, document_key, transcript_key, lease_owner, lease_expires_at, attempts, created_at, updated_at, claimed_at, stage_entered_at, completed_at"

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id            string
		ownerID       sql.NullString
		filename      sql.NullString
		inputKey      sql.NullString
		statusStr     string
		errorMessage  sql.NullString
		documentKey   sql.NullString
		transcriptKey sql.NullString
		leaseOwner    sql.NullString
		leaseExpires  sql.NullString
		attempts      sql.NullInt64
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		claimedRaw    sql.NullString
		stageRaw      sql.NullString
		completedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&filename,
		&inputKey,
		&statusStr,
		&errorMessage,
		&documentKey,
		&transcriptKey,
		&leaseOwner,
		&leaseExpires,
		&attempts,
		&createdRaw,
		&updatedRaw,
		&claimedRaw,
		&stageRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:            id,
		OwnerID:       ownerID.String,
		Filename:      filename.String,
		InputKey:      inputKey.String,
		Status:        Status(statusStr),
		ErrorMessage:  errorMessage.String,
		DocumentKey:   documentKey.String,
		TranscriptKey: transcriptKey.String,
		LeaseOwner:    leaseOwner.String,
		Attempts:      int(attempts.Int64),
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		task.UpdatedAt = updated
	}
	task.LeaseExpiresAt = parseOptionalTime(leaseExpires)
	task.ClaimedAt = parseOptionalTime(claimedRaw)
	task.StageEnteredAt = parseOptionalTime(stageRaw)
	task.CompletedAt = parseOptionalTime(completedRaw)
	return task, nil
}

func parseOptionalTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
