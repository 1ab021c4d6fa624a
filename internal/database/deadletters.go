package database

import (
	"context"
	"database/sql"
	"fmt"

	"remindbot/internal/models"
)

// AddDeadLetter records a reminder that was popped but not delivered.
func (db *DB) AddDeadLetter(ctx context.Context, dl models.DeadLetter) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO dead_letters
			(reminder_id, owner_id, target_id, message, due_at, reason, attempts, last_error, failed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dl.ReminderID, dl.OwnerID, dl.TargetID, dl.Message, toMillis(dl.DueAt),
		string(dl.Reason), dl.Attempts, dl.LastError, toMillis(dl.FailedAt))
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns the owner's most recent undelivered reminders, newest first.
func (db *DB) ListDeadLetters(ctx context.Context, ownerID int64, limit int) ([]models.DeadLetter, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, reminder_id, owner_id, target_id, message, due_at, reason, attempts, last_error, failed_at
		FROM dead_letters
		WHERE owner_id = ?
		ORDER BY failed_at DESC, id DESC
		LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	var list []models.DeadLetter
	for rows.Next() {
		var (
			dl              models.DeadLetter
			reason          string
			lastErr         sql.NullString
			dueAt, failedAt int64
		)
		if err := rows.Scan(&dl.ID, &dl.ReminderID, &dl.OwnerID, &dl.TargetID, &dl.Message,
			&dueAt, &reason, &dl.Attempts, &lastErr, &failedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		dl.DueAt = fromMillis(dueAt)
		dl.FailedAt = fromMillis(failedAt)
		dl.Reason = models.DeadLetterReason(reason)
		dl.LastError = lastErr.String
		list = append(list, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letters: %w", err)
	}
	return list, nil
}
