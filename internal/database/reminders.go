package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"remindbot/internal/models"
)

const reminderColumns = `id, owner_id, target_id, message, due_at, created_at`

// AddReminder stores a pending reminder and returns its ID.
func (db *DB) AddReminder(ctx context.Context, ownerID, targetID int64, message string, dueAt, createdAt time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO reminders (owner_id, target_id, message, due_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		ownerID, targetID, message, toMillis(dueAt), toMillis(createdAt))
	if err != nil {
		return 0, fmt.Errorf("insert reminder: %w", err)
	}
	return res.LastInsertId()
}

// ListReminders returns the owner's pending reminders by due time.
func (db *DB) ListReminders(ctx context.Context, ownerID int64) ([]models.Reminder, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE owner_id = ? ORDER BY due_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	return scanReminders(rows)
}

// PopDueReminders deletes and returns every reminder with due_at <= now.
// The delete and the read are one statement, so overlapping callers never
// receive the same row.
func (db *DB) PopDueReminders(ctx context.Context, now time.Time) ([]models.Reminder, error) {
	rows, err := db.QueryContext(ctx,
		`DELETE FROM reminders WHERE due_at <= ? RETURNING `+reminderColumns, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("pop due reminders: %w", err)
	}
	defer rows.Close()

	due, err := scanReminders(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING has no defined order.
	sort.Slice(due, func(i, j int) bool {
		if due[i].DueAt.Equal(due[j].DueAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].DueAt.Before(due[j].DueAt)
	})
	return due, nil
}

// CountPending returns the number of stored reminders.
func (db *DB) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reminders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reminders: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanReminders(rows rowScanner) ([]models.Reminder, error) {
	var list []models.Reminder
	for rows.Next() {
		var (
			r              models.Reminder
			due, createdAt int64
		)
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.TargetID, &r.Message, &due, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.DueAt = fromMillis(due)
		r.CreatedAt = fromMillis(createdAt)
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reminders: %w", err)
	}
	return list, nil
}
