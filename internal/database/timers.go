package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"remindbot/internal/models"
)

const timerColumns = `id, owner_id, name, started_at, stopped_at`

// StartTimer inserts a running timer. The partial unique index on running
// timers turns a duplicate start into models.ErrTimerRunning.
func (db *DB) StartTimer(ctx context.Context, ownerID int64, name string, startedAt time.Time) (*models.Timer, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO timers (owner_id, name, started_at) VALUES (?, ?, ?)`,
		ownerID, name, toMillis(startedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrTimerRunning
		}
		return nil, fmt.Errorf("insert timer: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("timer id: %w", err)
	}
	return &models.Timer{
		ID:        id,
		OwnerID:   ownerID,
		Name:      name,
		StartedAt: fromMillis(toMillis(startedAt)),
	}, nil
}

// StopTimer stops the earliest running timer with that name in one statement.
func (db *DB) StopTimer(ctx context.Context, ownerID int64, name string, stoppedAt time.Time) (*models.Timer, error) {
	row := db.QueryRowContext(ctx, `
		UPDATE timers SET stopped_at = MAX(?, started_at)
		WHERE id = (
			SELECT id FROM timers
			WHERE owner_id = ? AND name = ? AND stopped_at IS NULL
			ORDER BY started_at, id
			LIMIT 1
		)
		RETURNING `+timerColumns,
		toMillis(stoppedAt), ownerID, name)

	t, err := scanTimer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTimerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stop timer: %w", err)
	}
	return t, nil
}

// ListTimers returns the owner's timers matching filter ordered by start time.
func (db *DB) ListTimers(ctx context.Context, ownerID int64, filter models.TimerFilter) ([]models.Timer, error) {
	query := `SELECT ` + timerColumns + ` FROM timers WHERE owner_id = ?`
	switch filter {
	case models.TimersRunning:
		query += ` AND stopped_at IS NULL`
	case models.TimersStopped:
		query += ` AND stopped_at IS NOT NULL`
	}
	query += ` ORDER BY started_at, id`

	rows, err := db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query timers: %w", err)
	}
	defer rows.Close()

	var list []models.Timer
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		list = append(list, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timers: %w", err)
	}
	return list, nil
}

// DeleteStoppedBefore removes stopped timers with stopped_at before cutoff.
func (db *DB) DeleteStoppedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM timers WHERE stopped_at IS NOT NULL AND stopped_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete stopped timers: %w", err)
	}
	return res.RowsAffected()
}

func scanTimer(row interface{ Scan(dest ...any) error }) (*models.Timer, error) {
	var (
		t         models.Timer
		startedAt int64
		stoppedAt sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &startedAt, &stoppedAt); err != nil {
		return nil, err
	}
	t.StartedAt = fromMillis(startedAt)
	if stoppedAt.Valid {
		at := fromMillis(stoppedAt.Int64)
		t.StoppedAt = &at
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
