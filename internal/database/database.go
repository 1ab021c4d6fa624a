package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB is the SQLite store for reminders, timers and undelivered reminders.
// Times are stored as unix milliseconds in UTC.
type DB struct {
	*sql.DB
	path   string
	logger zerolog.Logger
}

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, logger zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serialises writers, so pops never race on the same rows.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{
		DB:     db,
		path:   path,
		logger: logger.With().Str("component", "database").Logger(),
	}

	if err := instance.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	instance.logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL,
			target_id INTEGER NOT NULL,
			message TEXT NOT NULL,
			due_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(due_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_owner ON reminders(owner_id, due_at)`,

		`CREATE TABLE IF NOT EXISTS timers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			stopped_at INTEGER,
			CHECK (stopped_at IS NULL OR stopped_at >= started_at)
		)`,
		// At most one running timer per (owner, name).
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_timers_running
			ON timers(owner_id, name) WHERE stopped_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_timers_owner ON timers(owner_id, started_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_timers_stopped ON timers(stopped_at) WHERE stopped_at IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS dead_letters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reminder_id INTEGER NOT NULL,
			owner_id INTEGER NOT NULL,
			target_id INTEGER NOT NULL,
			message TEXT NOT NULL,
			due_at INTEGER NOT NULL,
			reason TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			failed_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dead_letters_owner ON dead_letters(owner_id, failed_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
