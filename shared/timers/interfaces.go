package timers

import (
	"context"
	"io"
	"time"

	"remindbot/internal/models"
)

// Filter selects which timers List returns.
type Filter = models.TimerFilter

const (
	All     = models.TimersAll
	Running = models.TimersRunning
	Stopped = models.TimersStopped
)

// Store provides durable access to timers.
type Store interface {
	// StartTimer inserts a running timer. It returns ErrConflict when the owner
	// already has a running timer with the same name; the check and the insert
	// are one atomic step.
	StartTimer(ctx context.Context, ownerID int64, name string, startedAt time.Time) (*models.Timer, error)

	// StopTimer stops the owner's running timer with that name. If several match,
	// the one started first (then lowest ID) is stopped. Returns ErrNotFound and
	// changes nothing when none is running.
	StopTimer(ctx context.Context, ownerID int64, name string, stoppedAt time.Time) (*models.Timer, error)

	// ListTimers returns the owner's timers matching filter ordered by StartedAt, ID.
	ListTimers(ctx context.Context, ownerID int64, filter Filter) ([]models.Timer, error)

	// DeleteStoppedBefore removes stopped timers with StoppedAt before cutoff.
	DeleteStoppedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SheetWriter writes tabular data to a single-sheet spreadsheet.
type SheetWriter interface {
	WriteHeader(columns []string) error
	WriteRow(row []interface{}) error
	Save(w io.Writer) error
	Close() error
}

// EventPublisher receives timer lifecycle events.
type EventPublisher interface {
	Publish(evType string, payload interface{})
}

// Event types published by the tracker.
const (
	EventStarted = "timer.started"
	EventStopped = "timer.stopped"
)

// TimerEvent is the payload of EventStarted and EventStopped.
type TimerEvent struct {
	Timer   models.Timer
	Elapsed time.Duration
}
