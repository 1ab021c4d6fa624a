package reminders

import (
	"context"
	"time"

	"remindbot/internal/models"
)

// Store provides durable access to pending reminders.
type Store interface {
	// AddReminder persists a pending reminder created at createdAt and returns its ID.
	AddReminder(ctx context.Context, ownerID, targetID int64, message string, dueAt, createdAt time.Time) (int64, error)

	// ListReminders returns the owner's pending reminders ordered by due time.
	ListReminders(ctx context.Context, ownerID int64) ([]models.Reminder, error)

	// PopDueReminders removes and returns every reminder with DueAt <= now in one
	// atomic step. Concurrent callers never receive the same reminder.
	// The result is ordered by due time.
	PopDueReminders(ctx context.Context, now time.Time) ([]models.Reminder, error)

	// CountPending returns the number of pending reminders across all owners.
	CountPending(ctx context.Context) (int64, error)
}

// DeadLetterStore keeps reminders that were popped but not delivered.
type DeadLetterStore interface {
	AddDeadLetter(ctx context.Context, dl models.DeadLetter) error
}

// Channel pushes reminder text to a delivery target.
type Channel interface {
	// Send returns nil on success, an error wrapping ErrPermissionDenied when the
	// target refuses messages, or any other error for transient failures.
	// Send must return once ctx is done.
	Send(ctx context.Context, targetID int64, text string) error
}

// EventPublisher receives delivery outcome events.
type EventPublisher interface {
	Publish(evType string, payload interface{})
}

// Event types published by the scheduler.
const (
	EventDelivered = "reminder.delivered"
	EventDropped   = "reminder.dropped"
)

// DeliveryEvent is the payload of EventDelivered and EventDropped.
type DeliveryEvent struct {
	Reminder models.Reminder
	Outcome  Outcome
	Reason   models.DeadLetterReason
	Attempts int
}

// Formatter renders the text that is sent for a due reminder.
type Formatter func(r models.Reminder) string
