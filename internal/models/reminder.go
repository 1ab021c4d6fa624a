package models

import "time"

// Reminder is a one-shot message that is pushed to TargetID once DueAt has passed.
// A stored reminder is always pending; delivery removes it.
type Reminder struct {
	ID        int64
	OwnerID   int64
	TargetID  int64
	Message   string
	DueAt     time.Time
	CreatedAt time.Time
}

// IsDue reports whether the reminder should be picked up by a scan at now.
func (r Reminder) IsDue(now time.Time) bool {
	return !r.DueAt.After(now)
}

// DeadLetterReason describes why a popped reminder was not delivered.
type DeadLetterReason string

const (
	ReasonPermissionDenied DeadLetterReason = "permission_denied"
	ReasonRejected         DeadLetterReason = "rejected"
	ReasonMaxRetries       DeadLetterReason = "max_retries_exceeded"
	ReasonCanceled         DeadLetterReason = "canceled"
)

// DeadLetter records a reminder that left the pending set without being delivered.
type DeadLetter struct {
	ID         int64
	ReminderID int64
	OwnerID    int64
	TargetID   int64
	Message    string
	DueAt      time.Time
	Reason     DeadLetterReason
	Attempts   int
	LastError  string
	FailedAt   time.Time
}

// NewDeadLetter builds a dead letter from the reminder it replaces.
func NewDeadLetter(r Reminder, reason DeadLetterReason, attempts int, lastErr error, at time.Time) DeadLetter {
	dl := DeadLetter{
		ReminderID: r.ID,
		OwnerID:    r.OwnerID,
		TargetID:   r.TargetID,
		Message:    r.Message,
		DueAt:      r.DueAt,
		Reason:     reason,
		Attempts:   attempts,
		FailedAt:   at,
	}
	if lastErr != nil {
		dl.LastError = lastErr.Error()
	}
	return dl
}
