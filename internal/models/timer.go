package models

import (
	"errors"
	"time"
)

var (
	ErrTimerNotFound = errors.New("timer not found")
	ErrTimerRunning  = errors.New("timer already running")
)

// Timer is a named open interval. It is running while StoppedAt is nil;
// once stopped it never runs again.
type Timer struct {
	ID        int64
	OwnerID   int64
	Name      string
	StartedAt time.Time
	StoppedAt *time.Time
}

// Running reports whether the timer has not been stopped yet.
func (t Timer) Running() bool {
	return t.StoppedAt == nil
}

// Elapsed returns the measured duration. Running timers are measured up to now.
// The result is never negative.
func (t Timer) Elapsed(now time.Time) time.Duration {
	end := now
	if t.StoppedAt != nil {
		end = *t.StoppedAt
	}
	d := end.Sub(t.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// TimerFilter selects which timers a listing returns.
type TimerFilter int

const (
	TimersAll TimerFilter = iota
	TimersRunning
	TimersStopped
)

func (f TimerFilter) String() string {
	switch f {
	case TimersRunning:
		return "running"
	case TimersStopped:
		return "stopped"
	default:
		return "all"
	}
}

// Match reports whether t passes the filter.
func (f TimerFilter) Match(t Timer) bool {
	switch f {
	case TimersRunning:
		return t.Running()
	case TimersStopped:
		return !t.Running()
	default:
		return true
	}
}
