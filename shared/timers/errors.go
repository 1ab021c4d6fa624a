package timers

import (
	"errors"
	"fmt"

	"remindbot/internal/models"
)

var (
	// ErrNotFound is returned by Stop when the owner has no running timer with that name.
	ErrNotFound = models.ErrTimerNotFound

	// ErrConflict is returned by Start when a timer with that name is already running.
	ErrConflict = models.ErrTimerRunning

	// ErrInvalidName is returned for empty or overlong timer names.
	ErrInvalidName = errors.New("invalid timer name")

	// ErrDependency marks failures of the store. The underlying cause stays in the chain.
	ErrDependency = errors.New("timer store unavailable")
)

func dependency(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrDependency, err)
}
