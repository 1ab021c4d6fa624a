package reminders

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDependency marks failures of the store. The underlying cause stays in the chain.
	ErrDependency = errors.New("reminder store unavailable")

	// ErrPermissionDenied is returned by a Channel when the target refuses the message.
	// Reminders failing with it are dropped without retry.
	ErrPermissionDenied = errors.New("delivery permission denied")

	// ErrScanInProgress is returned when a scan is requested while another is running.
	ErrScanInProgress = errors.New("reminder scan already in progress")
)

// DeliveryError carries delivery hints from a Channel.
type DeliveryError struct {
	Err error
	// RetryAfter overrides the configured retry delay when positive.
	RetryAfter time.Duration
	// Permanent errors are not retried.
	Permanent bool
}

func (e *DeliveryError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("permanent delivery error: %v", e.Err)
	}
	return fmt.Sprintf("delivery error: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsDeliveryError checks if the error chain contains a DeliveryError.
func IsDeliveryError(err error) (*DeliveryError, bool) {
	var dErr *DeliveryError
	if errors.As(err, &dErr) {
		return dErr, true
	}
	return nil, false
}

func dependency(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrDependency, err)
}
