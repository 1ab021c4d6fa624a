// Package timefmt holds the small time helpers shared by the reminder and timer commands.
package timefmt

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// InstantLayout is how absolute times are shown to users. All instants are UTC.
const InstantLayout = "2006-01-02 15:04:05"

// dueLayout is the absolute form accepted by ParseDue.
const dueLayout = "2006-01-02 15:04"

var (
	ErrEmptyDue   = errors.New("missing time")
	ErrInvalidDue = errors.New("unrecognised time, use e.g. 10m, 1h30m or 2006-01-02 15:04")
	ErrPastDue    = errors.New("time must be in the future")
)

// FormatDuration renders d as "1d 2h 3m 4s", dropping the day part when it is zero.
// Negative durations are treated as zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	total %= 86400
	hours := total / 3600
	total %= 3600
	minutes := total / 60
	seconds := total % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

// FormatInstant renders t in UTC with a trailing zone marker.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantLayout) + " UTC"
}

// ParseDue reads a due time from the start of args and returns it with the remaining text.
// Accepted forms are a Go duration ("10m", "1h30m") relative to now, or an absolute
// UTC date and time ("2025-01-02 15:04"). The result is strictly after now.
func ParseDue(now time.Time, args string) (time.Time, string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return time.Time{}, "", ErrEmptyDue
	}

	var (
		due      time.Time
		consumed int
	)
	if d, err := time.ParseDuration(fields[0]); err == nil {
		due = now.Add(d)
		consumed = 1
	} else if len(fields) >= 2 {
		t, perr := time.ParseInLocation(dueLayout, fields[0]+" "+fields[1], time.UTC)
		if perr != nil {
			return time.Time{}, "", ErrInvalidDue
		}
		due = t
		consumed = 2
	} else {
		return time.Time{}, "", ErrInvalidDue
	}

	if !due.After(now) {
		return time.Time{}, "", ErrPastDue
	}
	rest := strings.Join(fields[consumed:], " ")
	return due.UTC(), rest, nil
}
