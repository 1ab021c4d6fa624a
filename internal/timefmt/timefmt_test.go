package timefmt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0h 0m 0s"},
		{59 * time.Second, "0h 0m 59s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
		{26*time.Hour + 4*time.Second, "1d 2h 0m 4s"},
		{1500 * time.Millisecond, "0h 0m 1s"},
		{-time.Minute, "0h 0m 0s"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDuration(tt.in))
		})
	}
}

func TestFormatInstant(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	ts := time.Date(2025, 1, 16, 15, 4, 5, 0, loc)
	assert.Equal(t, "2025-01-16 12:04:05 UTC", FormatInstant(ts))
}

func TestParseDue(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	t.Run("Duration", func(t *testing.T) {
		due, rest, err := ParseDue(now, "10m  take the bread out")
		require.NoError(t, err)
		assert.Equal(t, now.Add(10*time.Minute), due)
		assert.Equal(t, "take the bread out", rest)
	})

	t.Run("Absolute", func(t *testing.T) {
		due, rest, err := ParseDue(now, "2025-01-16 09:30 standup")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 1, 16, 9, 30, 0, 0, time.UTC), due)
		assert.Equal(t, "standup", rest)
	})

	t.Run("NoMessage", func(t *testing.T) {
		_, rest, err := ParseDue(now, "1h")
		require.NoError(t, err)
		assert.Empty(t, rest)
	})

	t.Run("Errors", func(t *testing.T) {
		_, _, err := ParseDue(now, "   ")
		assert.ErrorIs(t, err, ErrEmptyDue)

		_, _, err = ParseDue(now, "tomorrow")
		assert.ErrorIs(t, err, ErrInvalidDue)

		_, _, err = ParseDue(now, "soon please")
		assert.ErrorIs(t, err, ErrInvalidDue)

		_, _, err = ParseDue(now, "-5m late")
		assert.ErrorIs(t, err, ErrPastDue)

		_, _, err = ParseDue(now, "2025-01-15 12:00 now")
		assert.ErrorIs(t, err, ErrPastDue)
	})
}
