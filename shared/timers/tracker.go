package timers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"remindbot/internal/models"
)

// MaxNameLength is the longest accepted timer name, in characters.
const MaxNameLength = 100

// Tracker starts, stops and lists named timers.
type Tracker struct {
	store     Store
	metrics   *Metrics
	logger    zerolog.Logger
	now       func() time.Time
	newWriter func(sheet string) (SheetWriter, error)
	events    EventPublisher
}

// NewTracker creates a timer tracker. metrics may be nil.
func NewTracker(store Store, metrics *Metrics, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:     store,
		metrics:   metrics,
		logger:    logger.With().Str("component", "timers").Logger(),
		now:       time.Now,
		newWriter: NewExcelizeWriter,
	}
}

// SetEventPublisher attaches a publisher for timer lifecycle events.
func (t *Tracker) SetEventPublisher(p EventPublisher) {
	t.events = p
}

func (t *Tracker) publish(evType string, ev TimerEvent) {
	if t.events == nil {
		return
	}
	t.events.Publish(evType, ev)
}

// NormalizeName trims the name and validates it.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameLength)
	}
	return name, nil
}

// Start begins a new timer. It fails with ErrConflict if a timer with the same
// name is already running for the owner.
func (t *Tracker) Start(ctx context.Context, ownerID int64, name string) (*models.Timer, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	timer, err := t.store.StartTimer(ctx, ownerID, name, t.now().UTC())
	if err != nil {
		if errors.Is(err, ErrConflict) {
			t.metrics.incConflict()
			return nil, err
		}
		return nil, dependency("start timer", err)
	}

	t.metrics.incStarted()
	t.logger.Debug().
		Int64("timer_id", timer.ID).
		Int64("owner_id", ownerID).
		Str("name", name).
		Msg("timer started")
	t.publish(EventStarted, TimerEvent{Timer: *timer})
	return timer, nil
}

// Stop ends the owner's running timer with that name and returns it with its
// elapsed duration. It fails with ErrNotFound and changes nothing if none is running.
func (t *Tracker) Stop(ctx context.Context, ownerID int64, name string) (*models.Timer, time.Duration, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, 0, err
	}

	timer, err := t.store.StopTimer(ctx, ownerID, name, t.now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, 0, err
		}
		return nil, 0, dependency("stop timer", err)
	}

	elapsed := timer.Elapsed(*timer.StoppedAt)
	t.metrics.observeStopped(elapsed.Seconds())
	t.logger.Debug().
		Int64("timer_id", timer.ID).
		Int64("owner_id", ownerID).
		Str("name", name).
		Dur("elapsed", elapsed).
		Msg("timer stopped")
	t.publish(EventStopped, TimerEvent{Timer: *timer, Elapsed: elapsed})
	return timer, elapsed, nil
}

// List returns the owner's timers matching filter ordered by start time.
func (t *Tracker) List(ctx context.Context, ownerID int64, filter Filter) ([]models.Timer, error) {
	list, err := t.store.ListTimers(ctx, ownerID, filter)
	if err != nil {
		return nil, dependency("list timers", err)
	}
	return list, nil
}

// Cleanup removes stopped timers that stopped more than olderThan ago.
func (t *Tracker) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := t.now().UTC().Add(-olderThan)
	n, err := t.store.DeleteStoppedBefore(ctx, cutoff)
	if err != nil {
		return 0, dependency("delete stopped timers", err)
	}
	t.metrics.addCleaned(n)
	if n > 0 {
		t.logger.Info().
			Int64("deleted", n).
			Time("cutoff", cutoff).
			Msg("old timers cleaned up")
	}
	return n, nil
}
