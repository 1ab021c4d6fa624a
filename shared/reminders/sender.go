package reminders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"remindbot/internal/models"
)

// Outcome is the fate of a popped reminder. None of them is persisted on the reminder.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	// OutcomeDropped means the target refused the message; it is never retried.
	OutcomeDropped Outcome = "dropped"
	// OutcomeFailed means delivery was given up after retries or a permanent error.
	OutcomeFailed Outcome = "failed"
)

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelays: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			30 * time.Second,
		},
	}
}

func (c RetryConfig) delay(attempt int) time.Duration {
	if len(c.RetryDelays) == 0 {
		return time.Second
	}
	if attempt >= len(c.RetryDelays) {
		return c.RetryDelays[len(c.RetryDelays)-1]
	}
	return c.RetryDelays[attempt]
}

// SenderConfig holds configuration for the sender.
type SenderConfig struct {
	RateLimiter RateLimiterConfig
	Retry       RetryConfig
	// Timeout bounds a single send attempt. Expiry counts as a transient failure.
	Timeout time.Duration
}

// DefaultSenderConfig returns the default configuration.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		RateLimiter: DefaultRateLimiterConfig(),
		Retry:       DefaultRetryConfig(),
		Timeout:     10 * time.Second,
	}
}

// Result describes how a delivery attempt ended.
type Result struct {
	Outcome  Outcome
	Reason   models.DeadLetterReason
	Attempts int
	Err      error
}

// Sender delivers single reminders with rate limiting, a per-attempt timeout and retries.
type Sender struct {
	channel     Channel
	format      Formatter
	rateLimiter *RateLimiter
	retryConfig RetryConfig
	timeout     time.Duration
	metrics     *Metrics
	logger      zerolog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewSender creates a new reminder sender.
func NewSender(channel Channel, format Formatter, config SenderConfig, metrics *Metrics, logger zerolog.Logger) *Sender {
	if format == nil {
		format = DefaultFormat
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Sender{
		channel:     channel,
		format:      format,
		rateLimiter: NewRateLimiter(config.RateLimiter),
		retryConfig: config.Retry,
		timeout:     config.Timeout,
		metrics:     metrics,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// DefaultFormat renders a reminder as plain text.
func DefaultFormat(r models.Reminder) string {
	return fmt.Sprintf("⏰ Reminder: %s", r.Message)
}

// Deliver pushes one reminder to its target. It never returns early on a
// transient error before the retry budget is spent, and never retries a
// permission failure.
func (s *Sender) Deliver(ctx context.Context, r models.Reminder) Result {
	start := time.Now()
	defer func() {
		s.metrics.ObserveSendDuration(time.Since(start).Seconds())
	}()

	if !s.rateLimiter.TryAcquire() {
		s.metrics.IncRateLimitWaits()
		if err := s.rateLimiter.Wait(ctx); err != nil {
			return Result{Outcome: OutcomeFailed, Reason: models.ReasonCanceled, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	text := s.format(r)
	maxRetries := s.retryConfig.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := s.sendOnce(ctx, r.TargetID, text)
		if err == nil {
			return Result{Outcome: OutcomeDelivered, Attempts: attempt + 1}
		}
		lastErr = err

		if errors.Is(err, ErrPermissionDenied) {
			s.logger.Info().
				Int64("reminder_id", r.ID).
				Int64("target_id", r.TargetID).
				Err(err).
				Msg("delivery target refused reminder")
			return Result{Outcome: OutcomeDropped, Reason: models.ReasonPermissionDenied, Attempts: attempt + 1, Err: err}
		}

		delay := s.retryConfig.delay(attempt)
		if dErr, ok := IsDeliveryError(err); ok {
			if dErr.Permanent {
				s.logger.Error().
					Int64("reminder_id", r.ID).
					Int64("target_id", r.TargetID).
					Err(err).
					Msg("delivery rejected")
				return Result{Outcome: OutcomeFailed, Reason: models.ReasonRejected, Attempts: attempt + 1, Err: err}
			}
			if dErr.RetryAfter > 0 {
				delay = dErr.RetryAfter
			}
		}

		if ctx.Err() != nil {
			return Result{Outcome: OutcomeFailed, Reason: models.ReasonCanceled, Attempts: attempt + 1, Err: err}
		}

		if attempt < maxRetries {
			s.metrics.IncRetries()
			s.logger.Info().
				Int("attempt", attempt+1).
				Int("max_retries", maxRetries).
				Dur("delay", delay).
				Int64("reminder_id", r.ID).
				Err(err).
				Msg("retrying reminder send")

			if err := s.sleep(ctx, delay); err != nil {
				return Result{Outcome: OutcomeFailed, Reason: models.ReasonCanceled, Attempts: attempt + 1, Err: lastErr}
			}
		}
	}

	s.logger.Error().
		Int64("reminder_id", r.ID).
		Int64("owner_id", r.OwnerID).
		Err(lastErr).
		Msg("max retries exceeded for reminder")

	return Result{Outcome: OutcomeFailed, Reason: models.ReasonMaxRetries, Attempts: maxRetries + 1, Err: lastErr}
}

func (s *Sender) sendOnce(ctx context.Context, targetID int64, text string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.channel.Send(attemptCtx, targetID, text)
	if err == nil {
		return nil
	}
	if attemptCtx.Err() != nil && ctx.Err() == nil {
		return fmt.Errorf("send timed out after %s: %w", s.timeout, err)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
