package reminders

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	// Rate is the number of sends allowed per second. Zero disables limiting.
	Rate float64
	// Burst is the maximum number of sends allowed at once.
	Burst int
	// JitterMin is the minimum jitter delay in milliseconds.
	JitterMin int
	// JitterMax is the maximum jitter delay in milliseconds.
	JitterMax int
}

// DefaultRateLimiterConfig returns the default configuration.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Rate:      20.0, // Telegram allows ~30 msg/s per bot
		Burst:     30,
		JitterMin: 0,
		JitterMax: 50,
	}
}

// RateLimiter paces outgoing sends with a token bucket plus random jitter.
type RateLimiter struct {
	config  RateLimiterConfig
	limiter *rate.Limiter
	mu      sync.Mutex
	rng     *rand.Rand
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	limit := rate.Inf
	if config.Rate > 0 {
		limit = rate.Limit(config.Rate)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(limit, burst),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait blocks until a send is allowed or the context is cancelled.
// Returns nil on success, context.Err() on cancellation.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if jitter := r.getJitter(); jitter > 0 {
		t := time.NewTimer(jitter)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return r.limiter.Wait(ctx)
}

// TryAcquire attempts to acquire a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	return r.limiter.Allow()
}

func (r *RateLimiter) getJitter() time.Duration {
	if r.config.JitterMax <= r.config.JitterMin {
		return time.Duration(r.config.JitterMin) * time.Millisecond
	}

	r.mu.Lock()
	jitterMs := r.config.JitterMin + r.rng.Intn(r.config.JitterMax-r.config.JitterMin)
	r.mu.Unlock()

	return time.Duration(jitterMs) * time.Millisecond
}
