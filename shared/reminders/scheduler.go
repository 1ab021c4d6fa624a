package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SchedulerConfig holds configuration for the reminder scheduler.
type SchedulerConfig struct {
	// ScanInterval is how often due reminders are popped and delivered.
	ScanInterval time.Duration
	// MaxConcurrentDeliveries limits how many targets are served in parallel.
	MaxConcurrentDeliveries int
	// Sender configures rate limiting, retries and the per-attempt timeout.
	Sender SenderConfig
	// Format renders the delivered text. DefaultFormat when nil.
	Format Formatter
	// Now returns the current time. time.Now when nil.
	Now func() time.Time
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ScanInterval:            60 * time.Second,
		MaxConcurrentDeliveries: 10,
		Sender:                  DefaultSenderConfig(),
	}
}

type scanState int32

const (
	scanIdle scanState = iota
	scanRunning
)

// Scheduler owns the reminder lifecycle: creation, listing and the periodic
// pop-and-deliver scan.
type Scheduler struct {
	config      SchedulerConfig
	store       Store
	deadLetters DeadLetterStore
	sender      *Sender
	events      EventPublisher
	metrics     *Metrics
	logger      zerolog.Logger

	state atomic.Int32

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler creates a new reminder scheduler. deadLetters and metrics may be nil.
func NewScheduler(
	config SchedulerConfig,
	store Store,
	channel Channel,
	deadLetters DeadLetterStore,
	metrics *Metrics,
	logger zerolog.Logger,
) *Scheduler {
	if config.ScanInterval <= 0 {
		config.ScanInterval = 60 * time.Second
	}
	if config.MaxConcurrentDeliveries <= 0 {
		config.MaxConcurrentDeliveries = 10
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	logger = logger.With().Str("component", "reminders").Logger()
	return &Scheduler{
		config:      config,
		store:       store,
		deadLetters: deadLetters,
		sender:      NewSender(channel, config.Format, config.Sender, metrics, logger),
		metrics:     metrics,
		logger:      logger,
	}
}

// SetEventPublisher attaches a publisher for delivery outcome events.
func (s *Scheduler) SetEventPublisher(p EventPublisher) {
	s.events = p
}

// Start registers the periodic scan and starts triggering it.
// Ticks that fire while a scan is running are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	cl := cronLogger{logger: s.logger, metrics: s.metrics}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	schedule := fmt.Sprintf("@every %s", s.config.ScanInterval)
	if _, err := c.AddFunc(schedule, func() { s.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule reminder scan: %w", err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.logger.Info().
		Dur("interval", s.config.ScanInterval).
		Int("max_concurrent", s.config.MaxConcurrentDeliveries).
		Msg("reminder scheduler started")
	return nil
}

// Stop stops triggering scans and waits for a running scan to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	wasRunning := s.running
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if !wasRunning || c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info().Msg("reminder scheduler stopped")
}

// IsRunning returns whether the periodic trigger is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow forces an immediate scan outside the periodic trigger.
func (s *Scheduler) RunNow(ctx context.Context) (ScanReport, error) {
	s.logger.Info().Msg("manual reminder scan triggered")
	return s.ScanAndDeliver(ctx)
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.ScanAndDeliver(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrScanInProgress):
		s.logger.Debug().Msg("previous scan still running, tick skipped")
	default:
		s.logger.Error().Err(err).Msg("reminder scan failed, retrying next tick")
	}
}

func (s *Scheduler) tryBeginScan() bool {
	return s.state.CompareAndSwap(int32(scanIdle), int32(scanRunning))
}

func (s *Scheduler) endScan() {
	s.state.Store(int32(scanIdle))
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger  zerolog.Logger
	metrics *Metrics
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.metrics.IncScansSkipped()
		l.logger.Debug().Fields(keysAndValues).Msg("cron: previous run still active")
		return
	}
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
