package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/models"
)

func TestScanReportsDuration(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := NewMockReminderStore()
	ctx := context.Background()
	_, _ = store.AddReminder(ctx, 1, 10, "slow", now.Add(-time.Minute), now)

	ch := newFakeChannel(func(ctx context.Context, targetID int64, call int) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	s := newTestScheduler(t, now, store, ch)

	report, err := s.RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.GreaterOrEqual(t, report.Duration, 20*time.Millisecond)
}

func TestScanDeliversOnlyDueReminders(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := NewMockReminderStore()
	ch := newFakeChannel(nil)
	ctx := context.Background()

	_, _ = store.AddReminder(ctx, 1, 10, "ping", now.Add(-time.Minute), now)
	_, _ = store.AddReminder(ctx, 1, 10, "exactly now", now, now)
	_, _ = store.AddReminder(ctx, 1, 10, "future", now.Add(time.Hour), now)

	s := newTestScheduler(t, now, store, ch)

	report, err := s.ScanAndDeliver(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Popped)
	assert.Equal(t, 2, report.Delivered)
	assert.Zero(t, report.Dropped)
	assert.Zero(t, report.Failed)

	sent := ch.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, sentMessage{TargetID: 10, Text: "ping"}, sent[0])
	assert.Equal(t, sentMessage{TargetID: 10, Text: "exactly now"}, sent[1])

	pending, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "future", pending[0].Message)

	// Delivered reminders are gone; a second scan finds nothing.
	report, err = s.ScanAndDeliver(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Popped)
	assert.Len(t, ch.Sent(), 2)
}

func TestScanPermissionDeniedIsIsolated(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := NewMockReminderStore()
	ctx := context.Background()

	idA, _ := store.AddReminder(ctx, 1, 100, "A", now.Add(-3*time.Minute), now)
	_, _ = store.AddReminder(ctx, 1, 200, "B", now.Add(-2*time.Minute), now)
	_, _ = store.AddReminder(ctx, 1, 300, "C", now.Add(-time.Minute), now)

	ch := newFakeChannel(func(ctx context.Context, targetID int64, call int) error {
		if targetID == 100 {
			return fmt.Errorf("bot was blocked by the user: %w", ErrPermissionDenied)
		}
		return nil
	})
	s := newTestScheduler(t, now, store, ch)

	report, err := s.ScanAndDeliver(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Popped)
	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, 1, report.Dropped)

	assert.Equal(t, 1, ch.Calls(100), "permission failures are never retried")
	assert.Equal(t, 1, ch.Calls(200))
	assert.Equal(t, 1, ch.Calls(300))

	dls := store.DeadLetters()
	require.Len(t, dls, 1)
	assert.Equal(t, idA, dls[0].ReminderID)
	assert.Equal(t, models.ReasonPermissionDenied, dls[0].Reason)
	assert.Equal(t, 1, dls[0].Attempts)
	assert.Contains(t, dls[0].LastError, "blocked")

	// Dropped reminders do not come back.
	report, err = s.ScanAndDeliver(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Popped)
}

func TestScanRetriesTransientFailures(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := NewMockReminderStore()
	ctx := context.Background()
	_, _ = store.AddReminder(ctx, 1, 10, "flaky", now.Add(-time.Minute), now)

	ch := newFakeChannel(func(ctx context.Context, targetID int64, call int) error {
		if call < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	reg := prometheus.NewRegistry()
	cfg := testSchedulerConfig(now)
	s := NewScheduler(cfg, store, ch, store, NewMetrics("test", reg), zerolog.Nop())

	var delays []time.Duration
	s.sender.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	report, err := s.ScanAndDeliver(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 3, ch.Calls(10))
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second}, delays)
	assert.Empty(t, store.DeadLetters())

	assert.Equal(t, float64(2), counterValue(t, s.metrics.Retries))
	assert.Equal(t, float64(1), counterValue(t, s.metrics.DeliveriesTotal.WithLabelValues("delivered", "")))
}

func TestScanRetriesExhausted(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := NewMockReminderStore()
	ctx := context.Background()
	_, _ = store.AddReminder(ctx, 1, 10, "down", now.Add(-time.Minute), now)

	ch := newFakeChannel(func(ctx context.Context, targetID int64, call int) error {
		return errors.New("service unavailable")
	})
	s := newTestScheduler(t, now, store, ch)

	report, err := s.ScanAndDeliver(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 4, ch.Calls(10))

	dls := store.DeadLetters()
	require.Len(t, dls, 1)
	assert.Equal(t, models.ReasonMaxRetries, dls[0].Reason)
	assert.Equal(t, 4, dls[0].Attempts)
	assert.Equal(t, "service unavailable", dls[0].LastError)
}

func TestScanRetryAfterOverridesDelay(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := NewMockReminderStore()
	ctx := context.Background()
	_, _ = store.AddReminder(ctx, 1, 10, "flood", now.Add(-time.Minute), now)

	ch := newFakeChannel(func(ctx context.Context, targetID int64, call int) error {
		if call == 1 {
			return &DeliveryError{Err: errors.New("too many requests"), RetryAfter: 7 * time.Second}
		}
		return nil
	})
	s := newTestScheduler(t, now, store, ch)

	var delays []time.Duration
	s.sender.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	report, err := s.ScanAndDeliver(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, []time.Duration{7 * time.Second}, delays)
}

func TestScanPermanentErrorNotRetried(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := NewMockReminderStore()
	ctx := context.Background()
	_, _ = store.AddReminder(ctx, 1, 10, "bad", now.Add(-time.Minute), now)

	ch := newFakeChannel(func(ctx context.Context, targetID int64, call int) error {
		return &DeliveryError{Err: errors.New("message text is empty"), Permanent: true}
	})
	s := newTestScheduler(t, now, store, ch)

	report, err := s.ScanAndDeliver(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, ch.Calls(10))

	dls := store.DeadLetters()
	require.Len(t, dls, 1)
	assert.Equal(t, models.ReasonRejected, dls[0].Reason)
}

func TestScanSendTimeoutCountsAsFailure(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := NewMockReminderStore()
	ctx := context.Background()
	_, _ = store.AddReminder(ctx, 1, 10, "hang", now.Add(-2*time.Minute), now)
	_, _ = store.AddReminder(ctx, 1, 20, "ok", now.Add(-time.Minute), now)

	ch := newFakeChannel(func(ctx context.Context, targetID int64, call int) error {
		if targetID == 10 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})

	cfg := testSchedulerConfig(now)
	cfg.Sender.Timeout = 20 * time.Millisecond
	cfg.Sender.Retry = RetryConfig{MaxRetries: 1, RetryDelays: []time.Duration{time.Millisecond}}
	s := NewScheduler(cfg, store, ch, store, nil, zerolog.Nop())

	done := make(chan struct{})
	var report ScanReport
	var err error
	go func() {
		report, err = s.ScanAndDeliver(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scan hung on a stuck delivery")
	}

	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, ch.Calls(10))

	dls := store.DeadLetters()
	require.Len(t, dls, 1)
	assert.Equal(t, models.ReasonMaxRetries, dls[0].Reason)
	assert.Contains(t, dls[0].LastError, "timed out")
}

func TestScanInProgress(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := NewMockReminderStore()
	ctx := context.Background()
	_, _ = store.AddReminder(ctx, 1, 10, "slow", now.Add(-time.Minute), now)

	entered := make(chan struct{})
	release := make(chan struct{})
	ch := newFakeChannel(func(ctx context.Context, targetID int64, call int) error {
		close(entered)
		<-release
		return nil
	})
	s := newTestScheduler(t, now, store, ch)

	done := make(chan error, 1)
	go func() {
		_, err := s.ScanAndDeliver(ctx)
		done <- err
	}()

	<-entered
	_, err := s.ScanAndDeliver(ctx)
	assert.ErrorIs(t, err, ErrScanInProgress)

	close(release)
	require.NoError(t, <-done)

	// The guard is released after the scan.
	_, err = s.ScanAndDeliver(ctx)
	assert.NoError(t, err)
}

func TestScanStoreFailure(t *testing.T) {
	now := time.Now()
	store := NewMockReminderStore()
	cause := errors.New("database is locked")
	store.popErr = cause
	ch := newFakeChannel(nil)
	s := newTestScheduler(t, now, store, ch)

	_, err := s.ScanAndDeliver(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependency)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, ch.Sent())

	// A failed scan does not hold the guard.
	store.popErr = nil
	_, err = s.ScanAndDeliver(context.Background())
	assert.NoError(t, err)
}

func TestScanPreservesPerTargetOrder(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := NewMockReminderStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = store.AddReminder(ctx, 1, 10, fmt.Sprintf("a%d", i), now.Add(-time.Duration(10-i)*time.Minute), now)
		_, _ = store.AddReminder(ctx, 2, 20, fmt.Sprintf("b%d", i), now.Add(-time.Duration(10-i)*time.Minute), now)
	}

	ch := newFakeChannel(nil)
	s := newTestScheduler(t, now, store, ch)

	report, err := s.ScanAndDeliver(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, report.Delivered)

	var a, b []string
	for _, m := range ch.Sent() {
		if m.TargetID == 10 {
			a = append(a, m.Text)
		} else {
			b = append(b, m.Text)
		}
	}
	assert.Equal(t, []string{"a0", "a1", "a2", "a3", "a4"}, a)
	assert.Equal(t, []string{"b0", "b1", "b2", "b3", "b4"}, b)
}

func TestConcurrentScansNeverDoubleDeliver(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := NewMockReminderStore()
	ctx := context.Background()

	var delivered sync.Map
	var dupes atomic.Int32
	ch := newFakeChannel(nil)

	counting := channelFunc(func(ctx context.Context, targetID int64, text string) error {
		if _, loaded := delivered.LoadOrStore(text, true); loaded {
			dupes.Add(1)
		}
		return ch.Send(ctx, targetID, text)
	})

	// Two schedulers share one store, as two processes would share a database.
	s1 := newTestScheduler(t, now, store, counting)
	s2 := newTestScheduler(t, now, store, counting)

	var wg sync.WaitGroup
	const creators = 4
	const perCreator = 50
	for c := 0; c < creators; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := 0; i < perCreator; i++ {
				_, err := s1.Create(ctx, int64(c), int64(c), fmt.Sprintf("%d-%d", c, i), now.Add(-time.Second))
				assert.NoError(t, err)
			}
		}(c)
	}

	stop := make(chan struct{})
	var scanners sync.WaitGroup
	for _, s := range []*Scheduler{s1, s2} {
		scanners.Add(1)
		go func(s *Scheduler) {
			defer scanners.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_, err := s.ScanAndDeliver(ctx)
				if err != nil {
					assert.ErrorIs(t, err, ErrScanInProgress)
				}
			}
		}(s)
	}

	wg.Wait()
	close(stop)
	scanners.Wait()

	// Anything created after the last scans is picked up by the next one.
	_, err := s1.ScanAndDeliver(ctx)
	require.NoError(t, err)

	assert.Zero(t, dupes.Load())
	assert.Len(t, ch.Sent(), creators*perCreator)
}

func TestSchedulerStartStop(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := NewMockReminderStore()
	ctx := context.Background()
	_, _ = store.AddReminder(ctx, 1, 10, "tick", now.Add(-time.Minute), now)

	ch := newFakeChannel(nil)
	cfg := testSchedulerConfig(now)
	cfg.ScanInterval = time.Second
	s := NewScheduler(cfg, store, ch, store, nil, zerolog.Nop())

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start(ctx), "second start is a no-op")

	assert.Eventually(t, func() bool { return len(ch.Sent()) == 1 }, 5*time.Second, 50*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestRunNowPublishesEvents(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	store := NewMockReminderStore()
	ctx := context.Background()
	_, _ = store.AddReminder(ctx, 1, 10, "ok", now.Add(-2*time.Minute), now)
	_, _ = store.AddReminder(ctx, 1, 20, "blocked", now.Add(-time.Minute), now)

	ch := newFakeChannel(func(ctx context.Context, targetID int64, call int) error {
		if targetID == 20 {
			return ErrPermissionDenied
		}
		return nil
	})
	s := newTestScheduler(t, now, store, ch)
	pub := &recordingPublisher{}
	s.SetEventPublisher(pub)

	_, err := s.RunNow(ctx)
	require.NoError(t, err)

	events := pub.Events()
	require.Len(t, events, 2)
	byType := map[string]DeliveryEvent{}
	for _, e := range events {
		byType[e.typ] = e.payload
	}
	assert.Equal(t, OutcomeDelivered, byType[EventDelivered].Outcome)
	assert.Equal(t, int64(10), byType[EventDelivered].Reminder.TargetID)
	assert.Equal(t, OutcomeDropped, byType[EventDropped].Outcome)
	assert.Equal(t, models.ReasonPermissionDenied, byType[EventDropped].Reason)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncDelivery(OutcomeDelivered, "")
	m.SetPending(3)
	m.ObserveSendDuration(0.1)
	m.ObserveScanDuration(0.1)
	m.IncScansSkipped()
	m.IncRetries()
	m.IncRateLimitWaits()
}

type channelFunc func(ctx context.Context, targetID int64, text string) error

func (f channelFunc) Send(ctx context.Context, targetID int64, text string) error {
	return f(ctx, targetID, text)
}

type publishedEvent struct {
	typ     string
	payload DeliveryEvent
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(evType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{typ: evType, payload: payload.(DeliveryEvent)})
}

func (p *recordingPublisher) Events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
