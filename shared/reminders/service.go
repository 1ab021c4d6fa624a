package reminders

import (
	"context"
	"sync"
	"time"

	"remindbot/internal/models"
)

// ScanReport summarises one scan.
type ScanReport struct {
	Popped    int
	Delivered int
	Dropped   int
	Failed    int
	Duration  time.Duration
}

// Create persists a new pending reminder. dueAt is expected to be in the future;
// a reminder that is already due is picked up by the next scan.
func (s *Scheduler) Create(ctx context.Context, ownerID, targetID int64, message string, dueAt time.Time) (*models.Reminder, error) {
	dueAt = dueAt.UTC()
	createdAt := s.config.Now().UTC()
	id, err := s.store.AddReminder(ctx, ownerID, targetID, message, dueAt, createdAt)
	if err != nil {
		return nil, dependency("add reminder", err)
	}

	s.logger.Debug().
		Int64("reminder_id", id).
		Int64("owner_id", ownerID).
		Int64("target_id", targetID).
		Time("due_at", dueAt).
		Msg("reminder created")

	return &models.Reminder{
		ID:        id,
		OwnerID:   ownerID,
		TargetID:  targetID,
		Message:   message,
		DueAt:     dueAt,
		CreatedAt: createdAt,
	}, nil
}

// List returns every pending reminder of the owner ordered by due time. It is never truncated.
func (s *Scheduler) List(ctx context.Context, ownerID int64) ([]models.Reminder, error) {
	list, err := s.store.ListReminders(ctx, ownerID)
	if err != nil {
		return nil, dependency("list reminders", err)
	}
	return list, nil
}

// ScanAndDeliver pops every due reminder and delivers it. Only one scan runs at a
// time; a concurrent call returns ErrScanInProgress without touching the store.
// Delivery failures are absorbed per reminder and never abort the batch.
func (s *Scheduler) ScanAndDeliver(ctx context.Context) (report ScanReport, err error) {
	if !s.tryBeginScan() {
		s.metrics.IncScansSkipped()
		return ScanReport{}, ErrScanInProgress
	}
	defer s.endScan()

	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		s.metrics.ObserveScanDuration(report.Duration.Seconds())
	}()

	now := s.config.Now().UTC()
	due, err := s.store.PopDueReminders(ctx, now)
	if err != nil {
		return report, dependency("pop due reminders", err)
	}
	report.Popped = len(due)

	if len(due) > 0 {
		s.deliverBatch(ctx, due, &report)
		s.logger.Info().
			Int("popped", report.Popped).
			Int("delivered", report.Delivered).
			Int("dropped", report.Dropped).
			Int("failed", report.Failed).
			Dur("duration", time.Since(start)).
			Msg("reminders processed")
	}

	if pending, err := s.store.CountPending(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to count pending reminders")
	} else {
		s.metrics.SetPending(pending)
	}

	return report, nil
}

// deliverBatch serves targets in parallel and each target's reminders in due order.
func (s *Scheduler) deliverBatch(ctx context.Context, due []models.Reminder, report *ScanReport) {
	groups := groupByTarget(due)

	sem := make(chan struct{}, s.config.MaxConcurrentDeliveries)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, group := range groups {
		wg.Add(1)
		sem <- struct{}{} // acquire

		go func(batch []models.Reminder) {
			defer wg.Done()
			defer func() { <-sem }() // release

			for _, r := range batch {
				res := s.sender.Deliver(ctx, r)
				s.record(ctx, r, res)

				mu.Lock()
				switch res.Outcome {
				case OutcomeDelivered:
					report.Delivered++
				case OutcomeDropped:
					report.Dropped++
				default:
					report.Failed++
				}
				mu.Unlock()
			}
		}(group)
	}

	wg.Wait()
}

func (s *Scheduler) record(ctx context.Context, r models.Reminder, res Result) {
	s.metrics.IncDelivery(res.Outcome, string(res.Reason))

	if res.Outcome == OutcomeDelivered {
		s.logger.Debug().
			Int64("reminder_id", r.ID).
			Int64("target_id", r.TargetID).
			Int("attempts", res.Attempts).
			Msg("reminder delivered")
		s.publish(EventDelivered, DeliveryEvent{Reminder: r, Outcome: res.Outcome, Attempts: res.Attempts})
		return
	}

	if s.deadLetters != nil {
		// The reminder is already out of the pending set, so the dead letter is
		// written even if the scan context is done.
		dlCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		dl := models.NewDeadLetter(r, res.Reason, res.Attempts, res.Err, s.config.Now().UTC())
		if err := s.deadLetters.AddDeadLetter(dlCtx, dl); err != nil {
			s.logger.Error().
				Err(err).
				Int64("reminder_id", r.ID).
				Str("reason", string(res.Reason)).
				Msg("failed to record undelivered reminder")
		}
		cancel()
	}

	s.publish(EventDropped, DeliveryEvent{
		Reminder: r,
		Outcome:  res.Outcome,
		Reason:   res.Reason,
		Attempts: res.Attempts,
	})
}

func (s *Scheduler) publish(evType string, ev DeliveryEvent) {
	if s.events == nil {
		return
	}
	s.events.Publish(evType, ev)
}

// groupByTarget splits reminders per target keeping the input order inside each
// group and ordering groups by their first reminder.
func groupByTarget(due []models.Reminder) [][]models.Reminder {
	index := make(map[int64]int)
	var groups [][]models.Reminder
	for _, r := range due {
		i, ok := index[r.TargetID]
		if !ok {
			i = len(groups)
			index[r.TargetID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}
