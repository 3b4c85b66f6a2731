package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	mqcontracts "todoflow/contracts/mq"
	"todoflow/internal/model"
	"todoflow/pkg/logger"
	"todoflow/pkg/metrics"
	"todoflow/pkg/trace"
)

// ReminderRepo is the slice of the reminder repository the scheduler needs.
type ReminderRepo interface {
	ListDue(ctx context.Context, now time.Time) ([]model.TaskReminder, error)
	ClaimSent(ctx context.Context, id int64) (bool, error)
}

// Reminder polls due unsent reminders and publishes reminder.due for each one
// it claims. The claim is the conditional is_sent update itself, so no
// separate lock key is needed and two replicas can never both fire the same
// reminder.
type Reminder struct {
	repo      ReminderRepo
	publisher Publisher
	logger    *zap.Logger
	interval  time.Duration
}

func NewReminder(repo ReminderRepo, publisher Publisher, log *zap.Logger, interval time.Duration) *Reminder {
	return &Reminder{
		repo:      repo,
		publisher: publisher,
		logger:    log,
		interval:  interval,
	}
}

// Start runs the tick loop until ctx is cancelled.
func (s *Reminder) Start(ctx context.Context) {
	s.logger.Info("Reminder scheduler started",
		zap.Duration("interval", s.interval),
	)

	// Run immediately on startup
	s.Tick(ctx, time.Now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reminder scheduler stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick scans for due reminders and claims each candidate independently.
func (s *Reminder) Tick(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() { metrics.RecordTick("reminder", time.Since(start)) }()

	reminders, err := s.repo.ListDue(ctx, now)
	if err != nil {
		s.logger.Error("Failed to list due reminders", zap.Error(err))
		return
	}
	metrics.DueItemsScanned.WithLabelValues("reminder").Add(float64(len(reminders)))

	if len(reminders) == 0 {
		s.logger.Debug("No due reminders")
		return
	}

	s.logger.Info("Processing due reminders", zap.Int("count", len(reminders)))

	for _, rem := range reminders {
		itemCtx := trace.WithContext(ctx, trace.GenerateTraceID())
		if err := s.processReminder(itemCtx, rem); err != nil {
			logger.WithTrace(itemCtx, s.logger).Error("Failed to process reminder",
				zap.Int64("reminder_id", rem.ID),
				zap.Error(err),
			)
		}
	}
}

func (s *Reminder) processReminder(ctx context.Context, rem model.TaskReminder) error {
	log := logger.WithTrace(ctx, s.logger)

	claimed, err := s.repo.ClaimSent(ctx, rem.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// Row already flipped by another replica. Expected, not an error.
		metrics.RecordClaim("reminder", false)
		log.Debug("Reminder already claimed, skipping",
			zap.Int64("reminder_id", rem.ID),
		)
		return nil
	}
	metrics.RecordClaim("reminder", true)

	env, err := mqcontracts.NewEnvelope(ctx, mqcontracts.EventReminderDue, rem.ID, rem.UserID, mqcontracts.ReminderDuePayload{
		TaskID:           rem.TaskID,
		NotificationType: rem.NotificationType,
	})
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, mqcontracts.TopicReminders, env); err != nil {
		// The row is already marked sent; losing the event here means a
		// missed notification, so this must be visible.
		log.Error("Failed to publish reminder.due after claim",
			zap.Int64("reminder_id", rem.ID),
			zap.Error(err),
		)
		return err
	}

	log.Info("Published reminder.due",
		zap.Int64("reminder_id", rem.ID),
		zap.Int64("task_id", rem.TaskID),
		zap.String("notification_type", rem.NotificationType),
	)
	return nil
}
