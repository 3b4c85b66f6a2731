package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "todoflow/contracts/mq"
	"todoflow/internal/model"
	"todoflow/internal/recurrence"
	"todoflow/internal/store"
	"todoflow/internal/taskclient"
	"todoflow/pkg/logger"
	"todoflow/pkg/metrics"
	"todoflow/pkg/trace"
)

// ConfigRepo is the slice of the recurring-config repository the scheduler needs.
type ConfigRepo interface {
	ListDue(ctx context.Context, now time.Time) ([]model.RecurringTaskConfig, error)
	AdvanceNextDue(ctx context.Context, configID int64, next, prev time.Time) error
}

// Spawner creates a task instance from a recurring template.
type Spawner interface {
	SpawnFromTemplate(ctx context.Context, cfg model.RecurringTaskConfig) (int64, error)
}

// Publisher publishes envelopes on the event bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, env mqcontracts.Envelope) error
}

// Recurring polls due recurring configs, spawns task instances and advances
// next_due_at. Replicas coordinate through set-if-absent claim locks in the
// state store, so any number of instances can run the same tick safely.
type Recurring struct {
	repo      ConfigRepo
	spawner   Spawner
	publisher Publisher
	st        store.Store
	logger    *zap.Logger

	workerID         string
	interval         time.Duration
	claimTTL         time.Duration
	spawnMaxAttempts int
	spawnRetryDelay  time.Duration
}

func NewRecurring(
	repo ConfigRepo,
	spawner Spawner,
	publisher Publisher,
	st store.Store,
	log *zap.Logger,
	interval, claimTTL time.Duration,
	spawnMaxAttempts int,
) *Recurring {
	if spawnMaxAttempts <= 0 {
		spawnMaxAttempts = 3
	}
	return &Recurring{
		repo:             repo,
		spawner:          spawner,
		publisher:        publisher,
		st:               st,
		logger:           log,
		workerID:         uuid.NewString(),
		interval:         interval,
		claimTTL:         claimTTL,
		spawnMaxAttempts: spawnMaxAttempts,
		spawnRetryDelay:  2 * time.Second,
	}
}

// Start runs the tick loop until ctx is cancelled. An in-flight item finishes
// before return; abandoned claims expire by TTL.
func (s *Recurring) Start(ctx context.Context) {
	s.logger.Info("Recurring task scheduler started",
		zap.String("worker_id", s.workerID),
		zap.Duration("interval", s.interval),
		zap.Duration("claim_ttl", s.claimTTL),
	)

	// Run immediately on startup
	s.Tick(ctx, time.Now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Recurring task scheduler stopped")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick scans for due configs and processes each candidate independently.
// Per-item failures never abort the tick for the remaining candidates.
func (s *Recurring) Tick(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() { metrics.RecordTick("recurring", time.Since(start)) }()

	configs, err := s.repo.ListDue(ctx, now)
	if err != nil {
		// Store unreachable; the next timer fire retries the whole scan.
		s.logger.Error("Failed to list due recurring configs", zap.Error(err))
		return
	}
	metrics.DueItemsScanned.WithLabelValues("recurring").Add(float64(len(configs)))

	if len(configs) == 0 {
		s.logger.Debug("No due recurring configs")
		return
	}

	s.logger.Info("Processing due recurring configs", zap.Int("count", len(configs)))

	for _, cfg := range configs {
		itemCtx := trace.WithContext(ctx, trace.GenerateTraceID())
		if err := s.processConfig(itemCtx, cfg, now); err != nil {
			logger.WithTrace(itemCtx, s.logger).Error("Failed to process recurring config",
				zap.Int64("config_id", cfg.ID),
				zap.Int64("task_id", cfg.TaskID),
				zap.Error(err),
			)
		}
	}
}

// processConfig runs the claim -> spawn -> advance -> publish sequence for
// one due config. The item is never advanced before its spawn succeeds.
func (s *Recurring) processConfig(ctx context.Context, cfg model.RecurringTaskConfig, now time.Time) error {
	log := logger.WithTrace(ctx, s.logger)

	claimed, err := s.st.SetIfAbsent(ctx, store.ClaimKey(cfg.ID), s.workerID, s.claimTTL)
	if err != nil {
		return err
	}
	if !claimed {
		// Another replica owns this item this tick. Expected, not an error.
		metrics.RecordClaim("recurring", false)
		log.Debug("Claim conflict, skipping config",
			zap.Int64("config_id", cfg.ID),
		)
		return nil
	}
	metrics.RecordClaim("recurring", true)
	defer func() {
		if err := s.st.Delete(ctx, store.ClaimKey(cfg.ID)); err != nil {
			// Claim TTL expiry self-heals.
			log.Warn("Failed to release claim",
				zap.Int64("config_id", cfg.ID),
				zap.Error(err),
			)
		}
	}()

	taskID, err := s.spawnWithRetry(ctx, cfg)
	if err != nil {
		// next_due_at stays put, so the item comes back on a later tick.
		metrics.RecordSpawn(false)
		return err
	}
	metrics.RecordSpawn(true)

	next, err := recurrence.NextOccurrence(cfg, now)
	if err != nil {
		return err
	}

	if err := s.repo.AdvanceNextDue(ctx, cfg.ID, next, cfg.NextDueAt); err != nil {
		return err
	}

	env, err := mqcontracts.NewEnvelope(ctx, mqcontracts.EventTaskCreated, taskID, cfg.UserID, mqcontracts.TaskCreatedPayload{
		TaskID:      taskID,
		ConfigID:    cfg.ID,
		Title:       cfg.Title,
		Description: cfg.Description,
		Category:    cfg.Category,
		Priority:    cfg.Priority,
	})
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, mqcontracts.TopicTaskEvents, env); err != nil {
		// Task exists and config advanced; only the event is lost. Log loud.
		log.Error("Failed to publish task.created event",
			zap.Int64("task_id", taskID),
			zap.Int64("config_id", cfg.ID),
			zap.Error(err),
		)
		return err
	}

	log.Info("Spawned task from recurring config",
		zap.Int64("config_id", cfg.ID),
		zap.Int64("task_id", taskID),
		zap.Time("next_due_at", next),
	)
	return nil
}

// spawnWithRetry retries transient spawn failures with a flat delay, bounded
// within the tick. Permanent rejections fail fast.
func (s *Recurring) spawnWithRetry(ctx context.Context, cfg model.RecurringTaskConfig) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= s.spawnMaxAttempts; attempt++ {
		taskID, err := s.spawner.SpawnFromTemplate(ctx, cfg)
		if err == nil {
			return taskID, nil
		}
		lastErr = err

		var spawnErr *taskclient.SpawnError
		if errors.As(err, &spawnErr) && !spawnErr.Retryable {
			return 0, err
		}

		s.logger.Warn("Spawn attempt failed",
			zap.Int64("config_id", cfg.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt < s.spawnMaxAttempts {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(s.spawnRetryDelay):
			}
		}
	}
	return 0, lastErr
}
