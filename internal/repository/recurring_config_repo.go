package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"todoflow/internal/model"
)

// ErrNotFound is returned when a config or reminder row does not exist.
var ErrNotFound = errors.New("repository: not found")

type RecurringConfigRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewRecurringConfigRepository(db *pgxpool.Pool, logger *zap.Logger) *RecurringConfigRepository {
	return &RecurringConfigRepository{db: db, logger: logger}
}

func (r *RecurringConfigRepository) Insert(ctx context.Context, cfg *model.RecurringTaskConfig) (int64, error) {
	r.logger.Debug("Inserting recurring config",
		zap.Int64("task_id", cfg.TaskID),
		zap.String("frequency", cfg.Frequency),
	)
	query := `
        INSERT INTO recurring_task_configs
            (task_id, user_id, frequency, interval, cron_expression, next_due_at, is_active,
             title, description, category, priority)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11)
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		cfg.TaskID,
		cfg.UserID,
		cfg.Frequency,
		cfg.Interval,
		cfg.CronExpression,
		cfg.NextDueAt,
		cfg.IsActive,
		cfg.Title,
		cfg.Description,
		cfg.Category,
		cfg.Priority,
	).Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to insert recurring config",
			zap.Error(err),
			zap.Int64("task_id", cfg.TaskID),
		)
		return 0, err
	}
	r.logger.Info("Recurring config inserted",
		zap.Int64("config_id", cfg.ID),
		zap.Int64("task_id", cfg.TaskID),
	)
	return cfg.ID, nil
}

func (r *RecurringConfigRepository) GetByTask(ctx context.Context, taskID int64) (*model.RecurringTaskConfig, error) {
	query := `
        SELECT id, task_id, user_id, frequency, interval, COALESCE(cron_expression, ''),
               next_due_at, is_active, created_at, updated_at,
               title, description, category, priority
        FROM recurring_task_configs
        WHERE task_id = $1
    `
	var cfg model.RecurringTaskConfig
	err := r.db.QueryRow(ctx, query, taskID).Scan(
		&cfg.ID,
		&cfg.TaskID,
		&cfg.UserID,
		&cfg.Frequency,
		&cfg.Interval,
		&cfg.CronExpression,
		&cfg.NextDueAt,
		&cfg.IsActive,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
		&cfg.Title,
		&cfg.Description,
		&cfg.Category,
		&cfg.Priority,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// ListDue returns active configs whose next_due_at has passed.
func (r *RecurringConfigRepository) ListDue(ctx context.Context, now time.Time) ([]model.RecurringTaskConfig, error) {
	query := `
        SELECT id, task_id, user_id, frequency, interval, COALESCE(cron_expression, ''),
               next_due_at, is_active, created_at, updated_at,
               title, description, category, priority
        FROM recurring_task_configs
        WHERE is_active = TRUE
          AND next_due_at <= $1
        ORDER BY next_due_at ASC
    `
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []model.RecurringTaskConfig
	for rows.Next() {
		var cfg model.RecurringTaskConfig
		if err := rows.Scan(
			&cfg.ID,
			&cfg.TaskID,
			&cfg.UserID,
			&cfg.Frequency,
			&cfg.Interval,
			&cfg.CronExpression,
			&cfg.NextDueAt,
			&cfg.IsActive,
			&cfg.CreatedAt,
			&cfg.UpdatedAt,
			&cfg.Title,
			&cfg.Description,
			&cfg.Category,
			&cfg.Priority,
		); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// AdvanceNextDue moves next_due_at forward, guarded on the previous value so
// a stale worker cannot rewind a config another replica already advanced.
func (r *RecurringConfigRepository) AdvanceNextDue(ctx context.Context, configID int64, next, prev time.Time) error {
	query := `
        UPDATE recurring_task_configs
        SET next_due_at = $1, updated_at = NOW()
        WHERE id = $2
          AND next_due_at = $3
    `
	result, err := r.db.Exec(ctx, query, next, configID, prev)
	if err != nil {
		r.logger.Error("Failed to advance next_due_at",
			zap.Error(err),
			zap.Int64("config_id", configID),
		)
		return err
	}
	if result.RowsAffected() == 0 {
		// Already advanced by another replica; nothing lost.
		r.logger.Debug("next_due_at already advanced",
			zap.Int64("config_id", configID),
		)
	}
	return nil
}

func (r *RecurringConfigRepository) Deactivate(ctx context.Context, taskID int64) error {
	query := `
        UPDATE recurring_task_configs
        SET is_active = FALSE, updated_at = NOW()
        WHERE task_id = $1
    `
	result, err := r.db.Exec(ctx, query, taskID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	r.logger.Info("Recurring config deactivated", zap.Int64("task_id", taskID))
	return nil
}

// DeleteByTask removes the config when the owning task is deleted (cascade).
func (r *RecurringConfigRepository) DeleteByTask(ctx context.Context, taskID int64) error {
	query := `DELETE FROM recurring_task_configs WHERE task_id = $1`
	result, err := r.db.Exec(ctx, query, taskID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	r.logger.Info("Recurring config deleted", zap.Int64("task_id", taskID))
	return nil
}
