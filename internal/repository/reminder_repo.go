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

type ReminderRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewReminderRepository(db *pgxpool.Pool, logger *zap.Logger) *ReminderRepository {
	return &ReminderRepository{db: db, logger: logger}
}

func (r *ReminderRepository) Insert(ctx context.Context, rem *model.TaskReminder) (int64, error) {
	r.logger.Debug("Inserting reminder",
		zap.Int64("task_id", rem.TaskID),
		zap.String("notification_type", rem.NotificationType),
		zap.Time("remind_at", rem.RemindAt),
	)
	query := `
        INSERT INTO task_reminders (task_id, user_id, remind_at, notification_type)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `
	err := r.db.QueryRow(ctx, query,
		rem.TaskID,
		rem.UserID,
		rem.RemindAt,
		rem.NotificationType,
	).Scan(&rem.ID, &rem.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert reminder",
			zap.Error(err),
			zap.Int64("task_id", rem.TaskID),
		)
		return 0, err
	}
	r.logger.Info("Reminder inserted",
		zap.Int64("reminder_id", rem.ID),
		zap.Int64("task_id", rem.TaskID),
	)
	return rem.ID, nil
}

func (r *ReminderRepository) GetByID(ctx context.Context, id int64) (*model.TaskReminder, error) {
	query := `
        SELECT id, task_id, user_id, remind_at, is_sent, notification_type, created_at, sent_at
        FROM task_reminders
        WHERE id = $1
    `
	var rem model.TaskReminder
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rem.ID,
		&rem.TaskID,
		&rem.UserID,
		&rem.RemindAt,
		&rem.IsSent,
		&rem.NotificationType,
		&rem.CreatedAt,
		&rem.SentAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rem, nil
}

func (r *ReminderRepository) ListByTask(ctx context.Context, taskID int64) ([]model.TaskReminder, error) {
	query := `
        SELECT id, task_id, user_id, remind_at, is_sent, notification_type, created_at, sent_at
        FROM task_reminders
        WHERE task_id = $1
        ORDER BY remind_at ASC
    `
	rows, err := r.db.Query(ctx, query, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reminders := []model.TaskReminder{}
	for rows.Next() {
		var rem model.TaskReminder
		if err := rows.Scan(
			&rem.ID,
			&rem.TaskID,
			&rem.UserID,
			&rem.RemindAt,
			&rem.IsSent,
			&rem.NotificationType,
			&rem.CreatedAt,
			&rem.SentAt,
		); err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

// ListDue returns unsent reminders whose remind_at has passed.
func (r *ReminderRepository) ListDue(ctx context.Context, now time.Time) ([]model.TaskReminder, error) {
	query := `
        SELECT id, task_id, user_id, remind_at, is_sent, notification_type, created_at, sent_at
        FROM task_reminders
        WHERE is_sent = FALSE
          AND remind_at <= $1
        ORDER BY remind_at ASC
    `
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []model.TaskReminder
	for rows.Next() {
		var rem model.TaskReminder
		if err := rows.Scan(
			&rem.ID,
			&rem.TaskID,
			&rem.UserID,
			&rem.RemindAt,
			&rem.IsSent,
			&rem.NotificationType,
			&rem.CreatedAt,
			&rem.SentAt,
		); err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

// ClaimSent flips is_sent false -> true. The conditional WHERE makes this
// both the cross-replica claim and the terminal state transition: exactly one
// caller observes claimed = true for a given reminder.
func (r *ReminderRepository) ClaimSent(ctx context.Context, id int64) (bool, error) {
	query := `
        UPDATE task_reminders
        SET is_sent = TRUE, sent_at = NOW()
        WHERE id = $1
          AND is_sent = FALSE
    `
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to claim reminder",
			zap.Error(err),
			zap.Int64("reminder_id", id),
		)
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (r *ReminderRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM task_reminders WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	r.logger.Info("Reminder deleted", zap.Int64("reminder_id", id))
	return nil
}

// DeleteByTask removes all reminders of a task (cascade on task deletion).
func (r *ReminderRepository) DeleteByTask(ctx context.Context, taskID int64) (int64, error) {
	query := `DELETE FROM task_reminders WHERE task_id = $1`
	result, err := r.db.Exec(ctx, query, taskID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
