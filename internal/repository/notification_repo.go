package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NotificationRepository persists in-app notifications. It backs the in_app
// channel adapter; email and push never touch this table.
type NotificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, logger: logger}
}

func (r *NotificationRepository) Insert(ctx context.Context, userID, taskID, reminderID int64, message string) (int64, error) {
	r.logger.Debug("Inserting in-app notification",
		zap.Int64("user_id", userID),
		zap.Int64("reminder_id", reminderID),
	)

	query := `
        INSERT INTO notifications (user_id, task_id, reminder_id, message)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `
	var id int64
	err := r.db.QueryRow(ctx, query, userID, taskID, reminderID, message).Scan(&id)
	if err != nil {
		r.logger.Error("Failed to insert notification", zap.Error(err))
		return 0, err
	}

	r.logger.Info("In-app notification inserted",
		zap.Int64("id", id),
		zap.Int64("user_id", userID),
	)
	return id, nil
}
