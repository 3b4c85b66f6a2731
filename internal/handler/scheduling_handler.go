package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"todoflow/internal/model"
	"todoflow/internal/recurrence"
	"todoflow/internal/repository"
)

// ConfigStore is the slice of the recurring-config repository the API needs.
type ConfigStore interface {
	Insert(ctx context.Context, cfg *model.RecurringTaskConfig) (int64, error)
	GetByTask(ctx context.Context, taskID int64) (*model.RecurringTaskConfig, error)
	Deactivate(ctx context.Context, taskID int64) error
	DeleteByTask(ctx context.Context, taskID int64) error
}

// ReminderStore is the slice of the reminder repository the API needs.
type ReminderStore interface {
	Insert(ctx context.Context, rem *model.TaskReminder) (int64, error)
	GetByID(ctx context.Context, id int64) (*model.TaskReminder, error)
	ListByTask(ctx context.Context, taskID int64) ([]model.TaskReminder, error)
	Delete(ctx context.Context, id int64) error
	DeleteByTask(ctx context.Context, taskID int64) (int64, error)
}

// SchedulingHandler exposes recurring-config and reminder CRUD to the
// task-owning service. Validation happens here, synchronously, so invalid
// configs never reach the schedulers.
type SchedulingHandler struct {
	configRepo   ConfigStore
	reminderRepo ReminderStore
	logger       *zap.Logger
}

func NewSchedulingHandler(
	configRepo ConfigStore,
	reminderRepo ReminderStore,
	logger *zap.Logger,
) *SchedulingHandler {
	return &SchedulingHandler{
		configRepo:   configRepo,
		reminderRepo: reminderRepo,
		logger:       logger,
	}
}

type createConfigRequest struct {
	TaskID         int64      `json:"task_id" binding:"required"`
	UserID         int64      `json:"user_id" binding:"required"`
	Frequency      string     `json:"frequency" binding:"required"`
	Interval       int        `json:"interval"`
	CronExpression string     `json:"cron_expression"`
	NextDueAt      *time.Time `json:"next_due_at"`
	Title          string     `json:"title" binding:"required"`
	Description    string     `json:"description"`
	Category       string     `json:"category"`
	Priority       string     `json:"priority"`
}

// CreateRecurringConfig handles POST /recurring-configs
func (h *SchedulingHandler) CreateRecurringConfig(c *gin.Context) {
	var req createConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := model.RecurringTaskConfig{
		TaskID:         req.TaskID,
		UserID:         req.UserID,
		Frequency:      req.Frequency,
		Interval:       req.Interval,
		CronExpression: req.CronExpression,
		IsActive:       true,
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		Priority:       req.Priority,
	}

	if err := recurrence.Validate(cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now()
	if req.NextDueAt != nil {
		if req.NextDueAt.Before(now) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "next_due_at must not be in the past"})
			return
		}
		cfg.NextDueAt = *req.NextDueAt
	} else {
		next, err := recurrence.NextOccurrence(cfg, now)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cfg.NextDueAt = next
	}

	if _, err := h.configRepo.Insert(c.Request.Context(), &cfg); err != nil {
		h.logger.Error("Failed to create recurring config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create recurring config"})
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

// GetRecurringConfig handles GET /recurring-configs/:taskID
func (h *SchedulingHandler) GetRecurringConfig(c *gin.Context) {
	taskID, ok := pathID(c, "taskID")
	if !ok {
		return
	}

	cfg, err := h.configRepo.GetByTask(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recurring config not found"})
			return
		}
		h.logger.Error("Failed to get recurring config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get recurring config"})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// DeactivateRecurringConfig handles POST /recurring-configs/:taskID/deactivate
// Deactivated configs are skipped by the scheduler but kept around.
func (h *SchedulingHandler) DeactivateRecurringConfig(c *gin.Context) {
	taskID, ok := pathID(c, "taskID")
	if !ok {
		return
	}

	if err := h.configRepo.Deactivate(c.Request.Context(), taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recurring config not found"})
			return
		}
		h.logger.Error("Failed to deactivate recurring config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deactivate recurring config"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// DeleteRecurringConfig handles DELETE /recurring-configs/:taskID, called by
// the task service when the owning task is deleted.
func (h *SchedulingHandler) DeleteRecurringConfig(c *gin.Context) {
	taskID, ok := pathID(c, "taskID")
	if !ok {
		return
	}

	if err := h.configRepo.DeleteByTask(c.Request.Context(), taskID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "recurring config not found"})
			return
		}
		h.logger.Error("Failed to delete recurring config", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete recurring config"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type createReminderRequest struct {
	TaskID           int64     `json:"task_id" binding:"required"`
	UserID           int64     `json:"user_id" binding:"required"`
	RemindAt         time.Time `json:"remind_at" binding:"required"`
	NotificationType string    `json:"notification_type" binding:"required"`
}

// CreateReminder handles POST /reminders
func (h *SchedulingHandler) CreateReminder(c *gin.Context) {
	var req createReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !model.ValidNotificationType(req.NotificationType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown notification_type: " + req.NotificationType})
		return
	}

	rem := model.TaskReminder{
		TaskID:           req.TaskID,
		UserID:           req.UserID,
		RemindAt:         req.RemindAt,
		NotificationType: req.NotificationType,
	}

	if _, err := h.reminderRepo.Insert(c.Request.Context(), &rem); err != nil {
		h.logger.Error("Failed to create reminder", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create reminder"})
		return
	}

	c.JSON(http.StatusCreated, rem)
}

// GetReminder handles GET /reminders/:id
func (h *SchedulingHandler) GetReminder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	rem, err := h.reminderRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reminder not found"})
			return
		}
		h.logger.Error("Failed to get reminder", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get reminder"})
		return
	}

	c.JSON(http.StatusOK, rem)
}

// ListReminders handles GET /tasks/:taskID/reminders
func (h *SchedulingHandler) ListReminders(c *gin.Context) {
	taskID, ok := pathID(c, "taskID")
	if !ok {
		return
	}

	reminders, err := h.reminderRepo.ListByTask(c.Request.Context(), taskID)
	if err != nil {
		h.logger.Error("Failed to list reminders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reminders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reminders": reminders})
}

// DeleteReminder handles DELETE /reminders/:id
func (h *SchedulingHandler) DeleteReminder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.reminderRepo.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "reminder not found"})
			return
		}
		h.logger.Error("Failed to delete reminder", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete reminder"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// DeleteTaskReminders handles DELETE /tasks/:taskID/reminders, the cascade
// hook for task deletion.
func (h *SchedulingHandler) DeleteTaskReminders(c *gin.Context) {
	taskID, ok := pathID(c, "taskID")
	if !ok {
		return
	}

	deleted, err := h.reminderRepo.DeleteByTask(c.Request.Context(), taskID)
	if err != nil {
		h.logger.Error("Failed to delete task reminders", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete task reminders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
