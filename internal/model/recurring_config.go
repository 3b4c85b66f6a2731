package model

import "time"

// Frequency values for RecurringTaskConfig.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyCustom  = "custom"
)

// RecurringTaskConfig is the stored rule describing how often a task template
// repeats. Exactly one config exists per owning task. Fixed frequencies use
// Interval as a multiplier; custom uses a 5-field cron expression instead.
type RecurringTaskConfig struct {
	ID             int64     `json:"id"`
	TaskID         int64     `json:"task_id"`
	UserID         int64     `json:"user_id"`
	Frequency      string    `json:"frequency"`
	Interval       int       `json:"interval"`
	CronExpression string    `json:"cron_expression,omitempty"`
	NextDueAt      time.Time `json:"next_due_at"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Template fields carried onto spawned task instances.
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Priority    string `json:"priority,omitempty"`
}
