package model

import "time"

// Notification types for TaskReminder.
const (
	NotificationEmail = "email"
	NotificationPush  = "push"
	NotificationInApp = "in_app"
)

// TaskReminder is a one-shot reminder attached to a task. IsSent transitions
// false -> true exactly once; SentAt is set iff IsSent is true.
type TaskReminder struct {
	ID               int64      `json:"id"`
	TaskID           int64      `json:"task_id"`
	UserID           int64      `json:"user_id"`
	RemindAt         time.Time  `json:"remind_at"`
	IsSent           bool       `json:"is_sent"`
	NotificationType string     `json:"notification_type"`
	CreatedAt        time.Time  `json:"created_at"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
}

// ValidNotificationType reports whether t is a known channel.
func ValidNotificationType(t string) bool {
	switch t {
	case NotificationEmail, NotificationPush, NotificationInApp:
		return true
	}
	return false
}
