package mq

// TaskCreatedPayload rides on task-events when the recurring scheduler spawns
// a new task instance from a template.
type TaskCreatedPayload struct {
	TaskID      int64  `json:"task_id"`
	ConfigID    int64  `json:"config_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Priority    string `json:"priority,omitempty"` // LOW / MEDIUM / HIGH
}

// ReminderDuePayload rides on reminders when a reminder is claimed.
type ReminderDuePayload struct {
	TaskID           int64  `json:"task_id"`
	NotificationType string `json:"notification_type"` // email / push / in_app
}

// DeliveryFailedPayload rides on audit-logs after delivery retries are exhausted.
type DeliveryFailedPayload struct {
	Channel  string `json:"channel"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}
