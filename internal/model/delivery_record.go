package model

import "time"

// Delivery statuses.
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// DeliveryRecord tracks the outcome of delivering one reminder on one
// channel. Lives in the state store under delivery:{reminder_id}:{channel},
// expiring by TTL rather than explicit cleanup.
type DeliveryRecord struct {
	ReminderID    int64     `json:"reminder_id"`
	Channel       string    `json:"channel"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
}
