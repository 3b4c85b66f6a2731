package mq

import (
	"context"
	"encoding/json"
	"time"

	"todoflow/pkg/trace"
)

// Topics carried on the events exchange.
const (
	TopicTaskEvents = "task-events"
	TopicReminders  = "reminders"
	TopicAuditLogs  = "audit-logs"
)

// Event types.
const (
	EventTaskCreated    = "task.created"
	EventReminderDue    = "reminder.due"
	EventDeliveryFailed = "audit.delivery_failed"
)

// Envelope 是总线上的统一消息格式
// Payload 为不透明 JSON，由 event_type 决定具体结构
type Envelope struct {
	EventType string          `json:"event_type"`
	EntityID  int64           `json:"entity_id"`
	Payload   json.RawMessage `json:"payload"`
	UserID    int64           `json:"user_id"`
	Timestamp time.Time       `json:"timestamp"`
	TraceID   string          `json:"trace_id"`
}

// NewEnvelope builds an envelope for the given payload, stamping the current
// time and the trace id from ctx (a fresh one is generated if ctx has none).
func NewEnvelope(ctx context.Context, eventType string, entityID, userID int64, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}

	traceID := trace.FromContext(ctx)
	if traceID == "" {
		traceID = trace.GenerateTraceID()
	}

	return Envelope{
		EventType: eventType,
		EntityID:  entityID,
		Payload:   data,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		TraceID:   traceID,
	}, nil
}
