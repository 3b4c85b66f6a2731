package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	mqcontracts "todoflow/contracts/mq"
	"todoflow/internal/model"
	"todoflow/internal/store"
	"todoflow/pkg/logger"
	"todoflow/pkg/metrics"
)

// Publisher publishes envelopes on the event bus (audit trail).
type Publisher interface {
	Publish(ctx context.Context, topic string, env mqcontracts.Envelope) error
}

// Config tunes delivery retries.
type Config struct {
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RecordTTL      time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		RetryBaseDelay: 500 * time.Millisecond,
		RetryMaxDelay:  30 * time.Second,
		RecordTTL:      7 * 24 * time.Hour,
	}
}

// Dispatcher consumes reminder.due events and delivers them over the channel
// matching notification_type. The bus delivers at least once, so every
// decision goes through the DeliveryRecord in the state store: a record in
// delivered state drops redeliveries, attempts survive redelivery, and
// exhausted retries are dead-lettered as an audit event instead of being
// requeued forever.
type Dispatcher struct {
	st        store.Store
	publisher Publisher
	channels  map[string]Channel
	logger    *zap.Logger
	cfg       Config
}

func New(st store.Store, publisher Publisher, log *zap.Logger, cfg Config, channels ...Channel) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}

	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}

	return &Dispatcher{
		st:        st,
		publisher: publisher,
		channels:  byName,
		logger:    log,
		cfg:       cfg,
	}
}

// HandleReminderDue is the handler registered on the reminders topic.
// Returning an error requeues the event; terminal outcomes return nil so the
// message is acked.
func (d *Dispatcher) HandleReminderDue(ctx context.Context, env mqcontracts.Envelope) error {
	log := logger.WithTrace(ctx, d.logger)

	if env.EventType != mqcontracts.EventReminderDue {
		log.Warn("Unexpected event type on reminders topic",
			zap.String("event_type", env.EventType),
		)
		return nil
	}

	var p mqcontracts.ReminderDuePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		// Requeueing a malformed payload would loop forever.
		log.Error("Failed to unmarshal ReminderDuePayload",
			zap.Int64("reminder_id", env.EntityID),
			zap.Error(err),
		)
		return nil
	}

	reminderID := env.EntityID
	channel, ok := d.channels[p.NotificationType]
	if !ok {
		log.Error("No channel adapter for notification type",
			zap.Int64("reminder_id", reminderID),
			zap.String("notification_type", p.NotificationType),
		)
		return d.deadLetter(ctx, reminderID, env.UserID, p.NotificationType, 0,
			fmt.Errorf("unsupported notification type %q", p.NotificationType))
	}

	key := store.DeliveryKey(reminderID, channel.Name())
	record, err := d.loadRecord(ctx, key, reminderID, channel.Name())
	if err != nil {
		return err
	}

	switch record.Status {
	case model.DeliveryDelivered:
		// Duplicate redelivery from the at-least-once bus.
		metrics.RecordDelivery(channel.Name(), "deduped")
		log.Info("Reminder already delivered, dropping duplicate",
			zap.Int64("reminder_id", reminderID),
			zap.String("channel", channel.Name()),
		)
		return nil
	case model.DeliveryFailed:
		// Dead-lettered; operator attention, no automatic retries.
		log.Warn("Reminder previously dead-lettered, dropping",
			zap.Int64("reminder_id", reminderID),
			zap.String("channel", channel.Name()),
		)
		return nil
	}

	return d.deliver(ctx, channel, record, Delivery{
		ReminderID: reminderID,
		TaskID:     p.TaskID,
		UserID:     env.UserID,
		Message:    fmt.Sprintf("Reminder for task #%d", p.TaskID),
	})
}

// deliver attempts the send with exponential backoff until it succeeds,
// exhausts MaxAttempts, or hits a permanent error.
func (d *Dispatcher) deliver(ctx context.Context, channel Channel, record *model.DeliveryRecord, del Delivery) error {
	log := logger.WithTrace(ctx, d.logger)

	var lastErr error
	for record.Attempts < d.cfg.MaxAttempts {
		record.Attempts++
		record.LastAttemptAt = time.Now().UTC()

		err := channel.Send(ctx, del)
		if err == nil {
			record.Status = model.DeliveryDelivered
			if err := d.saveRecord(ctx, record); err != nil {
				return err
			}
			metrics.RecordDelivery(channel.Name(), "delivered")
			metrics.DeliveryAttempts.WithLabelValues(channel.Name()).Observe(float64(record.Attempts))
			log.Info("Reminder delivered",
				zap.Int64("reminder_id", record.ReminderID),
				zap.String("channel", channel.Name()),
				zap.Int("attempts", record.Attempts),
			)
			return nil
		}
		lastErr = err

		record.Status = model.DeliveryPending
		if saveErr := d.saveRecord(ctx, record); saveErr != nil {
			return saveErr
		}

		if !isRetryable(err) {
			log.Error("Permanent delivery error",
				zap.Int64("reminder_id", record.ReminderID),
				zap.String("channel", channel.Name()),
				zap.Error(err),
			)
			break
		}

		log.Warn("Transient delivery error",
			zap.Int64("reminder_id", record.ReminderID),
			zap.String("channel", channel.Name()),
			zap.Int("attempt", record.Attempts),
			zap.Error(err),
		)

		if record.Attempts < d.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff(record.Attempts)):
			}
		}
	}

	return d.deadLetter(ctx, record.ReminderID, del.UserID, channel.Name(), record.Attempts, lastErr)
}

// deadLetter records the terminal failure and emits exactly one audit event.
func (d *Dispatcher) deadLetter(ctx context.Context, reminderID, userID int64, channel string, attempts int, cause error) error {
	log := logger.WithTrace(ctx, d.logger)

	record := &model.DeliveryRecord{
		ReminderID:    reminderID,
		Channel:       channel,
		Status:        model.DeliveryFailed,
		Attempts:      attempts,
		LastAttemptAt: time.Now().UTC(),
	}
	if err := d.saveRecord(ctx, record); err != nil {
		return err
	}
	metrics.RecordDelivery(channel, "failed")
	if attempts > 0 {
		metrics.DeliveryAttempts.WithLabelValues(channel).Observe(float64(attempts))
	}

	causeMsg := ""
	if cause != nil {
		causeMsg = cause.Error()
	}
	env, err := mqcontracts.NewEnvelope(ctx, mqcontracts.EventDeliveryFailed, reminderID, userID, mqcontracts.DeliveryFailedPayload{
		Channel:  channel,
		Attempts: attempts,
		Error:    causeMsg,
	})
	if err != nil {
		return err
	}
	if err := d.publisher.Publish(ctx, mqcontracts.TopicAuditLogs, env); err != nil {
		log.Error("Failed to publish audit.delivery_failed",
			zap.Int64("reminder_id", reminderID),
			zap.Error(err),
		)
		return err
	}

	log.Error("Reminder delivery dead-lettered",
		zap.Int64("reminder_id", reminderID),
		zap.String("channel", channel),
		zap.Int("attempts", attempts),
		zap.String("cause", causeMsg),
	)
	return nil
}

func (d *Dispatcher) loadRecord(ctx context.Context, key string, reminderID int64, channel string) (*model.DeliveryRecord, error) {
	raw, err := d.st.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return &model.DeliveryRecord{
			ReminderID: reminderID,
			Channel:    channel,
			Status:     model.DeliveryPending,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	var record model.DeliveryRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		// Corrupt record: start over rather than wedging the reminder.
		d.logger.Warn("Corrupt delivery record, resetting",
			zap.String("key", key),
			zap.Error(err),
		)
		return &model.DeliveryRecord{
			ReminderID: reminderID,
			Channel:    channel,
			Status:     model.DeliveryPending,
		}, nil
	}
	return &record, nil
}

func (d *Dispatcher) saveRecord(ctx context.Context, record *model.DeliveryRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return d.st.Set(ctx, store.DeliveryKey(record.ReminderID, record.Channel), string(raw), d.cfg.RecordTTL)
}

// backoff is exponential on the attempt number, capped at RetryMaxDelay.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.RetryBaseDelay << (attempt - 1)
	if delay > d.cfg.RetryMaxDelay || delay <= 0 {
		return d.cfg.RetryMaxDelay
	}
	return delay
}
