package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"todoflow/internal/model"
)

// Delivery is what a channel adapter needs to deliver one reminder.
type Delivery struct {
	ReminderID int64
	TaskID     int64
	UserID     int64
	Message    string
}

// Channel delivers reminders over one notification medium. Adding a medium
// means adding an adapter, not extending a dispatch table.
type Channel interface {
	Name() string
	Send(ctx context.Context, d Delivery) error
}

// NotificationInserter is the slice of the notification repository the in-app
// channel needs.
type NotificationInserter interface {
	Insert(ctx context.Context, userID, taskID, reminderID int64, message string) (int64, error)
}

// InAppChannel stores the notification for the web client to pick up.
type InAppChannel struct {
	repo   NotificationInserter
	logger *zap.Logger
}

func NewInAppChannel(repo NotificationInserter, logger *zap.Logger) *InAppChannel {
	return &InAppChannel{repo: repo, logger: logger}
}

func (c *InAppChannel) Name() string { return model.NotificationInApp }

func (c *InAppChannel) Send(ctx context.Context, d Delivery) error {
	_, err := c.repo.Insert(ctx, d.UserID, d.TaskID, d.ReminderID, d.Message)
	if err != nil {
		return fmt.Errorf("failed to store in-app notification: %w", err)
	}
	return nil
}

// EmailChannel sends the reminder by email.
type EmailChannel struct {
	logger *zap.Logger
}

func NewEmailChannel(logger *zap.Logger) *EmailChannel {
	return &EmailChannel{logger: logger}
}

func (c *EmailChannel) Name() string { return model.NotificationEmail }

func (c *EmailChannel) Send(ctx context.Context, d Delivery) error {
	// TODO: wire a real SMTP/SendGrid sender
	c.logger.Info("Sending email notification",
		zap.Int64("user_id", d.UserID),
		zap.Int64("reminder_id", d.ReminderID),
		zap.String("message", d.Message),
	)
	// Simulate email sending
	time.Sleep(100 * time.Millisecond)
	return nil
}

// PushChannel sends the reminder as a push notification.
type PushChannel struct {
	logger *zap.Logger
}

func NewPushChannel(logger *zap.Logger) *PushChannel {
	return &PushChannel{logger: logger}
}

func (c *PushChannel) Name() string { return model.NotificationPush }

func (c *PushChannel) Send(ctx context.Context, d Delivery) error {
	// TODO: wire FCM/APNS
	c.logger.Info("Sending push notification",
		zap.Int64("user_id", d.UserID),
		zap.Int64("reminder_id", d.ReminderID),
		zap.String("message", d.Message),
	)
	// Simulate push sending
	time.Sleep(100 * time.Millisecond)
	return nil
}
