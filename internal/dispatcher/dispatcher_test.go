package dispatcher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "todoflow/contracts/mq"
	"todoflow/internal/model"
	"todoflow/internal/store"
)

type fakeChannel struct {
	mu    sync.Mutex
	name  string
	sends int
	errs  []error // consumed per attempt; nil entry means success
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Send(_ context.Context, _ Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if len(c.errs) > 0 {
		err = c.errs[0]
		c.errs = c.errs[1:]
	}
	if err != nil {
		return err
	}
	c.sends++
	return nil
}

func (c *fakeChannel) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sends
}

type fakePublisher struct {
	mu        sync.Mutex
	published map[string][]mqcontracts.Envelope
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string][]mqcontracts.Envelope)}
}

func (p *fakePublisher) Publish(_ context.Context, topic string, env mqcontracts.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published[topic] = append(p.published[topic], env)
	return nil
}

func (p *fakePublisher) byTopic(topic string) []mqcontracts.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published[topic]
}

func testConfig() Config {
	return Config{
		MaxAttempts:    5,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
		RecordTTL:      time.Hour,
	}
}

func reminderDueEnvelope(t *testing.T, reminderID int64, notificationType string) mqcontracts.Envelope {
	t.Helper()
	env, err := mqcontracts.NewEnvelope(context.Background(), mqcontracts.EventReminderDue, reminderID, 3, mqcontracts.ReminderDuePayload{
		TaskID:           reminderID * 10,
		NotificationType: notificationType,
	})
	require.NoError(t, err)
	return env
}

func loadRecord(t *testing.T, st store.Store, reminderID int64, channel string) model.DeliveryRecord {
	t.Helper()
	raw, err := st.Get(context.Background(), store.DeliveryKey(reminderID, channel))
	require.NoError(t, err)
	var record model.DeliveryRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &record))
	return record
}

func transientErr() error {
	return &TransientError{Err: assert.AnError}
}

func TestDispatcher_DeliversFirstTry(t *testing.T) {
	st := store.NewMemory()
	pub := newFakePublisher()
	ch := &fakeChannel{name: model.NotificationEmail}
	d := New(st, pub, zap.NewNop(), testConfig(), ch)

	err := d.HandleReminderDue(context.Background(), reminderDueEnvelope(t, 1, model.NotificationEmail))
	require.NoError(t, err)

	assert.Equal(t, 1, ch.sendCount())

	record := loadRecord(t, st, 1, model.NotificationEmail)
	assert.Equal(t, model.DeliveryDelivered, record.Status)
	assert.Equal(t, 1, record.Attempts)
	assert.Empty(t, pub.byTopic(mqcontracts.TopicAuditLogs))
}

func TestDispatcher_RetriesTransientThenDelivers(t *testing.T) {
	st := store.NewMemory()
	pub := newFakePublisher()
	// Fails transiently 3 times, then succeeds on attempt 4 of 5
	ch := &fakeChannel{name: model.NotificationEmail, errs: []error{
		transientErr(), transientErr(), transientErr(), nil,
	}}
	d := New(st, pub, zap.NewNop(), testConfig(), ch)

	err := d.HandleReminderDue(context.Background(), reminderDueEnvelope(t, 1, model.NotificationEmail))
	require.NoError(t, err)

	record := loadRecord(t, st, 1, model.NotificationEmail)
	assert.Equal(t, model.DeliveryDelivered, record.Status)
	assert.Equal(t, 4, record.Attempts)
	assert.Empty(t, pub.byTopic(mqcontracts.TopicAuditLogs))
}

func TestDispatcher_ExhaustedRetriesDeadLetter(t *testing.T) {
	st := store.NewMemory()
	pub := newFakePublisher()
	ch := &fakeChannel{name: model.NotificationPush, errs: []error{
		transientErr(), transientErr(), transientErr(), transientErr(), transientErr(),
	}}
	d := New(st, pub, zap.NewNop(), testConfig(), ch)

	err := d.HandleReminderDue(context.Background(), reminderDueEnvelope(t, 2, model.NotificationPush))
	require.NoError(t, err, "dead-lettering acks the message")

	record := loadRecord(t, st, 2, model.NotificationPush)
	assert.Equal(t, model.DeliveryFailed, record.Status)
	assert.Equal(t, 5, record.Attempts)
	assert.Equal(t, 0, ch.sendCount())

	audits := pub.byTopic(mqcontracts.TopicAuditLogs)
	require.Len(t, audits, 1, "exactly one audit event per exhaustion")
	assert.Equal(t, mqcontracts.EventDeliveryFailed, audits[0].EventType)
	assert.Equal(t, int64(2), audits[0].EntityID)

	var p mqcontracts.DeliveryFailedPayload
	require.NoError(t, json.Unmarshal(audits[0].Payload, &p))
	assert.Equal(t, model.NotificationPush, p.Channel)
	assert.Equal(t, 5, p.Attempts)
}

func TestDispatcher_DuplicateRedeliveryIsDeduped(t *testing.T) {
	st := store.NewMemory()
	pub := newFakePublisher()
	ch := &fakeChannel{name: model.NotificationEmail}
	d := New(st, pub, zap.NewNop(), testConfig(), ch)

	env := reminderDueEnvelope(t, 1, model.NotificationEmail)
	require.NoError(t, d.HandleReminderDue(context.Background(), env))
	require.NoError(t, d.HandleReminderDue(context.Background(), env))

	assert.Equal(t, 1, ch.sendCount(), "second delivery of the same event must be dropped")

	record := loadRecord(t, st, 1, model.NotificationEmail)
	assert.Equal(t, model.DeliveryDelivered, record.Status)
	assert.Equal(t, 1, record.Attempts)
}

func TestDispatcher_PermanentErrorDeadLettersImmediately(t *testing.T) {
	st := store.NewMemory()
	pub := newFakePublisher()
	ch := &fakeChannel{name: model.NotificationEmail, errs: []error{
		&PermanentError{Err: assert.AnError},
		nil, // would succeed if retried; must not be reached
	}}
	d := New(st, pub, zap.NewNop(), testConfig(), ch)

	err := d.HandleReminderDue(context.Background(), reminderDueEnvelope(t, 3, model.NotificationEmail))
	require.NoError(t, err)

	assert.Equal(t, 0, ch.sendCount())

	record := loadRecord(t, st, 3, model.NotificationEmail)
	assert.Equal(t, model.DeliveryFailed, record.Status)
	assert.Equal(t, 1, record.Attempts)
	assert.Len(t, pub.byTopic(mqcontracts.TopicAuditLogs), 1)
}

func TestDispatcher_UnknownChannelDeadLetters(t *testing.T) {
	st := store.NewMemory()
	pub := newFakePublisher()
	d := New(st, pub, zap.NewNop(), testConfig(), &fakeChannel{name: model.NotificationEmail})

	err := d.HandleReminderDue(context.Background(), reminderDueEnvelope(t, 4, "carrier_pigeon"))
	require.NoError(t, err)

	audits := pub.byTopic(mqcontracts.TopicAuditLogs)
	require.Len(t, audits, 1)

	record := loadRecord(t, st, 4, "carrier_pigeon")
	assert.Equal(t, model.DeliveryFailed, record.Status)
}

func TestDispatcher_DeadLetteredReminderIsNotRetried(t *testing.T) {
	st := store.NewMemory()
	pub := newFakePublisher()
	ch := &fakeChannel{name: model.NotificationEmail, errs: []error{
		transientErr(), transientErr(), transientErr(), transientErr(), transientErr(),
	}}
	d := New(st, pub, zap.NewNop(), testConfig(), ch)

	env := reminderDueEnvelope(t, 5, model.NotificationEmail)
	require.NoError(t, d.HandleReminderDue(context.Background(), env))

	// Redelivery of the same event after dead-lettering: no new attempts,
	// no second audit event
	require.NoError(t, d.HandleReminderDue(context.Background(), env))

	assert.Equal(t, 0, ch.sendCount())
	assert.Len(t, pub.byTopic(mqcontracts.TopicAuditLogs), 1)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&TransientError{Err: assert.AnError}))
	assert.False(t, isRetryable(&PermanentError{Err: assert.AnError}))
	assert.True(t, isRetryable(context.DeadlineExceeded))
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(assert.AnError), "unknown errors are not retried")
	assert.False(t, isRetryable(nil))
}
