package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	mqcontracts "todoflow/contracts/mq"
	"todoflow/pkg/metrics"
	"todoflow/pkg/trace"
)

type EnvelopeHandler func(ctx context.Context, env mqcontracts.Envelope) error

// Consumer binds one (topic, consumer-group) pair to a durable queue named
// "{group}.{topic}" and feeds decoded envelopes to a single handler.
type Consumer struct {
	conn      *amqp091.Connection
	channel   *amqp091.Channel
	queue     amqp091.Queue
	topic     string
	handler   EnvelopeHandler
	dlqEnable bool
	logger    *zap.Logger
}

func NewConsumer(url, topic, group string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := DeclareDLQExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}
	if _, err := DeclareDLQQueue(ch, topic); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	queueName := fmt.Sprintf("%s.%s", group, topic)
	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		topic,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("topic", topic),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:      conn,
		channel:   ch,
		queue:     q,
		topic:     topic,
		dlqEnable: true,
		logger:    logger,
	}, nil
}

func (c *Consumer) SetHandler(h EnvelopeHandler) {
	c.handler = h
}

// IsConnected checks if the consumer connection is still alive
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming starts consuming messages. This method blocks and should be called in a goroutine.
func (c *Consumer) StartConsuming() error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"worker",
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("topic", c.topic),
		zap.String("queue", c.queue.Name),
	)

	// 最安全的消费模型：保证每条消息都会被 ack、nack 或进 DLQ
	for msg := range deliveries {
		c.consumeOne(msg)
	}

	return nil
}

func (c *Consumer) consumeOne(msg amqp091.Delivery) {
	start := time.Now()

	// Panic 恢复：确保即使 handler panic 也能正确处理消息
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("topic", c.topic),
				zap.String("queue", c.queue.Name),
				zap.Any("panic", r),
			)
			if err := msg.Nack(false, true); err != nil {
				c.logger.Error("Failed to nack message after panic",
					zap.String("topic", c.topic),
					zap.Error(err),
				)
			}
		}
	}()

	var env mqcontracts.Envelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		// 消息体损坏：重新入队只会死循环，转投 DLQ 后确认
		c.logger.Error("Undecodable message, routing to DLQ",
			zap.String("topic", c.topic),
			zap.Error(err),
		)
		c.deadLetter(msg, err)
		return
	}

	ctx := context.Background()
	if env.TraceID != "" {
		ctx = trace.WithContext(ctx, env.TraceID)
	}

	if err := c.handler(ctx, env); err != nil {
		c.logger.Error("Handler error",
			zap.String("topic", c.topic),
			zap.String("event_type", env.EventType),
			zap.Int64("entity_id", env.EntityID),
			zap.Error(err),
		)
		// 业务失败 → 拒绝消息并重新入队，让 MQ 重试
		if err := msg.Nack(false, true); err != nil {
			c.logger.Error("Failed to nack message",
				zap.String("topic", c.topic),
				zap.Error(err),
			)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("topic", c.topic),
			zap.Error(err),
		)
		return
	}

	metrics.RecordMQConsumeLatency(c.topic, c.queue.Name, time.Since(start))
}

func (c *Consumer) deadLetter(msg amqp091.Delivery, cause error) {
	if c.dlqEnable {
		if err := publishToDLQ(c.channel, c.topic, msg.Body, cause.Error()); err != nil {
			c.logger.Error("Failed to publish to DLQ",
				zap.String("topic", c.topic),
				zap.Error(err),
			)
			// DLQ 不可用时保留消息
			_ = msg.Nack(false, true)
			return
		}
	}
	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack dead-lettered message",
			zap.String("topic", c.topic),
			zap.Error(err),
		)
	}
}
