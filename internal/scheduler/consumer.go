package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"gamemaster-server/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Handler processes one delivered task. Returning an error sends the
// delivery to the dead-letter queue; delivery is at-least-once, so handlers
// must be idempotent.
type Handler func(ctx context.Context, payload TaskPayload) error

// Consumer dispatches deliveries from the task queue to registered handlers.
type Consumer struct {
	channel  *amqp.Channel
	queue    string
	dlq      string
	handlers map[string]Handler
	logger   *zap.Logger
}

// NewConsumer creates a task queue consumer on a dedicated channel.
func NewConsumer(conn *amqp.Connection, cfg *config.Config, logger *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("consumer: failed to open channel: %w", err)
	}
	if err := DeclareTopology(ch, cfg); err != nil {
		ch.Close()
		return nil, err
	}
	// One unacked task at a time keeps turn handlers serialized per worker.
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("consumer: failed to set qos: %w", err)
	}

	return &Consumer{
		channel:  ch,
		queue:    cfg.TaskQueue,
		dlq:      cfg.TaskDLQ,
		handlers: make(map[string]Handler),
		logger:   logger.Named("TaskConsumer"),
	}, nil
}

// Register binds a handler to a task name. Must be called before Run.
func (c *Consumer) Register(task string, h Handler) {
	c.handlers[task] = h
}

// Run consumes the task queue until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", c.queue, err)
	}
	c.logger.Info("Task consumer started", zap.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Task consumer stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for queue %q closed", c.queue)
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var payload TaskPayload
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		c.logger.Error("Failed to decode task payload, sending to DLQ", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	handler, ok := c.handlers[payload.Task]
	if !ok {
		c.logger.Error("No handler for task, sending to DLQ", zap.String("task", payload.Task))
		_ = d.Nack(false, false)
		return
	}

	if err := handler(ctx, payload); err != nil {
		c.logger.Error("Task handler failed, sending to DLQ",
			zap.String("task", payload.Task),
			zap.String("campaignID", payload.CampaignID.String()),
			zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.Error("Failed to ack delivery", zap.String("task", payload.Task), zap.Error(err))
		return
	}
	c.logger.Debug("Task processed", zap.String("task", payload.Task))
}

// RunDLQ drains the dead-letter queue, logging each dropped task.
func (c *Consumer) RunDLQ(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("dlq consumer: failed to open channel: %w", err)
	}
	defer ch.Close()

	deliveries, err := ch.Consume(c.dlq, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume dlq %q: %w", c.dlq, err)
	}
	c.logger.Info("DLQ consumer started", zap.String("queue", c.dlq))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for dlq %q closed", c.dlq)
			}
			c.logger.Warn("Dropping dead-lettered task", zap.ByteString("body", d.Body))
			_ = d.Ack(false)
		}
	}
}
