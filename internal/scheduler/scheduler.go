package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gamemaster-server/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Scheduler enqueues named tasks for execution after an optional delay.
type Scheduler interface {
	Enqueue(ctx context.Context, payload TaskPayload, delay time.Duration) error
}

// rabbitMQScheduler implements delayed delivery with a wait queue: messages
// published there with a per-message TTL dead-letter into the delivery queue
// when the TTL expires. Zero-delay tasks go straight to the delivery queue.
type rabbitMQScheduler struct {
	channel   *amqp.Channel
	taskQueue string
	waitQueue string
	logger    *zap.Logger
}

// DeclareTopology declares the task, wait and dead-letter queues. Safe to
// call from both the scheduler and the consumer; arguments must match.
func DeclareTopology(ch *amqp.Channel, cfg *config.Config) error {
	taskArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.TaskDLQ,
	}
	if _, err := ch.QueueDeclare(cfg.TaskQueue, true, false, false, false, taskArgs); err != nil {
		return fmt.Errorf("failed to declare task queue %q: %w", cfg.TaskQueue, err)
	}

	waitArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.TaskQueue,
	}
	if _, err := ch.QueueDeclare(cfg.TaskWaitQueue, true, false, false, false, waitArgs); err != nil {
		return fmt.Errorf("failed to declare wait queue %q: %w", cfg.TaskWaitQueue, err)
	}

	if _, err := ch.QueueDeclare(cfg.TaskDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter queue %q: %w", cfg.TaskDLQ, err)
	}
	return nil
}

// NewRabbitMQScheduler creates a Scheduler publishing on a dedicated channel.
func NewRabbitMQScheduler(conn *amqp.Connection, cfg *config.Config, logger *zap.Logger) (Scheduler, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("scheduler: failed to open channel: %w", err)
	}
	if err := DeclareTopology(ch, cfg); err != nil {
		ch.Close()
		return nil, err
	}

	return &rabbitMQScheduler{
		channel:   ch,
		taskQueue: cfg.TaskQueue,
		waitQueue: cfg.TaskWaitQueue,
		logger:    logger.Named("Scheduler"),
	}, nil
}

func (s *rabbitMQScheduler) Enqueue(ctx context.Context, payload TaskPayload, delay time.Duration) error {
	if payload.Task == "" {
		return errors.New("scheduler: task name is empty")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode task payload: %w", err)
	}

	queue := s.taskQueue
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
		AppId:        "gamemaster-server",
	}
	if delay > 0 {
		queue = s.waitQueue
		publishing.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for attempt := 1; attempt <= 3; attempt++ {
		err = s.channel.PublishWithContext(ctx, "", queue, false, false, publishing)
		if err == nil {
			break
		}
		s.logger.Warn("Failed to publish task, retrying",
			zap.String("task", payload.Task), zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("failed to publish task %s after retries: %w", payload.Task, err)
	}

	s.logger.Debug("Task enqueued",
		zap.String("task", payload.Task),
		zap.String("campaignID", payload.CampaignID.String()),
		zap.Duration("delay", delay))
	return nil
}
