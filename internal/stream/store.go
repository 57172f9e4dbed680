package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gamemaster-server/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is the persistent stream log: every event of an in-flight turn is
// appended so late or reconnecting clients replay the full prefix and then
// follow live.
type Store interface {
	// Append adds an event to the message's log and notifies live tails.
	Append(ctx context.Context, messageID uuid.UUID, event models.StreamEvent) error
	// SetStatus records the stream lifecycle; terminal statuses start the
	// log's expiry countdown.
	SetStatus(ctx context.Context, messageID uuid.UUID, status models.StreamStatus) error
	// Status returns the recorded lifecycle, StreamRunning if none.
	Status(ctx context.Context, messageID uuid.UUID) (models.StreamStatus, error)
	// Attach replays the full log and then tails live events. The returned
	// channel closes after a terminal status event or the liveness timeout.
	Attach(ctx context.Context, messageID uuid.UUID) (<-chan models.StreamEvent, error)
}

// decodeLogLines parses replayed log lines. Malformed lines are skipped with
// a warning and never abort the replay.
func decodeLogLines(lines []string, logger *zap.Logger) []models.StreamEvent {
	events := make([]models.StreamEvent, 0, len(lines))
	for _, line := range lines {
		var event models.StreamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			logger.Warn("Skipping malformed stream log line", zap.Error(err))
			continue
		}
		events = append(events, event)
	}
	return events
}

// envelope frames a published live event with its log sequence number so an
// attaching client can discard events already covered by its replay.
type envelope struct {
	Seq   int64              `json:"seq"`
	Event models.StreamEvent `json:"event"`
}

type redisStore struct {
	client          *redis.Client
	ttl             time.Duration
	livenessTimeout time.Duration
	logger          *zap.Logger
}

// NewRedisStore creates a Redis-backed stream store.
func NewRedisStore(client *redis.Client, ttl, livenessTimeout time.Duration, logger *zap.Logger) Store {
	return &redisStore{
		client:          client,
		ttl:             ttl,
		livenessTimeout: livenessTimeout,
		logger:          logger.Named("StreamStore"),
	}
}

func logKey(id uuid.UUID) string      { return "stream:" + id.String() }
func liveChannel(id uuid.UUID) string { return "stream:" + id.String() + ":live" }
func statusKey(id uuid.UUID) string   { return "stream:" + id.String() + ":status" }

func (s *redisStore) Append(ctx context.Context, messageID uuid.UUID, event models.StreamEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode stream event: %w", err)
	}

	seq, err := s.client.RPush(ctx, logKey(messageID), line).Result()
	if err != nil {
		return fmt.Errorf("failed to append stream event: %w", err)
	}

	env, err := json.Marshal(envelope{Seq: seq, Event: event})
	if err != nil {
		return fmt.Errorf("failed to encode stream envelope: %w", err)
	}
	if err := s.client.Publish(ctx, liveChannel(messageID), env).Err(); err != nil {
		// Live tails miss this event but the log has it; replays recover.
		s.logger.Warn("Failed to publish live stream event",
			zap.String("messageID", messageID.String()), zap.Error(err))
	}
	return nil
}

func (s *redisStore) SetStatus(ctx context.Context, messageID uuid.UUID, status models.StreamStatus) error {
	if err := s.client.Set(ctx, statusKey(messageID), string(status), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set stream status: %w", err)
	}
	if status.Terminal() {
		if err := s.client.Expire(ctx, logKey(messageID), s.ttl).Err(); err != nil {
			s.logger.Warn("Failed to set stream log expiry",
				zap.String("messageID", messageID.String()), zap.Error(err))
		}
	}
	return nil
}

func (s *redisStore) Status(ctx context.Context, messageID uuid.UUID) (models.StreamStatus, error) {
	val, err := s.client.Get(ctx, statusKey(messageID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.StreamRunning, nil
		}
		return "", fmt.Errorf("failed to get stream status: %w", err)
	}
	return models.StreamStatus(val), nil
}

func (s *redisStore) Attach(ctx context.Context, messageID uuid.UUID) (<-chan models.StreamEvent, error) {
	// Subscribe before replaying so no event falls between the replay
	// snapshot and the live tail; duplicates are dropped by sequence number.
	sub := s.client.Subscribe(ctx, liveChannel(messageID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to stream: %w", err)
	}

	lines, err := s.client.LRange(ctx, logKey(messageID), 0, -1).Result()
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to read stream log: %w", err)
	}

	status, err := s.Status(ctx, messageID)
	if err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan models.StreamEvent)
	go s.tail(ctx, messageID, sub, lines, status, out)
	return out, nil
}

func (s *redisStore) tail(ctx context.Context, messageID uuid.UUID, sub *redis.PubSub,
	lines []string, status models.StreamStatus, out chan<- models.StreamEvent) {
	defer close(out)
	defer sub.Close()

	send := func(event models.StreamEvent) bool {
		select {
		case out <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	replayed := int64(len(lines))
	for _, event := range decodeLogLines(lines, s.logger) {
		if !send(event) {
			return
		}
		if event.Type == models.EventStatus && event.Status.Terminal() {
			return
		}
	}

	if status.Terminal() {
		send(models.StreamEvent{Type: models.EventStatus, Status: status})
		return
	}

	liveness := time.NewTimer(s.livenessTimeout)
	defer liveness.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-liveness.C:
			// Producer died without a terminal event; resolve the stream
			// for this client instead of hanging.
			s.logger.Warn("Stream liveness timeout",
				zap.String("messageID", messageID.String()))
			send(models.StreamEvent{Type: models.EventStatus, Status: models.StreamTimeout})
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.logger.Warn("Skipping malformed live stream payload",
					zap.String("messageID", messageID.String()), zap.Error(err))
				continue
			}
			if env.Seq <= replayed {
				continue
			}
			if !liveness.Stop() {
				<-liveness.C
			}
			liveness.Reset(s.livenessTimeout)
			if !send(env.Event) {
				return
			}
			if env.Event.Type == models.EventStatus && env.Event.Status.Terminal() {
				return
			}
		}
	}
}
