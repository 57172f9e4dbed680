package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamemaster-server/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ MediaStore = (*redisMediaStore)(nil)

type redisMediaStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisMediaStore creates a Redis-backed MediaStore. Media entries expire
// after ttl; a zero ttl keeps them indefinitely.
func NewRedisMediaStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) MediaStore {
	return &redisMediaStore{
		client: client,
		ttl:    ttl,
		logger: logger.Named("RedisMediaStore"),
	}
}

func mediaDataKey(ref string) string { return "media:" + ref + ":data" }
func mediaTypeKey(ref string) string { return "media:" + ref + ":type" }

func (s *redisMediaStore) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	ref := uuid.New().String()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, mediaDataKey(ref), data, s.ttl)
	pipe.Set(ctx, mediaTypeKey(ref), contentType, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("Failed to save media", zap.Error(err), zap.Int("size", len(data)))
		return "", fmt.Errorf("failed to save media: %w", err)
	}

	s.logger.Debug("Media saved", zap.String("ref", ref),
		zap.String("contentType", contentType), zap.Int("size", len(data)))
	return ref, nil
}

func (s *redisMediaStore) Get(ctx context.Context, ref string) ([]byte, string, error) {
	data, err := s.client.Get(ctx, mediaDataKey(ref)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", models.ErrNotFound
		}
		s.logger.Error("Failed to get media", zap.Error(err), zap.String("ref", ref))
		return nil, "", fmt.Errorf("failed to get media %s: %w", ref, err)
	}
	contentType, err := s.client.Get(ctx, mediaTypeKey(ref)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, "", fmt.Errorf("failed to get media type %s: %w", ref, err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, nil
}
