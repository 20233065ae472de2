package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = errors.New("cache: key not found")

type CacheService interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
}

// SubmitLock serializes the duplicate-check-then-insert critical section per
// (exam, candidate) pair. Acquire returns false when another submission for
// the same pair is already in flight.
type SubmitLock interface {
	Acquire(ctx context.Context, examID uint, studentID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, examID uint, studentID string) error
}

type redisCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, logger *slog.Logger) CacheService {
	return &redisCache{client: client, logger: logger}
}

func (r *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		r.logger.Warn("cache set failed", "key", key, "error", err)
		return err
	}
	return nil
}

func (r *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *redisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

type redisSubmitLock struct {
	client *redis.Client
}

func NewRedisSubmitLock(client *redis.Client) SubmitLock {
	return &redisSubmitLock{client: client}
}

func submitLockKey(examID uint, studentID string) string {
	return fmt.Sprintf("submit-lock:%d:%s", examID, studentID)
}

func (l *redisSubmitLock) Acquire(ctx context.Context, examID uint, studentID string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, submitLockKey(examID, studentID), 1, ttl).Result()
}

func (l *redisSubmitLock) Release(ctx context.Context, examID uint, studentID string) error {
	return l.client.Del(ctx, submitLockKey(examID, studentID)).Err()
}
