package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courier/internal/domain/notification"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "courier:idempotency:"

var _ notification.IdempotencyGuard = (*RedisGuard)(nil)

// RedisGuard records which task was created for an idempotency key.
// Keys expire after ttl so clients may reuse them eventually.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard creates a new Redis-based idempotency guard.
func NewRedisGuard(redisAddr, password string, db int, ttl time.Duration) *RedisGuard {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})
	return NewRedisGuardWithClient(client, ttl)
}

// NewRedisGuardWithClient creates a guard on an existing client.
func NewRedisGuardWithClient(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisGuard{client: client, ttl: ttl}
}

// Reserve claims key for taskID with SET NX. When the key already exists the
// stored task id is returned instead.
func (g *RedisGuard) Reserve(ctx context.Context, key, taskID string) (string, bool, error) {
	k := keyPrefix + key

	ok, err := g.client.SetNX(ctx, k, taskID, g.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("reserving idempotency key: %w", err)
	}
	if ok {
		return taskID, true, nil
	}

	existing, err := g.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		ok, err = g.client.SetNX(ctx, k, taskID, g.ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("reserving idempotency key: %w", err)
		}
		if ok {
			return taskID, true, nil
		}
		existing, err = g.client.Get(ctx, k).Result()
	}
	if err != nil {
		return "", false, fmt.Errorf("reading idempotency key: %w", err)
	}

	return existing, false, nil
}

// Release deletes key.
func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("releasing idempotency key: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}
