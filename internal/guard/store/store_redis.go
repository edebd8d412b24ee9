package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stayguard/internal/guard/models"
	"stayguard/pkg/sentinel"
)

const keyNamespace = "guard:"

// RedisStore implements Store against a shared Redis backend, giving every
// worker process the same view of counters and blocks.
type RedisStore struct {
	client redis.Cmdable
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. The caller owns the connection.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) prefixed(key string) string {
	return keyNamespace + key
}

// IncrementAndGet increments atomically in a single round trip: INCR,
// EXPIRE NX (sets the window TTL only when the key has none, preserving
// fixed-window semantics), and TTL are pipelined together, so concurrent
// increments from independent workers cannot lose updates.
func (s *RedisStore) IncrementAndGet(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := s.prefixed(key)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	ttl := pipe.TTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("increment %q: %w: %w", key, sentinel.ErrUnavailable, err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		// Key existed without a TTL (should not happen); treat the full
		// window as remaining rather than leaking an immortal counter.
		remaining = window
	}
	return incr.Val(), remaining, nil
}

// Peek implements CounterStore.
func (s *RedisStore) Peek(ctx context.Context, key string) (int64, error) {
	count, err := s.client.Get(ctx, s.prefixed(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("peek %q: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return count, nil
}

// Clear implements CounterStore.
func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefixed(key)).Err(); err != nil {
		return fmt.Errorf("clear %q: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return nil
}

// GetBlock implements BlockStore. The entry's value holds the reason; its
// remaining lifetime is recovered from the key TTL, so expiry is enforced by
// Redis itself.
func (s *RedisStore) GetBlock(ctx context.Context, key string) (*models.BlockEntry, error) {
	k := s.prefixed(key)

	pipe := s.client.TxPipeline()
	get := pipe.Get(ctx, k)
	ttl := pipe.TTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get block %q: %w: %w", key, sentinel.ErrUnavailable, err)
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		return nil, nil
	}
	return &models.BlockEntry{
		Key:          key,
		Reason:       models.DenyReason(get.Val()),
		BlockedUntil: time.Now().Add(remaining),
	}, nil
}

// SetBlock implements BlockStore.
func (s *RedisStore) SetBlock(ctx context.Context, key string, duration time.Duration, reason models.DenyReason) error {
	if err := s.client.Set(ctx, s.prefixed(key), string(reason), duration).Err(); err != nil {
		return fmt.Errorf("set block %q: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return nil
}

// ClearBlock implements BlockStore.
func (s *RedisStore) ClearBlock(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefixed(key)).Err(); err != nil {
		return fmt.Errorf("clear block %q: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return nil
}
