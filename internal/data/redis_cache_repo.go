package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-jobs/internal/core"
)

var (
	errEmptyKey     = errors.New("key cannot be empty")
	errEmptyChannel = errors.New("channel cannot be empty")
)

// RedisCacheRepo is the Redis-backed core.CacheRepository holding progress
// snapshots and carrying lifecycle events over pub/sub.
type RedisCacheRepo struct {
	client redis.UniversalClient
}

var _ core.CacheRepository = (*RedisCacheRepo)(nil)

// NewRedisCacheRepo wraps client. Standalone, sentinel and cluster clients all work.
func NewRedisCacheRepo(client redis.UniversalClient) *RedisCacheRepo {
	return &RedisCacheRepo{client: client}
}

// Set writes value under key. A zero ttl stores the key without expiry.
func (r *RedisCacheRepo) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	if ttl < 0 {
		return fmt.Errorf("negative ttl %s for key %q", ttl, key)
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Get returns the value under key, or nil when the key is missing or expired.
func (r *RedisCacheRepo) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, errEmptyKey
	}
	b, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return b, nil
}

// Delete unlinks key and reports whether it existed.
func (r *RedisCacheRepo) Delete(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errEmptyKey
	}
	n, err := r.client.Unlink(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis unlink %q: %w", key, err)
	}
	return n > 0, nil
}

// Publish fans payload out to the subscribers of channel. Nobody listening is not an error.
func (r *RedisCacheRepo) Publish(ctx context.Context, channel string, payload []byte) error {
	if channel == "" {
		return errEmptyChannel
	}
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %q: %w", channel, err)
	}
	return nil
}

// Health pings the server.
func (r *RedisCacheRepo) Health(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
