package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface satisfaction check.
var _ Store = (*RedisStore)(nil)

// RedisStore implements Store with plain Redis strings. Keys are namespaced
// with a prefix so several deployments can share one database.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the key namespace. Defaults to "taskport:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore creates a Redis-backed store. The caller owns the client
// lifecycle.
func NewRedisStore(client redis.Cmdable, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "taskport:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping verifies the Redis connection is alive.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get item %q: %w", key, err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		if isOOM(err) {
			return fmt.Errorf("set item %q: %w", key, ErrQuotaExceeded)
		}
		return fmt.Errorf("set item %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("delete item %q: %w", key, err)
	}
	return nil
}

// Close is a no-op: the caller owns the Redis client lifecycle.
func (s *RedisStore) Close() error { return nil }

// isOOM reports the error Redis returns once maxmemory is reached.
func isOOM(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr) && strings.HasPrefix(rerr.Error(), "OOM")
}
