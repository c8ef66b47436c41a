// Package cache provides a small read-through cache used to soften repeated
// collaborator lookups during order validation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss signals the key is absent.
var ErrMiss = errors.New("cache miss")

// Cache stores short-lived lookup results keyed per service and operation.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Key(operation, id string) string
}

// RedisCache is a Cache backed by a shared redis client.
type RedisCache struct {
	client    redis.Cmdable
	namespace string
}

// NewRedisCache constructs a cache over an injected redis client. The
// namespace prefixes every key so services can share one redis instance.
func NewRedisCache(client redis.Cmdable, namespace string) *RedisCache {
	return &RedisCache{client: client, namespace: namespace}
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (r *RedisCache) Key(operation, id string) string {
	return fmt.Sprintf("%s:%s:%s", r.namespace, operation, id)
}
