package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-wattwise/internal/ports"
)

// RedisStore is a CacheStore backed by Redis, so cached responses survive
// restarts and are shared between processes.
type RedisStore struct {
	client redis.UniversalClient
}

var _ ports.CacheStore = (*RedisStore)(nil)

// NewRedisStore connects to the Redis server at addr.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return NewRedisStoreFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return ports.NewCacheError("", "ping", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, ports.NewCacheError(key, "get", err)
	}
	return val, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	if err := r.client.Set(ctx, key, value, max(expiration, 0)).Err(); err != nil {
		return ports.NewCacheError(key, "set", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return ports.NewCacheError(key, "delete", err)
	}
	return nil
}

// Close releases the client's connections.
func (r *RedisStore) Close() error { return r.client.Close() }
