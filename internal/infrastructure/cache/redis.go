package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/speakerid-team/speaker-id/pkg/config"
)

// RedisStore backs Store with a shared Redis instance so locks and cached
// path resolutions hold across replicas.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Set stores a key-value pair with expiration
func (rs *RedisStore) Set(ctx context.Context, key, value string, expiration time.Duration) {
	rs.client.Set(ctx, key, value, expiration)
}

// Get retrieves a value by key
func (rs *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	value, err := rs.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return value, true
}

// Delete removes a key
func (rs *RedisStore) Delete(ctx context.Context, key string) {
	rs.client.Del(ctx, key)
}

// SetNX stores the value only if the key is absent
func (rs *RedisStore) SetNX(ctx context.Context, key, value string, expiration time.Duration) bool {
	ok, err := rs.client.SetNX(ctx, key, value, expiration).Result()
	if err != nil {
		return false
	}
	return ok
}

// Close releases the underlying connection
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
