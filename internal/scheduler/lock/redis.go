package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis mirrors the WorkerMessage lock in Redis with a SETNX-guarded
// key, grounded on queue/redis/queue.go's Queue and
// db/repository/redis.go's AcquireLock/ReleaseLock/IsLocked.
type Redis struct {
	client *redis.Client
	prefix string
}

// Config configures a Redis-backed Lock.
type Config struct {
	RedisURL  string
	KeyPrefix string // defaults to "execcore:lock:"
}

// NewRedis connects to Redis and verifies the connection with Ping.
func NewRedis(ctx context.Context, cfg Config) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "execcore:lock:"
	}
	return &Redis{client: client, prefix: prefix}, nil
}

// Close releases the underlying client's connections.
func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+key, "1", ttl).Result()
}

func (r *Redis) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
