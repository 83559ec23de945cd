package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper stores fired completion keys in Redis so all instances
// agree that the task.completed webhook for a token fires at most once,
// even when two link visits race across processes.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(profileName, key string) string {
	return fmt.Sprintf("completed:%s:%s", profileName, key)
}

// Add records the key if it does not already exist. It returns true when
// the key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, profileName, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(profileName, key), 1, r.ttl).Result()
}
