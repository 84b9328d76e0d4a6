package dedupe

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "hitome:webhook:"

// RedisDeduper shares seen keys between instances
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper connects to url and checks the connection
func NewRedisDeduper(url string, ttl time.Duration) (*RedisDeduper, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisDeduperFromClient(c, ttl), nil
}

func NewRedisDeduperFromClient(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisDeduper{client: client, ttl: ttl}
}

var _ Deduper = (*RedisDeduper)(nil)

func (r *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	created, err := r.client.SetNX(ctx, keyPrefix+key, 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: setnx: %w", err)
	}
	return !created, nil
}

func (r *RedisDeduper) Close() error {
	return r.client.Close()
}
