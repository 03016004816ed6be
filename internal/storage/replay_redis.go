package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisReplayGuard struct {
	client *redis.Client
	prefix string
}

func NewRedisReplayGuard(client *redis.Client, prefix string) *RedisReplayGuard {
	if prefix == "" {
		prefix = "keygate:"
	}
	return &RedisReplayGuard{client: client, prefix: prefix + "replay:"}
}

func (g *RedisReplayGuard) Reserve(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}
	ok, err := g.client.SetNX(ctx, g.prefix+id, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis reserve: %w", err)
	}
	return ok, nil
}

func (g *RedisReplayGuard) Release(ctx context.Context, id string) error {
	if err := g.client.Del(ctx, g.prefix+id).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}
