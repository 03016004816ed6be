package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLedger keeps delivered items in a single Redis set.
type RedisLedger struct {
	client *redis.Client
	key    string
}

func NewRedisLedger(client *redis.Client, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "keygate:"
	}
	return &RedisLedger{client: client, key: prefix + "delivered"}
}

func (l *RedisLedger) Snapshot(ctx context.Context) (map[string]struct{}, error) {
	members, err := l.client.SMembers(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ledger snapshot: %w", err)
	}
	out := make(map[string]struct{}, len(members))
	for _, m := range members {
		out[m] = struct{}{}
	}
	return out, nil
}

func (l *RedisLedger) Contains(ctx context.Context, item string) (bool, error) {
	ok, err := l.client.SIsMember(ctx, l.key, item).Result()
	if err != nil {
		return false, fmt.Errorf("redis ledger contains: %w", err)
	}
	return ok, nil
}

func (l *RedisLedger) Commit(ctx context.Context, items []string) error {
	if len(items) == 0 {
		return nil
	}
	members := make([]any, len(items))
	for i, item := range items {
		members[i] = item
	}
	if err := l.client.SAdd(ctx, l.key, members...).Err(); err != nil {
		return fmt.Errorf("redis ledger commit: %w", err)
	}
	return nil
}

func (l *RedisLedger) Count(ctx context.Context) (int, error) {
	n, err := l.client.SCard(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis ledger count: %w", err)
	}
	return int(n), nil
}
