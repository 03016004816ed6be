package entitlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/example/keygate/internal/expiry"
)

// RedisStore keeps unredeemed keys as individual string keys and grants in
// a single hash. Redis is the durable state, so Persist and Reload are no-ops.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "keygate:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) keyName(key string) string { return s.prefix + "key:" + key }

func (s *RedisStore) grantsName() string { return s.prefix + "grants" }

func (s *RedisStore) PutUnredeemed(ctx context.Context, key string, exp expiry.Expiry) error {
	val, err := exp.MarshalJSON()
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.keyName(key), val, 0).Result()
	if err != nil {
		return fmt.Errorf("redis put key: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	return nil
}

func (s *RedisStore) Peek(ctx context.Context, key string) (expiry.Expiry, error) {
	val, err := s.client.Get(ctx, s.keyName(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return expiry.Expiry{}, ErrNotFound
	}
	if err != nil {
		return expiry.Expiry{}, fmt.Errorf("redis peek key: %w", err)
	}
	return decodeExpiry(val)
}

func (s *RedisStore) Consume(ctx context.Context, key string) (expiry.Expiry, error) {
	val, err := s.client.GetDel(ctx, s.keyName(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return expiry.Expiry{}, ErrNotFound
	}
	if err != nil {
		return expiry.Expiry{}, fmt.Errorf("redis consume key: %w", err)
	}
	return decodeExpiry(val)
}

func (s *RedisStore) Grant(ctx context.Context, user string, exp expiry.Expiry) error {
	val, err := exp.MarshalJSON()
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.grantsName(), user, val).Err(); err != nil {
		return fmt.Errorf("redis grant: %w", err)
	}
	return nil
}

func (s *RedisStore) EntitlementOf(ctx context.Context, user string) (expiry.Expiry, error) {
	val, err := s.client.HGet(ctx, s.grantsName(), user).Bytes()
	if errors.Is(err, redis.Nil) {
		return expiry.Expiry{}, ErrNotFound
	}
	if err != nil {
		return expiry.Expiry{}, fmt.Errorf("redis entitlement: %w", err)
	}
	return decodeExpiry(val)
}

func (s *RedisStore) Grants(ctx context.Context) (map[string]expiry.Expiry, error) {
	all, err := s.client.HGetAll(ctx, s.grantsName()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis grants: %w", err)
	}
	out := make(map[string]expiry.Expiry, len(all))
	for user, raw := range all {
		exp, err := decodeExpiry([]byte(raw))
		if err != nil {
			return nil, err
		}
		out[user] = exp
	}
	return out, nil
}

func (s *RedisStore) Persist(context.Context) error { return nil }

func (s *RedisStore) Reload(context.Context) error { return nil }

func decodeExpiry(raw []byte) (expiry.Expiry, error) {
	var exp expiry.Expiry
	if err := exp.UnmarshalJSON(raw); err != nil {
		return expiry.Expiry{}, err
	}
	return exp, nil
}
