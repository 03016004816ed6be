package storage

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/keygate/internal/clock"
	"github.com/example/keygate/pkg/keygateconfig"
)

// ReplayConfig is a resolved replay section. Guard is nil when disabled.
type ReplayConfig struct {
	Guard ReplayGuard
	TTL   time.Duration
	Label string
}

func ReplayFromConfig(cfg keygateconfig.Replay, client *redis.Client, prefix string, c clock.Clock) (ReplayConfig, error) {
	if cfg.Backend == "off" || cfg.Backend == "" {
		return ReplayConfig{Label: "off"}, nil
	}
	ttl := 5 * time.Minute
	if cfg.TTL != "" {
		var err error
		if ttl, err = time.ParseDuration(cfg.TTL); err != nil {
			return ReplayConfig{}, fmt.Errorf("invalid replay ttl: %w", err)
		}
	}
	switch cfg.Backend {
	case "memory":
		return ReplayConfig{Guard: NewMemoryReplayGuard(c), TTL: ttl, Label: "memory"}, nil
	case "redis":
		if client == nil {
			return ReplayConfig{}, fmt.Errorf("replay: redis backend needs a client")
		}
		return ReplayConfig{Guard: NewRedisReplayGuard(client, prefix), TTL: ttl, Label: "redis"}, nil
	default:
		return ReplayConfig{}, fmt.Errorf("invalid replay backend: %s", cfg.Backend)
	}
}
