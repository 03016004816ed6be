package storage

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/example/keygate/pkg/keygateconfig"
)

// LedgerFromConfig builds the configured Ledger. client is only used by
// the redis backend.
func LedgerFromConfig(cfg keygateconfig.Ledger, client *redis.Client, prefix string) (Ledger, string, error) {
	switch cfg.Backend {
	case "", "file":
		if cfg.Path == "" {
			return nil, "", fmt.Errorf("ledger: file backend needs a path")
		}
		return NewFileLedger(cfg.Path), "file", nil
	case "redis":
		if client == nil {
			return nil, "", fmt.Errorf("ledger: redis backend needs a client")
		}
		return NewRedisLedger(client, prefix), "redis", nil
	case "memory":
		return NewMemoryLedger(), "memory", nil
	default:
		return nil, "", fmt.Errorf("invalid ledger backend: %s", cfg.Backend)
	}
}
