package entitlement

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/example/keygate/pkg/keygateconfig"
)

// FromConfig builds the configured Store. client is only used by the redis
// backend.
func FromConfig(ctx context.Context, cfg keygateconfig.Entitlements, client *redis.Client, prefix string, log logrus.FieldLogger) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		return OpenFileStore(ctx, cfg.Path, log)
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("entitlements: redis backend needs a client")
		}
		return NewRedisStore(client, prefix), nil
	default:
		return nil, fmt.Errorf("invalid entitlements backend: %s", cfg.Backend)
	}
}
