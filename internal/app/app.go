// Package app assembles a service from configuration.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/example/keygate/internal/access"
	"github.com/example/keygate/internal/clock"
	"github.com/example/keygate/internal/entitlement"
	"github.com/example/keygate/internal/fulfillment"
	"github.com/example/keygate/internal/history"
	"github.com/example/keygate/internal/lock"
	"github.com/example/keygate/internal/pool"
	"github.com/example/keygate/internal/repo"
	"github.com/example/keygate/internal/service"
	"github.com/example/keygate/internal/storage"
	"github.com/example/keygate/pkg/keygateconfig"
)

type App struct {
	Service *service.Service
	Syncer  *repo.Syncer
	Log     *logrus.Logger
	Replay  storage.ReplayConfig

	// PoolChanges lists pool repository files that changed during Build.
	PoolChanges []string

	redis *redis.Client
}

type Options struct {
	Clock  clock.Clock
	Logger *logrus.Logger
}

// NewLogger configures a logrus logger from the log section.
func NewLogger(cfg keygateconfig.Log) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(lvl)
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}
	return logger, nil
}

// Build wires stores, pools and services. When sync is configured the pool
// directory is refreshed from git before pools are opened.
func Build(ctx context.Context, cfg keygateconfig.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		if logger, err = NewLogger(cfg.Log); err != nil {
			return nil, err
		}
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	a := &App{Log: logger}
	if cfg.Entitlements.Backend == "redis" || cfg.Ledger.Backend == "redis" || cfg.Replay.Backend == "redis" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}

	store, err := entitlement.FromConfig(ctx, cfg.Entitlements, a.redis, cfg.Redis.Prefix, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("entitlement store init failed: %w", err)
	}
	ledger, ledgerLabel, err := storage.LedgerFromConfig(cfg.Ledger, a.redis, cfg.Redis.Prefix)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ledger init failed: %w", err)
	}

	if a.Replay, err = storage.ReplayFromConfig(cfg.Replay, a.redis, cfg.Redis.Prefix, clk); err != nil {
		a.Close()
		return nil, fmt.Errorf("replay guard init failed: %w", err)
	}

	auth, err := repo.AuthFromEnv()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("git auth: %w", err)
	}
	a.Syncer = repo.NewSyncer(cfg.Sync.URL, cfg.Sync.Ref, cfg.Pools.Dir, auth)
	if a.Syncer.Enabled() {
		changed, err := a.Syncer.Refresh(ctx)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("pool sync failed: %w", err)
		}
		a.PoolChanges = changed
		logger.WithFields(logrus.Fields{"url": cfg.Sync.URL, "changed": changed}).Info("pools synced")
	} else if err := pool.EnsureFiles(cfg.Pools.Dir, cfg.Pools.Files); err != nil {
		a.Close()
		return nil, err
	}

	locker := lock.NewMemoryLocker()
	pools := pool.FileSet(cfg.Pools.Dir, cfg.Pools.Files, logger)
	accessSvc := access.New(store, access.Options{
		AdminID:     cfg.AdminID,
		Generate:    access.DigitKeys(cfg.Keys.Prefix, cfg.Keys.Digits),
		MaxAttempts: cfg.Keys.MaxAttempts,
		Clock:       clk,
		Locker:      locker,
		Log:         logger,
	})
	engine := fulfillment.New(accessSvc, ledger, pools, locker, cfg.Quota, logger)
	a.Service = service.New(service.Deps{
		Access:     accessSvc,
		Engine:     engine,
		Ledger:     ledger,
		History:    history.NewMemoryStore(clk),
		Categories: cfg.Categories,
		PoolCount:  pools.Len(),
	})

	logger.WithFields(logrus.Fields{
		"entitlements": cfg.Entitlements.Backend,
		"ledger":       ledgerLabel,
		"pools":        pools.Names(),
		"quota":        cfg.Quota,
		"replay":       a.Replay.Label,
		"sync":         a.Syncer.Enabled(),
	}).Info("keygate ready")
	return a, nil
}

func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
