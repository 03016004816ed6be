package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/example/keygate/internal/app"
	"github.com/example/keygate/internal/config"
	"github.com/example/keygate/internal/httpapi"
)

var listenAndServe = http.ListenAndServe

func main() {
	if err := run(); err != nil {
		log.Fatalf("keygate-api failed: %v", err)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("config init failed: %w", err)
	}
	a, err := app.Build(context.Background(), cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	handler := httpapi.NewHandler(a.Service, httpapi.Options{
		Secret:    cfg.API.Secret,
		Log:       a.Log,
		Replay:    a.Replay.Guard,
		ReplayTTL: a.Replay.TTL,
	})

	a.Log.WithField("addr", cfg.API.Addr).Info("keygate-api listening")
	if err := listenAndServe(cfg.API.Addr, handler); err != nil {
		return fmt.Errorf("api stopped: %w", err)
	}
	return nil
}
