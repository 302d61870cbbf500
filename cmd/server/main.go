package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/nfrund/weatherdash/internal/config"
	"github.com/nfrund/weatherdash/internal/logging"
	"github.com/nfrund/weatherdash/internal/server"
	"github.com/nfrund/weatherdash/internal/session"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	cfg := config.New()
	logging.New(cfg.LogFormat, cfg.LogLevel)

	deps := server.Dependencies{Config: cfg}
	if cfg.SessionStore == "redis" {
		client, err := session.ConnectRedis(ctx, session.RedisConfig{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			return err
		}
		defer client.Close()
		deps.Redis = client
	}

	s, err := server.New(deps)
	if err != nil {
		return err
	}
	s.RegisterRoutes()
	return s.Start()
}
