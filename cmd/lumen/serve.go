package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenjournal/lumen/internal/auth"
	"github.com/lumenjournal/lumen/internal/config"
	"github.com/lumenjournal/lumen/internal/observability"
	"github.com/lumenjournal/lumen/internal/ratelimit"
	"github.com/lumenjournal/lumen/internal/realtime"
	"github.com/lumenjournal/lumen/internal/storage"
	"github.com/lumenjournal/lumen/internal/web"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Lumen server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func runServe(cfg config.Config) error {
	logger := observability.NewLogger(cfg.Log)
	metrics := observability.NewMetrics(nil)

	stores, err := openStores(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = stores.Close() }()

	authService := auth.NewService(cfg.AuthConfig())
	if !authService.Enabled() {
		return fmt.Errorf("auth.jwt_secret is required (set LUMEN_JWT_SECRET)")
	}

	bus := realtime.NewBus(logger, metrics)
	streamer := realtime.NewStreamer(bus, cfg.StreamConfig(), logger, metrics)
	limiter := ratelimit.NewLimiter(cfg.RateLimit)

	server := web.NewServer(
		web.ServerConfig{
			Addr:            cfg.Server.Addr,
			ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second,
		},
		stores, bus, streamer, authService, limiter, metrics, logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx)
}

func openStores(cfg config.StorageConfig) (storage.StoreSet, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return storage.NewSQLiteStores(cfg.SQLitePath)
	case "postgres":
		return storage.NewPostgresStores(cfg.PostgresDSN, nil)
	case "memory":
		return storage.NewMemoryStores(), nil
	default:
		return storage.StoreSet{}, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
