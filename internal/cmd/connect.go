package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/palette-dev/palette/internal/config"
	"github.com/palette-dev/palette/internal/ipc"
	"github.com/palette-dev/palette/internal/orchestrate"
	"github.com/palette-dev/palette/internal/rank"
)

// loadConfig loads the config file and applies environment overrides.
func loadConfig() (*config.Config, *config.Paths, error) {
	paths := config.DefaultPaths()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnvOverrides()
	return cfg, paths, nil
}

// clientLogger logs to stderr at the configured level so daemon chatter
// never corrupts command output on stdout.
func clientLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn
	switch cfg.Daemon.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// connectOrchestrator brings up the full client stack: daemon (spawned if
// needed), socket connection, broker, and an orchestrator with a fresh
// command catalog. The caller owns closing the client.
func connectOrchestrator(ctx context.Context) (*ipc.Client, *orchestrate.Orchestrator, *config.Config, error) {
	cfg, paths, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := clientLogger(cfg)

	if err := ipc.EnsureDaemon(ctx, cfg, paths, logger); err != nil {
		return nil, nil, nil, err
	}
	client, err := ipc.Connect(cfg, paths, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	engine := rank.NewEngine(cfg.Search.MaxResults)
	orch := orchestrate.New(client.Broker(), ipc.BackendPeer, engine, logger)
	if err := orch.RefreshCommands(ctx); err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("failed to fetch command catalog: %w", err)
	}
	return client, orch, cfg, nil
}
