package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/palette-dev/palette/internal/config"
	"github.com/palette-dev/palette/internal/daemon"
	"github.com/palette-dev/palette/internal/ipc"
	"github.com/palette-dev/palette/internal/storage"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the palette backend daemon",
	Long: `Manage the backend daemon process.

The daemon owns the search providers and the state database. The palette
window starts it automatically; these subcommands exist for manual control.

Subcommands:
  run    - Run the daemon in the foreground
  stop   - Stop a running daemon
  status - Check whether the daemon is running`,
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunDaemon(cmd.Context())
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := config.DefaultPaths()
		pid, held, err := daemon.ReadHeldPID(paths.LockFile())
		if err != nil {
			return err
		}
		if !held {
			fmt.Printf("Daemon: %snot running%s\n", colorDim, colorReset)
			return nil
		}

		proc, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("failed to find daemon process %d: %w", pid, err)
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to stop daemon (PID %d): %w", pid, err)
		}
		fmt.Printf("Daemon: %sstopped%s (PID %d)\n", colorCyan, colorReset, pid)
		return nil
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, paths, err := loadConfig()
		if err != nil {
			return err
		}
		if ipc.DaemonRunning(cfg, paths) {
			pid, _, _ := daemon.ReadHeldPID(paths.LockFile())
			fmt.Printf("Daemon: %srunning%s (PID %d)\n", colorCyan, colorReset, pid)
		} else {
			fmt.Printf("Daemon: %snot running%s\n", colorDim, colorReset)
		}
		return nil
	},
}

func init() {
	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

// RunDaemon runs the backend in the foreground until it shuts down. The
// paletted binary and "palette daemon run" both land here.
func RunDaemon(ctx context.Context) error {
	cfg, paths, err := loadConfig()
	if err != nil {
		return err
	}

	logger := daemonLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.Open(paths.DatabaseFile(), logger)
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}

	srv, err := daemon.NewServer(&daemon.ServerConfig{
		Config: cfg,
		Store:  store,
		Paths:  paths,
		Logger: logger,
	})
	if err != nil {
		store.Close()
		return err
	}
	if err := srv.Start(ctx); err != nil {
		store.Close()
		return err
	}

	// Hot-reload the config file; the watcher ends with the daemon.
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		err := config.Watch(watchCtx, paths.ConfigFile(), logger, func(next *config.Config) {
			srv.Reload(watchCtx, next)
		})
		if err != nil {
			logger.Warn("config watch unavailable", "error", err)
		}
	}()

	srv.Wait()
	return nil
}

// daemonLogger logs structured records at the configured level.
func daemonLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Daemon.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
