package ipc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/sys/execabs"

	"github.com/palette-dev/palette/internal/config"
	"github.com/palette-dev/palette/internal/transport"
)

// DaemonBinaryName is the name of the daemon executable.
const DaemonBinaryName = "paletted"

const (
	// quickDialTimeout bounds the liveness probe against an existing socket.
	quickDialTimeout = 50 * time.Millisecond

	// spawnPollInterval is how often readiness is re-probed after a spawn.
	spawnPollInterval = 10 * time.Millisecond
)

// Test seams for spawn behavior.
var (
	probeSocketFn = probeSocket
	startDaemonFn = startDaemon
)

// EnsureDaemon makes sure a daemon is reachable, spawning one when the
// socket is missing or dead. It waits up to the client connect timeout for a
// spawned daemon to come up.
func EnsureDaemon(ctx context.Context, cfg *config.Config, paths *config.Paths, logger *slog.Logger) error {
	sockPath := socketPath(cfg, paths)

	if probeSocketFn(sockPath) {
		return nil
	}
	if !cfg.Client.AutoStartDaemon {
		return fmt.Errorf("ipc: daemon not running on %s (auto-start disabled)", sockPath)
	}

	logger.Debug("spawning daemon", "socket", sockPath)
	if err := startDaemonFn(paths); err != nil {
		return err
	}

	// The daemon creates the socket once its lock and store are up.
	deadline := time.NewTimer(time.Duration(cfg.Client.ConnectTimeoutMs) * time.Millisecond)
	defer deadline.Stop()
	ticker := time.NewTicker(spawnPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("ipc: daemon did not start within %dms (log: %s)",
				cfg.Client.ConnectTimeoutMs, paths.LogFile())
		case <-ticker.C:
			if probeSocketFn(sockPath) {
				return nil
			}
		}
	}
}

// probeSocket reports whether something is accepting on the socket.
func probeSocket(sockPath string) bool {
	if _, err := os.Stat(sockPath); err != nil {
		return false
	}
	tc, err := transport.DialSocket(sockPath, BackendPeer, quickDialTimeout)
	if err != nil {
		return false
	}
	tc.Close()
	return true
}

// startDaemon launches the daemon binary detached, with its output going to
// the daemon log file.
func startDaemon(paths *config.Paths) error {
	daemonPath, err := findDaemonBinary()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(paths.LogDir(), 0o700); err != nil {
		return fmt.Errorf("ipc: create log directory: %w", err)
	}
	logFile, err := os.OpenFile(paths.LogFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		logFile, _ = os.Open(os.DevNull)
	}
	defer logFile.Close()

	// execabs refuses binaries resolved to relative paths.
	cmd := execabs.Command(daemonPath)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ipc: start daemon: %w", err)
	}

	// The daemon manages its own PID file; release instead of Wait so it
	// outlives this process.
	_ = cmd.Process.Release()
	return nil
}

// findDaemonBinary locates the daemon executable: explicit override, next to
// the current binary, then PATH, then common install locations.
func findDaemonBinary() (string, error) {
	if path := os.Getenv("PALETTE_DAEMON_PATH"); path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("ipc: resolve PALETTE_DAEMON_PATH: %w", err)
		}
		if _, err := os.Stat(absPath); err == nil {
			return absPath, nil
		}
	}

	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), DaemonBinaryName)
		if _, err := os.Stat(sibling); err == nil {
			return sibling, nil
		}
	}

	if path, err := exec.LookPath(DaemonBinaryName); err == nil {
		if absPath, absErr := filepath.Abs(path); absErr == nil {
			return absPath, nil
		}
		return path, nil
	}

	candidates := []string{
		"/usr/local/bin/" + DaemonBinaryName,
		"/usr/bin/" + DaemonBinaryName,
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".local", "bin", DaemonBinaryName),
			filepath.Join(home, "go", "bin", DaemonBinaryName),
		)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("ipc: daemon binary %q not found", DaemonBinaryName)
}
