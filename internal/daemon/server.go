// Package daemon implements the palette backend process: it owns the
// provider registry, the storage layer, and the socket the front end talks
// to, and shuts itself down when idle.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/palette-dev/palette/internal/broker"
	"github.com/palette-dev/palette/internal/config"
	"github.com/palette-dev/palette/internal/providers"
	"github.com/palette-dev/palette/internal/registry"
	"github.com/palette-dev/palette/internal/storage"
	"github.com/palette-dev/palette/internal/transport"
)

// Version is set at build time.
var Version = "dev"

// idleCheckInterval is how often the idle watcher compares the last request
// timestamp against the idle timeout.
const idleCheckInterval = time.Minute

// Server is the backend daemon.
type Server struct {
	// cfgMu guards cfg and idleTimeout: Reload swaps them while the idle
	// watcher and request path keep reading.
	cfgMu       sync.RWMutex
	cfg         *config.Config
	idleTimeout time.Duration

	paths  *config.Paths
	logger *slog.Logger

	store    *storage.Store
	registry *registry.Registry
	tabs     *providers.Tabs

	lock       *LockFile
	socket     *transport.SocketServer
	broker     *broker.Broker
	dispatcher *broker.Dispatcher

	startTime    time.Time
	lastActivity atomic.Int64 // unix ms

	shutdownChan chan struct{} // closed when shutdown begins
	stoppedChan  chan struct{} // closed when teardown has finished
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// ServerConfig contains configuration options for the daemon server.
type ServerConfig struct {
	// Config is the loaded configuration (required).
	Config *config.Config

	// Store is the storage backend (required).
	Store *storage.Store

	// Paths is the path configuration (optional, uses defaults if nil).
	Paths *config.Paths

	// Logger is the structured logger (optional, uses default if nil).
	Logger *slog.Logger
}

// NewServer creates a new daemon server with the given configuration.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	paths := cfg.Paths
	if paths == nil {
		paths = config.DefaultPaths()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:          cfg.Config,
		paths:        paths,
		logger:       logger,
		store:        cfg.Store,
		registry:     registry.New(logger),
		tabs:         providers.NewTabs(),
		startTime:    time.Now(),
		idleTimeout:  time.Duration(cfg.Config.Daemon.IdleTimeoutMins) * time.Minute,
		shutdownChan: make(chan struct{}),
		stoppedChan:  make(chan struct{}),
	}
	s.lastActivity.Store(time.Now().UnixMilli())
	return s, nil
}

// Tabs exposes the tabs provider so the host surface can feed it.
func (s *Server) Tabs() *providers.Tabs { return s.tabs }

// SocketPath returns the socket the server listens on.
func (s *Server) SocketPath() string {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	if s.cfg.Daemon.SocketPath != "" {
		return s.cfg.Daemon.SocketPath
	}
	return s.paths.SocketFile()
}

// Start acquires the instance lock, opens the socket, and registers the
// providers. It returns once the server is accepting requests.
func (s *Server) Start(ctx context.Context) error {
	if err := s.paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	s.lock = NewLockFile(s.paths.LockFile())
	if err := s.lock.Acquire(); err != nil {
		return err
	}

	if err := os.WriteFile(s.paths.PIDFile(), []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o600); err != nil {
		s.lock.Release()
		return fmt.Errorf("failed to write pid file: %w", err)
	}

	s.socket = transport.NewSocketServer(s.SocketPath())
	if err := s.socket.Listen(); err != nil {
		s.cleanupFiles()
		return err
	}

	s.broker = broker.New(s.socket, broker.OriginBackend, s.logger)

	disp, err := broker.NewDispatcher(s.broker, s.registry, s.logger, s.cfg.Daemon.Workers)
	if err != nil {
		s.broker.Close()
		s.cleanupFiles()
		return err
	}
	s.dispatcher = disp

	// Every request counts as activity for the idle watcher.
	s.broker.HandleRequests(func(peer string, env broker.Envelope) {
		s.lastActivity.Store(time.Now().UnixMilli())
		disp.Dispatch(peer, env)
	})

	if err := s.registerProviders(ctx); err != nil {
		s.Stop()
		return err
	}

	s.cfgMu.RLock()
	idle := s.idleTimeout
	s.cfgMu.RUnlock()
	if idle > 0 {
		s.wg.Add(1)
		go s.idleWatcher()
	}

	s.wg.Add(1)
	go s.signalWatcher()

	s.logger.Info("daemon started",
		"version", Version,
		"socket", s.SocketPath(),
		"pid", os.Getpid(),
		"idle_timeout", idle,
	)
	return nil
}

func (s *Server) registerProviders(ctx context.Context) error {
	if err := s.registry.Register(ctx, s.tabs); err != nil {
		return err
	}
	if err := s.registry.Register(ctx, providers.NewHistory(s.store, s.cfg.Search.HistoryDays)); err != nil {
		return err
	}
	if err := s.registry.Register(ctx, providers.NewBookmarks(s.store)); err != nil {
		return err
	}
	if err := s.registry.Register(ctx, providers.NewBuiltin(s.cfg.Commands)); err != nil {
		return err
	}
	return nil
}

// Reload applies a changed configuration. Only the parts safe to swap at
// runtime are applied: custom commands (builtin provider re-registers) and
// the idle timeout.
func (s *Server) Reload(ctx context.Context, cfg *config.Config) {
	s.logger.Info("reloading configuration")

	if err := s.registry.Register(ctx, providers.NewBuiltin(cfg.Commands)); err != nil {
		s.logger.Warn("builtin provider reload failed", "error", err)
	}
	if err := s.registry.Register(ctx, providers.NewHistory(s.store, cfg.Search.HistoryDays)); err != nil {
		s.logger.Warn("history provider reload failed", "error", err)
	}

	s.cfgMu.Lock()
	s.idleTimeout = time.Duration(cfg.Daemon.IdleTimeoutMins) * time.Minute
	s.cfg = cfg
	s.cfgMu.Unlock()
}

// Wait blocks until the server has fully shut down (idle timeout, signal,
// or Stop), including file cleanup.
func (s *Server) Wait() {
	<-s.stoppedChan
	s.wg.Wait()
}

// Stop shuts the server down. Safe to call more than once.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		defer close(s.stoppedChan)
		s.logger.Info("daemon stopping", "uptime", time.Since(s.startTime).Round(time.Second))
		close(s.shutdownChan)

		if s.dispatcher != nil {
			s.dispatcher.Close()
		}
		if s.broker != nil {
			s.broker.Close() // closes the socket too
		}

		// Run provider teardown hooks.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, id := range []string{"tabs", "history", "bookmarks", "builtin"} {
			if _, ok := s.registry.Resolve(id); ok {
				if err := s.registry.Unregister(ctx, id); err != nil {
					s.logger.Warn("provider teardown failed", "provider", id, "error", err)
				}
			}
		}

		if err := s.store.Close(); err != nil {
			s.logger.Warn("store close failed", "error", err)
		}
		s.cleanupFiles()
	})
}

func (s *Server) cleanupFiles() {
	if err := os.Remove(s.paths.PIDFile()); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("pid file cleanup failed", "error", err)
	}
	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			s.logger.Warn("lock release failed", "error", err)
		}
	}
}

// idleWatcher exits the daemon after idleTimeout without requests.
func (s *Server) idleWatcher() {
	defer s.wg.Done()

	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownChan:
			return
		case <-ticker.C:
			s.cfgMu.RLock()
			idle := s.idleTimeout
			s.cfgMu.RUnlock()
			last := time.UnixMilli(s.lastActivity.Load())
			if idle > 0 && time.Since(last) >= idle {
				s.logger.Info("idle timeout reached", "idle", time.Since(last).Round(time.Second))
				go s.Stop()
				return
			}
		}
	}
}

// signalWatcher handles SIGTERM/SIGINT (shutdown) and SIGHUP (reload).
func (s *Server) signalWatcher() {
	defer s.wg.Done()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-s.shutdownChan:
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				cfg, err := config.LoadFromFile(s.paths.ConfigFile())
				if err != nil {
					s.logger.Warn("config reload failed", "error", err)
					continue
				}
				s.Reload(context.Background(), cfg)
			default:
				s.logger.Info("signal received", "signal", sig.String())
				go s.Stop()
				return
			}
		}
	}
}
