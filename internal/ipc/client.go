// Package ipc connects the palette front end to the backend daemon: dialing
// the socket, spawning the daemon when it is not running, and handing back a
// ready request broker.
package ipc

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/palette-dev/palette/internal/broker"
	"github.com/palette-dev/palette/internal/config"
	"github.com/palette-dev/palette/internal/transport"
)

// BackendPeer is the peer name the front end addresses the daemon by.
const BackendPeer = "backend"

// Client is an open connection to the backend daemon.
type Client struct {
	transport *transport.SocketClient
	broker    *broker.Broker
}

// Connect dials the daemon socket and builds the request broker on top of
// it. The daemon must already be running; use EnsureDaemon first when
// auto-start is wanted.
func Connect(cfg *config.Config, paths *config.Paths, logger *slog.Logger) (*Client, error) {
	sockPath := socketPath(cfg, paths)

	connectTimeout := time.Duration(cfg.Client.ConnectTimeoutMs) * time.Millisecond
	tc, err := transport.DialSocket(sockPath, BackendPeer, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("ipc: connect to daemon: %w", err)
	}

	requestTimeout := time.Duration(cfg.Client.RequestTimeoutMs) * time.Millisecond
	b := broker.New(tc, broker.OriginUI, logger, broker.WithTimeout(requestTimeout))

	return &Client{transport: tc, broker: b}, nil
}

// Broker returns the request broker bound to the daemon connection.
func (c *Client) Broker() *broker.Broker { return c.broker }

// Close tears down the broker and the socket connection.
func (c *Client) Close() error {
	return c.broker.Close() // closes the transport too
}

// socketPath resolves the daemon socket: explicit config wins, then the
// runtime directory default.
func socketPath(cfg *config.Config, paths *config.Paths) string {
	if cfg.Daemon.SocketPath != "" {
		return cfg.Daemon.SocketPath
	}
	return paths.SocketFile()
}

// DaemonRunning reports whether a daemon is reachable on the socket.
func DaemonRunning(cfg *config.Config, paths *config.Paths) bool {
	sockPath := socketPath(cfg, paths)
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
