// Package transport provides the peer-addressed message primitive the broker
// runs on: a reliable send/receive of opaque frames between two processes.
// Implementations cover a unix domain socket carrying newline-delimited JSON
// and an in-memory pipe pair for tests and single-process use.
package transport

import "errors"

// ErrPeerUnreachable is returned by Send when the destination peer has no
// live connection. Response senders treat it as a silent drop.
var ErrPeerUnreachable = errors.New("transport: peer unreachable")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: closed")

// Handler receives one inbound frame along with the peer it came from.
type Handler func(peer string, frame []byte)

// Transport is one endpoint of a process boundary. Frames addressed to a
// peer are delivered in order per connection; no ordering is guaranteed
// across distinct peers.
type Transport interface {
	// Send delivers a frame to the named peer.
	Send(peer string, frame []byte) error

	// Handle installs the inbound frame handler. Must be called before any
	// frame arrives; a second call replaces the handler.
	Handle(h Handler)

	// HandleDisconnect installs a callback fired when a peer becomes
	// unreachable (connection closed or endpoint shut down).
	HandleDisconnect(fn func(peer string))

	// Close shuts the endpoint down and fires disconnect callbacks for all
	// live peers.
	Close() error
}
