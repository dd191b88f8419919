package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/palette-dev/palette/internal/transport"
)

// DefaultRequestTimeout bounds how long a request waits for its reply before
// the initiating side gives up and surfaces a structured failure.
const DefaultRequestTimeout = 3 * time.Second

var (
	// ErrTimeout means the peer never replied within the request timeout.
	ErrTimeout = errors.New("broker: request timed out")

	// ErrProviderRemoved means the target provider was unregistered while
	// the request was in flight.
	ErrProviderRemoved = errors.New("broker: provider removed")

	// ErrPeerGone means the peer disconnected before replying.
	ErrPeerGone = errors.New("broker: peer disconnected")

	// ErrBrokerClosed is returned for requests issued after Close.
	ErrBrokerClosed = errors.New("broker: closed")
)

// InboundHandler receives request envelopes arriving from a peer. Replies
// are routed internally and never reach the handler.
type InboundHandler func(peer string, env Envelope)

// Broker is one side's view of the message channel. It correlates outgoing
// requests with incoming replies by envelope id and hands incoming requests
// to the installed handler. Both processes run one Broker over their
// transport endpoint; only the backend installs a request handler.
type Broker struct {
	tr      transport.Transport
	origin  Origin
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingCall
	handler InboundHandler
	closed  bool
}

type pendingCall struct {
	providerID string
	peer       string
	done       chan callResult
}

type callResult struct {
	outcome Outcome
	err     error
}

// Option adjusts broker construction.
type Option func(*Broker)

// WithTimeout overrides the per-request reply timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// New wires a broker onto a transport endpoint. The broker takes over the
// endpoint's frame and disconnect handlers. A nil logger falls back to
// slog.Default().
func New(tr transport.Transport, origin Origin, logger *slog.Logger, opts ...Option) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		tr:      tr,
		origin:  origin,
		timeout: DefaultRequestTimeout,
		logger:  logger,
		pending: make(map[uuid.UUID]*pendingCall),
	}
	for _, opt := range opts {
		opt(b)
	}
	tr.Handle(b.onFrame)
	tr.HandleDisconnect(b.failPeer)
	return b
}

// HandleRequests installs the inbound request handler (the dispatcher, on
// the backend side).
func (b *Broker) HandleRequests(h InboundHandler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

// Request sends a request to the peer and blocks until the reply arrives,
// the context is canceled, or the timeout elapses. Failures a provider
// reports travel inside the Outcome; the error return covers channel-level
// problems (timeout, disconnect, removal).
func (b *Broker) Request(ctx context.Context, peer string, body Body) (Outcome, error) {
	env := NewRequest(b.origin, body)
	frame, err := env.Encode()
	if err != nil {
		return Outcome{}, err
	}

	call := &pendingCall{
		providerID: body.ProviderID,
		peer:       peer,
		done:       make(chan callResult, 1),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Outcome{}, ErrBrokerClosed
	}
	b.pending[env.ID] = call
	b.mu.Unlock()

	if err := b.tr.Send(peer, frame); err != nil {
		b.unregister(env.ID)
		return Outcome{}, fmt.Errorf("broker: send to %s: %w", peer, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case res := <-call.done:
		return res.outcome, res.err
	case <-ctx.Done():
		b.unregister(env.ID)
		return Outcome{}, ctx.Err()
	case <-timer.C:
		b.unregister(env.ID)
		return Outcome{}, fmt.Errorf("%w: %s/%s", ErrTimeout, body.ProviderID, body.CommandID)
	}
}

// Reply sends the outcome for a previously received request. An unreachable
// peer is dropped silently; the requester already moved on.
func (b *Broker) Reply(peer string, req Envelope, out Outcome) {
	frame, err := req.ReplyTo(b.origin, out).Encode()
	if err != nil {
		b.logger.Warn("encode reply failed", "id", req.ID, "error", err)
		return
	}
	if err := b.tr.Send(peer, frame); err != nil {
		b.logger.Debug("reply dropped", "id", req.ID, "peer", peer, "error", err)
	}
}

// AbortProvider fails every pending request addressed to the provider. Wired
// to registry unregistration so callers are not left waiting on a timeout.
func (b *Broker) AbortProvider(providerID string) {
	b.failMatching(func(c *pendingCall) bool { return c.providerID == providerID },
		fmt.Errorf("%w: %s", ErrProviderRemoved, providerID))
}

// Close fails all pending requests and shuts down the underlying transport.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.failMatching(func(*pendingCall) bool { return true }, ErrBrokerClosed)
	return b.tr.Close()
}

func (b *Broker) onFrame(peer string, frame []byte) {
	env, err := Decode(frame)
	if err != nil {
		b.logger.Warn("malformed frame dropped", "peer", peer, "error", err)
		return
	}

	if env.Reply {
		b.settle(env)
		return
	}

	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h == nil {
		b.logger.Warn("request with no handler installed", "peer", peer, "id", env.ID)
		return
	}
	h(peer, env)
}

// settle resolves a pending call with the reply's outcome. Replies whose id
// is no longer pending are stale (the requester timed out or aborted) and
// are dropped.
func (b *Broker) settle(env Envelope) {
	b.mu.Lock()
	call, ok := b.pending[env.ID]
	if ok {
		delete(b.pending, env.ID)
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("stale reply dropped", "id", env.ID)
		return
	}

	out := Outcome{}
	if env.Outcome != nil {
		out = *env.Outcome
	}
	call.done <- callResult{outcome: out}
}

func (b *Broker) failPeer(peer string) {
	b.failMatching(func(c *pendingCall) bool { return c.peer == peer },
		fmt.Errorf("%w: %s", ErrPeerGone, peer))
}

func (b *Broker) failMatching(match func(*pendingCall) bool, err error) {
	b.mu.Lock()
	var failed []*pendingCall
	for id, call := range b.pending {
		if match(call) {
			failed = append(failed, call)
			delete(b.pending, id)
		}
	}
	b.mu.Unlock()

	for _, call := range failed {
		call.done <- callResult{err: err}
	}
}

func (b *Broker) unregister(id uuid.UUID) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}
