package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/palette-dev/palette/internal/palette"
	"github.com/palette-dev/palette/internal/registry"
)

// DefaultWorkers sizes the dispatcher's handler pool. Provider handlers may
// block on IO, so a handful of workers keeps fan-out searches parallel
// without letting a misbehaving provider exhaust the process.
const DefaultWorkers = 16

// Dispatcher is the backend side of the channel: it receives request
// envelopes, routes them to registered providers, and always sends exactly
// one reply per request. Handlers run on a bounded worker pool so a slow
// provider never stalls the read loop.
type Dispatcher struct {
	broker *Broker
	reg    *registry.Registry
	pool   *ants.Pool
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	ctxs    map[string]context.Context
	closed  bool
}

// NewDispatcher attaches a dispatcher to the broker's inbound requests and
// subscribes to registry removals so in-flight work for an unregistered
// provider is canceled instead of finishing into the void.
func NewDispatcher(b *Broker, reg *registry.Registry, logger *slog.Logger, workers int) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		broker:  b,
		reg:     reg,
		pool:    pool,
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
		ctxs:    make(map[string]context.Context),
	}
	b.HandleRequests(d.Dispatch)
	reg.OnUnregister(d.dropProvider)
	return d, nil
}

// Close drains the worker pool and cancels all provider contexts.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	cancels := d.cancels
	d.cancels = make(map[string]context.CancelFunc)
	d.ctxs = make(map[string]context.Context)
	d.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	d.pool.Release()
}

// Dispatch hands one request to the worker pool. NewDispatcher installs it
// as the broker's request handler; callers may re-wrap it (e.g. to track
// activity) since HandleRequests replaces the handler.
func (d *Dispatcher) Dispatch(peer string, env Envelope) {
	err := d.pool.Submit(func() { d.handle(peer, env) })
	if err != nil {
		d.broker.Reply(peer, env, Failure("backend unavailable: %v", err))
	}
}

func (d *Dispatcher) handle(peer string, env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic",
				"provider", env.Body.ProviderID,
				"command", env.Body.CommandID,
				"kind", env.Body.Kind,
				"panic", r,
			)
			d.broker.Reply(peer, env, Failure("internal error in %s", env.Body.ProviderID))
		}
	}()

	d.broker.Reply(peer, env, d.execute(env))
}

func (d *Dispatcher) execute(env Envelope) Outcome {
	switch env.Body.Kind {
	case KindCommands:
		out, err := Success(d.reg.AllCommands())
		if err != nil {
			return Failure("encode command catalog: %v", err)
		}
		return out

	case KindSearch:
		p, ok := d.reg.Resolve(env.Body.ProviderID)
		if !ok {
			return Failure("provider not found: %s", env.Body.ProviderID)
		}
		var q palette.Query
		if err := json.Unmarshal(env.Body.Payload, &q); err != nil {
			return Failure("bad search payload: %v", err)
		}
		results, err := p.HandleSearch(d.providerCtx(env.Body.ProviderID), env.Body.CommandID, q)
		if err != nil {
			return Failure("%s: %v", env.Body.ProviderID, err)
		}
		out, err := Success(results)
		if err != nil {
			return Failure("encode results: %v", err)
		}
		return out

	case KindAction:
		p, ok := d.reg.Resolve(env.Body.ProviderID)
		if !ok {
			return Failure("provider not found: %s", env.Body.ProviderID)
		}
		var req palette.ActionRequest
		if err := json.Unmarshal(env.Body.Payload, &req); err != nil {
			return Failure("bad action payload: %v", err)
		}
		outcome, err := p.HandleAction(d.providerCtx(env.Body.ProviderID), env.Body.CommandID, req)
		if err != nil {
			return Failure("%s: %v", env.Body.ProviderID, err)
		}
		out, err := Success(outcome)
		if err != nil {
			return Failure("encode action outcome: %v", err)
		}
		return out

	default:
		return Failure("unknown request kind: %s", env.Body.Kind)
	}
}

// providerCtx returns the cancelable context shared by all in-flight work
// for one provider. Unregistering the provider cancels it.
func (d *Dispatcher) providerCtx(providerID string) context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	if ctx, ok := d.ctxs[providerID]; ok {
		return ctx
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.ctxs[providerID] = ctx
	d.cancels[providerID] = cancel
	return ctx
}

func (d *Dispatcher) dropProvider(providerID string) {
	d.mu.Lock()
	cancel := d.cancels[providerID]
	delete(d.cancels, providerID)
	delete(d.ctxs, providerID)
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
