// Package registry holds the set of installed result providers and flattens
// their commands into a global alias index for the parser and orchestrator.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/palette-dev/palette/internal/palette"
)

// Registry owns registered providers. Mutations (register/unregister) are
// infrequent; reads always observe the latest committed state. Instances are
// constructed explicitly and passed to the dispatcher; there is no ambient
// global registry.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]palette.Provider
	aliases   map[string]palette.CommandRef
	commands  []palette.CommandRef

	logger  *slog.Logger
	onDrop  []func(providerID string)
	dropsMu sync.Mutex
}

// New creates an empty registry. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		providers: make(map[string]palette.Provider),
		aliases:   make(map[string]palette.CommandRef),
		logger:    logger,
	}
}

// Register installs a provider and indexes its commands. Registering an id
// that already exists replaces the previous provider (a reload). The
// optional Initialize hook runs before the provider becomes visible; its
// error aborts registration.
func (r *Registry) Register(ctx context.Context, p palette.Provider) error {
	if p == nil || p.ID() == "" {
		return fmt.Errorf("registry: provider must have an id")
	}

	if init, ok := p.(palette.Initializer); ok {
		if err := init.Initialize(ctx); err != nil {
			return fmt.Errorf("registry: initialize %s: %w", p.ID(), err)
		}
	}

	// Command ids must be unique within the provider; (providerID, commandID)
	// is then globally unique.
	seen := make(map[string]struct{})
	for _, c := range p.Commands() {
		if c.ID == "" {
			return fmt.Errorf("registry: provider %s has a command without an id", p.ID())
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("registry: provider %s declares command %s twice", p.ID(), c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.ID()]; exists {
		r.removeLocked(p.ID())
	}

	r.providers[p.ID()] = p
	for _, c := range p.Commands() {
		ref := palette.CommandRef{ProviderID: p.ID(), Command: c}
		for _, alias := range c.Aliases {
			key := strings.ToLower(alias)
			if prev, taken := r.aliases[key]; taken {
				// Last registration wins, but never silently.
				r.logger.Warn("alias conflict",
					"alias", alias,
					"previous", prev.ProviderID+"/"+prev.Command.ID,
					"winner", p.ID()+"/"+c.ID,
				)
			}
			r.aliases[key] = ref
		}
	}
	r.rebuildLocked()
	return nil
}

// Unregister removes a provider and its commands from the index, runs the
// optional Destroy hook, and fires the drop callbacks so in-flight requests
// addressed to the provider fail fast instead of hanging.
func (r *Registry) Unregister(ctx context.Context, providerID string) error {
	r.mu.Lock()
	p, ok := r.providers[providerID]
	if ok {
		r.removeLocked(providerID)
		r.rebuildLocked()
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("registry: provider %s not registered", providerID)
	}

	r.dropsMu.Lock()
	drops := append([]func(string){}, r.onDrop...)
	r.dropsMu.Unlock()
	for _, fn := range drops {
		fn(providerID)
	}

	if d, isDestroyer := p.(palette.Destroyer); isDestroyer {
		if err := d.Destroy(ctx); err != nil {
			r.logger.Warn("provider destroy failed", "provider", providerID, "error", err)
		}
	}
	return nil
}

// OnUnregister subscribes to provider removal. The broker uses this to abort
// pending requests targeting the removed provider.
func (r *Registry) OnUnregister(fn func(providerID string)) {
	r.dropsMu.Lock()
	r.onDrop = append(r.onDrop, fn)
	r.dropsMu.Unlock()
}

// Resolve returns the provider registered under id.
func (r *Registry) Resolve(id string) (palette.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// lookupAlias resolves an alias (case-insensitive) to its command. Alias
// resolution in the request path happens client-side against the command
// catalog; this view of the index exists for its own invariant checks.
func (r *Registry) lookupAlias(alias string) (palette.CommandRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.aliases[strings.ToLower(alias)]
	return ref, ok
}

// AllCommands returns a snapshot of every registered command in a
// deterministic order.
func (r *Registry) AllCommands() []palette.CommandRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]palette.CommandRef, len(r.commands))
	copy(out, r.commands)
	return out
}

// searchCommands returns every registered search-kind command.
func (r *Registry) searchCommands() []palette.CommandRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []palette.CommandRef
	for _, ref := range r.commands {
		if ref.Command.Kind == palette.KindSearch {
			out = append(out, ref)
		}
	}
	return out
}

// removeLocked deletes a provider and its alias entries. Caller holds mu.
func (r *Registry) removeLocked(providerID string) {
	delete(r.providers, providerID)
	for key, ref := range r.aliases {
		if ref.ProviderID == providerID {
			delete(r.aliases, key)
		}
	}
}

// rebuildLocked recomputes the command snapshot. Caller holds mu.
func (r *Registry) rebuildLocked() {
	var cmds []palette.CommandRef
	for _, p := range r.providers {
		for _, c := range p.Commands() {
			cmds = append(cmds, palette.CommandRef{ProviderID: p.ID(), Command: c})
		}
	}
	sort.Slice(cmds, func(i, j int) bool {
		if cmds[i].ProviderID != cmds[j].ProviderID {
			return cmds[i].ProviderID < cmds[j].ProviderID
		}
		return cmds[i].Command.ID < cmds[j].Command.ID
	})
	r.commands = cmds
}
