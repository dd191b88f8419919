// Package palettetest provides a scriptable fake provider for tests across
// the registry, broker, and orchestrator packages.
package palettetest

import (
	"context"
	"sync/atomic"

	"github.com/palette-dev/palette/internal/palette"
)

// Provider is a configurable in-memory palette.Provider.
type Provider struct {
	PID      string
	Name     string
	Cmds     []palette.Command
	SearchFn func(ctx context.Context, commandID string, q palette.Query) ([]palette.Result, error)
	ActionFn func(ctx context.Context, commandID string, req palette.ActionRequest) (palette.ActionOutcome, error)

	InitErr error

	searchCalls int64
	initCalls   int64
	destroyed   int64
}

var _ palette.Provider = (*Provider)(nil)

// New returns a provider with a single separator-activated search command
// whose id is "search" and whose alias is the given alias.
func New(id, alias string) *Provider {
	return &Provider{
		PID:  id,
		Name: id,
		Cmds: []palette.Command{{
			ID:         "search",
			Name:       "Search " + id,
			Aliases:    []string{alias},
			Activation: palette.ActivationSeparator,
			Kind:       palette.KindSearch,
		}},
	}
}

func (p *Provider) ID() string                  { return p.PID }
func (p *Provider) DisplayName() string         { return p.Name }
func (p *Provider) Commands() []palette.Command { return p.Cmds }

func (p *Provider) HandleSearch(ctx context.Context, commandID string, q palette.Query) ([]palette.Result, error) {
	atomic.AddInt64(&p.searchCalls, 1)
	if p.SearchFn != nil {
		return p.SearchFn(ctx, commandID, q)
	}
	return nil, nil
}

func (p *Provider) HandleAction(ctx context.Context, commandID string, req palette.ActionRequest) (palette.ActionOutcome, error) {
	if p.ActionFn != nil {
		return p.ActionFn(ctx, commandID, req)
	}
	return palette.ActionOutcome{}, nil
}

// Initialize implements the optional registration hook.
func (p *Provider) Initialize(ctx context.Context) error {
	atomic.AddInt64(&p.initCalls, 1)
	return p.InitErr
}

// Destroy implements the optional teardown hook.
func (p *Provider) Destroy(ctx context.Context) error {
	atomic.AddInt64(&p.destroyed, 1)
	return nil
}

// SearchCalls returns how many times HandleSearch ran.
func (p *Provider) SearchCalls() int { return int(atomic.LoadInt64(&p.searchCalls)) }

// InitCalls returns how many times Initialize ran.
func (p *Provider) InitCalls() int { return int(atomic.LoadInt64(&p.initCalls)) }

// Destroyed reports whether Destroy ran.
func (p *Provider) Destroyed() bool { return atomic.LoadInt64(&p.destroyed) > 0 }

// StaticResults returns a SearchFn that always yields the given results.
func StaticResults(results ...palette.Result) func(context.Context, string, palette.Query) ([]palette.Result, error) {
	return func(context.Context, string, palette.Query) ([]palette.Result, error) {
		return results, nil
	}
}
