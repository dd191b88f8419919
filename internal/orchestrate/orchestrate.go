// Package orchestrate runs search turns: parse the input, target one
// provider or fan out to all search commands through the broker, then hand
// the merged set to the ranking engine. It lives on the front-end side of
// the process boundary and never touches providers directly.
package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/palette-dev/palette/internal/broker"
	"github.com/palette-dev/palette/internal/palette"
	"github.com/palette-dev/palette/internal/parse"
	"github.com/palette-dev/palette/internal/rank"
)

// TurnResult is the outcome of one search turn. Err is set only for a
// single, alias-targeted search whose one source of truth failed; fan-out
// failures are absorbed into a partial (possibly empty) result set.
type TurnResult struct {
	Results []rank.ScoredResult

	// Origins maps result ids back to the provider/command that produced
	// them, so action execution can address the right provider.
	Origins map[string]palette.CommandRef

	// ActiveProvider and ActiveCommand are set when an alias pinned the
	// search to one command; the front end uses them to show the scope.
	ActiveProvider string
	ActiveCommand  string

	Err error
}

// Orchestrator drives search turns against a broker peer. The command
// catalog is a snapshot refreshed explicitly; registry mutations on the
// backend become visible on the next refresh.
type Orchestrator struct {
	broker *broker.Broker
	peer   string
	engine *rank.Engine
	logger *slog.Logger

	mu       sync.RWMutex
	commands []palette.CommandRef
}

// New creates an orchestrator talking to the named peer. A nil logger falls
// back to slog.Default().
func New(b *broker.Broker, peer string, engine *rank.Engine, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if engine == nil {
		engine = rank.NewEngine(0)
	}
	return &Orchestrator{broker: b, peer: peer, engine: engine, logger: logger}
}

// RefreshCommands fetches the current command catalog from the peer.
func (o *Orchestrator) RefreshCommands(ctx context.Context) error {
	out, err := o.broker.Request(ctx, o.peer, broker.Body{Kind: broker.KindCommands})
	if err != nil {
		return fmt.Errorf("orchestrate: fetch commands: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("orchestrate: fetch commands: %s", out.Error)
	}

	var refs []palette.CommandRef
	if err := json.Unmarshal(out.Data, &refs); err != nil {
		return fmt.Errorf("orchestrate: decode commands: %w", err)
	}

	o.mu.Lock()
	o.commands = refs
	o.mu.Unlock()
	return nil
}

// Commands returns the current catalog snapshot.
func (o *Orchestrator) Commands() []palette.CommandRef {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]palette.CommandRef, len(o.commands))
	copy(out, o.commands)
	return out
}

// Search runs one turn for the raw input. Empty or whitespace-only input
// short-circuits with no broker traffic.
func (o *Orchestrator) Search(ctx context.Context, raw string) TurnResult {
	if strings.TrimSpace(raw) == "" {
		return TurnResult{}
	}

	cmds := o.Commands()
	parsed := parse.Parse(raw, cmds)

	if parsed.Alias != "" {
		if ref, _, ok := parse.Resolve(parsed.Alias, cmds); ok {
			switch ref.Command.Kind {
			case palette.KindSearch:
				return o.searchTargeted(ctx, ref, parsed.Term)
			case palette.KindAction:
				return o.synthesizeCommand(ref)
			}
		}
		// Unknown alias: degrade to full fan-out over the entire original
		// input so no user text is silently dropped.
		return o.searchFanOut(ctx, cmds, strings.TrimSpace(raw))
	}

	return o.searchFanOut(ctx, cmds, parsed.Term)
}

// searchTargeted issues exactly one request. With a single source of truth
// its failure surfaces to the caller instead of being swallowed.
func (o *Orchestrator) searchTargeted(ctx context.Context, ref palette.CommandRef, term string) TurnResult {
	turn := TurnResult{
		ActiveProvider: ref.ProviderID,
		ActiveCommand:  ref.Command.ID,
	}

	results, err := o.callSearch(ctx, ref, term)
	if err != nil {
		turn.Err = err
		return turn
	}

	turn.Origins = originsFor(results, ref, nil)
	turn.Results = o.engine.Rank(results, term)
	return turn
}

// synthesizeCommand turns an action command into a single selectable result
// so the user confirms execution explicitly; partial typing never triggers
// side effects.
func (o *Orchestrator) synthesizeCommand(ref palette.CommandRef) TurnResult {
	r := palette.Result{
		ID:        "command/" + ref.ProviderID + "/" + ref.Command.ID,
		Title:     ref.Command.Name,
		Secondary: ref.Command.Description,
		Category:  palette.CategoryCommand,
		Actions: []palette.Action{{
			ID:      "run",
			Label:   "Run",
			Primary: true,
		}},
	}

	return TurnResult{
		Results:        o.engine.Rank([]palette.Result{r}, ""),
		Origins:        originsFor([]palette.Result{r}, ref, nil),
		ActiveProvider: ref.ProviderID,
		ActiveCommand:  ref.Command.ID,
	}
}

// searchFanOut queries every search command concurrently and settles rather
// than failing fast: a provider's failure drops its results and nothing
// else. Merge order is fixed by catalog order so ranking's tie-break stays
// deterministic across runs.
func (o *Orchestrator) searchFanOut(ctx context.Context, cmds []palette.CommandRef, term string) TurnResult {
	var targets []palette.CommandRef
	for _, ref := range cmds {
		if ref.Command.Kind == palette.KindSearch {
			targets = append(targets, ref)
		}
	}
	if len(targets) == 0 {
		return TurnResult{}
	}

	slots := make([][]palette.Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range targets {
		g.Go(func() error {
			results, err := o.callSearch(gctx, ref, term)
			if err != nil {
				o.logger.Warn("provider search failed",
					"provider", ref.ProviderID,
					"command", ref.Command.ID,
					"error", err,
				)
				return nil // settle, never cancel siblings
			}
			slots[i] = results
			return nil
		})
	}
	g.Wait() // closures never return errors

	var merged []palette.Result
	origins := make(map[string]palette.CommandRef)
	for i, results := range slots {
		merged = append(merged, results...)
		origins = originsFor(results, targets[i], origins)
	}

	return TurnResult{
		Results: o.engine.Rank(merged, term),
		Origins: origins,
	}
}

// callSearch performs one broker search request and decodes its results.
func (o *Orchestrator) callSearch(ctx context.Context, ref palette.CommandRef, term string) ([]palette.Result, error) {
	payload, err := json.Marshal(palette.Query{Term: term})
	if err != nil {
		return nil, fmt.Errorf("orchestrate: encode query: %w", err)
	}

	out, err := o.broker.Request(ctx, o.peer, broker.Body{
		ProviderID: ref.ProviderID,
		CommandID:  ref.Command.ID,
		Kind:       broker.KindSearch,
		Payload:    payload,
	})
	if err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, errors.New(out.Error)
	}

	var results []palette.Result
	if len(out.Data) > 0 {
		if err := json.Unmarshal(out.Data, &results); err != nil {
			return nil, fmt.Errorf("orchestrate: decode results: %w", err)
		}
	}
	return results, nil
}

// ExecuteAction resolves a result chosen from a previous turn to its owning
// provider/command and issues a single action request.
func (o *Orchestrator) ExecuteAction(ctx context.Context, turn TurnResult, resultID, actionID string) (palette.ActionOutcome, error) {
	ref, ok := turn.Origins[resultID]
	if !ok {
		return palette.ActionOutcome{}, fmt.Errorf("orchestrate: result %s not part of this turn", resultID)
	}

	var meta map[string]string
	for _, sr := range turn.Results {
		if sr.ID == resultID {
			meta = sr.Meta
			break
		}
	}

	payload, err := json.Marshal(palette.ActionRequest{
		ActionID: actionID,
		ResultID: resultID,
		Meta:     meta,
	})
	if err != nil {
		return palette.ActionOutcome{}, fmt.Errorf("orchestrate: encode action: %w", err)
	}

	out, err := o.broker.Request(ctx, o.peer, broker.Body{
		ProviderID: ref.ProviderID,
		CommandID:  ref.Command.ID,
		Kind:       broker.KindAction,
		Payload:    payload,
	})
	if err != nil {
		return palette.ActionOutcome{}, err
	}
	if !out.Success {
		return palette.ActionOutcome{}, errors.New(out.Error)
	}

	var outcome palette.ActionOutcome
	if len(out.Data) > 0 {
		if err := json.Unmarshal(out.Data, &outcome); err != nil {
			return palette.ActionOutcome{}, fmt.Errorf("orchestrate: decode action outcome: %w", err)
		}
	}
	return outcome, nil
}

// originsFor records which command produced each result. Duplicate ids keep
// the first origin, matching ranking's first-occurrence dedup.
func originsFor(results []palette.Result, ref palette.CommandRef, into map[string]palette.CommandRef) map[string]palette.CommandRef {
	if into == nil {
		into = make(map[string]palette.CommandRef, len(results))
	}
	for _, r := range results {
		if _, taken := into[r.ID]; !taken {
			into[r.ID] = ref
		}
	}
	return into
}
