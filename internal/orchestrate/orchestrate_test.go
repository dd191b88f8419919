package orchestrate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palette-dev/palette/internal/broker"
	"github.com/palette-dev/palette/internal/palette"
	"github.com/palette-dev/palette/internal/palette/palettetest"
	"github.com/palette-dev/palette/internal/rank"
	"github.com/palette-dev/palette/internal/registry"
	"github.com/palette-dev/palette/internal/transport"
)

// harness stands up the full front-to-back pipeline over an in-memory pipe:
// orchestrator -> broker -> dispatcher -> registry -> providers.
type harness struct {
	orch *Orchestrator
	reg  *registry.Registry
}

func newHarness(t *testing.T, providers ...palette.Provider) *harness {
	t.Helper()

	uiEnd, backendEnd := transport.Pipe("ui", "backend")
	ui := broker.New(uiEnd, broker.OriginUI, nil)
	backend := broker.New(backendEnd, broker.OriginBackend, nil)

	reg := registry.New(nil)
	disp, err := broker.NewDispatcher(backend, reg, nil, 4)
	require.NoError(t, err)

	for _, p := range providers {
		require.NoError(t, reg.Register(context.Background(), p))
	}

	orch := New(ui, "backend", rank.NewEngine(0), nil)
	require.NoError(t, orch.RefreshCommands(context.Background()))

	t.Cleanup(func() {
		disp.Close()
		ui.Close()
		backend.Close()
	})
	return &harness{orch: orch, reg: reg}
}

func tabResult(id, title string) palette.Result {
	return palette.Result{
		ID:       id,
		Title:    title,
		Category: palette.CategoryTab,
		Actions:  []palette.Action{{ID: "activate", Label: "Switch to tab", Primary: true}},
	}
}

func TestSearch_EmptyQueryMakesNoBrokerCalls(t *testing.T) {
	t.Parallel()

	tab := palettetest.New("tab", "t")
	h := newHarness(t, tab)

	turn := h.orch.Search(context.Background(), "   ")
	assert.Empty(t, turn.Results)
	assert.NoError(t, turn.Err)
	assert.Zero(t, tab.SearchCalls())
}

func TestSearch_AliasTargetsSingleProvider(t *testing.T) {
	t.Parallel()

	tab := palettetest.New("tab", "t")
	var gotTerm string
	tab.SearchFn = func(_ context.Context, _ string, q palette.Query) ([]palette.Result, error) {
		gotTerm = q.Term
		return []palette.Result{tabResult("tab-1", "GitHub - React Documentation")}, nil
	}
	history := palettetest.New("history", "h")
	bookmark := palettetest.New("bookmark", "b")
	h := newHarness(t, tab, history, bookmark)

	turn := h.orch.Search(context.Background(), "t git")
	require.NoError(t, turn.Err)

	assert.Equal(t, "git", gotTerm)
	assert.Equal(t, 1, tab.SearchCalls())
	assert.Zero(t, history.SearchCalls(), "alias pins the scope; no fan-out")
	assert.Zero(t, bookmark.SearchCalls())

	assert.Equal(t, "tab", turn.ActiveProvider)
	assert.Equal(t, "search", turn.ActiveCommand)
	require.Len(t, turn.Results, 1)
	assert.Equal(t, "tab-1", turn.Results[0].ID)
	assert.Greater(t, turn.Results[0].Score, 4000.0, "tab band floor")
	assert.Contains(t, turn.Results[0].MatchedFields, "title")
}

func TestSearch_TargetedFailureSurfaces(t *testing.T) {
	t.Parallel()

	tab := palettetest.New("tab", "t")
	tab.SearchFn = func(context.Context, string, palette.Query) ([]palette.Result, error) {
		return nil, assert.AnError
	}
	h := newHarness(t, tab)

	turn := h.orch.Search(context.Background(), "t git")
	require.Error(t, turn.Err, "a single source of truth surfaces its failure")
	assert.Equal(t, "tab", turn.ActiveProvider)
	assert.Empty(t, turn.Results)
}

func TestSearch_FanOutToleratesPartialFailure(t *testing.T) {
	t.Parallel()

	ok := palettetest.New("tab", "t")
	ok.SearchFn = palettetest.StaticResults(tabResult("tab-1", "golang weekly"))
	bad1 := palettetest.New("history", "h")
	bad1.SearchFn = func(context.Context, string, palette.Query) ([]palette.Result, error) {
		return nil, assert.AnError
	}
	bad2 := palettetest.New("bookmark", "b")
	bad2.SearchFn = func(context.Context, string, palette.Query) ([]palette.Result, error) {
		return nil, assert.AnError
	}
	h := newHarness(t, ok, bad1, bad2)

	turn := h.orch.Search(context.Background(), "golang")
	require.NoError(t, turn.Err, "fan-out failures are absorbed")
	require.Len(t, turn.Results, 1)
	assert.Equal(t, "tab-1", turn.Results[0].ID)
}

func TestSearch_AllProvidersFailingYieldsEmptyNoError(t *testing.T) {
	t.Parallel()

	bad := palettetest.New("tab", "t")
	bad.SearchFn = func(context.Context, string, palette.Query) ([]palette.Result, error) {
		return nil, assert.AnError
	}
	h := newHarness(t, bad)

	turn := h.orch.Search(context.Background(), "golang")
	assert.NoError(t, turn.Err)
	assert.Empty(t, turn.Results)
}

func TestSearch_UnknownAliasFansOutWithFullInput(t *testing.T) {
	t.Parallel()

	tab := palettetest.New("tab", "t")
	var gotTerm string
	tab.SearchFn = func(_ context.Context, _ string, q palette.Query) ([]palette.Result, error) {
		gotTerm = q.Term
		return nil, nil
	}
	h := newHarness(t, tab)

	turn := h.orch.Search(context.Background(), "zz something")
	require.NoError(t, turn.Err)
	assert.Equal(t, "zz something", gotTerm, "no user input is silently dropped")
	assert.Empty(t, turn.ActiveProvider)
}

func TestSearch_ActionCommandSynthesizesResult(t *testing.T) {
	t.Parallel()

	p := palettetest.New("history", "h")
	p.Cmds = append(p.Cmds, palette.Command{
		ID:         "clear",
		Name:       "Clear browsing history",
		Aliases:    []string{"clear"},
		Activation: palette.ActivationSeparator,
		Kind:       palette.KindAction,
	})
	h := newHarness(t, p)

	turn := h.orch.Search(context.Background(), "clear everything")
	require.NoError(t, turn.Err)
	assert.Zero(t, p.SearchCalls(), "action aliases never trigger a search call")

	require.Len(t, turn.Results, 1)
	got := turn.Results[0]
	assert.Equal(t, "Clear browsing history", got.Title)
	assert.Equal(t, palette.CategoryCommand, got.Category)
	primary, ok := got.PrimaryAction()
	require.True(t, ok)
	assert.Equal(t, "run", primary.ID)
	assert.Equal(t, "history", turn.ActiveProvider)
	assert.Equal(t, "clear", turn.ActiveCommand)
}

func TestExecuteAction_RoutesToOwningProvider(t *testing.T) {
	t.Parallel()

	tab := palettetest.New("tab", "t")
	tab.SearchFn = palettetest.StaticResults(tabResult("tab-9", "GitHub"))
	var gotReq palette.ActionRequest
	tab.ActionFn = func(_ context.Context, commandID string, req palette.ActionRequest) (palette.ActionOutcome, error) {
		assert.Equal(t, "search", commandID)
		gotReq = req
		return palette.ActionOutcome{Dismiss: true}, nil
	}
	h := newHarness(t, tab)

	turn := h.orch.Search(context.Background(), "t git")
	require.NoError(t, turn.Err)
	require.Len(t, turn.Results, 1)

	outcome, err := h.orch.ExecuteAction(context.Background(), turn, "tab-9", "activate")
	require.NoError(t, err)
	assert.True(t, outcome.Dismiss)
	assert.Equal(t, "activate", gotReq.ActionID)
	assert.Equal(t, "tab-9", gotReq.ResultID)
}

func TestExecuteAction_UnknownResult(t *testing.T) {
	t.Parallel()

	h := newHarness(t, palettetest.New("tab", "t"))
	turn := h.orch.Search(context.Background(), "t git")

	_, err := h.orch.ExecuteAction(context.Background(), turn, "ghost", "activate")
	assert.Error(t, err)
}

func TestSearch_RegistryMutationVisibleAfterRefresh(t *testing.T) {
	t.Parallel()

	tab := palettetest.New("tab", "t")
	h := newHarness(t, tab)

	require.NoError(t, h.reg.Register(context.Background(), palettetest.New("history", "h")))
	require.NoError(t, h.orch.RefreshCommands(context.Background()))

	cmds := h.orch.Commands()
	assert.Len(t, cmds, 2)
}

func TestSession_DebounceCoalescesInput(t *testing.T) {
	t.Parallel()

	tab := palettetest.New("tab", "t")
	tab.SearchFn = palettetest.StaticResults(tabResult("tab-1", "golang"))
	h := newHarness(t, tab)

	var mu sync.Mutex
	var delivered []TurnResult
	session := NewSession(h.orch, 40*time.Millisecond, func(res TurnResult) {
		mu.Lock()
		delivered = append(delivered, res)
		mu.Unlock()
	})
	defer session.Close()

	session.Input("g")
	session.Input("go")
	session.Input("gol")
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delivered, 1, "rapid keystrokes collapse into one turn")
	assert.Equal(t, 1, tab.SearchCalls())
}

func TestSession_StaleTurnIsDiscarded(t *testing.T) {
	t.Parallel()

	slow := palettetest.New("tab", "t")
	started := make(chan struct{})
	releaseA := make(chan struct{})
	slow.SearchFn = func(_ context.Context, _ string, q palette.Query) ([]palette.Result, error) {
		if q.Term == "aaa" {
			close(started)
			<-releaseA // turn A resolves only after turn B finished
			return []palette.Result{tabResult("stale", "aaa")}, nil
		}
		return []palette.Result{tabResult("fresh", "bbb")}, nil
	}
	h := newHarness(t, slow)

	var mu sync.Mutex
	var delivered []TurnResult
	session := NewSession(h.orch, time.Millisecond, func(res TurnResult) {
		mu.Lock()
		delivered = append(delivered, res)
		mu.Unlock()
	})
	defer session.Close()

	go session.SearchNow("t aaa") // blocks inside the provider
	<-started
	session.SearchNow("t bbb") // turn B supersedes A while A is in flight
	close(releaseA)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, delivered, 1, "only the newest turn reaches the UI")
	require.Len(t, delivered[0].Results, 1)
	assert.Equal(t, "fresh", delivered[0].Results[0].ID)
}

func TestSession_ResolvedTurnNeverDeliversAfterNewer(t *testing.T) {
	t.Parallel()

	tab := palettetest.New("tab", "t")
	tab.SearchFn = palettetest.StaticResults(tabResult("tab-1", "golang"))
	h := newHarness(t, tab)

	var mu sync.Mutex
	var delivered []TurnResult
	session := NewSession(h.orch, time.Millisecond, func(res TurnResult) {
		mu.Lock()
		delivered = append(delivered, res)
		mu.Unlock()
	})
	defer session.Close()

	// A turn can pass the counter check and then lose the CPU while a newer
	// turn runs to completion and delivers. The resumed turn's id is then no
	// greater than the last delivered one and must be dropped, even though
	// the counter no longer flags it as superseded.
	session.deliverMu.Lock()
	session.lastDelivered = 1
	session.deliverMu.Unlock()

	session.run("t golang") // assigned id 1

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, delivered, "an already-superseded turn never lands")
}
