// Package providers implements the backend data sources served through the
// registry: open tabs, browsing history, bookmarks, and built-in commands.
package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/palette-dev/palette/internal/palette"
	"github.com/palette-dev/palette/internal/rank"
)

// Tab is one open tab tracked by the tabs provider.
type Tab struct {
	ID         string
	Title      string
	URL        string
	LastActive time.Time
}

// Tabs serves the set of currently open tabs. The table is fed by the host
// surface (or tests); searches never leave the process.
type Tabs struct {
	mu   sync.RWMutex
	tabs []Tab
}

var _ palette.Provider = (*Tabs)(nil)

// NewTabs creates an empty tabs provider.
func NewTabs() *Tabs {
	return &Tabs{}
}

// Track adds or updates a tab.
func (t *Tabs) Track(tab Tab) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.tabs {
		if existing.ID == tab.ID {
			t.tabs[i] = tab
			return
		}
	}
	t.tabs = append(t.tabs, tab)
}

// Snapshot returns the current tab set.
func (t *Tabs) Snapshot() []Tab {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Tab, len(t.tabs))
	copy(out, t.tabs)
	return out
}

func (t *Tabs) ID() string          { return "tabs" }
func (t *Tabs) DisplayName() string { return "Open Tabs" }

func (t *Tabs) Commands() []palette.Command {
	return []palette.Command{{
		ID:          "search",
		Name:        "Search tabs",
		Description: "Find and switch to an open tab",
		Aliases:     []string{"t", "tab"},
		Activation:  palette.ActivationSeparator,
		Kind:        palette.KindSearch,
		Placeholder: "Search open tabs",
	}}
}

func (t *Tabs) HandleSearch(ctx context.Context, commandID string, q palette.Query) ([]palette.Result, error) {
	if commandID != "search" {
		return nil, fmt.Errorf("tabs: unknown command %s", commandID)
	}

	term := strings.ToLower(strings.TrimSpace(q.Term))

	t.mu.RLock()
	defer t.mu.RUnlock()

	var results []palette.Result
	for _, tab := range t.tabs {
		if term != "" &&
			!strings.Contains(strings.ToLower(tab.Title), term) &&
			!strings.Contains(strings.ToLower(tab.URL), term) {
			continue
		}
		results = append(results, palette.Result{
			ID:        "tab/" + tab.ID,
			Title:     tab.Title,
			Secondary: tab.URL,
			Icon:      "tab",
			Category:  palette.CategoryTab,
			Actions: []palette.Action{
				{ID: "activate", Label: "Switch to tab", Shortcut: "enter", Primary: true},
				{ID: "close", Label: "Close tab", Shortcut: "ctrl+w"},
			},
			Meta: map[string]string{
				rank.URLMetaKey: tab.URL,
				"tab_id":        tab.ID,
			},
		})
	}
	return results, nil
}

func (t *Tabs) HandleAction(ctx context.Context, commandID string, req palette.ActionRequest) (palette.ActionOutcome, error) {
	tabID := req.Meta["tab_id"]
	if tabID == "" {
		tabID = strings.TrimPrefix(req.ResultID, "tab/")
	}

	switch req.ActionID {
	case "activate":
		if err := t.touch(tabID); err != nil {
			return palette.ActionOutcome{}, err
		}
		return palette.ActionOutcome{Dismiss: true}, nil
	case "close":
		if err := t.remove(tabID); err != nil {
			return palette.ActionOutcome{}, err
		}
		return palette.ActionOutcome{Notice: "Tab closed"}, nil
	default:
		return palette.ActionOutcome{}, fmt.Errorf("tabs: unknown action %s", req.ActionID)
	}
}

func (t *Tabs) touch(tabID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, tab := range t.tabs {
		if tab.ID == tabID {
			t.tabs[i].LastActive = time.Now()
			return nil
		}
	}
	return fmt.Errorf("tabs: tab %s not found", tabID)
}

func (t *Tabs) remove(tabID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, tab := range t.tabs {
		if tab.ID == tabID {
			t.tabs = append(t.tabs[:i], t.tabs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("tabs: tab %s not found", tabID)
}

// boostFor normalizes a count against a maximum into the [0, 1] range the
// ranking engine expects for category-only boosts.
func boostFor(count, max int) string {
	if max <= 0 || count <= 0 {
		return "0"
	}
	v := float64(count) / float64(max)
	if v > 1 {
		v = 1
	}
	return strconv.FormatFloat(v, 'f', 3, 64)
}
