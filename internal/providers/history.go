package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/palette-dev/palette/internal/palette"
	"github.com/palette-dev/palette/internal/rank"
	"github.com/palette-dev/palette/internal/storage"
)

// historyQueryLimit bounds how many rows one search turn pulls from the
// database; ranking caps the merged list far below this anyway.
const historyQueryLimit = 200

// History serves browsing history from the store. Frequently visited pages
// get a category-only boost for empty-term listings.
type History struct {
	store *storage.Store

	// window bounds how far back searches reach; zero means unlimited.
	window time.Duration
}

var _ palette.Provider = (*History)(nil)

// NewHistory creates a history provider over the store. historyDays <= 0
// disables the recency window.
func NewHistory(store *storage.Store, historyDays int) *History {
	var window time.Duration
	if historyDays > 0 {
		window = time.Duration(historyDays) * 24 * time.Hour
	}
	return &History{store: store, window: window}
}

func (h *History) ID() string          { return "history" }
func (h *History) DisplayName() string { return "History" }

func (h *History) Commands() []palette.Command {
	return []palette.Command{
		{
			ID:          "search",
			Name:        "Search history",
			Description: "Find a previously visited page",
			Aliases:     []string{"h", "history"},
			Activation:  palette.ActivationSeparator,
			Kind:        palette.KindSearch,
			Placeholder: "Search browsing history",
		},
		{
			ID:          "clear",
			Name:        "Clear browsing history",
			Description: "Delete all history entries",
			Aliases:     []string{"clear-history"},
			Activation:  palette.ActivationSeparator,
			Kind:        palette.KindAction,
		},
	}
}

func (h *History) HandleSearch(ctx context.Context, commandID string, q palette.Query) ([]palette.Result, error) {
	if commandID != "search" {
		return nil, fmt.Errorf("history: unknown command %s", commandID)
	}

	var since time.Time
	if h.window > 0 {
		since = time.Now().Add(-h.window)
	}

	visits, err := h.store.SearchVisits(ctx, q.Term, since, historyQueryLimit)
	if err != nil {
		return nil, err
	}

	maxCount, err := h.store.MaxVisitCount(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]palette.Result, 0, len(visits))
	for _, v := range visits {
		title := v.Title
		if title == "" {
			title = v.URL
		}
		results = append(results, palette.Result{
			ID:        "history/" + v.ID,
			Title:     title,
			Secondary: v.URL,
			Icon:      "history",
			Category:  palette.CategoryHistory,
			Actions: []palette.Action{
				{ID: "open", Label: "Open", Shortcut: "enter", Primary: true},
				{ID: "forget", Label: "Remove from history"},
			},
			Meta: map[string]string{
				rank.URLMetaKey:   v.URL,
				rank.BoostMetaKey: boostFor(v.VisitCount, maxCount),
			},
		})
	}
	return results, nil
}

func (h *History) HandleAction(ctx context.Context, commandID string, req palette.ActionRequest) (palette.ActionOutcome, error) {
	switch commandID {
	case "clear":
		n, err := h.store.ClearVisits(ctx)
		if err != nil {
			return palette.ActionOutcome{}, err
		}
		return palette.ActionOutcome{
			Dismiss: true,
			Notice:  fmt.Sprintf("Cleared %d history entries", n),
		}, nil

	case "search":
		switch req.ActionID {
		case "open":
			url := req.Meta[rank.URLMetaKey]
			if url == "" {
				return palette.ActionOutcome{}, fmt.Errorf("history: result %s has no url", req.ResultID)
			}
			if err := h.store.RecordVisit(ctx, url, ""); err != nil {
				return palette.ActionOutcome{}, err
			}
			return palette.ActionOutcome{Dismiss: true}, nil
		case "forget":
			id := strings.TrimPrefix(req.ResultID, "history/")
			if err := h.store.DeleteVisit(ctx, id); err != nil {
				return palette.ActionOutcome{}, err
			}
			return palette.ActionOutcome{Notice: "Removed from history"}, nil
		default:
			return palette.ActionOutcome{}, fmt.Errorf("history: unknown action %s", req.ActionID)
		}

	default:
		return palette.ActionOutcome{}, fmt.Errorf("history: unknown command %s", commandID)
	}
}
