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

const bookmarkQueryLimit = 200

// Bookmarks serves saved pages from the store. More recently added
// bookmarks get a category-only boost for empty-term listings.
type Bookmarks struct {
	store *storage.Store
}

var _ palette.Provider = (*Bookmarks)(nil)

// NewBookmarks creates a bookmarks provider over the store.
func NewBookmarks(store *storage.Store) *Bookmarks {
	return &Bookmarks{store: store}
}

func (b *Bookmarks) ID() string          { return "bookmarks" }
func (b *Bookmarks) DisplayName() string { return "Bookmarks" }

func (b *Bookmarks) Commands() []palette.Command {
	return []palette.Command{{
		ID:          "search",
		Name:        "Search bookmarks",
		Description: "Find a saved page",
		Aliases:     []string{"b", "bm", "bookmarks"},
		Activation:  palette.ActivationSeparator,
		Kind:        palette.KindSearch,
		Placeholder: "Search bookmarks",
	}}
}

func (b *Bookmarks) HandleSearch(ctx context.Context, commandID string, q palette.Query) ([]palette.Result, error) {
	if commandID != "search" {
		return nil, fmt.Errorf("bookmarks: unknown command %s", commandID)
	}

	bookmarks, err := b.store.SearchBookmarks(ctx, q.Term, bookmarkQueryLimit)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	results := make([]palette.Result, 0, len(bookmarks))
	for _, bm := range bookmarks {
		title := bm.Title
		if title == "" {
			title = bm.URL
		}
		secondary := bm.URL
		if bm.Folder != "" {
			secondary = bm.Folder + " · " + bm.URL
		}
		results = append(results, palette.Result{
			ID:        "bookmark/" + bm.ID,
			Title:     title,
			Secondary: secondary,
			Icon:      "bookmark",
			Category:  palette.CategoryBookmark,
			Actions: []palette.Action{
				{ID: "open", Label: "Open", Shortcut: "enter", Primary: true},
				{ID: "remove", Label: "Remove bookmark"},
			},
			Meta: map[string]string{
				rank.URLMetaKey:   bm.URL,
				rank.BoostMetaKey: recencyBoost(bm.AddedMs, now),
			},
		})
	}
	return results, nil
}

func (b *Bookmarks) HandleAction(ctx context.Context, commandID string, req palette.ActionRequest) (palette.ActionOutcome, error) {
	if commandID != "search" {
		return palette.ActionOutcome{}, fmt.Errorf("bookmarks: unknown command %s", commandID)
	}

	switch req.ActionID {
	case "open":
		url := req.Meta[rank.URLMetaKey]
		if url == "" {
			return palette.ActionOutcome{}, fmt.Errorf("bookmarks: result %s has no url", req.ResultID)
		}
		if err := b.store.RecordVisit(ctx, url, ""); err != nil {
			return palette.ActionOutcome{}, err
		}
		return palette.ActionOutcome{Dismiss: true}, nil

	case "remove":
		id := strings.TrimPrefix(req.ResultID, "bookmark/")
		if err := b.store.DeleteBookmark(ctx, id); err != nil {
			return palette.ActionOutcome{}, err
		}
		return palette.ActionOutcome{Notice: "Bookmark removed"}, nil

	default:
		return palette.ActionOutcome{}, fmt.Errorf("bookmarks: unknown action %s", req.ActionID)
	}
}

// recencyBoost maps a timestamp into [0, 1], decaying linearly over thirty
// days. Newer bookmarks rank higher among their peers when the term is
// empty; category precedence is unaffected.
func recencyBoost(addedMs, nowMs int64) string {
	const window = 30 * 24 * time.Hour
	age := time.Duration(nowMs-addedMs) * time.Millisecond
	if age < 0 {
		age = 0
	}
	if age >= window {
		return "0"
	}
	return fmt.Sprintf("%.3f", 1-float64(age)/float64(window))
}
