package providers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palette-dev/palette/internal/config"
	"github.com/palette-dev/palette/internal/palette"
	"github.com/palette-dev/palette/internal/rank"
	"github.com/palette-dev/palette/internal/storage"
)

func testDB(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTabs_SearchFiltersTitleAndURL(t *testing.T) {
	t.Parallel()

	tabs := NewTabs()
	tabs.Track(Tab{ID: "1", Title: "GitHub - pull requests", URL: "https://github.com/pulls"})
	tabs.Track(Tab{ID: "2", Title: "Go Playground", URL: "https://go.dev/play"})

	results, err := tabs.HandleSearch(context.Background(), "search", palette.Query{Term: "github"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tab/1", results[0].ID)
	assert.Equal(t, palette.CategoryTab, results[0].Category)

	all, err := tabs.HandleSearch(context.Background(), "search", palette.Query{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "empty term lists every tab")
}

func TestTabs_CloseActionRemovesTab(t *testing.T) {
	t.Parallel()

	tabs := NewTabs()
	tabs.Track(Tab{ID: "1", Title: "GitHub", URL: "https://github.com"})

	out, err := tabs.HandleAction(context.Background(), "search", palette.ActionRequest{
		ActionID: "close",
		ResultID: "tab/1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Tab closed", out.Notice)
	assert.Empty(t, tabs.Snapshot())

	_, err = tabs.HandleAction(context.Background(), "search", palette.ActionRequest{
		ActionID: "activate",
		ResultID: "tab/1",
	})
	assert.Error(t, err, "closed tab cannot be activated")
}

func TestHistory_SearchBoostsFrequentVisits(t *testing.T) {
	t.Parallel()

	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, db.RecordVisit(ctx, "https://github.com", "GitHub"))
	require.NoError(t, db.RecordVisit(ctx, "https://github.com", "GitHub"))
	require.NoError(t, db.RecordVisit(ctx, "https://go.dev", "Go"))

	h := NewHistory(db, 90)
	results, err := h.HandleSearch(ctx, "search", palette.Query{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "1.000", results[0].Meta[rank.BoostMetaKey], "most visited gets the full boost")
	assert.Equal(t, palette.CategoryHistory, results[0].Category)
	assert.Equal(t, "https://github.com", results[0].Meta[rank.URLMetaKey])
}

func TestHistory_ClearCommand(t *testing.T) {
	t.Parallel()

	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, db.RecordVisit(ctx, "https://github.com", "GitHub"))

	h := NewHistory(db, 0)
	out, err := h.HandleAction(ctx, "clear", palette.ActionRequest{ActionID: "run"})
	require.NoError(t, err)
	assert.True(t, out.Dismiss)
	assert.Contains(t, out.Notice, "1")

	results, err := h.HandleSearch(ctx, "search", palette.Query{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHistory_ForgetRemovesSingleEntry(t *testing.T) {
	t.Parallel()

	db := testDB(t)
	ctx := context.Background()
	require.NoError(t, db.RecordVisit(ctx, "https://github.com", "GitHub"))
	require.NoError(t, db.RecordVisit(ctx, "https://go.dev", "Go"))

	h := NewHistory(db, 0)
	results, err := h.HandleSearch(ctx, "search", palette.Query{Term: "github"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = h.HandleAction(ctx, "search", palette.ActionRequest{
		ActionID: "forget",
		ResultID: results[0].ID,
	})
	require.NoError(t, err)

	remaining, err := h.HandleSearch(ctx, "search", palette.Query{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestBookmarks_SearchAndRemove(t *testing.T) {
	t.Parallel()

	db := testDB(t)
	ctx := context.Background()
	_, err := db.AddBookmark(ctx, "https://pkg.go.dev", "Go Packages", "dev")
	require.NoError(t, err)

	b := NewBookmarks(db)
	results, err := b.HandleSearch(ctx, "search", palette.Query{Term: "packages"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, palette.CategoryBookmark, results[0].Category)
	assert.Contains(t, results[0].Secondary, "dev · ")

	_, err = b.HandleAction(ctx, "search", palette.ActionRequest{
		ActionID: "remove",
		ResultID: results[0].ID,
	})
	require.NoError(t, err)

	remaining, err := b.HandleSearch(ctx, "search", palette.Query{})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestBookmarks_RecencyBoostDecays(t *testing.T) {
	t.Parallel()

	now := time.Now().UnixMilli()
	fresh := recencyBoost(now, now)
	dayOld := recencyBoost(now-24*time.Hour.Milliseconds(), now)
	ancient := recencyBoost(now-60*24*time.Hour.Milliseconds(), now)

	assert.Equal(t, "1.000", fresh)
	assert.Less(t, dayOld, fresh)
	assert.Equal(t, "0", ancient)
}

func TestBuiltin_SearchAndRun(t *testing.T) {
	t.Parallel()

	b := NewBuiltin([]config.CustomCommand{
		{Alias: "lock", Name: "Lock screen", Exec: "loginctl lock-session"},
		{Alias: "top", Name: "System monitor", Exec: "gnome-system-monitor"},
	})
	var launched [][]string
	b.runCommand = func(argv []string) error {
		launched = append(launched, argv)
		return nil
	}

	results, err := b.HandleSearch(context.Background(), "search", palette.Query{Term: "lock"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Lock screen", results[0].Title)
	assert.Equal(t, palette.CategoryCommand, results[0].Category)

	out, err := b.HandleAction(context.Background(), "search", palette.ActionRequest{
		ActionID: "run",
		ResultID: results[0].ID,
		Meta:     results[0].Meta,
	})
	require.NoError(t, err)
	assert.True(t, out.Dismiss)
	require.Len(t, launched, 1)
	assert.Equal(t, []string{"loginctl", "lock-session"}, launched[0])
}

func TestBuiltin_QuotedArgsSplitLikeAShell(t *testing.T) {
	t.Parallel()

	b := NewBuiltin([]config.CustomCommand{
		{Alias: "note", Name: "New note", Exec: `notes-app --title "daily standup"`},
	})
	var gotArgv []string
	b.runCommand = func(argv []string) error {
		gotArgv = argv
		return nil
	}

	_, err := b.HandleAction(context.Background(), "search", palette.ActionRequest{
		ActionID: "run",
		ResultID: "builtin/note",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes-app", "--title", "daily standup"}, gotArgv)
}
