package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVisits_RecordAggregatesPerURL(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordVisit(ctx, "https://github.com", "GitHub"))
	require.NoError(t, s.RecordVisit(ctx, "https://github.com", "GitHub"))
	require.NoError(t, s.RecordVisit(ctx, "https://go.dev", "The Go Programming Language"))

	visits, err := s.SearchVisits(ctx, "", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, visits, 2)
	assert.Equal(t, "https://github.com", visits[0].URL, "most visited first")
	assert.Equal(t, 2, visits[0].VisitCount)

	max, err := s.MaxVisitCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, max)
}

func TestVisits_SearchMatchesURLAndTitle(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordVisit(ctx, "https://github.com/golang/go", "golang/go"))
	require.NoError(t, s.RecordVisit(ctx, "https://news.ycombinator.com", "Hacker News"))

	visits, err := s.SearchVisits(ctx, "golang", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, "golang/go", visits[0].Title)

	visits, err = s.SearchVisits(ctx, "hacker", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, visits, 1, "title match is case-insensitive via LIKE")
}

func TestVisits_LikeWildcardsMatchLiterally(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordVisit(ctx, "https://example.com/100%25", "100% done"))
	require.NoError(t, s.RecordVisit(ctx, "https://example.com/other", "other"))

	visits, err := s.SearchVisits(ctx, "100%", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, visits, 1)
}

func TestVisits_Clear(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordVisit(ctx, "https://github.com", "GitHub"))
	n, err := s.ClearVisits(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	visits, err := s.SearchVisits(ctx, "", time.Time{}, 10)
	require.NoError(t, err)
	assert.Empty(t, visits)
}

func TestBookmarks_AddSearchDelete(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	ctx := context.Background()

	id, err := s.AddBookmark(ctx, "https://pkg.go.dev", "Go Packages", "dev")
	require.NoError(t, err)

	_, err = s.AddBookmark(ctx, "https://pkg.go.dev", "Go Packages (updated)", "dev")
	require.NoError(t, err, "same URL replaces, not duplicates")

	got, err := s.SearchBookmarks(ctx, "packages", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Go Packages (updated)", got[0].Title)

	require.NoError(t, s.DeleteBookmark(ctx, id))
	assert.Error(t, s.DeleteBookmark(ctx, id), "double delete reports missing")
}

func TestOpen_SchemaVersionRecorded(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening an existing database skips applied migrations.
	s2, err := Open(path, nil)
	require.NoError(t, err)
	defer s2.Close()

	var version int
	row := s2.DB().QueryRow(`SELECT MAX(version) FROM schema_meta`)
	require.NoError(t, row.Scan(&version))
	assert.Equal(t, 1, version)
}
