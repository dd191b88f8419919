package rank

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palette-dev/palette/internal/palette"
)

func result(id, title string, cat palette.Category) palette.Result {
	return palette.Result{ID: id, Title: title, Category: cat}
}

func TestFuzzyScore_Tiers(t *testing.T) {
	t.Parallel()

	exact := fuzzyScore("GitHub", "github")
	starts := fuzzyScore("GitHub - React Documentation", "github")
	substr := fuzzyScore("Intro to GitHub", "github")
	none := fuzzyScore("Hacker News", "github")

	assert.Greater(t, exact, starts, "exact must beat starts-with")
	assert.Greater(t, starts, substr, "starts-with must beat substring")
	assert.Greater(t, substr, 0.0)
	assert.Zero(t, none, "terms of length >= 4 get no fallback")
}

func TestFuzzyScore_ShortTermWordFallback(t *testing.T) {
	t.Parallel()

	// Terms shorter than the fallback bound earn the reduced fixed score on
	// any match within a single word token, at its start or inside it.
	assert.Equal(t, float64(scoreWordMatch), fuzzyScore("my github dashboard", "gh"))
	assert.Equal(t, float64(scoreWordMatch), fuzzyScore("my github dashboard", "hub"))
	assert.Equal(t, float64(scoreWordMatch), fuzzyScore("my github dashboard", "it"))

	// Matches never straddle token boundaries, unlike the whole-text tier.
	assert.Zero(t, fuzzyScore("my github dashboard", "y g"))
	assert.Zero(t, fuzzyScore("unrelated text", "zq"))
}

func TestFuzzyScore_ShortTermBoundCountsRunes(t *testing.T) {
	t.Parallel()

	// Two runes, six bytes: still a short term, so the match is scored at
	// the word level rather than the whole-text substring tier.
	assert.Equal(t, float64(scoreWordMatch), fuzzyScore("travel 日本語 guide", "本語"))
}

func TestFuzzyScore_EmptyCases(t *testing.T) {
	t.Parallel()

	assert.Equal(t, float64(scoreExact), fuzzyScore("anything", ""))
	assert.Zero(t, fuzzyScore("", "term"))
}

func TestRank_CategoryPrecedence(t *testing.T) {
	t.Parallel()

	e := NewEngine(0)

	// The history result matches exactly; the tab result only as a prefix.
	// Tab must still outrank history as long as both clear the gate.
	results := []palette.Result{
		result("h1", "react", palette.CategoryHistory),
		result("t1", "react documentation", palette.CategoryTab),
	}

	ranked := e.Rank(results, "react")
	require.Len(t, ranked, 2)
	assert.Equal(t, "t1", ranked[0].ID)
	assert.Equal(t, "h1", ranked[1].ID)
}

func TestRank_GateDropsWeakMatches(t *testing.T) {
	t.Parallel()

	e := NewEngine(0)
	results := []palette.Result{
		result("a", "kubernetes operator guide", palette.CategoryTab),
		result("b", "completely unrelated", palette.CategoryTab),
	}

	ranked := e.Rank(results, "kubernetes")
	require.Len(t, ranked, 1)
	assert.Equal(t, "a", ranked[0].ID)
}

func TestRank_DedupKeepsFirstOccurrence(t *testing.T) {
	t.Parallel()

	e := NewEngine(0)
	first := result("same", "golang maps", palette.CategoryHistory)
	first.Secondary = "https://go.dev/blog/maps"
	second := result("same", "golang maps copy", palette.CategoryHistory)

	ranked := e.Rank([]palette.Result{first, second}, "golang")
	require.Len(t, ranked, 1)
	assert.Equal(t, "https://go.dev/blog/maps", ranked[0].Secondary)
}

func TestRank_StableTieBreakByInputOrder(t *testing.T) {
	t.Parallel()

	e := NewEngine(0)
	results := []palette.Result{
		result("first", "git status", palette.CategoryHistory),
		result("second", "git status", palette.CategoryHistory),
	}

	ranked := e.Rank(results, "git status")
	require.Len(t, ranked, 2)
	assert.Equal(t, "first", ranked[0].ID)
	assert.Equal(t, "second", ranked[1].ID)
}

func TestRank_CapAppliesAfterSorting(t *testing.T) {
	t.Parallel()

	e := NewEngine(3)

	// One high-precedence result arrives last in input order; the cap must
	// not evict it.
	var results []palette.Result
	for i := 0; i < 5; i++ {
		results = append(results, result(fmt.Sprintf("h%d", i), "golang", palette.CategoryHistory))
	}
	results = append(results, result("tab", "golang", palette.CategoryTab))

	ranked := e.Rank(results, "golang")
	require.Len(t, ranked, 3)
	assert.Equal(t, "tab", ranked[0].ID)
}

func TestRank_EmptyTermBoostsStayInBand(t *testing.T) {
	t.Parallel()

	e := NewEngine(0)

	boosted := result("h-boost", "daily standup notes", palette.CategoryHistory)
	boosted.Meta = map[string]string{BoostMetaKey: "1.0"}
	plain := result("h-plain", "old article", palette.CategoryHistory)
	bookmark := result("b1", "reference", palette.CategoryBookmark)

	ranked := e.Rank([]palette.Result{plain, boosted, bookmark}, "")
	require.Len(t, ranked, 3)

	// Bookmark band outranks any boosted history entry.
	assert.Equal(t, "b1", ranked[0].ID)
	assert.Equal(t, "h-boost", ranked[1].ID)
	assert.Equal(t, "h-plain", ranked[2].ID)
}

func TestRank_HostnameFieldContributes(t *testing.T) {
	t.Parallel()

	e := NewEngine(0)

	withHost := result("a", "Docs", palette.CategoryBookmark)
	withHost.Meta = map[string]string{URLMetaKey: "https://github.com/golang/go"}
	withHost.Secondary = "https://github.com/golang/go"

	without := result("b", "Docs", palette.CategoryBookmark)
	without.Secondary = "internal reference"

	ranked := e.Rank([]palette.Result{without, withHost}, "github")
	require.Len(t, ranked, 1, "only the hostname match clears the gate")
	assert.Equal(t, "a", ranked[0].ID)
	assert.Contains(t, ranked[0].MatchedFields, "host")
}

func TestRank_ExactBeatsStartsWithBeatsSubstring(t *testing.T) {
	t.Parallel()

	e := NewEngine(0)
	results := []palette.Result{
		result("substr", "the react handbook", palette.CategoryTab),
		result("exact", "react", palette.CategoryTab),
		result("starts", "react documentation", palette.CategoryTab),
	}

	ranked := e.Rank(results, "react")
	require.Len(t, ranked, 3)
	assert.Equal(t, "exact", ranked[0].ID)
	assert.Equal(t, "starts", ranked[1].ID)
	assert.Equal(t, "substr", ranked[2].ID)
}
