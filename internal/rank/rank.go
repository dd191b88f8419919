// Package rank scores and orders heterogeneous palette results against a
// search term. Category precedence is the primary key: every category owns a
// score band wide enough that no fuzzy contribution from a lower band can
// cross into a higher one. Within a band, per-field fuzzy relevance decides.
package rank

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/palette-dev/palette/internal/palette"
)

// Score bands and fuzzy tiers. The ordering invariants matter, not the exact
// values: bandSize must exceed the largest possible in-band contribution
// (scoreExact + boostCap).
const (
	bandSize = 1000

	scoreExact      = 700
	scoreStartsWith = 500
	scoreSubstring  = 300
	scoreWordMatch  = 150

	// minScore is the aggregate gate: results scoring below it are dropped
	// entirely rather than ranked low.
	minScore = 100

	// boostCap bounds category-only boosts (recency/frequency) applied when
	// the search term is empty.
	boostCap = 200

	// shortTermLen is the term length in runes below which the per-word
	// fallback applies instead of the whole-text substring tier.
	shortTermLen = 4
)

// Field weights for the per-result aggregate. Title dominates; a parsed
// hostname counts more than the raw URL or secondary text.
const (
	weightTitle     = 1.0
	weightHost      = 0.6
	weightSecondary = 0.3
)

// DefaultMaxResults caps the ranked list after sorting.
const DefaultMaxResults = 50

// BoostMetaKey is the result metadata key providers may set to a value in
// [0, 1] to request a category-only boost for empty-term listings.
const BoostMetaKey = "rank_boost"

// URLMetaKey is the result metadata key holding a URL-like field used for
// hostname scoring. Secondary text is used when the key is absent.
const URLMetaKey = "url"

// categoryOrder fixes category precedence. Higher means earlier.
var categoryOrder = map[palette.Category]int{
	palette.CategoryTab:      4,
	palette.CategoryBookmark: 3,
	palette.CategoryHistory:  2,
	palette.CategoryCommand:  1,
}

// ScoredResult is a Result plus its transient ranking data, recomputed each
// search turn and never persisted.
type ScoredResult struct {
	palette.Result
	Score         float64
	MatchedFields []string
}

// Engine ranks results. It is safe for repeated use within one goroutine;
// the hostname cache is the only internal state.
type Engine struct {
	maxResults int
	hosts      *lru.Cache[string, string]
}

// NewEngine creates a ranking engine. maxResults <= 0 selects
// DefaultMaxResults.
func NewEngine(maxResults int) *Engine {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	// Hostname parsing repeats across turns for the same URLs; a small LRU
	// keeps it off the per-keystroke path.
	hosts, _ := lru.New[string, string](512)
	return &Engine{maxResults: maxResults, hosts: hosts}
}

// Rank deduplicates by result id (first occurrence wins), scores every
// surviving result against term, drops sub-gate results, and returns a
// deterministic category-major, score-minor ordering. The cap applies after
// sorting so premature truncation never hides a better-ranked result.
func (e *Engine) Rank(results []palette.Result, term string) []ScoredResult {
	term = strings.TrimSpace(term)

	seen := make(map[string]struct{}, len(results))
	scored := make([]ScoredResult, 0, len(results))

	for _, r := range results {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}

		relevance, matched := e.aggregate(r, term)
		if term != "" && relevance < minScore {
			continue
		}

		score := float64(categoryBase(r.Category)) + relevance
		if term == "" {
			score += metaBoost(r)
		}

		scored = append(scored, ScoredResult{
			Result:        r,
			Score:         score,
			MatchedFields: matched,
		})
	}

	// Stable sort: equal scores keep input order.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > e.maxResults {
		scored = scored[:e.maxResults]
	}
	return scored
}

// aggregate computes the weighted field average for one result. Fields that
// are absent or fail to parse are excluded from the denominator rather than
// penalized.
func (e *Engine) aggregate(r palette.Result, term string) (float64, []string) {
	type field struct {
		name   string
		text   string
		weight float64
	}

	urlText := r.Meta[URLMetaKey]
	if urlText == "" {
		urlText = r.Secondary
	}

	fields := []field{{name: "title", text: r.Title, weight: weightTitle}}
	if host := e.hostname(urlText); host != "" {
		fields = append(fields, field{name: "host", text: host, weight: weightHost})
	}
	if r.Secondary != "" {
		fields = append(fields, field{name: "secondary", text: r.Secondary, weight: weightSecondary})
	}

	var sum, weights float64
	var matched []string
	for _, f := range fields {
		s := fuzzyScore(f.text, term)
		sum += s * f.weight
		weights += f.weight
		if s > 0 && term != "" {
			matched = append(matched, f.name)
		}
	}
	if weights == 0 {
		return 0, nil
	}
	return sum / weights, matched
}

// fuzzyScore rates text against term, case-insensitively. Exact beats
// starts-with beats substring; there is no edit-distance fuzziness
// (precision over recall). Terms shorter than shortTermLen fall back to
// per-word matches at a reduced fixed score.
func fuzzyScore(text, term string) float64 {
	if term == "" {
		return scoreExact
	}
	if text == "" {
		return 0
	}

	lowText := strings.ToLower(text)
	lowTerm := strings.ToLower(term)

	switch {
	case lowText == lowTerm:
		return scoreExact
	case strings.HasPrefix(lowText, lowTerm):
		return scoreStartsWith
	}

	if utf8.RuneCountInString(lowTerm) >= shortTermLen {
		if strings.Contains(lowText, lowTerm) {
			return scoreSubstring
		}
		return 0
	}

	// Short terms skip the whole-text substring tier: two-letter needles
	// light up across token boundaries in almost any URL. A match inside a
	// single word token still counts, at a reduced fixed score.
	for _, word := range splitWords(lowText) {
		if strings.Contains(word, lowTerm) {
			return scoreWordMatch
		}
	}
	return 0
}

// splitWords tokenizes on non-alphanumeric boundaries.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// hostname extracts the host from a URL-like field, caching parses.
// Unparseable input yields "" and the field is simply skipped.
func (e *Engine) hostname(raw string) string {
	if raw == "" {
		return ""
	}
	if host, ok := e.hosts.Get(raw); ok {
		return host
	}

	host := ""
	if u, err := url.Parse(raw); err == nil {
		host = u.Hostname()
	}
	e.hosts.Add(raw, host)
	return host
}

// categoryBase returns the band floor for a category. Unknown categories
// rank below every known one.
func categoryBase(c palette.Category) int {
	return categoryOrder[c] * bandSize
}

// metaBoost reads the provider-declared category-only boost, clamped so it
// can never push a result across a band boundary.
func metaBoost(r palette.Result) float64 {
	raw, ok := r.Meta[BoostMetaKey]
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0
	}
	if v > 1 {
		v = 1
	}
	return v * boostCap
}
