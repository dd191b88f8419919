// Package parse turns raw palette input into an optional command alias and a
// search term. It has no dependencies beyond the shared data model; alias
// resolution to a provider happens downstream in the orchestrator.
package parse

import (
	"strings"

	"github.com/palette-dev/palette/internal/palette"
)

// maxAliasLen is the upper bound on a separator-parsed alias token. Longer
// first tokens are treated as part of the search term.
const maxAliasLen = 10

// aliasPunct is the restricted punctuation allowed in alias tokens besides
// alphanumerics, '-' and '_'.
const aliasPunct = ">?/#@!:.="

// Parsed is the outcome of parsing one input state.
type Parsed struct {
	// Alias is the extracted alias in the provider's canonical casing when it
	// resolves to a known command, otherwise the user's token verbatim.
	// Empty when no alias was extracted.
	Alias string

	// Term is the search term with interior whitespace preserved.
	Term string
}

// Parse splits raw input into {alias?, term}. Immediate aliases are checked
// first (longest prefix wins); separator parsing applies otherwise. An alias
// token that fails the length or character-class rule is not an error: the
// whole trimmed input becomes the term.
func Parse(raw string, known []palette.CommandRef) Parsed {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Parsed{}
	}

	if alias, rest, ok := matchImmediate(trimmed, known); ok {
		return Parsed{Alias: alias, Term: strings.TrimSpace(rest)}
	}

	idx := strings.IndexByte(trimmed, ' ')
	if idx < 0 {
		return Parsed{Term: trimmed}
	}

	token := trimmed[:idx]
	if !validAliasToken(token) {
		return Parsed{Term: trimmed}
	}

	alias := token
	if _, canonical, ok := Resolve(token, known); ok {
		alias = canonical
	}
	return Parsed{Alias: alias, Term: strings.TrimSpace(trimmed[idx+1:])}
}

// matchImmediate checks commands with immediate activation for a
// case-insensitive prefix match. When several immediate aliases match, the
// longest one wins regardless of registration order.
func matchImmediate(input string, known []palette.CommandRef) (alias, rest string, ok bool) {
	lower := strings.ToLower(input)
	best := ""
	for _, ref := range known {
		if ref.Command.Activation != palette.ActivationImmediate {
			continue
		}
		for _, a := range ref.Command.Aliases {
			if a == "" || len(a) > len(lower) {
				continue
			}
			if strings.HasPrefix(lower, strings.ToLower(a)) && len(a) > len(best) {
				best = a
			}
		}
	}
	if best == "" {
		return "", "", false
	}
	return best, input[len(best):], true
}

// Resolve looks up an alias case-insensitively across all known commands and
// returns the matching command plus the alias in its canonical casing.
func Resolve(alias string, known []palette.CommandRef) (palette.CommandRef, string, bool) {
	lower := strings.ToLower(alias)
	for _, ref := range known {
		for _, a := range ref.Command.Aliases {
			if strings.ToLower(a) == lower {
				return ref, a, true
			}
		}
	}
	return palette.CommandRef{}, "", false
}

// validAliasToken reports whether token may be treated as an alias candidate:
// at most maxAliasLen characters, drawn from alphanumerics, '-', '_', and a
// small punctuation set.
func validAliasToken(token string) bool {
	if token == "" || len(token) > maxAliasLen {
		return false
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		case strings.ContainsRune(aliasPunct, r):
		default:
			return false
		}
	}
	return true
}
