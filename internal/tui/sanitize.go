package tui

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// ansiRE matches ANSI escape sequences so provider text can never smuggle
// terminal control into the list:
//   - CSI sequences (SGR, cursor movement)
//   - OSC sequences terminated by ST or BEL
//   - charset designations and other two-byte escapes
var ansiRE = regexp.MustCompile(`\x1b(?:` +
	`\[[0-9;]*[A-Za-z]` +
	`|` +
	`\].*?(?:\x1b\\|\x07)` +
	`|` +
	`[()][A-B0-2]` +
	`|` +
	`[#()*+\-./][A-Za-z0-9]` +
	`)`)

// Clean makes provider-supplied text safe to render: ANSI escapes stripped
// and invalid UTF-8 replaced with U+FFFD.
func Clean(s string) string {
	s = ansiRE.ReplaceAllString(s, "")
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			b.WriteRune(utf8.RuneError)
			i++
		} else {
			b.WriteRune(r)
			i += size
		}
	}
	return b.String()
}

// MiddleTruncate shortens s to maxWidth display columns with a middle
// ellipsis, keeping both the start and end visible (URLs carry their signal
// at both ends). Width-aware for CJK and emoji.
func MiddleTruncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}

	const ellipsis = "…"
	if maxWidth < 3 {
		return truncHead(s, maxWidth)
	}

	remaining := maxWidth - 1 // ellipsis takes one column
	headWidth := (remaining + 1) / 2
	tailWidth := remaining / 2
	return truncHead(s, headWidth) + ellipsis + truncTail(s, tailWidth)
}

// truncHead returns the longest prefix of s within maxWidth columns.
func truncHead(s string, maxWidth int) string {
	w := 0
	for i, r := range s {
		rw := runewidth.RuneWidth(r)
		if w+rw > maxWidth {
			return s[:i]
		}
		w += rw
	}
	return s
}

// truncTail returns the longest suffix of s within maxWidth columns.
func truncTail(s string, maxWidth int) string {
	runes := []rune(s)
	w := 0
	start := len(runes)
	for i := len(runes) - 1; i >= 0; i-- {
		rw := runewidth.RuneWidth(runes[i])
		if w+rw > maxWidth {
			break
		}
		w += rw
		start = i
	}
	return string(runes[start:])
}
