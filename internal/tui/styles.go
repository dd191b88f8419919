package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/palette-dev/palette/internal/palette"
)

var (
	selectedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	normalStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	secondaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	scopeStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	badgeStyles = map[palette.Category]lipgloss.Style{
		palette.CategoryTab:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		palette.CategoryBookmark: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		palette.CategoryHistory:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		palette.CategoryCommand:  lipgloss.NewStyle().Foreground(lipgloss.Color("135")),
	}
)

// badgeLabels are the fixed-width category tags in the result list.
var badgeLabels = map[palette.Category]string{
	palette.CategoryTab:      "tab",
	palette.CategoryBookmark: " bm",
	palette.CategoryHistory:  "his",
	palette.CategoryCommand:  "cmd",
}

// init honors NO_COLOR and dumb terminals before any style renders.
func init() {
	if termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func renderBadge(c palette.Category) string {
	label, ok := badgeLabels[c]
	if !ok {
		label = "  ?"
	}
	if style, ok := badgeStyles[c]; ok {
		return style.Render(label)
	}
	return dimStyle.Render(label)
}
