// Package tui renders the palette: an input line, a ranked result list, and
// a status row, driven by a search session against the backend.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/palette-dev/palette/internal/orchestrate"
)

// actionTimeout bounds a primary-action round trip to the backend.
const actionTimeout = 5 * time.Second

// chromeRows is the screen real estate outside the result list: input line,
// scope line, status line.
const chromeRows = 3

// turnMsg delivers a finished search turn from the session goroutine.
type turnMsg struct {
	turn orchestrate.TurnResult
}

// actionMsg delivers the outcome of a primary action.
type actionMsg struct {
	outcome actionOutcome
	err     error
}

type actionOutcome struct {
	dismiss bool
	notice  string
}

// Model is the Bubble Tea model for the palette window.
type Model struct {
	input   textinput.Model
	orch    *orchestrate.Orchestrator
	session *orchestrate.Session
	turns   chan orchestrate.TurnResult

	turn      orchestrate.TurnResult
	selection int
	searching bool
	notice    string
	quitting  bool

	width  int
	height int
}

// New builds the palette model on top of an orchestrator. The debounce
// window applies to keystrokes before a search turn fires.
func New(orch *orchestrate.Orchestrator, debounce time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Search tabs, history, bookmarks (try > for commands)"
	ti.Focus()

	turns := make(chan orchestrate.TurnResult, 8)
	session := orchestrate.NewSession(orch, debounce, func(t orchestrate.TurnResult) {
		turns <- t
	})

	return Model{
		input:     ti,
		orch:      orch,
		session:   session,
		turns:     turns,
		selection: -1,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitTurns(m.turns))
}

// waitTurns relays the next session turn into the Bubble Tea loop.
func waitTurns(ch chan orchestrate.TurnResult) tea.Cmd {
	return func() tea.Msg {
		return turnMsg{turn: <-ch}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case turnMsg:
		m.applyTurn(msg.turn)
		return m, waitTurns(m.turns)

	case actionMsg:
		if msg.err != nil {
			m.notice = "Error: " + msg.err.Error()
			return m, nil
		}
		m.notice = msg.outcome.notice
		if msg.outcome.dismiss {
			m.quitting = true
			m.session.Close()
			return m, tea.Quit
		}
		// The action may have changed what the providers would return
		// (a closed tab, a forgotten visit), so rerun the turn.
		m.session.SearchNow(m.input.Value())
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.quitting = true
		m.session.Close()
		return m, tea.Quit

	case tea.KeyEnter:
		return m, m.runPrimary()

	case tea.KeyUp, tea.KeyCtrlP:
		if m.selection > 0 {
			m.selection--
		}
		return m, nil

	case tea.KeyDown, tea.KeyCtrlN:
		if m.selection < len(m.turn.Results)-1 {
			m.selection++
		}
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if v := m.input.Value(); v != before {
		m.searching = true
		m.notice = ""
		m.session.Input(v)
	}
	return m, cmd
}

// applyTurn installs a finished turn and keeps the selection inside the new
// result set.
func (m *Model) applyTurn(turn orchestrate.TurnResult) {
	m.turn = turn
	m.searching = false

	switch {
	case len(turn.Results) == 0:
		m.selection = -1
	case m.selection < 0:
		m.selection = 0
	case m.selection >= len(turn.Results):
		m.selection = len(turn.Results) - 1
	}
}

// runPrimary executes the selected result's primary action off the UI loop.
func (m Model) runPrimary() tea.Cmd {
	if m.selection < 0 || m.selection >= len(m.turn.Results) {
		return nil
	}
	res := m.turn.Results[m.selection].Result
	action, ok := res.PrimaryAction()
	if !ok {
		return nil
	}

	orch, turn := m.orch, m.turn
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		out, err := orch.ExecuteAction(ctx, turn, res.ID, action.ID)
		return actionMsg{
			outcome: actionOutcome{dismiss: out.Dismiss, notice: out.Notice},
			err:     err,
		}
	}
}

// listHeight is how many result rows fit on screen.
func (m Model) listHeight() int {
	h := m.height - chromeRows
	if h < 1 {
		h = 20 // before the first WindowSizeMsg
	}
	return h
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteRune('\n')
	b.WriteString(m.viewScope())
	b.WriteRune('\n')
	b.WriteString(m.viewList())
	b.WriteRune('\n')
	b.WriteString(m.viewStatus())
	return b.String()
}

// viewScope shows which command an alias pinned the search to.
func (m Model) viewScope() string {
	if m.turn.ActiveProvider == "" {
		return dimStyle.Render(" all sources")
	}
	return scopeStyle.Render(" " + m.turn.ActiveProvider + " ")
}

func (m Model) viewList() string {
	if m.turn.Err != nil {
		return errorStyle.Render("Error: " + m.turn.Err.Error())
	}
	if m.searching {
		return dimStyle.Render("Searching...")
	}
	if len(m.turn.Results) == 0 {
		if strings.TrimSpace(m.input.Value()) == "" {
			return dimStyle.Render("Type to search")
		}
		return dimStyle.Render("No matches")
	}

	var b strings.Builder
	max := m.listHeight()
	for i, sr := range m.turn.Results {
		if i >= max {
			break
		}

		title := Clean(sr.Title)
		secondary := Clean(sr.Secondary)
		// badge (3) + marker (2) + padding
		if m.width > 8 {
			budget := m.width - 8
			title = MiddleTruncate(title, budget)
			secondary = MiddleTruncate(secondary, budget)
		}

		line := renderBadge(sr.Category) + " "
		if i == m.selection {
			line += selectedStyle.Render("> " + title)
		} else {
			line += normalStyle.Render("  " + title)
		}
		if secondary != "" {
			line += secondaryStyle.Render("  " + secondary)
		}
		b.WriteString(line)
		if i < len(m.turn.Results)-1 && i < max-1 {
			b.WriteRune('\n')
		}
	}
	return b.String()
}

func (m Model) viewStatus() string {
	if m.notice != "" {
		if strings.HasPrefix(m.notice, "Error:") {
			return errorStyle.Render(m.notice)
		}
		return noticeStyle.Render(m.notice)
	}
	if n := len(m.turn.Results); n > 0 {
		return dimStyle.Render(fmt.Sprintf("%d results · enter to run · esc to close", n))
	}
	return dimStyle.Render("esc to close")
}

// Run starts the palette in the alternate screen and blocks until dismissed.
func Run(orch *orchestrate.Orchestrator, debounce time.Duration) error {
	p := tea.NewProgram(New(orch, debounce), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
