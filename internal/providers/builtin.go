package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/shlex"
	"golang.org/x/sys/execabs"

	"github.com/palette-dev/palette/internal/config"
	"github.com/palette-dev/palette/internal/palette"
)

// Builtin serves the command mode behind the immediate ">" alias: built-in
// palette commands plus user-defined commands from the config file.
type Builtin struct {
	commands []config.CustomCommand

	// runCommand is swappable for tests; the default launches the command
	// line detached via execabs.
	runCommand func(argv []string) error
}

var _ palette.Provider = (*Builtin)(nil)

// NewBuiltin creates the builtin provider with the given custom commands.
func NewBuiltin(commands []config.CustomCommand) *Builtin {
	return &Builtin{
		commands:   commands,
		runCommand: launchDetached,
	}
}

func (b *Builtin) ID() string          { return "builtin" }
func (b *Builtin) DisplayName() string { return "Commands" }

func (b *Builtin) Commands() []palette.Command {
	return []palette.Command{{
		ID:          "search",
		Name:        "Run a command",
		Description: "Search built-in and user-defined commands",
		Aliases:     []string{">"},
		Activation:  palette.ActivationImmediate,
		Kind:        palette.KindSearch,
		Placeholder: "Type a command name",
	}}
}

func (b *Builtin) HandleSearch(ctx context.Context, commandID string, q palette.Query) ([]palette.Result, error) {
	if commandID != "search" {
		return nil, fmt.Errorf("builtin: unknown command %s", commandID)
	}

	term := strings.ToLower(strings.TrimSpace(q.Term))

	var results []palette.Result
	for _, c := range b.commands {
		if term != "" &&
			!strings.Contains(strings.ToLower(c.Name), term) &&
			!strings.Contains(strings.ToLower(c.Alias), term) {
			continue
		}
		results = append(results, palette.Result{
			ID:        "builtin/" + c.Alias,
			Title:     c.Name,
			Secondary: c.Exec,
			Icon:      "terminal",
			Category:  palette.CategoryCommand,
			Actions: []palette.Action{
				{ID: "run", Label: "Run", Shortcut: "enter", Primary: true},
			},
			Meta: map[string]string{"exec": c.Exec},
		})
	}
	return results, nil
}

func (b *Builtin) HandleAction(ctx context.Context, commandID string, req palette.ActionRequest) (palette.ActionOutcome, error) {
	if commandID != "search" {
		return palette.ActionOutcome{}, fmt.Errorf("builtin: unknown command %s", commandID)
	}
	if req.ActionID != "run" {
		return palette.ActionOutcome{}, fmt.Errorf("builtin: unknown action %s", req.ActionID)
	}

	line := req.Meta["exec"]
	if line == "" {
		if c, ok := b.lookup(strings.TrimPrefix(req.ResultID, "builtin/")); ok {
			line = c.Exec
		}
	}
	if line == "" {
		return palette.ActionOutcome{}, fmt.Errorf("builtin: result %s has no command line", req.ResultID)
	}

	argv, err := shlex.Split(line)
	if err != nil {
		return palette.ActionOutcome{}, fmt.Errorf("builtin: parse command line: %w", err)
	}
	if len(argv) == 0 {
		return palette.ActionOutcome{}, fmt.Errorf("builtin: empty command line")
	}

	if err := b.runCommand(argv); err != nil {
		return palette.ActionOutcome{}, fmt.Errorf("builtin: launch %s: %w", argv[0], err)
	}
	return palette.ActionOutcome{
		Dismiss: true,
		Notice:  "Launched " + argv[0],
	}, nil
}

func (b *Builtin) lookup(alias string) (config.CustomCommand, bool) {
	for _, c := range b.commands {
		if c.Alias == alias {
			return c, true
		}
	}
	return config.CustomCommand{}, false
}

// launchDetached starts the command without waiting for it; the palette is
// a launcher, not a supervisor. execabs refuses relative-path lookups.
func launchDetached(argv []string) error {
	cmd := execabs.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait() // reap to avoid zombies
	return nil
}
