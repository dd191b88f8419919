// Package palette defines the shared data model of the command palette:
// providers, commands, results, and actions. It carries no behavior beyond
// small helpers; the registry, broker, orchestrator, and ranking engine all
// consume these types.
package palette

import "context"

// Activation controls how a command's aliases are matched against input.
type Activation string

const (
	// ActivationImmediate aliases may abut the rest of the query with no
	// separator (e.g. ">settings").
	ActivationImmediate Activation = "immediate"

	// ActivationSeparator aliases require a space between alias and term.
	ActivationSeparator Activation = "separator"
)

// CommandKind distinguishes search commands (return results) from action
// commands (execute immediately once confirmed).
type CommandKind string

const (
	KindSearch CommandKind = "search"
	KindAction CommandKind = "action"
)

// Command is a named, aliasable operation exposed by a provider.
// Commands are created at provider registration time and are immutable for
// the provider's lifetime. Identity is (ProviderID, ID).
type Command struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Aliases     []string    `json:"aliases,omitempty"`
	Activation  Activation  `json:"activation"`
	Kind        CommandKind `json:"kind"`
	Placeholder string      `json:"placeholder,omitempty"`
}

// CommandRef is a Command paired with the provider that owns it. The
// registry flattens registered providers into CommandRefs for the parser
// and orchestrator.
type CommandRef struct {
	ProviderID string  `json:"provider_id"`
	Command    Command `json:"command"`
}

// Category classifies a result and is the primary ranking key.
type Category string

const (
	CategoryTab      Category = "tab"
	CategoryBookmark Category = "bookmark"
	CategoryHistory  Category = "history"
	CategoryCommand  Category = "command"
)

// Action is one operation the user may invoke on a result. At most one
// action per result is primary.
type Action struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Shortcut string `json:"shortcut,omitempty"`
	Primary  bool   `json:"primary"`
}

// Result is a single selectable entry produced by a provider for one search
// turn. Results are never mutated after creation; ranking copies them into
// ScoredResults.
type Result struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Secondary string            `json:"secondary,omitempty"`
	Icon      string            `json:"icon,omitempty"`
	Category  Category          `json:"category"`
	Actions   []Action          `json:"actions,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// PrimaryAction returns the result's primary action, falling back to the
// first action when none is marked primary.
func (r Result) PrimaryAction() (Action, bool) {
	for _, a := range r.Actions {
		if a.Primary {
			return a, true
		}
	}
	if len(r.Actions) > 0 {
		return r.Actions[0], true
	}
	return Action{}, false
}

// Query is the payload of a search request.
type Query struct {
	Term string `json:"term"`
}

// ActionRequest is the payload of an action request.
type ActionRequest struct {
	ActionID string            `json:"action_id"`
	ResultID string            `json:"result_id,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// ActionOutcome describes what happened when an action ran.
type ActionOutcome struct {
	// Dismiss tells the front end to close the palette.
	Dismiss bool `json:"dismiss,omitempty"`
	// Notice is an optional human-readable message to surface inline.
	Notice string `json:"notice,omitempty"`
}

// Provider is the capability contract a data source implements to plug into
// the palette. Any type with these methods can be registered; there is no
// base type to embed.
type Provider interface {
	// ID returns the provider's stable identifier.
	ID() string

	// DisplayName returns the human-readable provider name.
	DisplayName() string

	// Commands returns the provider's command set. The slice must be stable
	// for the provider's registered lifetime.
	Commands() []Command

	// HandleSearch runs the given search command and returns fresh results.
	HandleSearch(ctx context.Context, commandID string, q Query) ([]Result, error)

	// HandleAction executes an action and reports its outcome.
	HandleAction(ctx context.Context, commandID string, req ActionRequest) (ActionOutcome, error)
}

// Initializer is an optional lifecycle hook invoked once at registration.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Destroyer is an optional lifecycle hook invoked once at teardown.
type Destroyer interface {
	Destroy(ctx context.Context) error
}
