// Package broker carries palette requests and replies between the front end
// and the backend over a transport endpoint. Every message is a single
// Envelope; requests are correlated with their replies by envelope id, so the
// initiating side never blocks the channel while a provider works.
package broker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Origin names the side of the boundary an envelope was minted on.
type Origin string

const (
	OriginUI      Origin = "ui"
	OriginBackend Origin = "backend"
)

// Kind selects the operation a request envelope asks for.
type Kind string

const (
	// KindSearch runs one provider search command.
	KindSearch Kind = "search"

	// KindAction executes one provider action.
	KindAction Kind = "action"

	// KindCommands fetches the registered command catalog.
	KindCommands Kind = "commands"
)

// Body is the request half of an envelope: which provider, which command,
// and an operation-specific payload (palette.Query for searches,
// palette.ActionRequest for actions, empty for catalog fetches).
type Body struct {
	ProviderID string          `json:"provider_id,omitempty"`
	CommandID  string          `json:"command_id,omitempty"`
	Kind       Kind            `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Outcome is the reply half: a success flag with data, or a failure with a
// human-readable error. Failures travel as data, not as transport errors.
type Outcome struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Failure builds an unsuccessful outcome.
func Failure(format string, args ...any) Outcome {
	return Outcome{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Success builds a successful outcome, marshaling v as the data payload.
func Success(v any) (Outcome, error) {
	if v == nil {
		return Outcome{Success: true}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Outcome{}, fmt.Errorf("broker: marshal outcome data: %w", err)
	}
	return Outcome{Success: true, Data: data}, nil
}

// Envelope is one wire message. A request has Reply=false and a Body; its
// reply reuses the same ID with Reply=true and an Outcome.
type Envelope struct {
	ID        uuid.UUID `json:"id"`
	Origin    Origin    `json:"origin"`
	Timestamp int64     `json:"ts"` // unix milliseconds
	Reply     bool      `json:"reply,omitempty"`
	Body      Body      `json:"body,omitempty"`
	Outcome   *Outcome  `json:"outcome,omitempty"`
}

// NewRequest mints a request envelope with a fresh id.
func NewRequest(origin Origin, body Body) Envelope {
	return Envelope{
		ID:        uuid.New(),
		Origin:    origin,
		Timestamp: time.Now().UnixMilli(),
		Body:      body,
	}
}

// ReplyTo mints the reply envelope for a request.
func (e Envelope) ReplyTo(origin Origin, out Outcome) Envelope {
	return Envelope{
		ID:        e.ID,
		Origin:    origin,
		Timestamp: time.Now().UnixMilli(),
		Reply:     true,
		Outcome:   &out,
	}
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	frame, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("broker: encode envelope: %w", err)
	}
	return frame, nil
}

// Decode parses a wire frame into an envelope.
func Decode(frame []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(frame, &e); err != nil {
		return Envelope{}, fmt.Errorf("broker: decode envelope: %w", err)
	}
	if e.ID == uuid.Nil {
		return Envelope{}, fmt.Errorf("broker: envelope without id")
	}
	return e, nil
}
