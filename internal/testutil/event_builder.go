package testutil

import (
	"maps"

	"github.com/hupe1980/agentchain/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder().Author("wallet_agent").Run("run-1").Text("did:bid:abc").Final().Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	author       string
	invocationID string
	id           string
	branch       string
	role         string
	parts        []core.Part
	partial      bool
	final        bool
	errorCode    string
	errorMessage string
	stateDelta   map[string]any
	metadata     map[string]string
}

// NewEventBuilder creates a builder with default author "agent".
func NewEventBuilder() *EventBuilder { return &EventBuilder{author: "agent"} }

// Author sets the author name for the event (chainable).
func (b *EventBuilder) Author(a string) *EventBuilder { b.author = a; return b }

// Run sets the run ID associated with the event (chainable).
func (b *EventBuilder) Run(id string) *EventBuilder { b.invocationID = id; return b }

// ID overrides the auto-generated event ID (chainable).
func (b *EventBuilder) ID(id string) *EventBuilder { b.id = id; return b }

// Branch sets the branch label of a parallel sub-tree (chainable).
func (b *EventBuilder) Branch(br string) *EventBuilder { b.branch = br; return b }

// Partial marks the event as a streaming fragment (chainable).
func (b *EventBuilder) Partial() *EventBuilder { b.partial = true; return b }

// Final marks the event as the last one of its stage (chainable).
func (b *EventBuilder) Final() *EventBuilder { b.final = true; return b }

// UserText appends a user role text part (chainable).
func (b *EventBuilder) UserText(t string) *EventBuilder {
	b.role = "user"
	b.parts = append(b.parts, core.TextPart{Text: t})
	return b
}

// Text appends an assistant text part (chainable).
func (b *EventBuilder) Text(t string) *EventBuilder {
	b.parts = append(b.parts, core.TextPart{Text: t})
	return b
}

// Data appends a structured data part (chainable).
func (b *EventBuilder) Data(d map[string]any) *EventBuilder {
	b.parts = append(b.parts, core.DataPart{Data: d})
	return b
}

// Failure turns the event into a terminal failure event (chainable).
func (b *EventBuilder) Failure(code, message string) *EventBuilder {
	b.errorCode = code
	b.errorMessage = message
	b.final = true
	b.parts = append(b.parts, core.TextPart{Text: message})
	return b
}

// Delta records a state write carried by the event (chainable).
func (b *EventBuilder) Delta(key string, val any) *EventBuilder {
	if b.stateDelta == nil {
		b.stateDelta = map[string]any{}
	}
	b.stateDelta[key] = val
	return b
}

// Meta sets a custom metadata entry (chainable).
func (b *EventBuilder) Meta(key, val string) *EventBuilder {
	if b.metadata == nil {
		b.metadata = map[string]string{}
	}
	b.metadata[key] = val
	return b
}

// Build constructs the core.Event value.
func (b *EventBuilder) Build() core.Event {
	ev := core.NewEvent(b.invocationID, b.author)
	if b.id != "" {
		ev.ID = b.id
	}

	ev.Branch = b.branch
	ev.Partial = b.partial
	ev.Final = b.final
	ev.ErrorCode = b.errorCode
	ev.ErrorMessage = b.errorMessage
	ev.Actions.StateDelta = maps.Clone(b.stateDelta)
	ev.CustomMetadata = maps.Clone(b.metadata)

	if len(b.parts) > 0 {
		role := b.role
		if role == "" {
			role = "assistant"
		}
		ev.Content = &core.Content{Role: role, Parts: append([]core.Part(nil), b.parts...)}
	}

	return ev
}
