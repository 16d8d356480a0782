package testutil

import (
	"context"

	"github.com/hupe1980/agentchain/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder(key).State("k", "v").Events(ev1, ev2).Build()
type SessionBuilder struct {
	key    core.SessionKey
	state  map[string]any
	events []core.Event
}

// NewSessionBuilder creates a new builder for a session with the given key.
func NewSessionBuilder(key core.SessionKey) *SessionBuilder {
	return &SessionBuilder{key: key, state: map[string]any{}}
}

// State sets or overwrites a state key/value pair (chainable).
func (b *SessionBuilder) State(key string, val any) *SessionBuilder {
	b.state[key] = val
	return b
}

// Events appends events to the session history (chainable).
func (b *SessionBuilder) Events(evs ...core.Event) *SessionBuilder {
	b.events = append(b.events, evs...)
	return b
}

// Build returns a *core.Session with pre-populated state and events.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.key)
	s.ApplyStateDelta(b.state)

	for _, ev := range b.events {
		s.AddEvent(ev)
	}

	return s
}

// Seed creates the session in store and appends the configured events.
func (b *SessionBuilder) Seed(ctx context.Context, store core.SessionStore) (*core.Session, error) {
	if _, err := store.Create(ctx, b.key, b.state); err != nil {
		return nil, err
	}

	for _, ev := range b.events {
		if err := store.AppendEvent(ctx, b.key, ev); err != nil {
			return nil, err
		}
	}

	return store.Get(ctx, b.key)
}
