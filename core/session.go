package core

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"
)

// SessionKey identifies a session by application, user and session id.
type SessionKey struct {
	AppName   string `json:"app_name"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// String renders the key as "app/user/session".
func (k SessionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.AppName, k.UserID, k.SessionID)
}

// Validate reports an error if any component is empty.
func (k SessionKey) Validate() error {
	if k.AppName == "" || k.UserID == "" || k.SessionID == "" {
		return fmt.Errorf("incomplete session key %q", k.String())
	}

	return nil
}

// Session represents a conversational container tracking key/value state
// plus an ordered event history. It is safe for concurrent access.
//
// Contract:
//   - State mutations update the Updated timestamp
//   - GetEvents returns a defensive copy to avoid external mutation
//   - Clone performs deep copies of maps/slices for safe divergence.
type Session struct {
	Key     SessionKey     `json:"key"`
	State   map[string]any `json:"state"`
	Events  []Event        `json:"events"`
	Created time.Time      `json:"created"`
	Updated time.Time      `json:"updated"`
	mu      sync.RWMutex
}

// NewSession creates an empty session for key.
func NewSession(key SessionKey) *Session {
	now := time.Now().UTC()
	return &Session{Key: key, State: map[string]any{}, Events: []Event{}, Created: now, Updated: now}
}

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// SetState sets a key/value pair updating the Updated timestamp.
func (s *Session) SetState(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State[key] = value
	s.Updated = time.Now().UTC()
}

// ApplyStateDelta merges the provided key/value pairs into State.
func (s *Session) ApplyStateDelta(delta map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.State, delta)
	s.Updated = time.Now().UTC()
}

// StateSnapshot returns a shallow copy of the state map.
func (s *Session) StateSnapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.State)
}

// AddEvent appends an event to the history updating Updated timestamp.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.Updated = time.Now().UTC()
}

// GetEvents returns a defensive copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		Key:     s.Key,
		State:   make(map[string]any, len(s.State)),
		Events:  make([]Event, len(s.Events)),
		Created: s.Created,
		Updated: s.Updated,
	}
	maps.Copy(clone.State, s.State)
	copy(clone.Events, s.Events)
	return clone
}

// SessionStore persists sessions and their evolving state / event history.
// Get returns ErrSessionNotFound (possibly wrapped) for unknown keys.
type SessionStore interface {
	Create(ctx context.Context, key SessionKey, initialState map[string]any) (*Session, error)
	Get(ctx context.Context, key SessionKey) (*Session, error)
	AppendEvent(ctx context.Context, key SessionKey, event Event) error
	ApplyDelta(ctx context.Context, key SessionKey, delta map[string]any) error
	Delete(ctx context.Context, key SessionKey) error
}
