package session

import (
	"context"
	"sync"

	"github.com/hupe1980/agentchain/core"
)

// InMemoryStore is a volatile SessionStore implementation storing sessions in
// a process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Each returned session is cloned to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[core.SessionKey]*core.Session
}

var _ core.SessionStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[core.SessionKey]*core.Session)}
}

// Create stores a new session seeded with initialState.
func (s *InMemoryStore) Create(_ context.Context, key core.SessionKey, initialState map[string]any) (*core.Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[key]; ok {
		return nil, exists(key)
	}

	sess := core.NewSession(key)
	sess.ApplyStateDelta(initialState)
	s.sessions[key] = sess

	return sess.Clone(), nil
}

// Get returns a clone of the session stored under key.
func (s *InMemoryStore) Get(_ context.Context, key core.SessionKey) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, notFound(key)
	}

	return sess.Clone(), nil
}

// AppendEvent adds an event to the session history.
func (s *InMemoryStore) AppendEvent(_ context.Context, key core.SessionKey, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return notFound(key)
	}

	sess.AddEvent(ev)

	return nil
}

// ApplyDelta merges a key/value delta into the session state.
func (s *InMemoryStore) ApplyDelta(_ context.Context, key core.SessionKey, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return notFound(key)
	}

	sess.ApplyStateDelta(delta)

	return nil
}

// Delete removes the session.
func (s *InMemoryStore) Delete(_ context.Context, key core.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[key]; !ok {
		return notFound(key)
	}

	delete(s.sessions, key)

	return nil
}

// Len returns the number of stored sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
