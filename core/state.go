package core

import (
	"maps"
	"reflect"
	"slices"
	"strings"
	"sync"
)

// State is the keyed value bag shared by every stage of one run. Writes are
// last-write-wins and atomic per key; there is no cross-key transaction and
// no delete.
//
// A State is created by the runner from the session snapshot and handed to
// the agent tree by reference through the RunContext.
type State struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewState returns a State seeded with a copy of initial (may be nil).
func NewState(initial map[string]any) *State {
	values := make(map[string]any, len(initial))
	maps.Copy(values, initial)

	return &State{values: values}
}

// Get returns the stored value and whether the key exists.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]

	return v, ok
}

// Set stores value under key, replacing any previous value.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
}

// Has reports whether key is present with a non-empty value (see IsEmpty).
func (s *State) Has(key string) bool {
	v, ok := s.Get(key)
	return ok && !IsEmpty(v)
}

// Missing returns the first key in keys that Has rejects, or "" if all are present.
func (s *State) Missing(keys ...string) string {
	for _, k := range keys {
		if !s.Has(k) {
			return k
		}
	}

	return ""
}

// Snapshot returns a shallow copy of all key/value pairs.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.values)
}

// Keys returns the stored keys in sorted order.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.values))
}

// Len returns the number of stored keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.values)
}

// IsEmpty reports whether v counts as "absent" for precondition checks: nil,
// a blank string, or a zero-length slice, map or array.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}

	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
