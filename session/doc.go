// Package session houses concrete implementations of core.SessionStore.
// The interface itself (and the Session struct) live in the core package so
// the agent graph never depends on a concrete storage backend.
//
// Backends:
//   - InMemoryStore: process-local map, for tests and single-node servers
//   - RedisStore: state hash, event list and meta hash per session key
//   - SQLStore: database/sql over SQLite or MySQL
//
// Only the wiring layer decides which implementation to instantiate.
package session
