// Package core provides the foundational domain types and contracts of
// agentchain:
//
//   - State (the key/value bag shared by every stage of one run)
//   - Events (immutable progress records forming an ordered stream)
//   - Sessions keyed by application, user and session id, plus the
//     SessionStore contract
//   - RunContext / ToolContext (scoped execution handles)
//   - The error taxonomy (precondition, chain broken, configuration,
//     tool failure) and its mapping to event error codes
//
// Concrete agents, persistence backends and the orchestrator live in their
// own packages and depend on core, never the other way round.
package core
