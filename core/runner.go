package core

import "context"

// Runner defines the orchestration contract consumed by transports. It
// provides:
//   - Asynchronous execution via Run (streaming events + terminal error channel)
//   - Cooperative cancellation through Cancel
//
// Semantics & Guarantees:
//   - Event Ordering: events are delivered in the order the agent tree emitted them.
//   - Terminal Event: every run that is not cancelled ends with exactly one
//     Final event authored by the orchestrator, either a state summary or a failure.
//   - Channel Lifecycle: the events channel is closed after the run completes
//     (success, failure, or cancellation). The error channel carries at most
//     one infrastructure error (session persistence etc.) then closes.
type Runner interface {
	// Run starts the root agent for the session identified by key. The
	// immediate error covers startup failures (e.g. unknown session).
	Run(ctx context.Context, key SessionKey, userContent Content) (string, <-chan Event, <-chan error, error)

	// Cancel requests termination of an in-flight run. Unknown or finished
	// runs yield an error.
	Cancel(runID string) error
}
