// Package runner implements the orchestration layer of agentchain.
//
// A Runner owns one agent graph and executes it per request against a
// session's state:
//
//   - Verifies the root's required keys before any stage runs
//   - Streams every stage event to the caller unchanged, in order
//   - Applies state deltas and appends history to the SessionStore
//   - Closes every run with exactly one terminal event: a summary carrying
//     the final state snapshot, or a failure naming what went wrong
//   - Bounds concurrent runs and supports cancellation by run ID
//
// Metrics and event sinks plug in through the Recorder and Sink interfaces.
package runner
