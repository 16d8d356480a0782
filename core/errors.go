package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error codes attached to failure events (Event.ErrorCode).
const (
	CodePreconditionFailed = "PRECONDITION_FAILED"
	CodeChainBroken        = "CHAIN_BROKEN"
	CodeToolFailure        = "TOOL_FAILURE"
	CodeStageFault         = "STAGE_FAULT"
	CodeCancelled          = "CANCELLED"
	CodeInternal           = "INTERNAL"
)

// ErrSessionNotFound is returned by SessionStore implementations when no
// session exists for a key.
var ErrSessionNotFound = errors.New("session not found")

// PreconditionError reports that a stage's required input key was absent or
// empty at the moment the stage would have started.
type PreconditionError struct {
	Stage string
	Key   string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("stage %s: required key %q is missing", e.Stage, e.Key)
}

// ChainBrokenError reports that a sequential stage could not continue because
// an earlier child did not leave the key its successor requires.
type ChainBrokenError struct {
	Stage string // the sequential stage
	After string // the child that completed last
	Next  string // the child that could not start
	Key   string // the stalled key
}

func (e *ChainBrokenError) Error() string {
	return fmt.Sprintf("stage %s: chain broken after %s, %s requires key %q", e.Stage, e.After, e.Next, e.Key)
}

// ConfigurationError reports an invalid agent graph. It is raised while the
// graph is constructed and never at run time.
type ConfigurationError struct {
	Stage  string
	Reason string
	Keys   []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Keys) == 0 {
		return fmt.Sprintf("invalid configuration for stage %s: %s", e.Stage, e.Reason)
	}

	return fmt.Sprintf("invalid configuration for stage %s: %s (%s)", e.Stage, e.Reason, strings.Join(e.Keys, ", "))
}

// StageTimeoutError reports that a stage exceeded its own time limit while the
// run itself was still live.
type StageTimeoutError struct {
	Stage   string
	Timeout time.Duration
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("stage %s: timed out after %s", e.Stage, e.Timeout)
}

func (e *StageTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// ToolFailure is the failure-as-data signal of an external call. Leaf agents
// convert it into a diagnostic value written under their output key instead
// of propagating it as a fault.
//
// StatusCode is set for non-2xx HTTP results; Cause is set for transport
// failures where no response was received.
type ToolFailure struct {
	Tool       string
	StatusCode int
	Body       string
	Cause      error
}

func (e *ToolFailure) Error() string { return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Diagnostic()) }

func (e *ToolFailure) Unwrap() error { return e.Cause }

// Diagnostic renders the human-readable value stored under the output key.
func (e *ToolFailure) Diagnostic() string {
	if e.StatusCode != 0 {
		body := strings.TrimSpace(e.Body)
		if body == "" {
			return fmt.Sprintf("request failed with status code %d", e.StatusCode)
		}

		return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, body)
	}

	if e.Cause != nil {
		return fmt.Sprintf("network request failed: %v", e.Cause)
	}

	return "network request failed"
}

// ErrorCode maps an error onto the event error code taxonomy.
func ErrorCode(err error) string {
	var (
		pre   *PreconditionError
		chain *ChainBrokenError
		tf    *ToolFailure
		to    *StageTimeoutError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &chain):
		return CodeChainBroken
	case errors.As(err, &pre):
		return CodePreconditionFailed
	case errors.As(err, &tf):
		return CodeToolFailure
	case errors.As(err, &to):
		return CodeStageFault
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	default:
		return CodeStageFault
	}
}
