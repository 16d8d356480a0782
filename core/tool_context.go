package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentchain/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// by a leaf stage: read access to the run state, identifiers for correlation,
// logging and direct event emission.
type ToolContext struct {
	runCtx         *RunContext
	functionCallID string

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent RunContext and a
// unique functionCallID.
func NewToolContext(runCtx *RunContext, functionCallID string) *ToolContext {
	return &ToolContext{
		runCtx:         runCtx,
		functionCallID: functionCallID,
		loggerAdapter:  newLoggerAdapter(runCtx.Logger()),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// SessionKey returns the session key of the run.
func (tc *ToolContext) SessionKey() SessionKey { return tc.runCtx.SessionKey }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the name of the calling stage.
func (tc *ToolContext) AgentName() string { return tc.runCtx.Agent.Name }

// GetState reads a key from the run state.
func (tc *ToolContext) GetState(k string) (any, bool) { return tc.runCtx.GetState(k) }

// EmitEvent sends an event on the run's stream.
func (tc *ToolContext) EmitEvent(ev Event) error {
	if tc.runCtx.Emit == nil {
		return fmt.Errorf("emit channel not configured")
	}

	return tc.runCtx.EmitEvent(ev)
}

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if tc.runCtx == nil || tc.functionCallID == "" {
		return fmt.Errorf("invalid ToolContext")
	}

	return nil
}
