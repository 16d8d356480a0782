package core

import (
	"context"
	"maps"

	"github.com/hupe1980/agentchain/logging"
)

// RunContext carries the per-run execution scope passed to every stage. It
// aggregates:
//   - The ambient cancellation Context
//   - Identifiers (session key, run id, current stage)
//   - Input user Content
//   - The shared State of the run
//   - The emission channel owned by the runner
//   - Branch label for concurrent sub-trees
//
// SetState writes through to the shared State immediately (so later stages
// observe it) and stages the pair in StateDelta until the next EmitEvent
// attaches it to an event for persistence. Child contexts share State and the
// emit channel but own a fresh delta buffer.
type RunContext struct {
	Context     context.Context
	SessionKey  SessionKey
	RunID       string
	Agent       AgentInfo
	UserContent Content
	State       *State
	Emit        chan<- Event
	StateDelta  map[string]any
	Branch      string

	*loggerAdapter
}

// NewRunContext constructs a RunContext with an empty state delta.
func NewRunContext(
	ctx context.Context,
	key SessionKey,
	runID string,
	agent AgentInfo,
	userContent Content,
	state *State,
	emit chan<- Event,
	logger logging.Logger,
) *RunContext {
	if state == nil {
		state = NewState(nil)
	}

	return &RunContext{
		Context:       ctx,
		SessionKey:    key,
		RunID:         runID,
		Agent:         agent,
		UserContent:   userContent,
		State:         state,
		Emit:          emit,
		StateDelta:    map[string]any{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// GetState reads from the shared run state.
func (rc *RunContext) GetState(k string) (any, bool) { return rc.State.Get(k) }

// SetState writes through to the shared run state and stages the pair for
// the next emitted event.
func (rc *RunContext) SetState(k string, v any) {
	rc.State.Set(k, v)
	rc.StateDelta[k] = v
}

// ForAgent returns a child context describing the stage about to run.
func (rc *RunContext) ForAgent(info AgentInfo) *RunContext {
	c := rc.NewChildContext(rc.Branch)
	c.Agent = info

	return c
}

// WithBranch returns a child context with the Branch label set.
func (rc *RunContext) WithBranch(b string) *RunContext { return rc.NewChildContext(b) }

// NewChildContext derives a context for a nested execution path. State and
// the emit channel are shared; the delta buffer is fresh.
func (rc *RunContext) NewChildContext(branch string) *RunContext {
	return &RunContext{
		Context:       rc.Context,
		SessionKey:    rc.SessionKey,
		RunID:         rc.RunID,
		Agent:         rc.Agent,
		UserContent:   rc.UserContent,
		State:         rc.State,
		Emit:          rc.Emit,
		StateDelta:    map[string]any{},
		Branch:        branch,
		loggerAdapter: rc.loggerAdapter,
	}
}

// EmitEvent stamps run identifiers, merges the pending StateDelta into the
// event and sends it. It blocks until the runner accepts the event or the
// context is cancelled.
func (rc *RunContext) EmitEvent(ev Event) error {
	if ev.InvocationID == "" {
		ev.InvocationID = rc.RunID
	}

	if ev.Branch == "" {
		ev.Branch = rc.Branch
	}

	if len(rc.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = maps.Clone(rc.StateDelta)
		} else {
			maps.Copy(ev.Actions.StateDelta, rc.StateDelta)
		}
	}

	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
	}

	rc.StateDelta = map[string]any{}

	return nil
}
