package agent

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/hupe1980/agentchain/core"
)

// Unit is the unit of work of a leaf stage. It returns the value to store
// under the leaf's output key. Returning a *core.ToolFailure signals
// failure-as-data; any other error is a fault.
type Unit interface {
	Do(rc *core.RunContext) (any, error)
}

// UnitFunc is a functional adapter for Unit.
type UnitFunc func(rc *core.RunContext) (any, error)

// Do implements Unit.
func (f UnitFunc) Do(rc *core.RunContext) (any, error) { return f(rc) }

// LeafOptions configures a LeafAgent.
type LeafOptions struct {
	// Requires lists the state keys that must be present and non-empty
	// before the unit runs.
	Requires []string

	// OutputKey is the state key the result is written to. Empty means the
	// result is only reported on the event stream.
	OutputKey string

	Description string
}

// LeafAgent runs a single unit of work and writes its result to the state
// exactly once.
type LeafAgent struct {
	BaseAgent
	unit      Unit
	requires  []string
	outputKey string
}

var _ Agent = (*LeafAgent)(nil)

// NewLeafAgent creates a leaf stage around unit.
func NewLeafAgent(name string, unit Unit, optFns ...func(o *LeafOptions)) *LeafAgent {
	opts := LeafOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	l := &LeafAgent{
		BaseAgent: NewBaseAgent(name),
		unit:      unit,
		requires:  slices.Clone(opts.Requires),
		outputKey: opts.OutputKey,
	}
	l.SetDescription(opts.Description)

	return l
}

// Requires returns the declared input keys.
func (l *LeafAgent) Requires() []string { return slices.Clone(l.requires) }

// OutputKey returns the state key written by this stage.
func (l *LeafAgent) OutputKey() string { return l.outputKey }

// Accept implements Agent.
func (l *LeafAgent) Accept(v Visitor) error { return v.VisitLeaf(l) }

func (l *LeafAgent) sealed() {}

// Run implements Agent.
func (l *LeafAgent) Run(rc *core.RunContext) error {
	rc = rc.ForAgent(core.AgentInfo{Name: l.Name(), Type: core.KindLeaf})

	if key := rc.State.Missing(l.requires...); key != "" {
		return &core.PreconditionError{Stage: l.Name(), Key: key}
	}

	start := time.Now()

	rc.LogDebug("stage.start", "stage", l.Name(), "run_id", rc.RunID)

	result, err := l.unit.Do(rc)

	var failure *core.ToolFailure
	if errors.As(err, &failure) {
		diagnostic := failure.Diagnostic()
		l.write(rc, diagnostic)

		rc.LogStage(l.Name(), core.KindLeaf, time.Since(start), failure)

		ev := core.NewErrorEvent(l.Name(), core.CodeToolFailure, diagnostic)
		stampDuration(&ev, start)

		return rc.EmitEvent(ev)
	}

	if err != nil {
		rc.LogStage(l.Name(), core.KindLeaf, time.Since(start), err)
		return fmt.Errorf("stage %s: %w", l.Name(), err)
	}

	l.write(rc, result)

	ev := resultEvent(l.Name(), l.outputKey, result)
	stampDuration(&ev, start)

	rc.LogStage(l.Name(), core.KindLeaf, time.Since(start), nil)

	return rc.EmitEvent(ev)
}

func (l *LeafAgent) write(rc *core.RunContext, v any) {
	if l.outputKey == "" || v == nil {
		return
	}

	rc.SetState(l.outputKey, v)
}

// resultEvent builds the terminal event of a leaf carrying its result.
func resultEvent(author, outputKey string, result any) core.Event {
	var ev core.Event

	switch v := result.(type) {
	case nil:
		ev = core.NewEvent("", author)
	case string:
		ev = core.NewMessageEvent(author, v)
	case map[string]any:
		ev = core.NewDataEvent(author, v)
	default:
		key := outputKey
		if key == "" {
			key = "result"
		}

		ev = core.NewDataEvent(author, map[string]any{key: v})
	}

	ev.Final = true

	return ev
}

func stampDuration(ev *core.Event, start time.Time) {
	if ev.CustomMetadata == nil {
		ev.CustomMetadata = map[string]string{}
	}

	ev.CustomMetadata[MetadataDuration] = strconv.FormatInt(time.Since(start).Milliseconds(), 10)
	ev.CustomMetadata[MetadataKind] = core.KindLeaf
}

// Event metadata keys set on terminal stage events.
const (
	MetadataDuration = "duration_ms"
	MetadataKind     = "stage_kind"
)
