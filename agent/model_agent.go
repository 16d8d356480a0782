package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/internal/util"
	"github.com/hupe1980/agentchain/model"
)

// ModelAgentOptions configures a model-backed leaf.
type ModelAgentOptions struct {
	Instruction     Instruction
	EnableStreaming bool
	Timeout         time.Duration
	Requires        []string
	OutputKey       string
	Description     string
}

// ModelUnit performs a templated completion: the instruction is rendered
// against the run state and sent with the user content to the model. The
// completion text is the unit result.
type ModelUnit struct {
	llm             model.Model
	instruction     Instruction
	enableStreaming bool
	timeout         time.Duration
}

// NewModelUnit creates a ModelUnit.
func NewModelUnit(llm model.Model, instruction Instruction, enableStreaming bool, timeout time.Duration) *ModelUnit {
	return &ModelUnit{
		llm:             llm,
		instruction:     instruction,
		enableStreaming: enableStreaming,
		timeout:         timeout,
	}
}

// NewModelAgent creates a leaf stage driven by llm.
//
// Example:
//
//	plan := agent.NewModelAgent("plan_agent", llm, func(o *agent.ModelAgentOptions) {
//		o.Instruction = agent.NewInstructionFromText("Plan the parts for: {request}")
//		o.OutputKey = "plan_result"
//	})
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *LeafAgent {
	opts := ModelAgentOptions{
		Timeout: 60 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	unit := NewModelUnit(llm, opts.Instruction, opts.EnableStreaming, opts.Timeout)

	return NewLeafAgent(name, unit, func(o *LeafOptions) {
		o.Requires = opts.Requires
		o.OutputKey = opts.OutputKey
		o.Description = opts.Description
	})
}

// Do implements Unit.
func (u *ModelUnit) Do(rc *core.RunContext) (any, error) {
	raw, err := u.instruction.Resolve(rc)
	if err != nil {
		return nil, fmt.Errorf("resolve instruction: %w", err)
	}

	instructions, err := util.RenderTemplate(raw, rc.State.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("render instruction: %w", err)
	}

	var contents []core.Content
	if len(rc.UserContent.Parts) > 0 {
		contents = append(contents, rc.UserContent)
	}

	ctx := rc.Context
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	req := model.Request{
		Instructions: instructions,
		Contents:     contents,
		Stream:       u.enableStreaming,
	}

	var onPartial func(model.Response) error
	if u.enableStreaming {
		onPartial = func(resp model.Response) error {
			ev := core.NewMessageEvent(rc.Agent.Name, resp.Content.Text())
			ev.Partial = true
			return rc.EmitEvent(ev)
		}
	}

	text, err := model.Collect(ctx, u.llm, req, onPartial)
	if err != nil {
		if rc.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = &core.StageTimeoutError{Stage: rc.Agent.Name, Timeout: u.timeout}
		}

		return nil, fmt.Errorf("model %s: %w", u.llm.Info().Name, err)
	}

	return strings.TrimSpace(text), nil
}
