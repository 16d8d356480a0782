package agent

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/internal/util"
	"github.com/hupe1980/agentchain/tool"
)

// ToolAgentOptions configures a tool-backed leaf.
type ToolAgentOptions struct {
	// Args holds argument templates. String values are rendered against the
	// run state, nested maps and slices recursively, other values pass as is.
	Args        map[string]any
	Requires    []string
	OutputKey   string
	Description string
}

// ToolUnit invokes a tool with templated arguments and reports the call and
// its response on the event stream.
type ToolUnit struct {
	tool tool.Tool
	args map[string]any
}

// NewToolUnit creates a ToolUnit.
func NewToolUnit(t tool.Tool, args map[string]any) *ToolUnit {
	return &ToolUnit{tool: t, args: args}
}

// NewToolAgent creates a leaf stage that calls t.
func NewToolAgent(name string, t tool.Tool, optFns ...func(o *ToolAgentOptions)) *LeafAgent {
	opts := ToolAgentOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return NewLeafAgent(name, NewToolUnit(t, opts.Args), func(o *LeafOptions) {
		o.Requires = opts.Requires
		o.OutputKey = opts.OutputKey
		o.Description = opts.Description
	})
}

// Do implements Unit.
func (u *ToolUnit) Do(rc *core.RunContext) (any, error) {
	rendered, err := renderValue(u.args, rc.State.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("render arguments for %s: %w", u.tool.Name(), err)
	}

	args, _ := rendered.(map[string]any)

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal arguments for %s: %w", u.tool.Name(), err)
	}

	callID := core.NewID()

	if err := rc.EmitEvent(core.NewFunctionCallEvent(rc.Agent.Name, callID, u.tool.Name(), string(argsJSON))); err != nil {
		return nil, err
	}

	result, callErr := u.tool.Call(core.NewToolContext(rc, callID), args)

	if err := rc.EmitEvent(core.NewFunctionResponseEvent(rc.Agent.Name, callID, u.tool.Name(), result, callErr)); err != nil {
		return nil, err
	}

	return result, callErr
}

func renderValue(v any, state map[string]any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return util.RenderTemplate(x, state)
	case map[string]any:
		out := make(map[string]any, len(x))

		for k, item := range x {
			r, err := renderValue(item, state)
			if err != nil {
				return nil, err
			}

			out[k] = r
		}

		return out, nil
	case []any:
		out := make([]any, len(x))

		for i, item := range x {
			r, err := renderValue(item, state)
			if err != nil {
				return nil, err
			}

			out[i] = r
		}

		return out, nil
	default:
		return v, nil
	}
}
