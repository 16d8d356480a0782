package agent

import (
	"errors"
	"sync"
	"testing"

	"github.com/hupe1980/agentchain/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParallelAgent_OverlappingOutputs(t *testing.T) {
	_, err := NewParallelAgent("fan",
		leaf("X", valueUnit("x"), "shared"),
		leaf("Y", valueUnit("y"), "y_out"),
		NewSequentialAgent("Z", leaf("Z1", valueUnit("z"), "shared")),
	)

	var cfg *core.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "fan", cfg.Stage)
	assert.Equal(t, []string{"shared"}, cfg.Keys)
	assert.Contains(t, err.Error(), "shared")
}

func TestNewParallelAgent_SiblingDependency(t *testing.T) {
	_, err := NewParallelAgent("fan",
		leaf("X", valueUnit("x"), "x_out"),
		leaf("Y", valueUnit("y"), "y_out", "x_out"),
	)

	var cfg *core.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, []string{"x_out"}, cfg.Keys)
	assert.Contains(t, cfg.Reason, "sibling X")
}

func TestNewParallelAgent_SameNamedSiblingsSharingKey(t *testing.T) {
	p, err := NewParallelAgent("fan",
		leaf("X", valueUnit("x1"), "shared"),
		leaf("X", valueUnit("x2"), "shared"),
	)

	require.Error(t, err)
	assert.Nil(t, p)

	var cfg *core.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "fan", cfg.Stage)
}

func TestNewParallelAgent_SameNamedSubtreesSharingKey(t *testing.T) {
	err := checkSiblings("fan", []Agent{
		NewSequentialAgent("seq", leaf("A", valueUnit("a"), "shared")),
		NewSequentialAgent("seq", leaf("B", valueUnit("b"), "shared")),
	})

	var cfg *core.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Contains(t, cfg.Reason, "duplicate stage names: seq")
}

func TestNewParallelAgent_DuplicateNames(t *testing.T) {
	tests := []struct {
		name     string
		children []Agent
		dup      string
	}{
		{
			name:     "siblings",
			children: []Agent{leaf("X", valueUnit("x"), "x_out"), leaf("X", valueUnit("y"), "y_out")},
			dup:      "X",
		},
		{
			name: "nested subtrees",
			children: []Agent{
				NewSequentialAgent("left", leaf("step", valueUnit("a"), "a_out")),
				NewSequentialAgent("right", leaf("step", valueUnit("b"), "b_out")),
			},
			dup: "step",
		},
		{
			name:     "child named like parent",
			children: []Agent{leaf("fan", valueUnit("x"), "x_out")},
			dup:      "fan",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParallelAgent("fan", tt.children...)

			var cfg *core.ConfigurationError
			require.ErrorAs(t, err, &cfg)
			assert.Contains(t, cfg.Reason, tt.dup)
		})
	}
}

func TestNewParallelAgent_NestedSiblingDependency(t *testing.T) {
	err := checkSiblings("fan", []Agent{
		leaf("X", valueUnit("x"), "x_out"),
		NewSequentialAgent("Y", leaf("Y1", valueUnit("y"), "y_out", "x_out")),
	})

	var cfg *core.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, []string{"x_out"}, cfg.Keys)
}

func TestMustParallelAgent_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustParallelAgent("fan", leaf("X", valueUnit("x"), "k"), leaf("Y", valueUnit("y"), "k"))
	})
}

func TestParallelAgent_RunsAllChildren(t *testing.T) {
	rc, events := newRunContext(t, map[string]any{"plan_result": "plan"})

	var mu sync.Mutex
	branches := map[string]string{}

	mk := func(name, out string) *LeafAgent {
		return leaf(name, UnitFunc(func(rc *core.RunContext) (any, error) {
			mu.Lock()
			branches[name] = rc.Branch
			mu.Unlock()
			return name + "-done", nil
		}), out, "plan_result")
	}

	p := MustParallelAgent("all_supply_agent",
		mk("X", "x_out"),
		mk("Y", "y_out"),
		mk("Z", "z_out"),
	)

	require.NoError(t, p.Run(rc))

	for _, k := range []string{"x_out", "y_out", "z_out"} {
		assert.True(t, rc.State.Has(k), k)
	}

	assert.Equal(t, "all_supply_agent.X", branches["X"])
	assert.Equal(t, "all_supply_agent.Y", branches["Y"])
	assert.Equal(t, "all_supply_agent.Z", branches["Z"])

	got := collect(events)
	require.Len(t, got, 4)

	last := got[len(got)-1]
	assert.Equal(t, "all_supply_agent", last.Author)
	assert.True(t, last.IsFinal())

	dp := last.Content.Parts[0].(core.DataPart)
	assert.Equal(t, []any{"X", "Y", "Z"}, dp.Data["completed"])
	assert.Empty(t, dp.Data["failed"])

	for _, ev := range got[:3] {
		assert.Equal(t, "all_supply_agent."+ev.Author, ev.Branch)
	}
}

func TestParallelAgent_ChildFaultIsIsolated(t *testing.T) {
	rc, events := newRunContext(t, nil)

	p := MustParallelAgent("fan",
		leaf("ok", valueUnit("fine"), "ok_out"),
		leaf("bad", UnitFunc(func(*core.RunContext) (any, error) { return nil, errors.New("boom") }), "bad_out"),
		leaf("panicky", UnitFunc(func(*core.RunContext) (any, error) { panic("kaboom") }), "panic_out"),
	)

	require.NoError(t, p.Run(rc))

	assert.True(t, rc.State.Has("ok_out"))
	assert.False(t, rc.State.Has("bad_out"))

	got := collect(events)

	failures := map[string]core.Event{}
	for _, ev := range got {
		if ev.IsError() {
			failures[ev.Author] = ev
		}
	}

	require.Contains(t, failures, "bad")
	require.Contains(t, failures, "panicky")
	assert.Equal(t, core.CodeStageFault, failures["bad"].ErrorCode)
	assert.True(t, failures["bad"].IsFinal())
	assert.Contains(t, failures["panicky"].ErrorMessage, "kaboom")

	last := got[len(got)-1]
	dp := last.Content.Parts[0].(core.DataPart)
	assert.Equal(t, []any{"ok"}, dp.Data["completed"])
	assert.Equal(t, []any{"bad", "panicky"}, dp.Data["failed"])
}

func TestParallelAgent_NestedSequences(t *testing.T) {
	rc, _ := newRunContext(t, map[string]any{"plan_result": "p"})

	seq := func(part string) *SequentialAgent {
		return NewSequentialAgent("seq_"+part,
			leaf(part+"_supply", valueUnit(part+" supplied"), part+"_result", "plan_result"),
			leaf(part+"_transport", valueUnit(part+" shipped"), part+"_transport_result", part+"_result"),
			leaf(part+"_trade", valueUnit(part+" traded"), part+"_trade_result", part+"_transport_result"),
		)
	}

	p := MustParallelAgent("all_supply_agent", seq("tire"), seq("battery"), seq("frame"))

	assert.Equal(t, []string{"plan_result"}, RequiredKeys(p))
	require.NoError(t, p.Run(rc))

	for _, part := range []string{"tire", "battery", "frame"} {
		v, _ := rc.GetState(part + "_trade_result")
		assert.Equal(t, part+" traded", v)
	}
}
