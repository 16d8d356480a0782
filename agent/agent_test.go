package agent

import (
	"context"
	"testing"

	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = core.SessionKey{AppName: "app", UserID: "user-1", SessionID: "sess-1"}

func newRunContext(t *testing.T, state map[string]any) (*core.RunContext, chan core.Event) {
	t.Helper()

	events := make(chan core.Event, 128)
	rc := core.NewRunContext(
		context.Background(),
		testKey,
		"run-1",
		core.AgentInfo{Name: "root"},
		core.NewTextContent("user", "go"),
		core.NewState(state),
		events,
		logging.NoOpLogger{},
	)

	return rc, events
}

// collect closes the emit channel and returns everything emitted so far.
func collect(events chan core.Event) []core.Event {
	close(events)

	var out []core.Event
	for ev := range events {
		out = append(out, ev)
	}

	return out
}

func valueUnit(v any) Unit {
	return UnitFunc(func(*core.RunContext) (any, error) { return v, nil })
}

func leaf(name string, unit Unit, output string, requires ...string) *LeafAgent {
	return NewLeafAgent(name, unit, func(o *LeafOptions) {
		o.OutputKey = output
		o.Requires = requires
	})
}

func finalEvents(events []core.Event) []core.Event {
	var out []core.Event

	for _, ev := range events {
		if ev.IsFinal() {
			out = append(out, ev)
		}
	}

	return out
}

func TestWalk_Order(t *testing.T) {
	a := leaf("a", valueUnit("1"), "a_out")
	b := leaf("b", valueUnit("2"), "b_out")
	c := leaf("c", valueUnit("3"), "c_out")
	root := NewSequentialAgent("root", a, MustParallelAgent("fan", b, c))

	var names []string
	var depths []int

	require.NoError(t, Walk(root, func(n Agent, depth int) error {
		names = append(names, n.Name())
		depths = append(depths, depth)
		return nil
	}))

	assert.Equal(t, []string{"root", "a", "fan", "b", "c"}, names)
	assert.Equal(t, []int{0, 1, 1, 2, 2}, depths)
	assert.Nil(t, Children(a))
	assert.Len(t, Children(root), 2)
}

func TestVisitorFuncs_Dispatch(t *testing.T) {
	var visited []string

	v := VisitorFuncs{
		Leaf:       func(l *LeafAgent) error { visited = append(visited, "leaf:"+l.Name()); return nil },
		Sequential: func(s *SequentialAgent) error { visited = append(visited, "seq:"+s.Name()); return nil },
		Parallel:   func(p *ParallelAgent) error { visited = append(visited, "par:"+p.Name()); return nil },
	}

	l := leaf("l", valueUnit("x"), "k")
	require.NoError(t, l.Accept(v))
	require.NoError(t, NewSequentialAgent("s").Accept(v))
	require.NoError(t, MustParallelAgent("p").Accept(v))
	require.NoError(t, l.Accept(VisitorFuncs{}))

	assert.Equal(t, []string{"leaf:l", "seq:s", "par:p"}, visited)
}

func TestBaseAgent_Description(t *testing.T) {
	l := NewLeafAgent("wallet_agent", valueUnit("x"), func(o *LeafOptions) {
		o.Description = "creates a wallet"
	})
	assert.Equal(t, "creates a wallet", l.Description())

	assert.Equal(t, "Agent plain", NewLeafAgent("plain", valueUnit("x")).Description())
}

