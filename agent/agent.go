package agent

import (
	"fmt"

	"github.com/hupe1980/agentchain/core"
)

// Agent is a node of an orchestration graph. The set of implementations is
// closed: *LeafAgent, *SequentialAgent and *ParallelAgent. Code that needs to
// distinguish them dispatches through Accept with a Visitor.
type Agent interface {
	// Name returns the stage identifier used as event author.
	Name() string

	// Description returns a human readable description of the stage.
	Description() string

	// Run executes the stage against the shared run state. Returned errors
	// are raised faults; failure-as-data is reported on the event stream.
	Run(rc *core.RunContext) error

	// Accept dispatches to the Visitor method matching the concrete variant.
	Accept(v Visitor) error

	sealed()
}

// Visitor is implemented by operations over the closed Agent variant set.
type Visitor interface {
	VisitLeaf(l *LeafAgent) error
	VisitSequential(s *SequentialAgent) error
	VisitParallel(p *ParallelAgent) error
}

// VisitorFuncs adapts plain functions to Visitor. Nil entries are no-ops.
type VisitorFuncs struct {
	Leaf       func(*LeafAgent) error
	Sequential func(*SequentialAgent) error
	Parallel   func(*ParallelAgent) error
}

// VisitLeaf implements Visitor.
func (f VisitorFuncs) VisitLeaf(l *LeafAgent) error {
	if f.Leaf == nil {
		return nil
	}
	return f.Leaf(l)
}

// VisitSequential implements Visitor.
func (f VisitorFuncs) VisitSequential(s *SequentialAgent) error {
	if f.Sequential == nil {
		return nil
	}
	return f.Sequential(s)
}

// VisitParallel implements Visitor.
func (f VisitorFuncs) VisitParallel(p *ParallelAgent) error {
	if f.Parallel == nil {
		return nil
	}
	return f.Parallel(p)
}

// BaseAgent bundles the identity shared by every variant. It is embedded by
// the concrete agents of this package.
type BaseAgent struct {
	name        string
	description string
}

// NewBaseAgent constructs a BaseAgent with generated description.
func NewBaseAgent(name string) BaseAgent {
	return BaseAgent{
		name:        name,
		description: fmt.Sprintf("Agent %s", name),
	}
}

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) {
	if desc != "" {
		b.description = desc
	}
}

// Children returns the direct children of a composite agent, nil for a leaf.
func Children(a Agent) []Agent {
	var children []Agent

	_ = a.Accept(VisitorFuncs{
		Sequential: func(s *SequentialAgent) error {
			children = s.Children()
			return nil
		},
		Parallel: func(p *ParallelAgent) error {
			children = p.Children()
			return nil
		},
	})

	return children
}

// Walk visits a and its descendants depth-first in declaration order. fn
// receives the nesting depth (0 for a). A non-nil error from fn stops the walk.
func Walk(a Agent, fn func(a Agent, depth int) error) error {
	return walk(a, 0, fn)
}

func walk(a Agent, depth int, fn func(Agent, int) error) error {
	if err := fn(a, depth); err != nil {
		return err
	}

	for _, c := range Children(a) {
		if err := walk(c, depth+1, fn); err != nil {
			return err
		}
	}

	return nil
}
