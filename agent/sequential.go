package agent

import (
	"fmt"

	"github.com/hupe1980/agentchain/core"
)

// SequentialAgent runs its children strictly in order against the shared run
// state. Each child's output becomes available to the children after it.
//
// Before every child the keys it requires are checked. A key missing before
// the first child is a *core.PreconditionError; a key missing later means the
// previous child broke the chain and yields a *core.ChainBrokenError. Either
// way no further child starts.
type SequentialAgent struct {
	BaseAgent
	children []Agent
	requires [][]string
}

var _ Agent = (*SequentialAgent)(nil)

// NewSequentialAgent creates a new sequential execution coordinator.
func NewSequentialAgent(name string, children ...Agent) *SequentialAgent {
	requires := make([][]string, len(children))
	for i, c := range children {
		requires[i] = RequiredKeys(c)
	}

	return &SequentialAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
		requires:  requires,
	}
}

// Children returns a copy of the child list.
func (s *SequentialAgent) Children() []Agent { return append([]Agent(nil), s.children...) }

// Accept implements Agent.
func (s *SequentialAgent) Accept(v Visitor) error { return v.VisitSequential(s) }

func (s *SequentialAgent) sealed() {}

// Run implements Agent.
func (s *SequentialAgent) Run(rc *core.RunContext) error {
	rc = rc.ForAgent(core.AgentInfo{Name: s.Name(), Type: core.KindSequential})

	for i, child := range s.children {
		if err := rc.Err(); err != nil {
			return err
		}

		if key := rc.State.Missing(s.requires[i]...); key != "" {
			if i == 0 {
				return &core.PreconditionError{Stage: child.Name(), Key: key}
			}

			rc.LogWarn("stage.chain_broken", "stage", s.Name(), "after", s.children[i-1].Name(), "next", child.Name(), "key", key)

			return &core.ChainBrokenError{Stage: s.Name(), After: s.children[i-1].Name(), Next: child.Name(), Key: key}
		}

		if err := child.Run(rc); err != nil {
			return fmt.Errorf("sequential stage %s failed at %s: %w", s.Name(), child.Name(), err)
		}
	}

	return nil
}
