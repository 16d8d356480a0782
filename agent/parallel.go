package agent

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentchain/core"
)

// ParallelAgent runs its children concurrently against the same run state.
//
// Children must write disjoint keys and must not depend on each other; both
// conditions are checked by NewParallelAgent. Each child runs in its own
// goroutine with a branch-labelled context ("Parent.Child"). A child fault,
// including a panic, is reported as a terminal failure event authored by that
// child and does not stop its siblings. Once all children finished the stage
// emits its own terminal event listing completed and failed children.
type ParallelAgent struct {
	BaseAgent
	children []Agent
}

var _ Agent = (*ParallelAgent)(nil)

// NewParallelAgent creates a parallel stage. It returns a
// *core.ConfigurationError when a stage name repeats within the subtree, when
// two children declare overlapping output keys or when a child requires a key
// produced by a sibling.
func NewParallelAgent(name string, children ...Agent) (*ParallelAgent, error) {
	if err := checkSiblings(name, children); err != nil {
		return nil, err
	}

	return &ParallelAgent{
		BaseAgent: NewBaseAgent(name),
		children:  children,
	}, nil
}

// MustParallelAgent is like NewParallelAgent but panics on error. It is
// intended for statically known graphs.
func MustParallelAgent(name string, children ...Agent) *ParallelAgent {
	p, err := NewParallelAgent(name, children...)
	if err != nil {
		panic(err)
	}

	return p
}

func checkSiblings(name string, children []Agent) error {
	if err := checkNames(name, children); err != nil {
		return err
	}

	owner := map[string]int{}

	var overlap []string

	for i, c := range children {
		for _, key := range OutputKeys(c) {
			if prev, ok := owner[key]; ok && prev != i {
				overlap = append(overlap, key)
				continue
			}

			owner[key] = i
		}
	}

	if len(overlap) > 0 {
		sort.Strings(overlap)

		return &core.ConfigurationError{
			Stage:  name,
			Reason: "parallel children write overlapping keys",
			Keys:   slices.Compact(overlap),
		}
	}

	for i, c := range children {
		for _, key := range RequiredKeys(c) {
			if producer, ok := owner[key]; ok && producer != i {
				return &core.ConfigurationError{
					Stage:  name,
					Reason: fmt.Sprintf("child %s requires a key produced by sibling %s", c.Name(), children[producer].Name()),
					Keys:   []string{key},
				}
			}
		}
	}

	return nil
}

// checkNames rejects stage names that appear more than once across the
// parallel stage and all of its descendants.
func checkNames(name string, children []Agent) error {
	seen := map[string]bool{name: true}

	var dup []string

	for _, c := range children {
		_ = Walk(c, func(n Agent, _ int) error {
			if seen[n.Name()] && !slices.Contains(dup, n.Name()) {
				dup = append(dup, n.Name())
			}

			seen[n.Name()] = true

			return nil
		})
	}

	if len(dup) > 0 {
		sort.Strings(dup)

		return &core.ConfigurationError{
			Stage:  name,
			Reason: "duplicate stage names: " + strings.Join(dup, ", "),
		}
	}

	return nil
}

// Children returns a copy of the child list.
func (p *ParallelAgent) Children() []Agent { return append([]Agent(nil), p.children...) }

// Accept implements Agent.
func (p *ParallelAgent) Accept(v Visitor) error { return v.VisitParallel(p) }

func (p *ParallelAgent) sealed() {}

// Run implements Agent. Per-child failures are data on the event stream; Run
// only returns an error when the run is cancelled.
func (p *ParallelAgent) Run(rc *core.RunContext) error {
	rc = rc.ForAgent(core.AgentInfo{Name: p.Name(), Type: core.KindParallel})

	start := time.Now()

	var wg sync.WaitGroup

	outcomes := make([]error, len(p.children))

	for i, child := range p.children {
		wg.Add(1)

		go func(i int, c Agent) {
			defer wg.Done()

			branchCtx := rc.WithBranch(branchLabel(rc.Branch, p.Name(), c.Name()))

			err := runGuarded(c, branchCtx)
			if err == nil {
				return
			}

			outcomes[i] = err

			if emitErr := branchCtx.EmitEvent(core.NewErrorEvent(c.Name(), core.ErrorCode(err), err.Error())); emitErr != nil {
				rc.LogDebug("stage.failure_event_dropped", "stage", c.Name(), "error", emitErr)
			}
		}(i, child)
	}

	wg.Wait()

	if err := rc.Err(); err != nil {
		return err
	}

	completed := []any{}
	failed := []any{}

	for i, c := range p.children {
		if outcomes[i] != nil {
			failed = append(failed, c.Name())
			continue
		}

		completed = append(completed, c.Name())
	}

	ev := core.NewDataEvent(p.Name(), map[string]any{
		"completed": completed,
		"failed":    failed,
	})
	ev.Final = true
	ev.CustomMetadata = map[string]string{
		MetadataKind:     core.KindParallel,
		MetadataDuration: strconv.FormatInt(time.Since(start).Milliseconds(), 10),
	}

	rc.LogStage(p.Name(), core.KindParallel, time.Since(start), nil)

	return rc.EmitEvent(ev)
}

// runGuarded runs a with panics converted to errors.
func runGuarded(a Agent, rc *core.RunContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", a.Name(), r)
			rc.LogPanic(err, "stage.panicked", "stage", a.Name())
		}
	}()

	return a.Run(rc)
}
