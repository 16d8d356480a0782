package agent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/agentchain/core"
)

// RequiredKeys returns the state keys a must find when it starts: the
// declared inputs of a leaf, the inputs of a sequential stage not produced by
// an earlier child, the union of a parallel stage's children.
func RequiredKeys(a Agent) []string {
	var keys []string

	_ = a.Accept(VisitorFuncs{
		Leaf: func(l *LeafAgent) error {
			keys = l.Requires()
			return nil
		},
		Sequential: func(s *SequentialAgent) error {
			produced := map[string]bool{}

			for _, c := range s.children {
				for _, k := range RequiredKeys(c) {
					if !produced[k] && !slices.Contains(keys, k) {
						keys = append(keys, k)
					}
				}

				for _, k := range OutputKeys(c) {
					produced[k] = true
				}
			}

			return nil
		},
		Parallel: func(p *ParallelAgent) error {
			for _, c := range p.children {
				for _, k := range RequiredKeys(c) {
					if !slices.Contains(keys, k) {
						keys = append(keys, k)
					}
				}
			}

			return nil
		},
	})

	return keys
}

// OutputKeys returns every state key written by a or its descendants, in
// declaration order.
func OutputKeys(a Agent) []string {
	var keys []string

	_ = Walk(a, func(n Agent, _ int) error {
		if l, ok := n.(*LeafAgent); ok && l.outputKey != "" && !slices.Contains(keys, l.outputKey) {
			keys = append(keys, l.outputKey)
		}

		return nil
	})

	return keys
}

// Validate re-checks a complete graph: stage names must be unique (they are
// event authors) and every parallel stage must satisfy the sibling rules of
// NewParallelAgent.
func Validate(a Agent) error {
	seen := map[string]bool{}

	return Walk(a, func(n Agent, _ int) error {
		if n.Name() == "" {
			return &core.ConfigurationError{Stage: "<unnamed>", Reason: "stage without name"}
		}

		if seen[n.Name()] {
			return &core.ConfigurationError{Stage: n.Name(), Reason: fmt.Sprintf("duplicate stage name %q", n.Name())}
		}

		seen[n.Name()] = true

		if p, ok := n.(*ParallelAgent); ok {
			return checkSiblings(p.Name(), p.children)
		}

		return nil
	})
}

// Describe renders the graph as an indented outline, one stage per line.
func Describe(a Agent) string {
	var b strings.Builder

	_ = Walk(a, func(n Agent, depth int) error {
		b.WriteString(strings.Repeat("  ", depth))

		_ = n.Accept(VisitorFuncs{
			Leaf: func(l *LeafAgent) error {
				fmt.Fprintf(&b, "%s (leaf)", l.Name())

				if len(l.requires) > 0 {
					fmt.Fprintf(&b, " requires=[%s]", strings.Join(l.requires, ","))
				}

				if l.outputKey != "" {
					fmt.Fprintf(&b, " -> %s", l.outputKey)
				}

				return nil
			},
			Sequential: func(s *SequentialAgent) error {
				fmt.Fprintf(&b, "%s (sequential)", s.Name())
				return nil
			},
			Parallel: func(p *ParallelAgent) error {
				fmt.Fprintf(&b, "%s (parallel)", p.Name())
				return nil
			},
		})

		b.WriteByte('\n')

		return nil
	})

	return b.String()
}
