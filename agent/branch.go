package agent

import "strings"

// branchLabel joins the enclosing branch and the stage names on the path to a
// concurrently running child, e.g. "factory.all_supply_agent.seq_tire".
// Empty segments are skipped.
func branchLabel(parent string, stages ...string) string {
	parts := make([]string, 0, len(stages)+1)

	for _, s := range append([]string{parent}, stages...) {
		if s != "" {
			parts = append(parts, s)
		}
	}

	return strings.Join(parts, ".")
}
