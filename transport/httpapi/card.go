package httpapi

import (
	"net/http"
	"strings"

	"github.com/hupe1980/agentchain/agent"
)

// AgentCardPath is where the card of the served workflow is published.
const AgentCardPath = "/.well-known/agent.json"

// AgentCard advertises the served workflow to other agents.
type AgentCard struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	URL                string       `json:"url,omitempty"`
	Version            string       `json:"version"`
	Capabilities       Capabilities `json:"capabilities"`
	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
	Skills             []Skill      `json:"skills"`
}

// Capabilities lists optional protocol features.
type Capabilities struct {
	Streaming bool `json:"streaming"`
}

// Skill describes one runnable workflow. Stages is the indented outline of
// the agent tree.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	Stages      []string `json:"stages"`
}

// NewAgentCard derives a card with a single skill from the workflow root.
// Empty name and description fall back to the root's.
func NewAgentCard(name, description string, root agent.Agent) AgentCard {
	if name == "" {
		name = root.Name()
	}

	if description == "" {
		description = root.Description()
	}

	return AgentCard{
		Name:               name,
		Description:        description,
		Version:            "1.0.0",
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
		Skills: []Skill{{
			ID:          "run_" + root.Name(),
			Name:        name,
			Description: description,
			Tags:        append([]string{name}, agent.OutputKeys(root)...),
			Stages:      strings.Split(strings.TrimRight(agent.Describe(root), "\n"), "\n"),
		}},
	}
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	card := s.card
	if card.URL == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}

		card.URL = scheme + "://" + r.Host
	}

	writeJSON(w, http.StatusOK, card)
}
