// Package workflow builds agent trees from YAML definitions.
//
// A definition is a tree of nodes. Leaves are either "model" nodes (a
// templated completion) or "tool" nodes (a registered tool called with
// templated arguments); composites are "sequential" or "parallel". Trees are
// built bottom-up so invalid graphs surface as *core.ConfigurationError at
// load time, never during a run.
package workflow

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentchain/agent"
	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/model"
	"github.com/hupe1980/agentchain/tool"
)

// Node types.
const (
	TypeSequential = "sequential"
	TypeParallel   = "parallel"
	TypeModel      = "model"
	TypeTool       = "tool"
)

//go:embed definitions/*.yaml
var builtins embed.FS

// Definition is a named agent tree.
type Definition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Root        Node   `yaml:"root"`
}

// Node describes one stage of a definition. InstructionKey names a state key
// whose string value replaces Instruction for a run when present.
type Node struct {
	Name           string         `yaml:"name"`
	Type           string         `yaml:"type"`
	Description    string         `yaml:"description"`
	Requires       []string       `yaml:"requires"`
	OutputKey      string         `yaml:"output_key"`
	Instruction    string         `yaml:"instruction"`
	InstructionKey string         `yaml:"instruction_key"`
	Stream         bool           `yaml:"stream"`
	Tool           string         `yaml:"tool"`
	Args           map[string]any `yaml:"args"`
	Children       []Node         `yaml:"children"`
}

// Deps are the collaborators leaves are bound to.
type Deps struct {
	Model model.Model
	Tools tool.Registry
}

// Parse decodes a YAML definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse workflow: %w", err)
	}

	if def.Root.Name == "" {
		return nil, errors.New("workflow has no root stage")
	}

	if def.Name == "" {
		def.Name = def.Root.Name
	}

	return &def, nil
}

// Load reads and parses a definition file.
func Load(file string) (*Definition, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow %s: %w", file, err)
	}

	return Parse(data)
}

// Builtin returns an embedded definition by name.
func Builtin(name string) (*Definition, error) {
	data, err := builtins.ReadFile(path.Join("definitions", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown workflow %q (available: %s)", name, strings.Join(BuiltinNames(), ", "))
	}

	return Parse(data)
}

// BuiltinNames lists the embedded definitions.
func BuiltinNames() []string {
	entries, _ := builtins.ReadDir("definitions")

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}

	slices.Sort(names)

	return names
}

// Resolve returns the builtin with the given name, or loads it from disk
// when name refers to a YAML file.
func Resolve(name string) (*Definition, error) {
	if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
		return Load(name)
	}

	return Builtin(name)
}

// Build constructs the agent tree of def.
func Build(def *Definition, deps Deps) (agent.Agent, error) {
	root, err := buildNode(def.Root, deps)
	if err != nil {
		return nil, err
	}

	if err := agent.Validate(root); err != nil {
		return nil, err
	}

	return root, nil
}

func buildNode(n Node, deps Deps) (agent.Agent, error) {
	if n.Name == "" {
		return nil, &core.ConfigurationError{Stage: "<unnamed>", Reason: "stage has no name"}
	}

	switch n.Type {
	case TypeSequential, TypeParallel:
		if len(n.Children) == 0 {
			return nil, &core.ConfigurationError{Stage: n.Name, Reason: n.Type + " stage has no children"}
		}

		children := make([]agent.Agent, 0, len(n.Children))

		for _, c := range n.Children {
			child, err := buildNode(c, deps)
			if err != nil {
				return nil, err
			}

			children = append(children, child)
		}

		if n.Type == TypeParallel {
			p, err := agent.NewParallelAgent(n.Name, children...)
			if err != nil {
				return nil, err
			}

			p.SetDescription(n.Description)

			return p, nil
		}

		s := agent.NewSequentialAgent(n.Name, children...)
		s.SetDescription(n.Description)

		return s, nil
	case TypeModel:
		if deps.Model == nil {
			return nil, &core.ConfigurationError{Stage: n.Name, Reason: "model stage without a model"}
		}

		instruction := agent.NewInstructionFromText(n.Instruction)
		if n.InstructionKey != "" {
			instruction = agent.NewInstructionFromState(n.InstructionKey, n.Instruction)
		}

		return agent.NewModelAgent(n.Name, deps.Model, func(o *agent.ModelAgentOptions) {
			o.Instruction = instruction
			o.EnableStreaming = n.Stream
			o.Requires = n.Requires
			o.OutputKey = n.OutputKey
			o.Description = n.Description
		}), nil
	case TypeTool:
		t, err := deps.Tools.Lookup(n.Tool)
		if err != nil {
			return nil, &core.ConfigurationError{Stage: n.Name, Reason: fmt.Sprintf("tool %q is not registered", n.Tool)}
		}

		return agent.NewToolAgent(n.Name, t, func(o *agent.ToolAgentOptions) {
			o.Args = n.Args
			o.Requires = n.Requires
			o.OutputKey = n.OutputKey
			o.Description = n.Description
		}), nil
	default:
		return nil, &core.ConfigurationError{Stage: n.Name, Reason: fmt.Sprintf("unknown stage type %q", n.Type)}
	}
}
