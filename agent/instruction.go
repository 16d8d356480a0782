package agent

import (
	"fmt"

	"github.com/hupe1980/agentchain/core"
)

// Provider resolves the prompt template of a model stage when the stage
// starts.
type Provider interface {
	Instruction(*core.RunContext) (string, error)
}

// Func adapts a plain function to Provider.
type Func func(*core.RunContext) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(rc *core.RunContext) (string, error) { return f(rc) }

// Instruction is the prompt template of a model stage. Placeholders are
// rendered against the run state after resolution, so a resolved template may
// itself reference state keys.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText returns a fixed template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromFunc returns a template computed per run.
func NewInstructionFromFunc(f func(*core.RunContext) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// NewInstructionFromState reads the template from the state key at run time.
// An absent or empty value falls back to the given text; a value that is not
// a string is an error.
func NewInstructionFromState(key, fallback string) Instruction {
	return Instruction{text: fallback, provider: stateInstruction{key: key, fallback: fallback}}
}

// Resolve returns the template for rc.
func (i Instruction) Resolve(rc *core.RunContext) (string, error) {
	if i.provider == nil {
		return i.text, nil
	}

	return i.provider.Instruction(rc)
}

type stateInstruction struct {
	key      string
	fallback string
}

func (s stateInstruction) Instruction(rc *core.RunContext) (string, error) {
	v, ok := rc.GetState(s.key)
	if !ok || v == nil {
		return s.fallback, nil
	}

	text, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("instruction key %q holds %T, want string", s.key, v)
	}

	if text == "" {
		return s.fallback, nil
	}

	return text, nil
}
