// Package tool implements the external-collaborator side of leaf stages:
// structured capabilities (chain-service HTTP calls, local functions) invoked
// with schema validated arguments and consistent error handling.
//
// Two error families exist. *ToolError reports misuse (bad arguments) or an
// unexpected execution error and is treated by leaf stages as a raised fault.
// *core.ToolFailure reports that the external call itself did not succeed
// (non-2xx, broken transport) and is converted into data by leaf stages.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/internal/util"
)

// Tool defines the interface for capabilities a leaf stage can invoke.
//
// Tool implementations should:
//   - Provide clear, descriptive names (snake_case)
//   - Define a JSON schema for parameters
//   - Return *core.ToolFailure when the external system rejects or cannot be reached
//   - Be safe for concurrent use (parallel stages share tools)
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with structured arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "TOOL_NOT_FOUND"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Registry maps tool names to tools. It is read-only after construction and
// safe for concurrent lookups.
type Registry map[string]Tool

// NewRegistry indexes tools by Name. Later duplicates replace earlier ones.
func NewRegistry(tools ...Tool) Registry {
	r := make(Registry, len(tools))
	for _, t := range tools {
		r[t.Name()] = t
	}
	return r
}

// Lookup returns the named tool or a TOOL_NOT_FOUND ToolError.
func (r Registry) Lookup(name string) (Tool, error) {
	t, ok := r[name]
	if !ok {
		return nil, NewToolError(name, "tool is not registered", CodeNotFound)
	}
	return t, nil
}
