package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentchain/core"
)

// Request captures the normalized model input produced by a model stage.
type Request struct {
	Instructions string         `json:"instructions"` // Rendered system instruction
	Contents     []core.Content `json:"contents"`     // Conversation converted to provider messages
	Stream       bool           `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", ...
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "gemini", "mock"
}

// Model is the minimal interface required by model stages to drive generation.
// Implementations close both channels when generation ends; at most one error
// is sent.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Collect drains a Generate call and returns the final response text. Partial
// chunks are passed to onPartial when it is non-nil.
func Collect(ctx context.Context, m Model, req Request, onPartial func(Response) error) (string, error) {
	respCh, errCh := m.Generate(ctx, req)

	var final string

	for resp := range respCh {
		if resp.Partial {
			if onPartial != nil {
				if err := onPartial(resp); err != nil {
					go drain(respCh, errCh)
					return "", err
				}
			}

			continue
		}

		final = resp.Content.Text()
	}

	if err := <-errCh; err != nil {
		return "", err
	}

	return final, nil
}

func drain(respCh <-chan Response, errCh <-chan error) {
	for range respCh { //nolint:revive // discard
	}
	<-errCh
}

// MockModel is a lightweight in-memory Model useful for tests and offline runs.
// Responses are keyed by the last user text; unknown prompts echo the input.
type MockModel struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	err       error
	requests  []Request
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// FailWith makes every subsequent Generate call fail with err.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Requests returns the requests observed so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Generate implements Model; emits optional streaming chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	failure := m.err
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if failure != nil {
			errCh <- failure
			return
		}

		var inputText string
		if len(req.Contents) > 0 {
			inputText = req.Contents[len(req.Contents)-1].Text()
		}

		m.mu.Lock()
		full, ok := m.responses[inputText]
		m.mu.Unlock()

		if !ok {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}

		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Content: core.NewTextContent("assistant", string(r))}:
				}
			}
		}

		respCh <- Response{
			Content:      core.NewTextContent("assistant", full),
			FinishReason: "stop",
		}
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
