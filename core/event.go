package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventActions encodes side-effects attached to an Event. The runner applies
// StateDelta to the SessionStore before the event reaches the caller.
type EventActions struct {
	StateDelta map[string]any `json:"state_delta,omitempty"`
}

// Event is the unit of progress on a run's stream. After emission it must be
// treated as immutable. It captures:
//   - Correlation (InvocationID, ID, Author, Branch)
//   - Payload (optional role-based Parts)
//   - State side-effects (Actions)
//   - Terminal / error markers
//
// Final marks the last event of a stage (a Leaf, a Parallel stage or the
// orchestrator summary). Failure events carry ErrorCode and ErrorMessage.
type Event struct {
	ID             string            `json:"id"`
	InvocationID   string            `json:"invocation_id"`
	Author         string            `json:"author"`
	Branch         string            `json:"branch,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Content        *Content          `json:"content,omitempty"`
	Actions        EventActions      `json:"actions"`
	Final          bool              `json:"final,omitempty"`
	Partial        bool              `json:"partial,omitempty"`
	ErrorCode      string            `json:"error_code,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CustomMetadata map[string]string `json:"custom_metadata,omitempty"`
}

// NewEvent creates a bare event authored by 'author' bound to an invocation.
// Prefer helper constructors for common semantic categories.
func NewEvent(invocationID, author string) Event {
	return Event{
		ID:           NewID(),
		InvocationID: invocationID,
		Author:       author,
		Timestamp:    time.Now().UTC(),
		Actions:      EventActions{},
	}
}

// NewMessageEvent creates an assistant message event with a single text part.
func NewMessageEvent(author, message string) Event {
	e := NewEvent("", author)
	e.Content = &Content{Role: "assistant", Parts: []Part{TextPart{Text: message}}}

	return e
}

// NewUserMessageEvent creates a user-authored text message event.
func NewUserMessageEvent(invocationID, message string) Event {
	return NewUserContentEvent(invocationID, &Content{Role: "user", Parts: []Part{TextPart{Text: message}}})
}

// NewUserContentEvent creates a user-authored event with arbitrary Content.
func NewUserContentEvent(invocationID string, content *Content) Event {
	e := NewEvent(invocationID, "user")
	e.Content = content

	return e
}

// NewDataEvent creates an assistant event carrying a structured payload.
func NewDataEvent(author string, data map[string]any) Event {
	e := NewEvent("", author)
	e.Content = &Content{Role: "assistant", Parts: []Part{DataPart{Data: data}}}

	return e
}

// NewFunctionCallEvent represents an agent requesting execution of a named tool.
func NewFunctionCallEvent(author, id, functionName, args string) Event {
	e := NewEvent("", author)
	e.Content = &Content{
		Role: "assistant",
		Parts: []Part{
			FunctionCallPart{FunctionCall: FunctionCall{ID: id, Name: functionName, Arguments: args}},
		},
	}

	return e
}

// NewFunctionResponseEvent records the result (or error) of a tool invocation.
func NewFunctionResponseEvent(author, id, functionName string, result any, err error) Event {
	e := NewEvent("", author)
	fr := FunctionResponse{ID: id, Name: functionName, Response: result}

	if err != nil {
		fr.Error = err.Error()
	}

	e.Content = &Content{Role: "tool", Parts: []Part{FunctionResponsePart{FunctionResponse: fr}}}

	return e
}

// NewErrorEvent creates a terminal failure event. The message doubles as the
// text payload so transports can surface it without inspecting codes.
func NewErrorEvent(author, code, message string) Event {
	e := NewMessageEvent(author, message)
	e.ErrorCode = code
	e.ErrorMessage = message
	e.Final = true

	return e
}

// NewID generates a new unique identifier for events, runs and tasks.
func NewID() string { return uuid.NewString() }

// IsPartial reports whether this event is a streaming fragment.
func (e Event) IsPartial() bool { return e.Partial }

// IsFinal reports whether the event terminates its stage.
func (e Event) IsFinal() bool { return e.Final && !e.Partial }

// IsError reports whether the event carries a failure.
func (e Event) IsError() bool { return e.ErrorCode != "" }

// Text returns the concatenated text payload, or a rendering of the first
// data part, or "".
func (e Event) Text() string {
	if e.Content == nil {
		return ""
	}

	if t := e.Content.Text(); t != "" {
		return t
	}

	for _, p := range e.Content.Parts {
		if dp, ok := p.(DataPart); ok {
			return fmt.Sprintf("%v", dp.Data)
		}
	}

	return ""
}

// GetFunctionCalls returns any FunctionCall parts preserving their order.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}

	var calls []FunctionCall
	for _, p := range e.Content.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}

	return calls
}

// GetFunctionResponses returns any FunctionResponse parts preserving their order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}

	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}

	return responses
}

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
func (e Event) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }
