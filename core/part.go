package core

import (
	"encoding/json"
	"fmt"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (TextPart) isPart() {}

// DataPart is a structured data segment (e.g., JSON object map).
type DataPart struct {
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (DataPart) isPart() {}

// FunctionCall describes a tool invocation request.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // Serialized argument payload (JSON)
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall   `json:"function_call"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (FunctionCallPart) isPart() {}

// FunctionResponse describes the outcome of a function call.
type FunctionResponse struct {
	ID       string `json:"id,omitempty"`       // Matches originating FunctionCall ID
	Name     string `json:"name"`               // Function name
	Response any    `json:"response,omitempty"` // Successful result (any shape)
	Error    string `json:"error,omitempty"`    // Populated on failure
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse `json:"function_response"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
}

func (FunctionResponsePart) isPart() {}

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role,omitempty"` // Conversation role (user, assistant, tool, system,...)
	Parts []Part `json:"parts"`          // Ordered heterogeneous parts
}

// NewTextContent returns single-part text content for role.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates all text parts.
func (c Content) Text() string {
	var out string
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			out += tp.Text
		}
	}

	return out
}

// Part type discriminators used on the wire.
const (
	partTypeText             = "text"
	partTypeData             = "data"
	partTypeFunctionCall     = "function_call"
	partTypeFunctionResponse = "function_response"
)

type wirePart struct {
	Type             string            `json:"type"`
	Text             string            `json:"text,omitempty"`
	Data             map[string]any    `json:"data,omitempty"`
	FunctionCall     *FunctionCall     `json:"function_call,omitempty"`
	FunctionResponse *FunctionResponse `json:"function_response,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

// MarshalJSON encodes parts with a "type" discriminator so they survive a round trip.
func (c Content) MarshalJSON() ([]byte, error) {
	wc := wireContent{Role: c.Role, Parts: make([]wirePart, 0, len(c.Parts))}

	for _, p := range c.Parts {
		switch v := p.(type) {
		case TextPart:
			wc.Parts = append(wc.Parts, wirePart{Type: partTypeText, Text: v.Text, Metadata: v.Metadata})
		case DataPart:
			wc.Parts = append(wc.Parts, wirePart{Type: partTypeData, Data: v.Data, Metadata: v.Metadata})
		case FunctionCallPart:
			fc := v.FunctionCall
			wc.Parts = append(wc.Parts, wirePart{Type: partTypeFunctionCall, FunctionCall: &fc, Metadata: v.Metadata})
		case FunctionResponsePart:
			fr := v.FunctionResponse
			wc.Parts = append(wc.Parts, wirePart{Type: partTypeFunctionResponse, FunctionResponse: &fr, Metadata: v.Metadata})
		default:
			return nil, fmt.Errorf("unsupported part type %T", p)
		}
	}

	return json.Marshal(wc)
}

// UnmarshalJSON decodes the discriminated part encoding produced by MarshalJSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	var wc wireContent
	if err := json.Unmarshal(data, &wc); err != nil {
		return err
	}

	c.Role = wc.Role
	c.Parts = make([]Part, 0, len(wc.Parts))

	for _, wp := range wc.Parts {
		switch wp.Type {
		case partTypeText:
			c.Parts = append(c.Parts, TextPart{Text: wp.Text, Metadata: wp.Metadata})
		case partTypeData:
			c.Parts = append(c.Parts, DataPart{Data: wp.Data, Metadata: wp.Metadata})
		case partTypeFunctionCall:
			if wp.FunctionCall == nil {
				return fmt.Errorf("function_call part without payload")
			}
			c.Parts = append(c.Parts, FunctionCallPart{FunctionCall: *wp.FunctionCall, Metadata: wp.Metadata})
		case partTypeFunctionResponse:
			if wp.FunctionResponse == nil {
				return fmt.Errorf("function_response part without payload")
			}
			c.Parts = append(c.Parts, FunctionResponsePart{FunctionResponse: *wp.FunctionResponse, Metadata: wp.Metadata})
		default:
			return fmt.Errorf("unknown part type %q", wp.Type)
		}
	}

	return nil
}
