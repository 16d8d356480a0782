package gemini

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestConvertContents(t *testing.T) {
	out := convertContents([]core.Content{
		core.NewTextContent("user", "build a car"),
		core.NewTextContent("assistant", "plan"),
		core.NewTextContent("user", ""),
	})

	require.Len(t, out, 2)
	assert.Equal(t, string(genai.RoleUser), out[0].Role)
	assert.Equal(t, "build a car", out[0].Parts[0].Text)
	assert.Equal(t, string(genai.RoleModel), out[1].Role)
}

func TestNewModel_Defaults(t *testing.T) {
	m := NewModel(func(o *Options) { o.Model = "gemini-test" })
	assert.Equal(t, model.Info{Name: "gemini-test", Provider: "gemini"}, m.Info())
}

type fakeAPI struct {
	chunks    []string
	streamErr error
	config    *genai.GenerateContentConfig
}

func (f *fakeAPI) GenerateContent(_ context.Context, _ string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.config = config
	return chunk("resp-1", "whole answer", genai.FinishReasonStop), nil
}

func (f *fakeAPI) GenerateContentStream(_ context.Context, _ string, _ []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.config = config

	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, c := range f.chunks {
			if !yield(chunk("resp-2", c, ""), nil) {
				return
			}
		}

		if f.streamErr != nil {
			yield(nil, f.streamErr)
		}
	}
}

func chunk(id, text string, reason genai.FinishReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		ResponseID: id,
		Candidates: []*genai.Candidate{{
			Content:      genai.NewContentFromText(text, genai.RoleModel),
			FinishReason: reason,
		}},
	}
}

func TestModel_Generate(t *testing.T) {
	api := &fakeAPI{}
	m := NewModel()
	m.api = api

	text, err := model.Collect(context.Background(), m, model.Request{
		Instructions: "You are a production planner.",
		Contents:     []core.Content{core.NewTextContent("user", "plan 10 cars")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "whole answer", text)
	assert.Equal(t, "You are a production planner.", api.config.SystemInstruction.Parts[0].Text)
}

func TestModel_GenerateStream(t *testing.T) {
	m := NewModel()
	m.api = &fakeAPI{chunks: []string{"40 ", "tires"}}

	var partials []string

	text, err := model.Collect(context.Background(), m, model.Request{
		Contents: []core.Content{core.NewTextContent("user", "plan")},
		Stream:   true,
	}, func(r model.Response) error {
		partials = append(partials, r.Content.Text())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"40 ", "tires"}, partials)
	assert.Equal(t, "40 tires", text)
}

func TestModel_GenerateStreamError(t *testing.T) {
	m := NewModel()
	m.api = &fakeAPI{chunks: []string{"40 "}, streamErr: errors.New("quota")}

	_, err := model.Collect(context.Background(), m, model.Request{Stream: true}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}
