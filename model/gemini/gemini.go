// Package gemini provides a model wrapper for the Google Gemini API.
package gemini

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/model"
	"google.golang.org/genai"
)

// Options configures the Gemini model adapter.
type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	APIKey          string
}

// contentAPI is the part of the GenAI Models service the adapter calls.
type contentAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Model wraps the GenAI GenerateContent API. The client is created lazily on
// first use because construction needs a context.
type Model struct {
	opts Options

	once sync.Once
	api  contentAPI
	err  error
}

// NewModel creates a new Gemini model.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:           "gemini-2.0-flash",
		Temperature:     0.7,
		MaxOutputTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{opts: opts}
}

func (m *Model) getAPI(ctx context.Context) (contentAPI, error) {
	m.once.Do(func() {
		if m.api != nil {
			return
		}

		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  m.opts.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			m.err = fmt.Errorf("failed to create gemini client: %w", err)
			return
		}

		m.api = client.Models
	})

	return m.api, m.err
}

// Generate implements model.Model. Streaming requests use
// GenerateContentStream and emit one partial response per chunk.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		api, err := m.getAPI(ctx)
		if err != nil {
			errCh <- err
			return
		}

		temperature := m.opts.Temperature
		config := &genai.GenerateContentConfig{
			Temperature:     &temperature,
			MaxOutputTokens: m.opts.MaxOutputTokens,
		}

		if req.Instructions != "" {
			config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.Instructions}}}
		}

		contents := convertContents(req.Contents)

		if req.Stream {
			m.stream(ctx, api, contents, config, out, errCh)
			return
		}

		result, err := api.GenerateContent(ctx, m.opts.Model, contents, config)
		if err != nil {
			errCh <- fmt.Errorf("gemini api error: %w", err)
			return
		}

		if result == nil {
			errCh <- fmt.Errorf("empty response from gemini api")
			return
		}

		resp := model.Response{ID: result.ResponseID, Content: core.NewTextContent("assistant", result.Text())}
		applyMetadata(&resp, result)

		out <- resp
	}()

	return out, errCh
}

func (m *Model) stream(
	ctx context.Context,
	api contentAPI,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	out chan<- model.Response,
	errCh chan<- error,
) {
	var (
		text  strings.Builder
		final model.Response
	)

	for chunk, err := range api.GenerateContentStream(ctx, m.opts.Model, contents, config) {
		if err != nil {
			errCh <- fmt.Errorf("gemini stream error: %w", err)
			return
		}

		if chunk == nil {
			continue
		}

		if final.ID == "" {
			final.ID = chunk.ResponseID
		}

		applyMetadata(&final, chunk)

		delta := chunk.Text()
		if delta == "" {
			continue
		}

		text.WriteString(delta)

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		case out <- model.Response{ID: final.ID, Partial: true, Content: core.NewTextContent("assistant", delta)}:
		}
	}

	final.Content = core.NewTextContent("assistant", text.String())

	select {
	case <-ctx.Done():
		errCh <- ctx.Err()
	case out <- final:
	}
}

// applyMetadata copies finish reason and usage from a GenAI response; the
// finish reason defaults to "stop".
func applyMetadata(resp *model.Response, result *genai.GenerateContentResponse) {
	if resp.FinishReason == "" {
		resp.FinishReason = "stop"
	}

	if len(result.Candidates) > 0 && result.Candidates[0] != nil && result.Candidates[0].FinishReason != "" {
		resp.FinishReason = string(result.Candidates[0].FinishReason)
	}

	if u := result.UsageMetadata; u != nil {
		resp.Usage = &model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
}

// convertContents maps contents to GenAI contents. Gemini knows only the
// "user" and "model" roles.
func convertContents(contents []core.Content) []*genai.Content {
	out := make([]*genai.Content, 0, len(contents))

	for _, c := range contents {
		text := c.Text()
		if text == "" {
			continue
		}

		role := genai.RoleUser
		if c.Role == "assistant" {
			role = genai.RoleModel
		}

		out = append(out, genai.NewContentFromText(text, genai.Role(role)))
	}

	return out
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "gemini"}
}
