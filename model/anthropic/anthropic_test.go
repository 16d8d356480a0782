package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_Generate(t *testing.T) {
	var body map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude",
			"content":[{"type":"text","text":"plan: "},{"type":"text","text":"tire"}],
			"stop_reason":"end_turn","usage":{"input_tokens":4,"output_tokens":2}}`)
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})

	out, err := model.Collect(context.Background(), m, model.Request{
		Instructions: "plan the build",
		Contents:     []core.Content{core.NewTextContent("user", "build a car")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "plan: tire", out)

	system, ok := body["system"].([]any)
	require.True(t, ok)
	assert.Equal(t, "plan the build", system[0].(map[string]any)["text"])
}

func TestBuildMessages_Roles(t *testing.T) {
	msgs := buildMessages([]core.Content{
		core.NewTextContent("system", "ignored"),
		core.NewTextContent("user", "a"),
		core.NewTextContent("assistant", "b"),
		core.NewTextContent("tool", "c"),
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
}
