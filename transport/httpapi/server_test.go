package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hupe1980/agentchain/agent"
	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/runner"
	"github.com/hupe1980/agentchain/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(name string, fn func(*core.RunContext) (any, error), output string, requires ...string) *agent.LeafAgent {
	return agent.NewLeafAgent(name, agent.UnitFunc(fn), func(o *agent.LeafOptions) {
		o.OutputKey = output
		o.Requires = requires
	})
}

func newServer(t *testing.T, root agent.Agent) *httptest.Server {
	t.Helper()

	r := runner.New(root, func(o *runner.Options) { o.SessionStore = session.NewInMemoryStore() })

	srv := httptest.NewServer(New(r, func(o *Options) {
		o.Routes = map[string]http.Handler{
			"GET /extra": http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("extra")) }),
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func do(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)

	return resp, out
}

func chainRoot() agent.Agent {
	return agent.NewSequentialAgent("chain",
		leaf("wallet_agent", func(*core.RunContext) (any, error) { return "did:bid:abc", nil }, "wallet_address"),
		leaf("vccreate_agent", func(rc *core.RunContext) (any, error) {
			v, _ := rc.GetState("wallet_address")
			return "vc-for-" + v.(string), nil
		}, "vc_content", "wallet_address"),
	)
}

func TestSessionLifecycle(t *testing.T) {
	srv := newServer(t, chainRoot())
	base := srv.URL + "/apps/chain/users/u1/sessions"

	resp, body := do(t, http.MethodPost, base, map[string]any{"session_id": "s1", "state": map[string]any{"topic": "cars"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, map[string]any{"topic": "cars"}, body["state"])

	resp, _ = do(t, http.MethodPost, base, map[string]any{"session_id": "s1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = do(t, http.MethodGet, base+"/s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "s1", body["key"].(map[string]any)["session_id"])

	resp, _ = do(t, http.MethodDelete, base+"/s1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, http.MethodGet, base+"/s1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "session not found")
}

func TestCreateSession_GeneratedID(t *testing.T) {
	srv := newServer(t, chainRoot())

	resp, body := do(t, http.MethodPost, srv.URL+"/apps/chain/users/u1/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["key"].(map[string]any)["session_id"])
}

func TestRunTask_Completed(t *testing.T) {
	srv := newServer(t, chainRoot())

	resp, body := do(t, http.MethodPost, srv.URL+"/apps/chain/users/u1/sessions/s1/tasks", map[string]any{"message": "create a wallet"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, TaskCompleted, body["status"])
	assert.Equal(t, "vc-for-did:bid:abc", body["result"])
	assert.Equal(t, "did:bid:abc", body["state"].(map[string]any)["wallet_address"])
	assert.Equal(t, true, body["state"].(map[string]any)["initial"])

	events := body["events"].([]any)
	require.Len(t, events, 3)
	assert.Equal(t, "orchestrator", events[2].(map[string]any)["author"])

	resp, task := do(t, http.MethodGet, srv.URL+"/tasks/"+body["id"].(string), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, TaskCompleted, task["status"])
}

func TestRunTask_FailureStatus(t *testing.T) {
	root := agent.NewSequentialAgent("chain",
		leaf("wallet_agent", func(*core.RunContext) (any, error) { return nil, errors.New("boom") }, "wallet_address"),
	)
	srv := newServer(t, root)

	resp, body := do(t, http.MethodPost, srv.URL+"/apps/chain/users/u1/sessions/s1/tasks", map[string]any{"message": "go"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, TaskFailed, body["status"])
	assert.Contains(t, body["error"], "boom")
}

func TestRunTask_MissingPrecondition(t *testing.T) {
	srv := newServer(t, leaf("vccreate_agent", func(*core.RunContext) (any, error) { return "x", nil }, "vc_content", "wallet_address"))

	_, body := do(t, http.MethodPost, srv.URL+"/apps/chain/users/u1/sessions/s1/tasks", map[string]any{"message": "go"})

	assert.Equal(t, TaskFailed, body["status"])
	assert.Contains(t, body["error"], "wallet_address")
}

func TestRunTask_BadRequest(t *testing.T) {
	srv := newServer(t, chainRoot())

	resp, body := do(t, http.MethodPost, srv.URL+"/apps/chain/users/u1/sessions/s1/tasks", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "message")
}

func TestGetTask_NotFound(t *testing.T) {
	srv := newServer(t, chainRoot())

	resp, _ := do(t, http.MethodGet, srv.URL+"/tasks/unknown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExtraRoutesAndHealth(t *testing.T) {
	srv := newServer(t, chainRoot())

	resp, err := http.Get(srv.URL + "/extra")
	require.NoError(t, err)
	defer resp.Body.Close()

	var sb strings.Builder
	_, _ = sb.ReadFrom(resp.Body)
	assert.Equal(t, "extra", sb.String())

	resp2, body := do(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAgentCard(t *testing.T) {
	root := chainRoot()
	root.(*agent.SequentialAgent).SetDescription("Creates a wallet and issues a credential")

	srv := newServer(t, root)

	resp, err := http.Get(srv.URL + AgentCardPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var card AgentCard
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&card))

	assert.Equal(t, "chain", card.Name)
	assert.Equal(t, "Creates a wallet and issues a credential", card.Description)
	assert.Equal(t, srv.URL, card.URL)
	assert.Equal(t, []string{"text"}, card.DefaultInputModes)
	require.Len(t, card.Skills, 1)
	assert.Equal(t, "run_chain", card.Skills[0].ID)
	assert.Equal(t, []string{"chain", "wallet_address", "vc_content"}, card.Skills[0].Tags)
	assert.Equal(t, []string{
		"chain (sequential)",
		"  wallet_agent (leaf) -> wallet_address",
		"  vccreate_agent (leaf) requires=[wallet_address] -> vc_content",
	}, card.Skills[0].Stages)
}

func TestAgentCard_Configured(t *testing.T) {
	r := runner.New(chainRoot(), func(o *runner.Options) { o.SessionStore = session.NewInMemoryStore() })

	card := NewAgentCard("Factory Agent", "Simulates a supply chain", chainRoot())
	card.URL = "https://agents.example.com"
	card.Capabilities.Streaming = true

	rec := httptest.NewRecorder()
	New(r, func(o *Options) { o.Card = &card }).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, AgentCardPath, nil))

	var got AgentCard
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, card, got)
}
