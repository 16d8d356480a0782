package tool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dummyToolContext(t *testing.T, state map[string]any) *core.ToolContext {
	t.Helper()
	key := core.SessionKey{AppName: "app", UserID: "u", SessionID: "s"}
	rc := core.NewRunContext(context.Background(), key, "run-1", core.AgentInfo{Name: "leaf", Type: core.KindLeaf},
		core.Content{}, core.NewState(state), make(chan core.Event, 10), logging.NoOpLogger{})
	return core.NewToolContext(rc, "fc-1")
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	stock := map[string]int{"tire": 10000, "battery": 40000}
	lookup := NewFunctionTool("inventory_lookup", "Stock", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"component": map[string]any{"type": "string", "enum": []string{"tire", "battery", "frame"}},
		},
		"required": []string{"component"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return stock[args["component"].(string)], nil
	})

	result, err := lookup.Call(dummyToolContext(t, nil), map[string]any{"component": "battery"})
	require.NoError(t, err)
	assert.Equal(t, 40000, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	tTool := NewFunctionTool("test", "Test", map[string]any{"required": []any{"a"}}, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})

	_, err := tTool.Call(dummyToolContext(t, nil), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	execTool := NewFunctionTool("fail", "Fails", map[string]any{}, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	_, err := execTool.Call(dummyToolContext(t, nil), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_ToolFailurePassesThrough(t *testing.T) {
	ft := NewFunctionTool("remote", "Remote", map[string]any{}, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, &core.ToolFailure{StatusCode: 503, Body: "busy"}
	})

	_, err := ft.Call(dummyToolContext(t, nil), map[string]any{})

	var failure *core.ToolFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "remote", failure.Tool)
	assert.Equal(t, 503, failure.StatusCode)
}

func TestFunctionToolFromStruct(t *testing.T) {
	type args struct {
		SubjectBid string `json:"subjectBid"`
	}

	ft := NewFunctionToolFromStruct("issue", "Issue", args{}, func(_ *core.ToolContext, a map[string]any) (any, error) {
		return a["subjectBid"], nil
	})

	_, err := ft.Call(dummyToolContext(t, nil), map[string]any{})
	assert.Error(t, err)

	v, err := ft.Call(dummyToolContext(t, nil), map[string]any{"subjectBid": "did"})
	require.NoError(t, err)
	assert.Equal(t, "did", v)
}

// -------------------- Registry Tests --------------------

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry(NewChainTools("http://chain.local", time.Second)...)

	wallet, err := r.Lookup("create_wallet")
	require.NoError(t, err)
	assert.Equal(t, "create_wallet", wallet.Name())

	_, err = r.Lookup("missing")
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeNotFound, toolErr.Code)
}

// -------------------- HTTPTool Tests --------------------

func TestIssueVCTool_Success(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, IssueVCPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"result":{"vcContent":"<token>"}}`)
	}))
	defer srv.Close()

	vc := NewIssueVCTool(srv.URL, time.Second)
	out, err := vc.Call(dummyToolContext(t, nil), map[string]any{"subjectBid": "did:bid:xyz", "subjectType": "Agent"})
	require.NoError(t, err)
	assert.Equal(t, "<token>", out)
	assert.Equal(t, map[string]any{"subjectBid": "did:bid:xyz", "subjectType": "Agent"}, got)
}

func TestCreateWalletTool_NoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.Empty(t, raw)
		_, _ = io.WriteString(w, `{"data":{"walletAddress":"did:bid:xyz"}}`)
	}))
	defer srv.Close()

	out, err := NewCreateWalletTool(srv.URL, 0).Call(dummyToolContext(t, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "did:bid:xyz", out)
}

func TestHTTPTool_Non2xxIsToolFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "chain node unavailable")
	}))
	defer srv.Close()

	_, err := NewIssueVCTool(srv.URL, time.Second).Call(dummyToolContext(t, nil), map[string]any{"subjectBid": "did"})

	var failure *core.ToolFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 500, failure.StatusCode)
	assert.Contains(t, failure.Diagnostic(), "500")
	assert.Contains(t, failure.Diagnostic(), "chain node unavailable")
}

func TestHTTPTool_NetworkErrorIsToolFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewCreateWalletTool(url, time.Second).Call(dummyToolContext(t, nil), nil)

	var failure *core.ToolFailure
	require.ErrorAs(t, err, &failure)
	assert.Zero(t, failure.StatusCode)
	assert.True(t, strings.HasPrefix(failure.Diagnostic(), "network request failed"))
}

func TestHTTPTool_RawTextPassThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "plain-token")
	}))
	defer srv.Close()

	out, err := NewHTTPTool("raw", srv.URL, "/x").Call(dummyToolContext(t, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "plain-token", out)
}

func TestHTTPTool_MissingResultPathYieldsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"result":{}}`)
	}))
	defer srv.Close()

	out, err := NewIssueVCTool(srv.URL, time.Second).Call(dummyToolContext(t, nil), map[string]any{"subjectBid": "did"})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestHTTPTool_ValidationError(t *testing.T) {
	_, err := NewIssueVCTool("http://unused", time.Second).Call(dummyToolContext(t, nil), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestToolError_Message(t *testing.T) {
	assert.Equal(t, "tool error [X] in t: m", NewToolError("t", "m", "X").Error())
	assert.Equal(t, "tool error in t: m", (&ToolError{Tool: "t", Message: "m"}).Error())
}
