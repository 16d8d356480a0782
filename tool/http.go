package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/internal/util"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// HTTPOptions configure an HTTPTool.
type HTTPOptions struct {
	// Description shown in logs and tool listings.
	Description string
	// Method defaults to POST.
	Method string
	// Timeout per call; defaults to 5s. Ignored when Client is set.
	Timeout time.Duration
	// Client overrides the HTTP client (tests, custom transports).
	Client *http.Client
	// Headers are added to every request.
	Headers map[string]string
	// Parameters is the JSON schema for call arguments.
	Parameters map[string]any
	// NoBody sends the request without a JSON body even when args are given.
	NoBody bool
	// ResultPath is a dotted path (e.g. "result.vcContent") extracted from a
	// JSON response. Empty means the decoded payload is returned as is.
	ResultPath string
}

// HTTPTool calls a JSON endpoint of an external service. Its error contract
// is what leaf stages rely on for failure-as-data:
//
//	2xx                     -> decoded payload (JSON value, or raw text)
//	non-2xx                 -> *core.ToolFailure{StatusCode, Body}
//	transport / read error  -> *core.ToolFailure{Cause}
//	bad arguments           -> *ToolError{Code: VALIDATION_ERROR}
type HTTPTool struct {
	name   string
	url    string
	opts   HTTPOptions
	client *http.Client
}

// NewHTTPTool constructs a tool calling baseURL+path.
func NewHTTPTool(name, baseURL, path string, optFns ...func(o *HTTPOptions)) *HTTPTool {
	opts := HTTPOptions{
		Method:     http.MethodPost,
		Timeout:    5 * time.Second,
		Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &HTTPTool{
		name:   name,
		url:    strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		opts:   opts,
		client: client,
	}
}

// Name implements Tool.
func (t *HTTPTool) Name() string { return t.name }

// Description implements Tool.
func (t *HTTPTool) Description() string { return t.opts.Description }

// Parameters implements Tool.
func (t *HTTPTool) Parameters() map[string]any { return t.opts.Parameters }

// URL returns the resolved endpoint.
func (t *HTTPTool) URL() string { return t.url }

// Call implements Tool.
func (t *HTTPTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()

	if err := util.ValidateParameters(args, t.opts.Parameters); err != nil {
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	var body io.Reader
	if !t.opts.NoBody && len(args) > 0 {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeValidation}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(toolCtx.Context(), t.opts.Method, t.url, body)
	if err != nil {
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution}
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range t.opts.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()

	logger.Debug("tool.http.request", "tool", t.name, "method", t.opts.Method, "url", t.url, "fc_id", toolCtx.FunctionCallID())

	resp, err := t.client.Do(req)
	if err != nil {
		failure := &core.ToolFailure{Tool: t.name, Cause: err}
		toolCtx.LogToolCall(t.name, time.Since(start), failure)

		return nil, failure
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		failure := &core.ToolFailure{Tool: t.name, Cause: fmt.Errorf("read response: %w", err)}
		toolCtx.LogToolCall(t.name, time.Since(start), failure)

		return nil, failure
	}

	logger.Debug("tool.http.response", "tool", t.name, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		failure := &core.ToolFailure{Tool: t.name, StatusCode: resp.StatusCode, Body: string(raw)}
		toolCtx.LogToolCall(t.name, time.Since(start), failure)

		return nil, failure
	}

	toolCtx.LogToolCall(t.name, time.Since(start), nil)

	payload := decodePayload(raw)

	if t.opts.ResultPath == "" {
		return payload, nil
	}

	v, ok := lookupPath(payload, t.opts.ResultPath)
	if !ok {
		logger.Warn("tool.http.result_path_missing", "tool", t.name, "path", t.opts.ResultPath)
		return nil, nil
	}

	return v, nil
}

// decodePayload returns the JSON value of raw, or raw as a string when it is
// not JSON.
func decodePayload(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}

	return v
}

func lookupPath(v any, path string) (any, bool) {
	cur := v
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}

		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}

	return cur, cur != nil
}
