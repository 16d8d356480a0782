package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel) (*StructuredLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cfg := DefaultLoggerConfig()
	cfg.Output = buf
	cfg.Level = level
	return NewLogger(cfg), buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestStructuredLogger_KeyValueArgs(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)

	l.WithComponent("runner").WithSession("app/u/s", "run-1").Info("runner.run.start", "root", "FactoryChain")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "runner.run.start", lines[0]["msg"])
	assert.Equal(t, "runner", lines[0]["component"])
	assert.Equal(t, "app/u/s", lines[0]["session"])
	assert.Equal(t, "run-1", lines[0]["run_id"])
	assert.Equal(t, "FactoryChain", lines[0]["root"])
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(LogLevelWarn)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Error("shown")

	assert.Len(t, decodeLines(t, buf), 2)
}

func TestStructuredLogger_DomainHelpers(t *testing.T) {
	l, buf := newBufferLogger(LogLevelDebug)

	l.LogToolCall("create_vc", 10*time.Millisecond, false, errors.New("status 500"))
	l.LogStage("wallet_agent", "leaf", time.Millisecond, nil)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "tool.call.failed", lines[0]["msg"])
	assert.Equal(t, "status 500", lines[0]["error"])
	assert.Equal(t, "stage.completed", lines[1]["msg"])
	assert.Equal(t, "wallet_agent", lines[1]["stage"])
}

func TestStructuredLogger_WithContextDoesNotLeak(t *testing.T) {
	base, buf := newBufferLogger(LogLevelInfo)
	_ = base.WithContext("tenant", "x")

	base.Info("plain")
	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	_, ok := lines[0]["tenant"]
	assert.False(t, ok)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel("bogus"))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestNoOpLoggerImplementsLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Info("nothing", "k", "v")
}

func TestForRun(t *testing.T) {
	t.Run("structured", func(t *testing.T) {
		l, buf := newBufferLogger(LogLevelInfo)

		ForRun(l, "app/u/s", "run-7").Info("runner.run.start")

		lines := decodeLines(t, buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "app/u/s", lines[0]["session"])
		assert.Equal(t, "run-7", lines[0]["run_id"])
	})

	t.Run("slog adapter", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewSlogAdapter(slog.New(slog.NewJSONHandler(buf, nil)))

		ForRun(l, "app/u/s", "run-8").Warn("stage.failed", "stage", "plan_agent")

		lines := decodeLines(t, buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "plan_agent", lines[0]["stage"])
		assert.Equal(t, "run-8", lines[0]["run_id"])
	})

	t.Run("nil", func(t *testing.T) {
		assert.Equal(t, NoOpLogger{}, ForRun(nil, "s", "r"))
	})
}

func TestStructuredLogger_ErrorWithStack(t *testing.T) {
	l, buf := newBufferLogger(LogLevelInfo)

	var sl StackLogger = l
	sl.ErrorWithStack(errors.New("boom"), "stage.panicked", "stage", "seq_tire")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "boom", lines[0]["error"])
	assert.Contains(t, lines[0]["stack_trace"], "goroutine")
}
