package core

import (
	"time"

	"github.com/hupe1980/agentchain/logging"
)

// loggerAdapter gives run and tool contexts a never-nil logger plus stage and
// tool call records. Loggers implementing logging.StageLogger or
// logging.StackLogger get the dedicated records; others get plain entries.
type loggerAdapter struct {
	logger logging.Logger
}

func newLoggerAdapter(l logging.Logger) *loggerAdapter {
	if l == nil {
		l = logging.NoOpLogger{}
	}

	return &loggerAdapter{logger: l}
}

// Logger returns the underlying logger.
func (l *loggerAdapter) Logger() logging.Logger { return l.logger }

func (l *loggerAdapter) LogDebug(msg string, args ...any) { l.logger.Debug(msg, args...) }

func (l *loggerAdapter) LogInfo(msg string, args ...any) { l.logger.Info(msg, args...) }

func (l *loggerAdapter) LogWarn(msg string, args ...any) { l.logger.Warn(msg, args...) }

func (l *loggerAdapter) LogError(msg string, args ...any) { l.logger.Error(msg, args...) }

// LogStage records the outcome of a stage. A nil err means it completed.
func (l *loggerAdapter) LogStage(stage, kind string, dur time.Duration, err error) {
	if sl, ok := l.logger.(logging.StageLogger); ok {
		sl.LogStage(stage, kind, dur, err)
		return
	}

	if err != nil {
		l.logger.Warn("stage.failed", "stage", stage, "kind", kind, "duration", dur, "error", err)
		return
	}

	l.logger.Info("stage.completed", "stage", stage, "kind", kind, "duration", dur)
}

// LogToolCall records one external tool call.
func (l *loggerAdapter) LogToolCall(tool string, dur time.Duration, err error) {
	if sl, ok := l.logger.(logging.StageLogger); ok {
		sl.LogToolCall(tool, dur, err == nil, err)
		return
	}

	if err != nil {
		l.logger.Error("tool.call.failed", "tool", tool, "duration", dur, "error", err)
		return
	}

	l.logger.Info("tool.call.completed", "tool", tool, "duration", dur)
}

// LogPanic records a recovered panic, with a stack snapshot when supported.
func (l *loggerAdapter) LogPanic(err error, msg string, args ...any) {
	if sl, ok := l.logger.(logging.StackLogger); ok {
		sl.ErrorWithStack(err, msg, args...)
		return
	}

	l.logger.Error(msg, append(args, "error", err)...)
}
