// Package logging provides a minimal logging interface and adapters for agentchain.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the runner, agents, tools and transports use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping an existing *slog.Logger
//   - StructuredLogger with component / session scoping and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	r := runner.New(root, func(o *runner.Options) { o.Logger = logger })
//
// Arguments after the message are slog-style key/value pairs.
package logging
