// Package agentchain provides a high-level façade over the runner and the
// session stores for executing agent graphs. Most applications interact with
// this package by:
//  1. Building an agent tree (agent package or workflow definitions)
//  2. Creating an AgentChain via New() (optionally overriding the in-memory store)
//  3. Invoking the tree asynchronously (Invoke) or synchronously (InvokeSync)
//
// The graph is validated once in New so configuration errors never surface
// during a run.
package agentchain

import (
	"context"

	"github.com/hupe1980/agentchain/agent"
	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/logging"
	"github.com/hupe1980/agentchain/runner"
	"github.com/hupe1980/agentchain/session"
)

// Options configures the AgentChain instance.
type Options struct {
	// MaxConcurrentRuns limits the number of runs that can execute
	// simultaneously across all sessions.
	MaxConcurrentRuns int64

	// EventBufferSize sets the channel buffer size for event processing.
	EventBufferSize int

	// SessionStore defaults to an in-memory store.
	SessionStore core.SessionStore

	// Recorder receives run metrics (optional).
	Recorder runner.Recorder

	// Sinks receive every non-partial event (optional).
	Sinks []runner.Sink

	// Logger defaults to a no-op logger.
	Logger logging.Logger
}

// AgentChain aggregates a validated agent tree and its runner.
type AgentChain struct {
	opts   Options
	runner *runner.Runner
}

// New validates root and creates an AgentChain for it.
func New(root agent.Agent, optFns ...func(o *Options)) (*AgentChain, error) {
	opts := Options{
		MaxConcurrentRuns: 10,
		EventBufferSize:   100,
		SessionStore:      session.NewInMemoryStore(),
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if err := agent.Validate(root); err != nil {
		return nil, err
	}

	r := runner.New(root, func(o *runner.Options) {
		o.MaxConcurrentRuns = opts.MaxConcurrentRuns
		o.EventBufferSize = opts.EventBufferSize
		o.SessionStore = opts.SessionStore
		o.Recorder = opts.Recorder
		o.Sinks = opts.Sinks
		o.Logger = opts.Logger
	})

	return &AgentChain{opts: opts, runner: r}, nil
}

// Runner returns the underlying runner.
func (c *AgentChain) Runner() *runner.Runner { return c.runner }

// CreateSession creates a session with an initial state.
func (c *AgentChain) CreateSession(ctx context.Context, key core.SessionKey, state map[string]any) (*core.Session, error) {
	return c.opts.SessionStore.Create(ctx, key, state)
}

// GetSession returns the session for key.
func (c *AgentChain) GetSession(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	return c.opts.SessionStore.Get(ctx, key)
}

// Invoke starts an asynchronous run returning event & error channels. The
// session must exist.
func (c *AgentChain) Invoke(
	ctx context.Context,
	key core.SessionKey,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	return c.runner.Run(ctx, key, userContent)
}

// InvokeSync is a synchronous helper that drains the async channels,
// accumulates events and returns the run ID.
func (c *AgentChain) InvokeSync(
	ctx context.Context,
	key core.SessionKey,
	userContent core.Content,
) (string, []core.Event, error) {
	runID, eventsCh, errorsCh, err := c.runner.Run(ctx, key, userContent)
	if err != nil {
		return "", nil, err
	}

	var events []core.Event

	for {
		select {
		case <-ctx.Done():
			return runID, events, ctx.Err()
		case event, ok := <-eventsCh:
			if !ok {
				return runID, events, <-errorsCh
			}

			events = append(events, event)
		}
	}
}
