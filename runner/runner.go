package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentchain/agent"
	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/logging"
	"github.com/hupe1980/agentchain/session"
	"golang.org/x/sync/semaphore"
)

// Run status values reported in the "status" metadata of the summary event.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"

	// MetadataStatus is the CustomMetadata key carrying the run status.
	MetadataStatus = "status"
)

// Recorder observes run lifecycle and event flow. metrics.Collector
// implements it.
type Recorder interface {
	RunStarted(app string)
	RunFinished(app, status string, d time.Duration)
	EventProcessed(app string, ev core.Event)
}

// Sink receives every non-partial event after it was persisted. Sink errors
// are logged and never fail the run.
type Sink interface {
	Publish(ctx context.Context, key core.SessionKey, ev core.Event) error
}

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// MaxConcurrentRuns limits concurrent runs across all sessions.
	MaxConcurrentRuns int64
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// SessionStore persists state deltas and event history.
	SessionStore core.SessionStore
	// Logger receives runner diagnostics.
	Logger logging.Logger
	// Recorder observes runs, nil disables instrumentation.
	Recorder Recorder
	// Sinks receive persisted events.
	Sinks []Sink
	// SummaryAuthor authors the terminal summary / failure event.
	SummaryAuthor string
}

// Runner is the orchestrator: it checks the root's preconditions, runs the
// agent graph, passes every event through unchanged while persisting its
// side effects, and closes each run with exactly one terminal event of its
// own. Public methods are safe for concurrent use.
type Runner struct {
	root agent.Agent

	eventBufferSize int
	summaryAuthor   string

	sessionStore core.SessionStore
	logger       logging.Logger
	recorder     Recorder
	sinks        []Sink
	sem          *semaphore.Weighted

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

var _ core.Runner = (*Runner)(nil)

// New constructs a Runner for root with optional overrides.
func New(root agent.Agent, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxConcurrentRuns: 10,
		EventBufferSize:   100,
		SessionStore:      session.NewInMemoryStore(),
		Logger:            logging.NoOpLogger{},
		SummaryAuthor:     "orchestrator",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = 1
	}

	return &Runner{
		root:            root,
		eventBufferSize: opts.EventBufferSize,
		summaryAuthor:   opts.SummaryAuthor,
		sessionStore:    opts.SessionStore,
		logger:          opts.Logger,
		recorder:        opts.Recorder,
		sinks:           opts.Sinks,
		sem:             semaphore.NewWeighted(opts.MaxConcurrentRuns),
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// Root returns the agent graph executed by this runner.
func (r *Runner) Root() agent.Agent { return r.root }

// SummaryAuthor returns the author of the terminal summary event.
func (r *Runner) SummaryAuthor() string { return r.summaryAuthor }

// SessionStore returns the store backing this runner.
func (r *Runner) SessionStore() core.SessionStore { return r.sessionStore }

// Run starts an asynchronous run of the root agent for the session
// identified by key. The session must exist.
func (r *Runner) Run(
	ctx context.Context,
	key core.SessionKey,
	userContent core.Content,
) (string, <-chan core.Event, <-chan error, error) {
	sess, err := r.sessionStore.Get(ctx, key)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to get session: %w", err)
	}

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", nil, nil, fmt.Errorf("failed to acquire run slot: %w", err)
	}

	runID := core.NewID()

	if len(userContent.Parts) > 0 {
		userEvent := core.NewUserContentEvent(runID, &userContent)
		if err := r.sessionStore.AppendEvent(ctx, key, userEvent); err != nil {
			r.sem.Release(1)
			return "", nil, nil, fmt.Errorf("failed to append user event: %w", err)
		}
	}

	eventsCh := make(chan core.Event, r.eventBufferSize)
	errorsCh := make(chan error, 1)
	agentEmit := make(chan core.Event, r.eventBufferSize)

	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	runCtx := core.NewRunContext(
		ctx,
		key,
		runID,
		core.AgentInfo{Name: r.root.Name(), Type: kindOf(r.root)},
		userContent,
		core.NewState(sess.StateSnapshot()),
		agentEmit,
		logging.ForRun(r.logger, key.String(), runID),
	)

	if r.recorder != nil {
		r.recorder.RunStarted(key.AppName)
	}

	runCtx.LogInfo("runner.run.start", "root", r.root.Name())

	go func() {
		start := time.Now()
		status := StatusCancelled

		defer func() {
			close(agentEmit)
			r.mu.Lock()
			delete(r.activeRuns, runID)
			r.mu.Unlock()
			r.sem.Release(1)

			if r.recorder != nil {
				r.recorder.RunFinished(key.AppName, status, time.Since(start))
			}

			runCtx.LogInfo("runner.run.finish", "status", status, "duration_ms", time.Since(start).Milliseconds())
		}()

		status = r.runAgent(runCtx)
	}()

	go func() {
		defer func() { close(eventsCh); close(errorsCh) }()
		defer cancel()

		r.processEvents(runCtx, cancel, agentEmit, eventsCh, errorsCh)
	}()

	return runID, eventsCh, errorsCh, nil
}

// Cancel cancels a running run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

// ActiveRuns returns the number of in-flight runs.
func (r *Runner) ActiveRuns() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.activeRuns)
}

// runAgent executes the graph and emits the terminal event. It returns the
// run status.
func (r *Runner) runAgent(runCtx *core.RunContext) string {
	var err error

	if key := runCtx.State.Missing(agent.RequiredKeys(r.root)...); key != "" {
		err = &core.PreconditionError{Stage: r.root.Name(), Key: key}
	} else {
		err = r.runRoot(runCtx)
	}

	if runCtx.Err() != nil {
		return StatusCancelled
	}

	var ev core.Event

	status := StatusCompleted

	if err != nil {
		status = StatusFailed

		runCtx.LogWarn("runner.run.failed", "code", core.ErrorCode(err), "error", err)

		ev = core.NewErrorEvent(r.summaryAuthor, core.ErrorCode(err), err.Error())
	} else {
		ev = core.NewDataEvent(r.summaryAuthor, runCtx.State.Snapshot())
		ev.Final = true
	}

	ev.CustomMetadata = map[string]string{MetadataStatus: status}

	if emitErr := runCtx.EmitEvent(ev); emitErr != nil {
		return StatusCancelled
	}

	return status
}

func (r *Runner) runRoot(runCtx *core.RunContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("stage %s panicked: %v", r.root.Name(), rec)
			runCtx.LogPanic(err, "stage.panicked", "stage", r.root.Name())
		}
	}()

	return r.root.Run(runCtx)
}

func (r *Runner) processEvents(
	runCtx *core.RunContext,
	cancel context.CancelFunc,
	agentEmit <-chan core.Event,
	eventsCh chan<- core.Event,
	errorsCh chan<- error,
) {
	fail := func(err error) {
		runCtx.LogError("runner.pipeline.failed", "error", err)
		errorsCh <- err
		cancel()
	}

	for {
		select {
		case <-runCtx.Done():
			return
		case ev, ok := <-agentEmit:
			if !ok {
				return
			}

			if err := r.persist(runCtx, ev); err != nil {
				fail(err)
				return
			}

			if r.recorder != nil {
				r.recorder.EventProcessed(runCtx.SessionKey.AppName, ev)
			}

			if !ev.IsPartial() {
				r.publish(runCtx, ev)
			}

			select {
			case <-runCtx.Done():
				return
			case eventsCh <- ev:
				runCtx.LogDebug("runner.event.delivered", "event_id", ev.ID, "author", ev.Author)
			}
		}
	}
}

func (r *Runner) persist(runCtx *core.RunContext, ev core.Event) error {
	if len(ev.Actions.StateDelta) > 0 {
		if err := r.sessionStore.ApplyDelta(runCtx.Context, runCtx.SessionKey, ev.Actions.StateDelta); err != nil {
			return fmt.Errorf("failed to apply state delta: %w", err)
		}
	}

	if ev.IsPartial() {
		return nil
	}

	if err := r.sessionStore.AppendEvent(runCtx.Context, runCtx.SessionKey, ev); err != nil {
		return fmt.Errorf("failed to append event to session: %w", err)
	}

	return nil
}

func (r *Runner) publish(runCtx *core.RunContext, ev core.Event) {
	for _, s := range r.sinks {
		if err := s.Publish(runCtx.Context, runCtx.SessionKey, ev); err != nil && !errors.Is(err, context.Canceled) {
			runCtx.LogWarn("runner.sink.failed", "event_id", ev.ID, "error", err)
		}
	}
}

func kindOf(a agent.Agent) string {
	kind := ""

	_ = a.Accept(agent.VisitorFuncs{
		Leaf:       func(*agent.LeafAgent) error { kind = core.KindLeaf; return nil },
		Sequential: func(*agent.SequentialAgent) error { kind = core.KindSequential; return nil },
		Parallel:   func(*agent.ParallelAgent) error { kind = core.KindParallel; return nil },
	})

	return kind
}
