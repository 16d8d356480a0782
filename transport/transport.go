// Package transport holds the pieces shared by the request/response and the
// streaming transports: session bootstrap, run invocation and the reduction
// of an event sequence to a terminal status.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/runner"
	"github.com/hupe1980/agentchain/session"
)

var errRunCancelled = errors.New("run cancelled")

// Terminal statuses reported by transports.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// InitialState returns the state of sessions created on first use.
func InitialState() map[string]any { return map[string]any{"initial": true} }

// Outcome summarizes a finished run.
type Outcome struct {
	RunID  string         `json:"run_id"`
	Status string         `json:"status"`
	Result string         `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
	State  map[string]any `json:"state,omitempty"`
}

// Failed reports whether the run ended in failure.
func (o Outcome) Failed() bool { return o.Status == StatusFailed }

// Tracker folds events into an Outcome. Any failure event, whether raised by
// a leaf or by the orchestrator, marks the run as failed.
type Tracker struct {
	summaryAuthor string
	outcome       Outcome
	finished      bool
}

// NewTracker creates a Tracker. summaryAuthor is the author of the
// orchestrator's terminal event.
func NewTracker(summaryAuthor string) *Tracker {
	return &Tracker{summaryAuthor: summaryAuthor, outcome: Outcome{Status: StatusCompleted}}
}

// Observe folds one event.
func (t *Tracker) Observe(ev core.Event) {
	if t.outcome.RunID == "" {
		t.outcome.RunID = ev.InvocationID
	}

	if !ev.IsFinal() {
		return
	}

	if ev.Author == t.summaryAuthor {
		t.finished = true
	}

	if ev.IsError() {
		t.outcome.Status = StatusFailed
		if t.outcome.Error == "" || ev.Author == t.summaryAuthor {
			t.outcome.Error = ev.ErrorMessage
		}

		return
	}

	if ev.Author == t.summaryAuthor && ev.Content != nil {
		for _, p := range ev.Content.Parts {
			if dp, ok := p.(core.DataPart); ok {
				t.outcome.State = dp.Data
			}
		}

		return
	}

	if ev.Content != nil {
		if text := ev.Content.Text(); text != "" {
			t.outcome.Result = text
		}
	}
}

// Fail records an infrastructure error.
func (t *Tracker) Fail(err error) {
	t.outcome.Status = StatusFailed
	t.outcome.Error = err.Error()
}

// Outcome returns the current summary.
func (t *Tracker) Outcome() Outcome { return t.outcome }

// Invoke runs the runner's root for key with the free-text message, creating
// the session with InitialState when it does not exist yet. onEvent is called
// for every event in order; if it returns an error the run is cancelled and
// the remaining events are discarded. The returned error is non-nil only when
// the run could not be started.
func Invoke(
	ctx context.Context,
	r *runner.Runner,
	key core.SessionKey,
	message string,
	onEvent func(core.Event) error,
) (Outcome, error) {
	if err := key.Validate(); err != nil {
		return Outcome{}, err
	}

	if _, err := session.GetOrCreate(ctx, r.SessionStore(), key, InitialState()); err != nil {
		return Outcome{}, fmt.Errorf("failed to prepare session: %w", err)
	}

	runID, events, errs, err := r.Run(ctx, key, core.NewTextContent("user", message))
	if err != nil {
		return Outcome{}, err
	}

	tracker := NewTracker(r.SummaryAuthor())
	tracker.outcome.RunID = runID

	var sendErr error

	for ev := range events {
		tracker.Observe(ev)

		if sendErr != nil || onEvent == nil {
			continue
		}

		if sendErr = onEvent(ev); sendErr != nil {
			_ = r.Cancel(runID)
		}
	}

	switch runErr := <-errs; {
	case runErr != nil:
		tracker.Fail(runErr)
	case sendErr != nil:
		tracker.Fail(sendErr)
	case !tracker.finished:
		tracker.Fail(errRunCancelled)
	}

	return tracker.Outcome(), nil
}
