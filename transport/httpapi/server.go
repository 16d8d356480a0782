// Package httpapi exposes sessions and synchronous task execution over
// HTTP/JSON. A task buffers every event of its run and reports a terminal
// status once the run ends.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/logging"
	"github.com/hupe1980/agentchain/runner"
	"github.com/hupe1980/agentchain/session"
	"github.com/hupe1980/agentchain/transport"
)

// Task states.
const (
	TaskSubmitted = "submitted"
	TaskWorking   = "working"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// Task is the record of one synchronous run.
type Task struct {
	ID        string          `json:"id"`
	Session   core.SessionKey `json:"session"`
	Status    string          `json:"status"`
	RunID     string          `json:"run_id,omitempty"`
	Result    string          `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	State     map[string]any  `json:"state,omitempty"`
	Events    []core.Event    `json:"events"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Options configures the Server.
type Options struct {
	Logger logging.Logger
	// Card is served at AgentCardPath. It defaults to NewAgentCard over the
	// runner's root.
	Card *AgentCard
	// Extra routes mounted on the same mux, e.g. "/metrics".
	Routes map[string]http.Handler
}

// Server serves the HTTP API.
type Server struct {
	runner *runner.Runner
	store  core.SessionStore
	logger logging.Logger
	mux    *http.ServeMux
	card   AgentCard

	mu    sync.RWMutex
	tasks map[string]*Task
}

// New creates a Server for r.
func New(r *runner.Runner, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		runner: r,
		store:  r.SessionStore(),
		logger: opts.Logger,
		mux:    http.NewServeMux(),
		tasks:  make(map[string]*Task),
	}

	if opts.Card != nil {
		s.card = *opts.Card
	} else {
		s.card = NewAgentCard("", "", r.Root())
	}

	s.mux.HandleFunc("POST /apps/{app}/users/{user}/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /apps/{app}/users/{user}/sessions/{session}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /apps/{app}/users/{user}/sessions/{session}", s.handleDeleteSession)
	s.mux.HandleFunc("POST /apps/{app}/users/{user}/sessions/{session}/tasks", s.handleRunTask)
	s.mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("GET "+AgentCardPath, s.handleAgentCard)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	for pattern, h := range opts.Routes {
		s.mux.Handle(pattern, h)
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Serve listens on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type createSessionRequest struct {
	SessionID string         `json:"session_id"`
	State     map[string]any `json:"state"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if req.SessionID == "" {
		req.SessionID = core.NewID()
	}

	key := core.SessionKey{AppName: r.PathValue("app"), UserID: r.PathValue("user"), SessionID: req.SessionID}

	sess, err := s.store.Create(r.Context(), key, req.State)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.logger.Info("httpapi.session.created", "session", key.String())

	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.Context(), sessionKey(r))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), sessionKey(r)); err != nil {
		s.writeStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type runTaskRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	var req runTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "request body must contain a non-empty message")
		return
	}

	now := time.Now().UTC()
	task := &Task{
		ID:        core.NewID(),
		Session:   sessionKey(r),
		Status:    TaskSubmitted,
		Events:    []core.Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.putTask(task)

	s.updateTask(task.ID, func(t *Task) { t.Status = TaskWorking })

	outcome, err := transport.Invoke(r.Context(), s.runner, task.Session, req.Message, func(ev core.Event) error {
		if ev.IsPartial() {
			return nil
		}

		s.updateTask(task.ID, func(t *Task) { t.Events = append(t.Events, ev) })

		return nil
	})
	if err != nil {
		s.updateTask(task.ID, func(t *Task) {
			t.Status = TaskFailed
			t.Error = err.Error()
		})

		s.logger.Warn("httpapi.task.rejected", "task_id", task.ID, "error", err)

		if errors.Is(err, core.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		writeJSON(w, http.StatusServiceUnavailable, s.getTask(task.ID))

		return
	}

	s.updateTask(task.ID, func(t *Task) {
		t.RunID = outcome.RunID
		t.Result = outcome.Result
		t.Error = outcome.Error
		t.State = outcome.State
		t.Status = TaskCompleted

		if outcome.Failed() {
			t.Status = TaskFailed
		}
	})

	s.logger.Info("httpapi.task.finished", "task_id", task.ID, "status", outcome.Status)

	writeJSON(w, http.StatusOK, s.getTask(task.ID))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task := s.getTask(r.PathValue("id"))
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

func (s *Server) putTask(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

func (s *Server) updateTask(id string, fn func(t *Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[id]; ok {
		fn(t)
		t.UpdatedAt = time.Now().UTC()
	}
}

// getTask returns a copy safe to encode outside the lock.
func (s *Server) getTask(id string) *Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil
	}

	cp := *t
	cp.Events = append([]core.Event(nil), t.Events...)

	return &cp
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSessionExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("httpapi.store.error", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func sessionKey(r *http.Request) core.SessionKey {
	return core.SessionKey{
		AppName:   r.PathValue("app"),
		UserID:    r.PathValue("user"),
		SessionID: r.PathValue("session"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
