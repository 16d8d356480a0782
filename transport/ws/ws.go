// Package ws streams run events over a WebSocket. Every inbound text message
// on a connection starts one run; each event is written as JSON as soon as it
// is produced, followed by a status sentinel when the run ends.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/logging"
	"github.com/hupe1980/agentchain/runner"
	"github.com/hupe1980/agentchain/transport"
)

// Sentinel status texts.
const (
	StatusFinished = "Agent run finished."
	StatusFailed   = "Agent run failed."
)

// Sentinel is the last message of a run.
type Sentinel struct {
	Status string `json:"status"`
	RunID  string `json:"run_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ErrorMessage reports a protocol error.
type ErrorMessage struct {
	Error string `json:"error"`
}

// Options configures the Handler.
type Options struct {
	AppName      string
	UserID       string
	WriteTimeout time.Duration
	Logger       logging.Logger
	CheckOrigin  func(r *http.Request) bool
}

// Handler serves GET /ws/{session}.
type Handler struct {
	runner   *runner.Runner
	upgrader websocket.Upgrader
	opts     Options
}

// New creates a Handler for r.
func New(r *runner.Runner, optFns ...func(o *Options)) *Handler {
	opts := Options{
		AppName:      "factory_ws_app",
		UserID:       "websocket_user",
		WriteTimeout: 10 * time.Second,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Handler{
		runner: r,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.CheckOrigin,
		},
	}
}

// Pattern is the route the handler expects to be mounted on.
const Pattern = "GET /ws/{session}"

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.opts.Logger.Warn("ws.upgrade.failed", "error", err)
		return
	}
	defer conn.Close()

	key := core.SessionKey{AppName: h.opts.AppName, UserID: h.opts.UserID, SessionID: sessionID}

	h.opts.Logger.Info("ws.connection.open", "session", key.String())
	defer h.opts.Logger.Info("ws.connection.closed", "session", key.String())

	h.serve(r.Context(), conn, key)
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, key core.SessionKey) {
	w := &writer{conn: conn, timeout: h.opts.WriteTimeout}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.opts.Logger.Debug("ws.read.failed", "session", key.String(), "error", err)
			}

			return
		}

		if msgType != websocket.TextMessage || len(data) == 0 {
			if err := w.send(ErrorMessage{Error: "expected a non-empty text message"}); err != nil {
				return
			}

			continue
		}

		outcome, err := transport.Invoke(ctx, h.runner, key, string(data), func(ev core.Event) error {
			return w.send(ev)
		})
		if err != nil {
			h.opts.Logger.Warn("ws.run.rejected", "session", key.String(), "error", err)

			if err := w.send(ErrorMessage{Error: err.Error()}); err != nil {
				return
			}

			continue
		}

		sentinel := Sentinel{Status: StatusFinished, RunID: outcome.RunID}
		if outcome.Failed() {
			sentinel.Status = StatusFailed
			sentinel.Error = outcome.Error
		}

		if err := w.send(sentinel); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				h.opts.Logger.Debug("ws.write.failed", "session", key.String(), "error", err)
			}

			return
		}
	}
}

// writer serializes writes; gorilla connections support one concurrent writer.
type writer struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
}

func (w *writer) send(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}

	return w.conn.WriteJSON(v)
}
