// Package ws implements the WebSocket adapter: one connection is one
// session, with a JSON control channel in and enveloped events out.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/haldis/agentrelay/internal/adapter/nats"
	"github.com/haldis/agentrelay/internal/adapter/otel"
	"github.com/haldis/agentrelay/internal/domain"
	"github.com/haldis/agentrelay/internal/domain/event"
	"github.com/haldis/agentrelay/internal/domain/run"
	"github.com/haldis/agentrelay/internal/port/memstore"
	"github.com/haldis/agentrelay/internal/port/oracle"
	"github.com/haldis/agentrelay/internal/port/summary"
	toolsport "github.com/haldis/agentrelay/internal/port/tools"
	"github.com/haldis/agentrelay/internal/service"
)

// Message is the envelope for all inbound control messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler owns the websocket endpoint and the per-connection session
// lifecycle. NewTools and NewMemory are factories because tools are rooted
// in the session's output directory and memory is keyed by session id.
type Handler struct {
	Registry   *service.Registry
	Oracle     oracle.Oracle
	NewTools   func(outputDir string) toolsport.Executor
	Summarizer summary.Summarizer
	NewMemory  func(sessionID string) memstore.Store
	Mirror     *nats.Mirror
	Metrics    *otel.Metrics

	Version         string
	Provider        string
	InputTimeout    time.Duration
	DefaultMaxSteps int
}

// HandleWS upgrades the connection, registers a session and serves the
// control channel until the client disconnects.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	id := uuid.NewString()
	sess, err := h.Registry.Create(id)
	if err != nil {
		slog.Error("session create failed", "session_id", id, "error", err)
		_ = ws.Close(websocket.StatusInternalError, "session create failed")
		return
	}
	defer h.Registry.Remove(id)

	sc := newSessionConn(id, ws, h.Mirror)
	slog.Info("websocket connected", "session_id", id, "remote", r.RemoteAddr)

	ctx := r.Context()
	sc.Publish(ctx, event.TypeConnected, event.ConnectedEvent{
		SessionID:    id,
		AgentVersion: h.Version,
		Provider:     h.Provider,
		OutputDir:    sess.OutputDir,
	})

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			slog.Info("websocket disconnected", "session_id", id)
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			sc.Publish(ctx, event.TypeError, event.MessageEvent{Message: "Invalid message format"})
			continue
		}

		h.dispatch(ctx, sess, sc, msg)
	}

	_ = ws.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) dispatch(ctx context.Context, sess *service.Session, sc *sessionConn, msg Message) {
	switch msg.Type {
	case "run_agent":
		h.handleRunAgent(ctx, sess, sc, msg.Payload)
	case "stop_agent":
		h.handleStopAgent(ctx, sess, sc)
	case "user_input":
		h.handleUserInput(ctx, sess, sc, msg.Payload)
	case "get_status":
		h.handleGetStatus(ctx, sess, sc)
	case "get_files":
		h.handleGetFiles(ctx, sess, sc)
	case "refresh_files":
		h.handleRefreshFiles(ctx, sess, sc)
	default:
		sc.Publish(ctx, event.TypeError, event.MessageEvent{Message: "Unknown message type: " + msg.Type})
	}
}

type runAgentRequest struct {
	Instruction  string `json:"instruction"`
	MaxSteps     *int   `json:"max_steps"`
	AutoContinue *int   `json:"auto_continue"`
}

func (h *Handler) handleRunAgent(ctx context.Context, sess *service.Session, sc *sessionConn, payload json.RawMessage) {
	var req runAgentRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			sc.Publish(ctx, event.TypeError, event.MessageEvent{Message: "Invalid run_agent payload"})
			return
		}
	}

	p := run.Params{
		Instruction:  strings.TrimSpace(req.Instruction),
		MaxSteps:     h.DefaultMaxSteps,
		AutoContinue: 0,
	}
	if req.MaxSteps != nil {
		p.MaxSteps = *req.MaxSteps
	}
	if req.AutoContinue != nil {
		p.AutoContinue = *req.AutoContinue
	}

	if err := p.Validate(); err != nil {
		sc.Publish(ctx, event.TypeError, event.MessageEvent{Message: err.Error()})
		return
	}

	loop := service.NewRunLoop(
		sess,
		h.Oracle,
		h.NewTools(sess.OutputDir),
		h.Summarizer,
		h.NewMemory(sess.ID),
		otel.NewMetricsSink(sc, h.Metrics),
		h.InputTimeout,
	)

	// The run outlives individual control messages; it is bounded by the
	// session lifecycle, not the request context.
	if err := sess.StartRun(context.Background(), loop, p); err != nil {
		if errors.Is(err, domain.ErrSessionAlreadyRunning) {
			sc.Publish(ctx, event.TypeError, event.MessageEvent{Message: "Agent is already running"})
			return
		}
		sc.Publish(ctx, event.TypeError, event.MessageEvent{Message: err.Error()})
	}
}

func (h *Handler) handleStopAgent(ctx context.Context, sess *service.Session, sc *sessionConn) {
	if err := sess.Stop(); err != nil {
		if errors.Is(err, domain.ErrAgentNotRunning) {
			sc.Publish(ctx, event.TypeError, event.MessageEvent{Message: "Agent is not running"})
			return
		}
		sc.Publish(ctx, event.TypeError, event.MessageEvent{Message: err.Error()})
		return
	}
	sc.Publish(ctx, event.TypeStopRequested, event.StopRequestedEvent{Success: true})
}

type userInputRequest struct {
	Input string `json:"input"`
}

func (h *Handler) handleUserInput(ctx context.Context, sess *service.Session, sc *sessionConn, payload json.RawMessage) {
	var req userInputRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			sc.Publish(ctx, event.TypeError, event.MessageEvent{Message: "Invalid user_input payload"})
			return
		}
	}
	if req.Input == "" {
		sc.Publish(ctx, event.TypeError, event.MessageEvent{Message: "Input is required"})
		return
	}

	if err := sess.DeliverInput(req.Input); err != nil {
		msg := err.Error()
		switch {
		case errors.Is(err, domain.ErrAgentNotRunning):
			msg = "Agent is not running"
		case errors.Is(err, domain.ErrNotAwaitingInput):
			msg = "Agent is not waiting for input"
		}
		sc.Publish(ctx, event.TypeError, event.MessageEvent{Message: msg})
		return
	}
	sc.Publish(ctx, event.TypeUserInputSent, event.UserInputEvent{Input: req.Input})
}

func (h *Handler) handleGetStatus(ctx context.Context, sess *service.Session, sc *sessionConn) {
	sc.Publish(ctx, event.TypeStatus, event.StatusEvent{
		SessionID:    sess.ID,
		Running:      sess.Running(),
		ConnectedAt:  sess.CreatedAt,
		AgentVersion: h.Version,
		Provider:     h.Provider,
		OutputDir:    sess.OutputDir,
	})
}

func (h *Handler) handleGetFiles(ctx context.Context, sess *service.Session, sc *sessionConn) {
	files := sess.Ledger.CreatedFiles()
	sc.Publish(ctx, event.TypeFilesList, event.FilesListEvent{Files: files, Count: len(files)})
}

func (h *Handler) handleRefreshFiles(ctx context.Context, sess *service.Session, sc *sessionConn) {
	for _, f := range sess.Ledger.ScanForNew(sess.OutputDir) {
		sc.Publish(ctx, event.TypeFileCreated, event.FileCreatedEvent{File: f, SessionID: sess.ID})
	}
	files := sess.Ledger.CreatedFiles()
	sc.Publish(ctx, event.TypeFilesList, event.FilesListEvent{Files: files, Count: len(files)})
}
