package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/haldis/agentrelay/internal/adapter/nats"
	"github.com/haldis/agentrelay/internal/domain/event"
)

// writeTimeout bounds a single websocket write so a stalled client cannot
// block the run loop.
const writeTimeout = 10 * time.Second

// sessionConn is the per-connection event sink. Writes are serialized with a
// mutex because the run loop and the control dispatcher publish concurrently.
type sessionConn struct {
	sessionID string
	ws        *websocket.Conn
	mirror    *nats.Mirror

	mu sync.Mutex
}

func newSessionConn(sessionID string, ws *websocket.Conn, mirror *nats.Mirror) *sessionConn {
	return &sessionConn{sessionID: sessionID, ws: ws, mirror: mirror}
}

// Publish sends one enveloped event to the client and mirrors it to NATS
// when configured. Failures are logged and swallowed.
func (c *sessionConn) Publish(ctx context.Context, t event.Type, payload any) {
	env := event.Envelope{
		Type:      t,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	data, err := json.Marshal(env)
	if err != nil {
		slog.Error("event marshal failed", "session_id", c.sessionID, "type", t, "error", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	c.mu.Lock()
	err = c.ws.Write(writeCtx, websocket.MessageText, data)
	c.mu.Unlock()
	if err != nil {
		slog.Debug("websocket write failed", "session_id", c.sessionID, "type", t, "error", err)
	}

	if c.mirror != nil {
		c.mirror.Publish(ctx, c.sessionID, t, data)
	}
}
