// Package nats mirrors session events onto NATS JetStream so external
// consumers can follow runs without holding a websocket.
package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/haldis/agentrelay/internal/domain/event"
)

const streamName = "AGENTRELAY"

// Mirror publishes session event envelopes to JetStream. Mirroring is best
// effort: a publish failure is logged and never reaches the run loop.
type Mirror struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Mirror, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"sessions.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Mirror{nc: nc, js: js}, nil
}

// Publish mirrors one serialized envelope under sessions.<id>.<type>.
func (m *Mirror) Publish(ctx context.Context, sessionID string, t event.Type, data []byte) {
	subject := fmt.Sprintf("sessions.%s.%s", sessionID, t)
	if _, err := m.js.Publish(ctx, subject, data); err != nil {
		slog.Warn("event mirror publish failed", "subject", subject, "error", err)
	}
}

// Close shuts down the NATS connection.
func (m *Mirror) Close() error {
	m.nc.Close()
	return nil
}
