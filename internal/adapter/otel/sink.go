package otel

import (
	"context"

	"github.com/haldis/agentrelay/internal/domain/event"
	"github.com/haldis/agentrelay/internal/port/broadcast"
)

// MetricsSink decorates a broadcast sink, counting run activity by event type
// before forwarding. The run loop stays metrics-agnostic.
type MetricsSink struct {
	next broadcast.Sink
	m    *Metrics
}

// NewMetricsSink wraps next with metric counting. A nil Metrics returns next
// unwrapped.
func NewMetricsSink(next broadcast.Sink, m *Metrics) broadcast.Sink {
	if m == nil {
		return next
	}
	return &MetricsSink{next: next, m: m}
}

// Publish counts the event and forwards it.
func (s *MetricsSink) Publish(ctx context.Context, t event.Type, payload any) {
	switch t {
	case event.TypeAgentStarted:
		s.m.RunsStarted.Add(ctx, 1)
	case event.TypeStepStart:
		s.m.Steps.Add(ctx, 1)
	case event.TypeToolCall:
		s.m.ToolCalls.Add(ctx, 1)
	case event.TypeFileCreated:
		s.m.FilesCreated.Add(ctx, 1)
	case event.TypeAgentFinished, event.TypeAgentStopped:
		s.m.RunsCompleted.Add(ctx, 1)
	case event.TypeExecutionError, event.TypeStepError:
		s.m.RunsFailed.Add(ctx, 1)
	}
	s.next.Publish(ctx, t, payload)
}
