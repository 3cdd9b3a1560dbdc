// Package broadcast defines the event-sink port used by the run loop.
package broadcast

import (
	"context"

	"github.com/haldis/agentrelay/internal/domain/event"
)

// Sink publishes one session-scoped event. Publication is fire-and-forget:
// implementations must swallow and log transport failures, never propagate
// them to the run loop.
type Sink interface {
	Publish(ctx context.Context, t event.Type, payload any)
}
