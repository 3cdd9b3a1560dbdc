// Package oracle defines the decision-oracle port: the external component
// that proposes the next assistant turn for a transcript.
package oracle

import (
	"context"

	"github.com/haldis/agentrelay/internal/domain/run"
)

// Action is the oracle's decision for one step, decided once at the boundary:
// free-text content, tool-call requests, or both.
type Action struct {
	Content   string
	ToolCalls []run.ToolCall
}

// HasToolCalls reports whether the action requests any tool invocations.
func (a *Action) HasToolCalls() bool {
	return a != nil && len(a.ToolCalls) > 0
}

// Oracle produces the next action given the full transcript. A nil action
// with a nil error means the oracle returned an empty response; both are
// fatal to the run but not to the process.
type Oracle interface {
	NextAction(ctx context.Context, transcript []run.Message) (*Action, error)
}
