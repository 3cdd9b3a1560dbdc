// Package run defines the conversation and execution domain types for a
// single agent run: transcript messages, tool calls, change descriptors,
// run parameters, and terminal outcomes.
package run

import (
	"fmt"
	"time"

	"github.com/haldis/agentrelay/internal/domain"
)

// Message roles in a run transcript.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// UnlimitedAutoContinue is the auto-continue sentinel for "never pause".
const UnlimitedAutoContinue = -1

// ToolCall is a single tool invocation requested by the decision oracle.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// Message is one role-tagged entry in a run's transcript. The transcript is
// mutated only by the run-loop goroutine.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// Change describes a side effect produced by a tool call. The run loop
// accumulates changes and forwards them to the summarizer; it never
// interprets them itself.
type Change struct {
	Action string `json:"action"`
	Path   string `json:"path"`
	Detail string `json:"detail,omitempty"`
}

// Params holds the entry contract of a run.
type Params struct {
	Instruction  string
	MaxSteps     int
	AutoContinue int // 0 = manual, k > 0 = k automatic continuations, -1 = unlimited
}

// Validate checks the run parameters at the control boundary.
func (p Params) Validate() error {
	if p.Instruction == "" {
		return fmt.Errorf("%w: instruction is required", domain.ErrValidation)
	}
	if p.MaxSteps < 1 {
		return fmt.Errorf("%w: max_steps must be >= 1", domain.ErrValidation)
	}
	if p.AutoContinue < UnlimitedAutoContinue {
		return fmt.Errorf("%w: auto_continue must be >= -1", domain.ErrValidation)
	}
	return nil
}

// Outcome is the terminal state of a run.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeStopped   Outcome = "stopped"
	OutcomeErrored   Outcome = "errored"
	OutcomeMaxSteps  Outcome = "max_steps"
)

// FileRecord describes a file first noticed by the session's file ledger.
// Created and Modified both carry the source mtime; Go's portable stat
// surface does not expose a creation time.
type FileRecord struct {
	Path       string    `json:"path"`
	RelPath    string    `json:"relative_path"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created"`
	ModifiedAt time.Time `json:"modified"`
}
