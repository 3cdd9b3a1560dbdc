// Package event defines the outbound session event vocabulary and payloads.
package event

import (
	"time"

	"github.com/haldis/agentrelay/internal/domain/run"
)

// Type identifies the kind of session event.
type Type string

// Run lifecycle and step events.
const (
	TypeConnected        Type = "connected"
	TypeAgentStarted     Type = "agent_started"
	TypeDirectoryChanged Type = "directory_changed"
	TypeStepStart        Type = "step_start"
	TypeAssistantMessage Type = "assistant_message"
	TypeToolCall         Type = "tool_call"
	TypeFileCreated      Type = "file_created"
	TypeStepSummary      Type = "step_summary"
	TypeWaitingForInput  Type = "waiting_for_input"
	TypeAutoContinue     Type = "auto_continue"
	TypeWarning          Type = "warning"
	TypeTaskCompleted    Type = "task_completed"
	TypeStepCompleted    Type = "step_completed"
	TypeUserStopped      Type = "user_stopped"
	TypeFinalSummary     Type = "final_summary"
	TypeAgentFinished    Type = "agent_finished"
	TypeAgentStopped     Type = "agent_stopped"
	TypeStepError        Type = "step_error"
	TypeExecutionError   Type = "execution_error"
)

// Control-channel responses.
const (
	TypeError             Type = "error"
	TypeStatus            Type = "status"
	TypeFilesList         Type = "files_list"
	TypeUserInputReceived Type = "user_input_received"
	TypeUserInputSent     Type = "user_input_sent"
	TypeStopRequested     Type = "agent_stop_requested"
)

// Envelope is the wire form of every outbound event. The timestamp is set by
// the sink at publish time.
type Envelope struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// ConnectedEvent confirms a new session to the client.
type ConnectedEvent struct {
	SessionID    string `json:"session_id"`
	AgentVersion string `json:"agent_version"`
	Provider     string `json:"api_provider"`
	OutputDir    string `json:"output_dir"`
}

// AgentStartedEvent announces a new run.
type AgentStartedEvent struct {
	Instruction  string `json:"instruction"`
	MaxSteps     int    `json:"max_steps"`
	AutoContinue int    `json:"auto_continue"`
	OutputDir    string `json:"output_dir"`
}

// DirectoryChangedEvent reports the run loop entering its working directory.
type DirectoryChangedEvent struct {
	Directory string `json:"directory"`
}

// StepStartEvent marks the beginning of a step.
type StepStartEvent struct {
	Step     int `json:"step"`
	MaxSteps int `json:"max_steps"`
}

// AssistantMessageEvent carries the oracle's free-text content for a step.
type AssistantMessageEvent struct {
	Content string `json:"content"`
}

// ToolCallEvent reports one executed tool invocation.
type ToolCallEvent struct {
	FunctionName string         `json:"function_name"`
	FunctionArgs map[string]any `json:"function_args"`
	Result       string         `json:"result"`
}

// FileCreatedEvent reports a file newly noticed by the session's ledger.
type FileCreatedEvent struct {
	File      run.FileRecord `json:"file"`
	SessionID string         `json:"session_id"`
}

// SummaryEvent carries a step or final change summary.
type SummaryEvent struct {
	Summary string `json:"summary"`
}

// WaitingForInputEvent signals that the run loop is blocked on user input.
type WaitingForInputEvent struct {
	Prompt string `json:"prompt"`
}

// MessageEvent is the generic single-message payload used by auto_continue,
// warning, task_completed, step_completed, user_stopped, agent_finished,
// agent_stopped and error events.
type MessageEvent struct {
	Message string `json:"message"`
}

// StepErrorEvent reports a failure inside a single step.
type StepErrorEvent struct {
	Error string `json:"error"`
	Step  int    `json:"step,omitempty"`
}

// StatusEvent answers a get_status request.
type StatusEvent struct {
	SessionID    string    `json:"session_id"`
	Running      bool      `json:"is_running"`
	ConnectedAt  time.Time `json:"connected_at"`
	AgentVersion string    `json:"agent_version"`
	Provider     string    `json:"api_provider"`
	OutputDir    string    `json:"output_dir"`
}

// FilesListEvent answers get_files / refresh_files requests.
type FilesListEvent struct {
	Files []run.FileRecord `json:"files"`
	Count int              `json:"count"`
}

// UserInputEvent acknowledges or records a user input.
type UserInputEvent struct {
	Input string `json:"input"`
}

// StopRequestedEvent answers a stop_agent request.
type StopRequestedEvent struct {
	Success bool `json:"success"`
}
