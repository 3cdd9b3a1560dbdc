// Package service implements the session lifecycle and the agent run loop.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/haldis/agentrelay/internal/adapter/otel"
	"github.com/haldis/agentrelay/internal/domain/event"
	"github.com/haldis/agentrelay/internal/domain/run"
	"github.com/haldis/agentrelay/internal/port/broadcast"
	"github.com/haldis/agentrelay/internal/port/memstore"
	"github.com/haldis/agentrelay/internal/port/oracle"
	"github.com/haldis/agentrelay/internal/port/summary"
	"github.com/haldis/agentrelay/internal/port/tools"
)

// inputPrompt is shown to the user whenever the run pauses for input.
const inputPrompt = "Enter your next instruction, 'y' to continue with current task, or 'n' to stop"

// RunLoop drives one agent run for a session: oracle step, tool execution,
// file scan, continuation decision. A RunLoop is built per run and used once.
type RunLoop struct {
	session      *Session
	oracle       oracle.Oracle
	tools        tools.Executor
	summarizer   summary.Summarizer
	memory       memstore.Store
	sink         broadcast.Sink
	inputTimeout time.Duration

	transcript []run.Message
	changes    []run.Change
}

// NewRunLoop wires a run loop for one run on the given session.
func NewRunLoop(
	s *Session,
	o oracle.Oracle,
	exec tools.Executor,
	sum summary.Summarizer,
	mem memstore.Store,
	sink broadcast.Sink,
	inputTimeout time.Duration,
) *RunLoop {
	if inputTimeout <= 0 {
		inputTimeout = DefaultInputTimeout
	}
	return &RunLoop{
		session:      s,
		oracle:       o,
		tools:        exec,
		summarizer:   sum,
		memory:       mem,
		sink:         sink,
		inputTimeout: inputTimeout,
	}
}

// Run executes the full run to a terminal outcome. It never returns an
// error: every failure mode ends in events, a memory flush, and a terminal
// event on the sink.
func (l *RunLoop) Run(ctx context.Context, p run.Params) run.Outcome {
	ctx, span := otel.StartRunSpan(ctx, l.session.ID, p.MaxSteps)
	defer span.End()

	l.sink.Publish(ctx, event.TypeAgentStarted, event.AgentStartedEvent{
		Instruction:  p.Instruction,
		MaxSteps:     p.MaxSteps,
		AutoContinue: p.AutoContinue,
		OutputDir:    l.session.OutputDir,
	})

	restore, err := enterDir(l.session.OutputDir)
	if err != nil {
		slog.Warn("run loop could not enter output dir", "session_id", l.session.ID, "error", err)
	} else {
		defer restore()
		if wd, err := os.Getwd(); err == nil {
			l.sink.Publish(ctx, event.TypeDirectoryChanged, event.DirectoryChangedEvent{Directory: wd})
		}
	}

	l.transcript = []run.Message{
		{Role: run.RoleSystem, Content: systemMessage(0, p.MaxSteps, p.AutoContinue)},
		{Role: run.RoleUser, Content: p.Instruction},
	}

	outcome := l.steps(ctx, p)

	if len(l.changes) > 0 {
		if s := l.summarizer.Summarize(l.changes, false); s != "" {
			l.sink.Publish(ctx, event.TypeFinalSummary, event.SummaryEvent{Summary: s})
		}
	}

	if err := l.memory.AppendConversation(l.transcript); err != nil {
		slog.Warn("memory append failed", "session_id", l.session.ID, "error", err)
	}
	if err := l.memory.Persist(); err != nil {
		slog.Warn("memory persist failed", "session_id", l.session.ID, "error", err)
	}

	if outcome == run.OutcomeStopped {
		l.sink.Publish(ctx, event.TypeAgentStopped, event.MessageEvent{Message: "Agent execution stopped"})
	} else {
		l.sink.Publish(ctx, event.TypeAgentFinished, event.MessageEvent{Message: "Agent execution completed"})
	}

	slog.Info("run finished", "session_id", l.session.ID, "outcome", outcome)
	return outcome
}

// steps runs the step loop until a terminal condition. A panic inside a step
// is downgraded to an execution_error event rather than taking down the
// session goroutine.
func (l *RunLoop) steps(ctx context.Context, p run.Params) (outcome run.Outcome) {
	step := 0

	defer func() {
		if r := recover(); r != nil {
			slog.Error("run loop panicked", "session_id", l.session.ID, "step", step, "panic", r)
			l.sink.Publish(ctx, event.TypeExecutionError, event.StepErrorEvent{
				Error: fmt.Sprint(r),
				Step:  step,
			})
			outcome = run.OutcomeErrored
		}
	}()

	autoRemaining := p.AutoContinue

	for step < p.MaxSteps && !l.session.StopRequested() {
		step++
		l.sink.Publish(ctx, event.TypeStepStart, event.StepStartEvent{Step: step, MaxSteps: p.MaxSteps})

		stepCtx, stepSpan := otel.StartStepSpan(ctx, step)

		l.transcript[0] = run.Message{
			Role:    run.RoleSystem,
			Content: systemMessage(step, p.MaxSteps, autoRemaining),
		}

		action, err := l.oracle.NextAction(stepCtx, l.transcript)
		if err != nil {
			stepSpan.End()
			l.sink.Publish(ctx, event.TypeStepError, event.StepErrorEvent{Error: err.Error(), Step: step})
			return run.OutcomeErrored
		}
		if action == nil || (action.Content == "" && !action.HasToolCalls()) {
			stepSpan.End()
			l.sink.Publish(ctx, event.TypeError, event.MessageEvent{Message: "Failed to get a response from the model"})
			return run.OutcomeErrored
		}

		if action.Content != "" {
			l.sink.Publish(ctx, event.TypeAssistantMessage, event.AssistantMessageEvent{Content: action.Content})
		}

		l.transcript = append(l.transcript, run.Message{
			Role:      run.RoleAssistant,
			Content:   action.Content,
			ToolCalls: action.ToolCalls,
		})

		stepChanges, err := l.executeTools(stepCtx, action.ToolCalls)
		stepSpan.End()
		if err != nil {
			l.sink.Publish(ctx, event.TypeStepError, event.StepErrorEvent{Error: err.Error(), Step: step})
			return run.OutcomeErrored
		}

		if len(stepChanges) > 0 {
			if s := l.summarizer.Summarize(stepChanges, true); s != "" {
				l.sink.Publish(ctx, event.TypeStepSummary, event.SummaryEvent{Summary: s})
			}
		}

		sig := run.Classify(action.Content, action.HasToolCalls())
		if sig == run.SignalCompleted {
			l.sink.Publish(ctx, event.TypeTaskCompleted, event.MessageEvent{Message: "Task completed successfully"})
			return run.OutcomeCompleted
		}

		awaiting := sig == run.SignalAwaitingInput && autoRemaining == 0
		needsMore := sig == run.SignalNeedsMoreSteps

		if step < p.MaxSteps && !awaiting && !l.session.StopRequested() {
			if autoRemaining == run.UnlimitedAutoContinue || autoRemaining > 0 {
				if autoRemaining > 0 {
					autoRemaining--
				}
				if !action.HasToolCalls() && action.Content != "" && run.LooksLikeQuestion(action.Content) {
					l.transcript = append(l.transcript, run.Message{Role: run.RoleUser, Content: "y"})
					l.sink.Publish(ctx, event.TypeAutoContinue, event.MessageEvent{Message: `Auto-continuing with "y" response`})
				}
				if needsMore {
					l.sink.Publish(ctx, event.TypeWarning, event.MessageEvent{Message: "Task requires more steps than currently allocated"})
				}
				continue
			}

			input := l.awaitUserInput(ctx)
			switch input {
			case StopSentinel:
				l.sink.Publish(ctx, event.TypeUserStopped, event.MessageEvent{Message: "User requested to stop"})
				return run.OutcomeStopped
			case "y":
				continue
			default:
				l.transcript = append(l.transcript, run.Message{Role: run.RoleUser, Content: input})
				l.sink.Publish(ctx, event.TypeUserInputReceived, event.UserInputEvent{Input: input})
				continue
			}
		}

		if awaiting {
			l.sink.Publish(ctx, event.TypeStepCompleted, event.MessageEvent{Message: "No further actions needed"})
			return run.OutcomeCompleted
		}
		if needsMore {
			l.sink.Publish(ctx, event.TypeWarning, event.MessageEvent{Message: "Reached maximum steps but task requires more steps"})
		}
		if l.session.StopRequested() {
			return run.OutcomeStopped
		}
		return run.OutcomeMaxSteps
	}

	if l.session.StopRequested() {
		return run.OutcomeStopped
	}
	return run.OutcomeMaxSteps
}

// executeTools runs the step's tool calls sequentially, publishes a
// tool_call event per call and a file_created event per new file, appends
// the tool result to the transcript, and returns the step's changes.
func (l *RunLoop) executeTools(ctx context.Context, calls []run.ToolCall) ([]run.Change, error) {
	var stepChanges []run.Change

	for _, call := range calls {
		var args map[string]any
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				return stepChanges, fmt.Errorf("decode arguments for %s: %w", call.Name, err)
			}
		}

		toolCtx, toolSpan := otel.StartToolCallSpan(ctx, call.Name)
		result, change, err := l.tools.Execute(toolCtx, call.Name, args)
		toolSpan.End()
		if err != nil {
			return stepChanges, fmt.Errorf("execute %s: %w", call.Name, err)
		}

		l.sink.Publish(ctx, event.TypeToolCall, event.ToolCallEvent{
			FunctionName: call.Name,
			FunctionArgs: args,
			Result:       result,
		})

		l.transcript = append(l.transcript, run.Message{
			Role:       run.RoleTool,
			Content:    result,
			ToolCallID: call.ID,
			Name:       call.Name,
		})

		if change != nil {
			l.changes = append(l.changes, *change)
			stepChanges = append(stepChanges, *change)
		}

		for _, f := range l.session.Ledger.ScanForNew(l.session.OutputDir) {
			l.sink.Publish(ctx, event.TypeFileCreated, event.FileCreatedEvent{
				File:      f,
				SessionID: l.session.ID,
			})
		}
	}

	return stepChanges, nil
}

// awaitUserInput announces the pause and blocks on the session's bridge. On
// timeout the bridge yields the stop sentinel.
func (l *RunLoop) awaitUserInput(ctx context.Context) string {
	l.sink.Publish(ctx, event.TypeWaitingForInput, event.WaitingForInputEvent{Prompt: inputPrompt})
	input := l.session.Bridge.Await(l.inputTimeout)
	return normalizeInput(input)
}

// normalizeInput lowercases "y"/"n" replies so casing and stray whitespace
// do not change their meaning; everything else passes through untouched.
func normalizeInput(input string) string {
	trimmed := strings.ToLower(strings.TrimSpace(input))
	if trimmed == "y" || trimmed == "n" {
		return trimmed
	}
	return input
}

// systemMessage renders the per-step guidance for the oracle. Step 0 is the
// initial seed before the first step begins.
func systemMessage(step, maxSteps, autoRemaining int) string {
	now := time.Now()

	var autoStatus, guidance string
	switch {
	case autoRemaining == run.UnlimitedAutoContinue:
		autoStatus = "enabled (infinite)"
		guidance = "IMPORTANT: You are running in AUTO-CONTINUE mode with infinite steps.\n" +
			"Do NOT ask the user questions or for input during task execution.\n" +
			"Instead, make decisions independently and proceed with executing the task to completion.\n" +
			"Your goal is to complete the requested task fully without human intervention."
	case autoRemaining > 0:
		autoStatus = fmt.Sprintf("enabled (%d steps remaining)", autoRemaining)
		guidance = "IMPORTANT: You are running in AUTO-CONTINUE mode.\n" +
			"Do NOT ask the user questions or for input during task execution.\n" +
			"Instead, make decisions independently and proceed with executing the task.\n" +
			"Your goal is to complete as much of the task as possible without human intervention."
	default:
		autoStatus = "disabled"
		guidance = "You are running in MANUAL mode.\n" +
			"If you need user input, make it clear by using phrases like \"do you need\", \"would you like\", etc.\n" +
			"The user will be prompted after each step to continue or provide new instructions."
	}

	stepContext := fmt.Sprintf("- Auto-continue is %s", autoStatus)
	if step > 0 {
		stepContext = fmt.Sprintf("- You are on step %d of %d total steps\n%s", step, maxSteps, stepContext)
	}

	return fmt.Sprintf(`You are an AI agent that can manage its own execution steps.
You are currently running with the following capabilities:
- You can stop execution early if the task is complete
- You can continue automatically if more steps are needed
- You should be mindful of the current step number and total steps available

Current date and time: %s
Your knowledge cutoff might be earlier, but you should consider the current date when processing tasks.
Always work with the understanding that it is now %d when handling time-sensitive information.

When responding:
1. Always consider if the task truly needs more steps
2. If a task is complete, include phrases like "task complete", "all done", "finished", or "completed successfully"
3. If you need more steps than allocated, make this clear in your response

%s

Current execution context:
%s
`, now.Format("2006-01-02 15:04:05"), now.Year(), guidance, stepContext)
}

// enterDir switches the process working directory to dir and returns a
// restore func. The chdir is process-global; tools also receive the absolute
// session directory and do not depend on it.
func enterDir(dir string) (func(), error) {
	prev, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getwd: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("chdir %s: %w", dir, err)
	}
	return func() {
		if err := os.Chdir(prev); err != nil {
			slog.Error("restore working directory failed", "dir", prev, "error", err)
		}
	}, nil
}
