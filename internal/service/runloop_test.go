package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/haldis/agentrelay/internal/domain/event"
	"github.com/haldis/agentrelay/internal/domain/run"
	"github.com/haldis/agentrelay/internal/port/oracle"
	toolsport "github.com/haldis/agentrelay/internal/port/tools"
	"github.com/haldis/agentrelay/internal/service"
)

// --- Mocks ---

type scriptedStep struct {
	action *oracle.Action
	err    error
}

type mockOracle struct {
	mu    sync.Mutex
	steps []scriptedStep
	calls int
}

func (m *mockOracle) NextAction(_ context.Context, _ []run.Message) (*oracle.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls >= len(m.steps) {
		return &oracle.Action{Content: "idle"}, nil
	}
	s := m.steps[m.calls]
	m.calls++
	return s.action, s.err
}

type mockTools struct {
	mu      sync.Mutex
	results map[string]string
	changes map[string]*run.Change
	calls   []string
}

func (m *mockTools) Definitions() []toolsport.Definition { return nil }

func (m *mockTools) Execute(_ context.Context, name string, _ map[string]any) (string, *run.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	return m.results[name], m.changes[name], nil
}

type mockSummarizer struct{}

func (mockSummarizer) Summarize(changes []run.Change, stepSummary bool) string {
	if len(changes) == 0 {
		return ""
	}
	if stepSummary {
		return "step summary"
	}
	return "final summary"
}

type mockMemory struct {
	mu        sync.Mutex
	appended  [][]run.Message
	persisted bool
}

func (m *mockMemory) AppendConversation(transcript []run.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]run.Message, len(transcript))
	copy(cp, transcript)
	m.appended = append(m.appended, cp)
	return nil
}

func (m *mockMemory) Persist() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persisted = true
	return nil
}

func (m *mockMemory) Persisted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persisted
}

type publishedEvent struct {
	Type    event.Type
	Payload any
}

type recordingSink struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (s *recordingSink) Publish(_ context.Context, t event.Type, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, publishedEvent{Type: t, Payload: payload})
}

func (s *recordingSink) types() []event.Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Type, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func (s *recordingSink) count(t event.Type) int {
	n := 0
	for _, got := range s.types() {
		if got == t {
			n++
		}
	}
	return n
}

func (s *recordingSink) has(t event.Type) bool { return s.count(t) > 0 }

// --- Helpers ---

func newTestSession(t *testing.T) *service.Session {
	t.Helper()
	return &service.Session{
		ID:        "test-session",
		OutputDir: t.TempDir(),
		CreatedAt: time.Now(),
		Ledger:    service.NewFileLedger(),
		Bridge:    service.NewInputBridge(),
	}
}

func newTestLoop(sess *service.Session, o oracle.Oracle, exec *mockTools, mem *mockMemory, sink *recordingSink) *service.RunLoop {
	if exec == nil {
		exec = &mockTools{}
	}
	return service.NewRunLoop(sess, o, exec, mockSummarizer{}, mem, sink, 5*time.Second)
}

// --- Tests ---

func TestRunLoopCompletesOnCompletionPhrase(t *testing.T) {
	sess := newTestSession(t)
	o := &mockOracle{steps: []scriptedStep{
		{action: &oracle.Action{Content: "All done, task complete."}},
	}}
	mem := &mockMemory{}
	sink := &recordingSink{}

	outcome := newTestLoop(sess, o, nil, mem, sink).Run(context.Background(), run.Params{
		Instruction: "say hello", MaxSteps: 5,
	})

	if outcome != run.OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", outcome)
	}
	if o.calls != 1 {
		t.Errorf("oracle calls = %d, want 1", o.calls)
	}
	for _, want := range []event.Type{
		event.TypeAgentStarted,
		event.TypeStepStart,
		event.TypeAssistantMessage,
		event.TypeTaskCompleted,
		event.TypeAgentFinished,
	} {
		if !sink.has(want) {
			t.Errorf("missing event %s in %v", want, sink.types())
		}
	}
	if !mem.Persisted() {
		t.Error("memory was not persisted")
	}
}

func TestRunLoopStopsAtMaxSteps(t *testing.T) {
	sess := newTestSession(t)
	o := &mockOracle{} // always returns neutral content
	mem := &mockMemory{}
	sink := &recordingSink{}

	outcome := newTestLoop(sess, o, nil, mem, sink).Run(context.Background(), run.Params{
		Instruction: "loop forever", MaxSteps: 3, AutoContinue: run.UnlimitedAutoContinue,
	})

	if outcome != run.OutcomeMaxSteps {
		t.Fatalf("outcome = %v, want max_steps", outcome)
	}
	if got := sink.count(event.TypeStepStart); got != 3 {
		t.Errorf("step_start count = %d, want 3", got)
	}
	if !sink.has(event.TypeAgentFinished) {
		t.Error("missing agent_finished")
	}
}

func TestRunLoopManualStop(t *testing.T) {
	sess := newTestSession(t)
	o := &mockOracle{steps: []scriptedStep{
		{action: &oracle.Action{Content: "Wrote the first part."}},
	}}
	mem := &mockMemory{}
	sink := &recordingSink{}
	loop := newTestLoop(sess, o, nil, mem, sink)

	done := make(chan run.Outcome, 1)
	go func() {
		done <- loop.Run(context.Background(), run.Params{Instruction: "ask me", MaxSteps: 5})
	}()

	waitForInput(t, sess)
	if !sess.Bridge.Deliver("n") {
		t.Fatal("Deliver returned false while run was waiting")
	}

	outcome := <-done
	if outcome != run.OutcomeStopped {
		t.Fatalf("outcome = %v, want stopped", outcome)
	}
	if !sink.has(event.TypeWaitingForInput) {
		t.Error("missing waiting_for_input")
	}
	if !sink.has(event.TypeUserStopped) {
		t.Error("missing user_stopped")
	}
	if !sink.has(event.TypeAgentStopped) {
		t.Error("missing agent_stopped")
	}
	if sink.has(event.TypeAgentFinished) {
		t.Error("agent_finished must not follow a stop")
	}
}

func TestRunLoopManualContinueWithNewInstruction(t *testing.T) {
	sess := newTestSession(t)
	o := &mockOracle{steps: []scriptedStep{
		{action: &oracle.Action{Content: "Done with part one."}},
		{action: &oracle.Action{Content: "task complete"}},
	}}
	mem := &mockMemory{}
	sink := &recordingSink{}
	loop := newTestLoop(sess, o, nil, mem, sink)

	done := make(chan run.Outcome, 1)
	go func() {
		done <- loop.Run(context.Background(), run.Params{Instruction: "two parts", MaxSteps: 5})
	}()

	waitForInput(t, sess)
	sess.Bridge.Deliver("now do part two")

	outcome := <-done
	if outcome != run.OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", outcome)
	}
	if !sink.has(event.TypeUserInputReceived) {
		t.Error("missing user_input_received")
	}
	if o.calls != 2 {
		t.Errorf("oracle calls = %d, want 2", o.calls)
	}

	// The delivered instruction must land in the persisted transcript.
	mem.mu.Lock()
	defer mem.mu.Unlock()
	found := false
	for _, m := range mem.appended[0] {
		if m.Role == run.RoleUser && m.Content == "now do part two" {
			found = true
		}
	}
	if !found {
		t.Error("delivered instruction missing from transcript")
	}
}

func TestRunLoopManualContinueWithAffirmative(t *testing.T) {
	sess := newTestSession(t)
	o := &mockOracle{steps: []scriptedStep{
		{action: &oracle.Action{Content: "Wrote the first part."}},
		{action: &oracle.Action{Content: "task complete"}},
	}}
	mem := &mockMemory{}
	sink := &recordingSink{}
	loop := newTestLoop(sess, o, nil, mem, sink)

	done := make(chan run.Outcome, 1)
	go func() {
		done <- loop.Run(context.Background(), run.Params{Instruction: "keep going", MaxSteps: 5})
	}()

	waitForInput(t, sess)
	if !sess.Bridge.Deliver(" Y ") {
		t.Fatal("Deliver returned false while run was waiting")
	}

	outcome := <-done
	if outcome != run.OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", outcome)
	}
	if o.calls != 2 {
		t.Errorf("oracle calls = %d, want 2", o.calls)
	}
	if sink.has(event.TypeUserInputReceived) {
		t.Error("an affirmative must resume without a new user turn")
	}

	// "y" resumes the current task; no user message is appended for it.
	mem.mu.Lock()
	defer mem.mu.Unlock()
	for _, m := range mem.appended[0] {
		if m.Role == run.RoleUser && m.Content != "keep going" {
			t.Errorf("unexpected user turn %q in transcript", m.Content)
		}
	}
}

func TestRunLoopAutoContinueInjectsAffirmative(t *testing.T) {
	sess := newTestSession(t)
	o := &mockOracle{steps: []scriptedStep{
		{action: &oracle.Action{Content: "Should I proceed with the next file?"}},
		{action: &oracle.Action{Content: "task complete"}},
	}}
	mem := &mockMemory{}
	sink := &recordingSink{}

	outcome := newTestLoop(sess, o, nil, mem, sink).Run(context.Background(), run.Params{
		Instruction: "no pauses", MaxSteps: 5, AutoContinue: 2,
	})

	if outcome != run.OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", outcome)
	}
	if !sink.has(event.TypeAutoContinue) {
		t.Error("missing auto_continue")
	}
	if sink.has(event.TypeWaitingForInput) {
		t.Error("auto mode must not pause for input")
	}

	mem.mu.Lock()
	defer mem.mu.Unlock()
	found := false
	for _, m := range mem.appended[0] {
		if m.Role == run.RoleUser && m.Content == "y" {
			found = true
		}
	}
	if !found {
		t.Error("auto-injected \"y\" missing from transcript")
	}
}

func TestRunLoopAutoBudgetExhaustedFallsBackToManual(t *testing.T) {
	sess := newTestSession(t)
	// Every step is a question. The single auto continuation covers step 1;
	// step 2's question then ends the run as awaiting input.
	o := &mockOracle{steps: []scriptedStep{
		{action: &oracle.Action{Content: "Would you like option A or B?"}},
		{action: &oracle.Action{Content: "Would you like option A or B?"}},
	}}
	mem := &mockMemory{}
	sink := &recordingSink{}
	loop := newTestLoop(sess, o, nil, mem, sink)

	done := make(chan run.Outcome, 1)
	go func() {
		done <- loop.Run(context.Background(), run.Params{Instruction: "choices", MaxSteps: 5, AutoContinue: 1})
	}()

	outcome := <-done
	if outcome != run.OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", outcome)
	}
	if got := sink.count(event.TypeStepStart); got != 2 {
		t.Errorf("step_start count = %d, want 2", got)
	}
	if !sink.has(event.TypeStepCompleted) {
		t.Error("missing step_completed")
	}
}

func TestRunLoopAutoBudgetExhaustedPausesOnNeutral(t *testing.T) {
	sess := newTestSession(t)
	// Neutral content never terminates on its own: the single auto
	// continuation covers step 1, then step 2 blocks on the bridge.
	o := &mockOracle{steps: []scriptedStep{
		{action: &oracle.Action{Content: "Working on part one."}},
		{action: &oracle.Action{Content: "Working on part two."}},
	}}
	mem := &mockMemory{}
	sink := &recordingSink{}
	loop := newTestLoop(sess, o, nil, mem, sink)

	done := make(chan run.Outcome, 1)
	go func() {
		done <- loop.Run(context.Background(), run.Params{Instruction: "two parts", MaxSteps: 5, AutoContinue: 1})
	}()

	waitForInput(t, sess)
	if got := sink.count(event.TypeStepStart); got != 2 {
		t.Errorf("step_start count = %d, want 2", got)
	}
	if got := sink.count(event.TypeWaitingForInput); got != 1 {
		t.Errorf("waiting_for_input count = %d, want 1", got)
	}
	sess.Bridge.Deliver("n")

	if outcome := <-done; outcome != run.OutcomeStopped {
		t.Fatalf("outcome = %v, want stopped", outcome)
	}
}

func TestRunLoopOracleErrorEndsRun(t *testing.T) {
	sess := newTestSession(t)
	o := &mockOracle{steps: []scriptedStep{
		{err: context.DeadlineExceeded},
	}}
	mem := &mockMemory{}
	sink := &recordingSink{}

	outcome := newTestLoop(sess, o, nil, mem, sink).Run(context.Background(), run.Params{
		Instruction: "fail", MaxSteps: 5,
	})

	if outcome != run.OutcomeErrored {
		t.Fatalf("outcome = %v, want errored", outcome)
	}
	if !sink.has(event.TypeStepError) {
		t.Error("missing step_error")
	}
	if !mem.Persisted() {
		t.Error("memory must be persisted even on error")
	}
}

func TestRunLoopEmptyOracleResponse(t *testing.T) {
	sess := newTestSession(t)
	o := &mockOracle{steps: []scriptedStep{
		{action: &oracle.Action{}},
	}}
	sink := &recordingSink{}

	outcome := newTestLoop(sess, o, nil, &mockMemory{}, sink).Run(context.Background(), run.Params{
		Instruction: "nothing", MaxSteps: 5,
	})

	if outcome != run.OutcomeErrored {
		t.Fatalf("outcome = %v, want errored", outcome)
	}
	if !sink.has(event.TypeError) {
		t.Error("missing error event")
	}
}

func TestRunLoopToolCallFlow(t *testing.T) {
	sess := newTestSession(t)
	o := &mockOracle{steps: []scriptedStep{
		{action: &oracle.Action{
			Content: "Writing the file now.",
			ToolCalls: []run.ToolCall{
				{ID: "call-1", Name: "write_file", Arguments: `{"path":"hello.txt","content":"hi"}`},
			},
		}},
		{action: &oracle.Action{Content: "task complete"}},
	}}
	exec := &mockTools{
		results: map[string]string{"write_file": "Wrote 2 bytes to hello.txt"},
		changes: map[string]*run.Change{"write_file": {Action: "create", Path: "hello.txt"}},
	}
	mem := &mockMemory{}
	sink := &recordingSink{}

	outcome := newTestLoop(sess, o, exec, mem, sink).Run(context.Background(), run.Params{
		Instruction: "write a file", MaxSteps: 5, AutoContinue: run.UnlimitedAutoContinue,
	})

	if outcome != run.OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", outcome)
	}
	if len(exec.calls) != 1 || exec.calls[0] != "write_file" {
		t.Fatalf("tool calls = %v, want [write_file]", exec.calls)
	}
	for _, want := range []event.Type{event.TypeToolCall, event.TypeStepSummary, event.TypeFinalSummary} {
		if !sink.has(want) {
			t.Errorf("missing event %s", want)
		}
	}

	// The tool result must be recorded as a tool message tied to the call.
	mem.mu.Lock()
	defer mem.mu.Unlock()
	found := false
	for _, m := range mem.appended[0] {
		if m.Role == run.RoleTool && m.ToolCallID == "call-1" && m.Name == "write_file" {
			found = true
		}
	}
	if !found {
		t.Error("tool message missing from transcript")
	}
}

func TestRunLoopStopRequestDuringWait(t *testing.T) {
	sess := newTestSession(t)
	o := &mockOracle{steps: []scriptedStep{
		{action: &oracle.Action{Content: "Working on it."}},
	}}
	sink := &recordingSink{}
	loop := newTestLoop(sess, o, nil, &mockMemory{}, sink)

	if err := sess.StartRun(context.Background(), loop, run.Params{Instruction: "wait", MaxSteps: 5}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	waitForInput(t, sess)
	if !sess.RequestStop() {
		t.Fatal("RequestStop reported no active run")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sess.Running() {
		if time.Now().After(deadline) {
			t.Fatal("run did not stop after RequestStop")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !sink.has(event.TypeAgentStopped) {
		t.Error("missing agent_stopped")
	}
}

func waitForInput(t *testing.T, sess *service.Session) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !sess.Bridge.Waiting() {
		if time.Now().After(deadline) {
			t.Fatal("run never paused for input")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
