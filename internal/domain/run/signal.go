package run

import "strings"

// Signal is the continuation signal extracted from the assistant's free text
// after a step. Exactly one signal is returned, decided in priority order:
// completion, then awaiting-input, then needs-more-steps.
type Signal int

const (
	SignalNone Signal = iota
	SignalCompleted
	SignalAwaitingInput
	SignalNeedsMoreSteps
)

// Matching is substring-based and case-insensitive. It is a known heuristic
// carried over from the upstream agent and over-matches on phrases like
// "if you need anything else"; do not tighten it without changing the
// guidance text the oracle is given.
var (
	completionPhrases = []string{
		"task complete",
		"i've completed",
		"all done",
		"finished",
		"completed successfully",
	}

	questionPhrases = []string{
		"do you need",
		"would you like",
		"let me know",
		"please specify",
		"can you clarify",
		"if you need",
	}

	// The auto-continue question check casts a wider net than the manual-mode
	// pause check.
	autoQuestionPhrases = []string{
		"do you need",
		"would you like",
		"let me know",
		"please specify",
		"can you clarify",
		"if you need",
		"what would you like",
		"your preference",
		"should i",
		"do you want",
	}

	moreStepsPhrases = []string{
		"need more steps",
		"additional steps required",
		"more steps needed",
		"cannot complete within current steps",
	}
)

// Classify maps assistant content to a continuation signal. The
// awaiting-input signal is only produced when the step requested no tools;
// a step that acted is never treated as a question.
func Classify(content string, hasToolCalls bool) Signal {
	c := strings.ToLower(content)
	switch {
	case containsAny(c, completionPhrases):
		return SignalCompleted
	case !hasToolCalls && containsAny(c, questionPhrases):
		return SignalAwaitingInput
	case containsAny(c, moreStepsPhrases):
		return SignalNeedsMoreSteps
	}
	return SignalNone
}

// LooksLikeQuestion reports whether content reads as a question to the user,
// using the wider phrase list applied before auto-injecting an affirmative
// turn in auto-continue mode.
func LooksLikeQuestion(content string) bool {
	return containsAny(strings.ToLower(content), autoQuestionPhrases)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
