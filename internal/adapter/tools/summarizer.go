package tools

import (
	"fmt"
	"strings"

	"github.com/haldis/agentrelay/internal/domain/run"
)

// Summarizer renders change lists as plain text for step and final summaries.
type Summarizer struct{}

// NewSummarizer returns a text summarizer.
func NewSummarizer() *Summarizer {
	return &Summarizer{}
}

// Summarize renders changes one per line. Step summaries and the final
// summary use different headers; no changes means no summary.
func (s *Summarizer) Summarize(changes []run.Change, stepSummary bool) string {
	if len(changes) == 0 {
		return ""
	}

	var b strings.Builder
	if stepSummary {
		b.WriteString("Changes this step:")
	} else {
		b.WriteString("Summary of all changes:")
	}

	for _, c := range changes {
		b.WriteString(fmt.Sprintf("\n- %s %s", c.Action, c.Path))
		if c.Detail != "" {
			b.WriteString(" (" + c.Detail + ")")
		}
	}
	return b.String()
}
