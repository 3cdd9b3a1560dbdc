// Package summary defines the change-summarizer port.
package summary

import "github.com/haldis/agentrelay/internal/domain/run"

// Summarizer renders an accumulated change list as human-readable text.
// An empty string means there is nothing worth reporting.
type Summarizer interface {
	Summarize(changes []run.Change, stepSummary bool) string
}
