// Package tools defines the tool-execution port.
package tools

import (
	"context"

	"github.com/haldis/agentrelay/internal/domain/run"
)

// Definition describes one callable tool for the decision oracle.
// Parameters is a JSON-schema object.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Executor runs named tools with decoded arguments. Calls within a step are
// issued sequentially by the run loop; implementations do not need to be
// safe for concurrent Execute calls from a single session. A non-nil Change
// describes a side effect for the summarizer.
type Executor interface {
	Definitions() []Definition
	Execute(ctx context.Context, name string, args map[string]any) (result string, change *run.Change, err error)
}
