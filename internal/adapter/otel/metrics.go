package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentrelay"

// Metrics holds all agentrelay metric instruments.
type Metrics struct {
	RunsStarted   metric.Int64Counter
	RunsCompleted metric.Int64Counter
	RunsFailed    metric.Int64Counter
	Steps         metric.Int64Counter
	ToolCalls     metric.Int64Counter
	FilesCreated  metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("agentrelay.runs.started",
		metric.WithDescription("Number of runs started"))
	if err != nil {
		return nil, err
	}

	m.RunsCompleted, err = meter.Int64Counter("agentrelay.runs.completed",
		metric.WithDescription("Number of runs completed"))
	if err != nil {
		return nil, err
	}

	m.RunsFailed, err = meter.Int64Counter("agentrelay.runs.failed",
		metric.WithDescription("Number of runs failed"))
	if err != nil {
		return nil, err
	}

	m.Steps, err = meter.Int64Counter("agentrelay.steps",
		metric.WithDescription("Number of steps executed"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("agentrelay.toolcalls",
		metric.WithDescription("Number of tool calls"))
	if err != nil {
		return nil, err
	}

	m.FilesCreated, err = meter.Int64Counter("agentrelay.files.created",
		metric.WithDescription("Number of files reported as created"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
