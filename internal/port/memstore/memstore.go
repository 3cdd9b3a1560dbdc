// Package memstore defines the long-term conversation memory port.
package memstore

import "github.com/haldis/agentrelay/internal/domain/run"

// Store accumulates finished conversations and persists them. The run loop
// flushes memory before declaring a terminal outcome; failures are logged
// and never abort the run.
type Store interface {
	AppendConversation(transcript []run.Message) error
	Persist() error
}
