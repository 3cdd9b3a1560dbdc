// Package memory persists finished conversations as per-session JSON files.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haldis/agentrelay/internal/domain/run"
)

// entry is one stored conversation.
type entry struct {
	SavedAt    time.Time     `json:"saved_at"`
	Transcript []run.Message `json:"transcript"`
}

// Store accumulates conversations in memory and persists them to a single
// JSON file per session.
type Store struct {
	path string

	mu      sync.Mutex
	entries []entry
}

// NewStore returns a store writing to dir/<sessionID>.json.
func NewStore(dir, sessionID string) *Store {
	return &Store{path: filepath.Join(dir, sessionID+".json")}
}

// AppendConversation records a copy of the transcript for the next Persist.
func (s *Store) AppendConversation(transcript []run.Message) error {
	cp := make([]run.Message, len(transcript))
	copy(cp, transcript)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{SavedAt: time.Now(), Transcript: cp})
	return nil
}

// Persist writes all recorded conversations to the session file. The write
// goes through a temp file and rename so a crash never leaves a torn file.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write memory temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace memory file: %w", err)
	}
	return nil
}
