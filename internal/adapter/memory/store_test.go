package memory_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haldis/agentrelay/internal/adapter/memory"
	"github.com/haldis/agentrelay/internal/domain/run"
)

func TestStorePersistRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := memory.NewStore(dir, "sess-1")

	transcript := []run.Message{
		{Role: run.RoleSystem, Content: "guidance"},
		{Role: run.RoleUser, Content: "do the thing"},
		{Role: run.RoleAssistant, Content: "task complete"},
	}
	if err := s.AppendConversation(transcript); err != nil {
		t.Fatalf("AppendConversation: %v", err)
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "sess-1.json"))
	if err != nil {
		t.Fatalf("read memory file: %v", err)
	}

	var entries []struct {
		Transcript []run.Message `json:"transcript"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if len(entries[0].Transcript) != 3 {
		t.Fatalf("transcript = %d messages, want 3", len(entries[0].Transcript))
	}
	if entries[0].Transcript[1].Content != "do the thing" {
		t.Errorf("user message = %q", entries[0].Transcript[1].Content)
	}
}

func TestStorePersistCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "memory")
	s := memory.NewStore(dir, "sess-2")

	if err := s.AppendConversation([]run.Message{{Role: run.RoleUser, Content: "hi"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sess-2.json")); err != nil {
		t.Errorf("memory file missing: %v", err)
	}
}

func TestStoreAppendCopiesTranscript(t *testing.T) {
	dir := t.TempDir()
	s := memory.NewStore(dir, "sess-3")

	transcript := []run.Message{{Role: run.RoleUser, Content: "original"}}
	if err := s.AppendConversation(transcript); err != nil {
		t.Fatal(err)
	}
	transcript[0].Content = "mutated"

	if err := s.Persist(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "sess-3.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Fatal("invalid memory file")
	}
	if !strings.Contains(string(data), "original") {
		t.Error("stored transcript lost the original content after caller mutation")
	}
}
