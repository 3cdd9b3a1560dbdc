package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haldis/agentrelay/internal/domain"
	"github.com/haldis/agentrelay/internal/domain/run"
)

// Session is the per-connection unit of work: an output directory, a file
// ledger, an input bridge and at most one active run.
type Session struct {
	ID        string
	OutputDir string
	CreatedAt time.Time
	Ledger    *FileLedger
	Bridge    *InputBridge

	mu            sync.Mutex
	running       bool
	stopRequested bool
}

// Running reports whether a run is active on the session.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// StopRequested reports whether a stop has been requested for the current or
// next run. The flag is reset when a new run starts.
func (s *Session) StopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopRequested
}

// RequestStop flags the session to stop and unblocks a pending input wait
// with the stop sentinel. It reports whether a run was active.
func (s *Session) RequestStop() bool {
	s.mu.Lock()
	s.stopRequested = true
	wasRunning := s.running
	s.mu.Unlock()

	if wasRunning {
		s.Bridge.Deliver(StopSentinel)
	}
	return wasRunning
}

// Stop requests a stop on the active run.
func (s *Session) Stop() error {
	if !s.RequestStop() {
		return domain.ErrAgentNotRunning
	}
	return nil
}

// DeliverInput forwards user input to a run blocked on the bridge.
func (s *Session) DeliverInput(input string) error {
	if !s.Running() {
		return domain.ErrAgentNotRunning
	}
	if !s.Bridge.Deliver(input) {
		return domain.ErrNotAwaitingInput
	}
	return nil
}

// StartRun launches the loop on its own goroutine. A session runs at most
// one loop at a time; a second request fails with ErrSessionAlreadyRunning
// instead of queueing.
func (s *Session) StartRun(ctx context.Context, loop *RunLoop, p run.Params) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return domain.ErrSessionAlreadyRunning
	}
	s.running = true
	s.stopRequested = false
	s.mu.Unlock()

	go func() {
		defer s.endRun()
		loop.Run(ctx, p)
	}()

	return nil
}

func (s *Session) endRun() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// SessionSummary is the list form of a session for control surfaces.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"connected_at"`
	Running   bool      `json:"is_running"`
	OutputDir string    `json:"output_dir"`
}

// Registry owns the live sessions, keyed by connection id.
type Registry struct {
	baseDir string
	version string

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns a registry creating session directories under baseDir,
// versioned with the given agent version.
func NewRegistry(baseDir, version string) *Registry {
	return &Registry{
		baseDir:  baseDir,
		version:  version,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session under id, creates its output directory and
// records the directory's pre-existing files as baseline.
func (r *Registry) Create(id string) (*Session, error) {
	r.mu.RLock()
	_, exists := r.sessions[id]
	r.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionExists)
	}

	dirName := fmt.Sprintf("%s_%s_%s", versionFolder(r.version), id, uuid.NewString()[:8])
	dir := filepath.Join(r.baseDir, dirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	sess := &Session{
		ID:        id,
		OutputDir: dir,
		CreatedAt: time.Now(),
		Ledger:    NewFileLedger(),
		Bridge:    NewInputBridge(),
	}
	sess.Ledger.Baseline(dir)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[id]; exists {
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("orphan session dir not removed", "dir", dir, "error", err)
		}
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionExists)
	}
	r.sessions[id] = sess

	slog.Info("session created", "session_id", id, "output_dir", dir)
	return sess, nil
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove unregisters the session and requests a stop on any active run. The
// run winds down on its own; Remove does not wait for it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return
	}
	if sess.Running() {
		sess.RequestStop()
	}
	slog.Info("session removed", "session_id", id)
}

// List returns a snapshot of all registered sessions.
func (r *Registry) List() []SessionSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SessionSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, SessionSummary{
			SessionID: s.ID,
			CreatedAt: s.CreatedAt,
			Running:   s.Running(),
			OutputDir: s.OutputDir,
		})
	}
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// versionFolder renders "1.2.3" as "v1_2_3" for directory names.
func versionFolder(version string) string {
	v := strings.TrimPrefix(version, "v")
	return "v" + strings.ReplaceAll(v, ".", "_")
}
