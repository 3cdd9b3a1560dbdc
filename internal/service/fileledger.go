package service

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/haldis/agentrelay/internal/domain/run"
)

// FileLedger tracks which files inside a session's output directory have
// already been observed, so each file is reported exactly once no matter how
// many scans run. Deleted-then-recreated files are not reported again.
type FileLedger struct {
	mu      sync.Mutex
	known   map[string]struct{}
	created []run.FileRecord
}

// NewFileLedger returns an empty ledger.
func NewFileLedger() *FileLedger {
	return &FileLedger{known: make(map[string]struct{})}
}

// Baseline records every file currently under dir as pre-existing so it is
// never reported as created. Walk errors are logged and skipped.
func (l *FileLedger) Baseline(dir string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("ledger baseline entry skipped", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			l.known[path] = struct{}{}
		}
		return nil
	})
	if err != nil {
		slog.Warn("ledger baseline walk failed", "dir", dir, "error", err)
	}
}

// ScanForNew walks dir and returns records for files not seen before, sorted
// by path. Observed state is committed only when the whole walk succeeds; a
// failed scan changes nothing and returns no files, so the next scan reports
// the full delta.
func (l *FileLedger) ScanForNew(dir string) []run.FileRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	var fresh []run.FileRecord
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, seen := l.known[path]; seen {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			slog.Warn("ledger stat failed", "path", path, "error", err)
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = info.Name()
		}
		fresh = append(fresh, run.FileRecord{
			Path:       path,
			RelPath:    rel,
			Name:       info.Name(),
			Size:       info.Size(),
			CreatedAt:  info.ModTime(),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		slog.Warn("ledger scan failed", "dir", dir, "error", err)
		return nil
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Path < fresh[j].Path })

	for _, f := range fresh {
		l.known[f.Path] = struct{}{}
	}
	l.created = append(l.created, fresh...)

	return fresh
}

// CreatedFiles returns a copy of every file reported so far, in the order
// it was first observed.
func (l *FileLedger) CreatedFiles() []run.FileRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]run.FileRecord, len(l.created))
	copy(out, l.created)
	return out
}
