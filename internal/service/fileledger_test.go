package service_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haldis/agentrelay/internal/service"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileLedgerBaselineExcluded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "existing.txt", "old")

	l := service.NewFileLedger()
	l.Baseline(dir)

	if got := l.ScanForNew(dir); len(got) != 0 {
		t.Errorf("scan reported %d baseline files, want 0", len(got))
	}
}

func TestFileLedgerReportsEachFileOnce(t *testing.T) {
	dir := t.TempDir()
	l := service.NewFileLedger()
	l.Baseline(dir)

	writeFile(t, dir, "a.txt", "a")
	writeFile(t, dir, "sub/b.txt", "b")

	first := l.ScanForNew(dir)
	if len(first) != 2 {
		t.Fatalf("first scan = %d files, want 2", len(first))
	}
	if first[0].RelPath != "a.txt" {
		t.Errorf("first file = %q, want a.txt", first[0].RelPath)
	}
	if first[1].RelPath != filepath.Join("sub", "b.txt") {
		t.Errorf("second file = %q, want sub/b.txt", first[1].RelPath)
	}

	if again := l.ScanForNew(dir); len(again) != 0 {
		t.Errorf("second scan = %d files, want 0", len(again))
	}
}

func TestFileLedgerRecreatedFileNotReported(t *testing.T) {
	dir := t.TempDir()
	l := service.NewFileLedger()
	l.Baseline(dir)

	path := writeFile(t, dir, "churn.txt", "v1")
	if got := l.ScanForNew(dir); len(got) != 1 {
		t.Fatalf("scan = %d files, want 1", len(got))
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "churn.txt", "v2")

	if got := l.ScanForNew(dir); len(got) != 0 {
		t.Errorf("recreated file reported again: %v", got)
	}
}

func TestFileLedgerCreatedFilesAccumulates(t *testing.T) {
	dir := t.TempDir()
	l := service.NewFileLedger()
	l.Baseline(dir)

	writeFile(t, dir, "one.txt", "1")
	l.ScanForNew(dir)
	writeFile(t, dir, "two.txt", "2")
	l.ScanForNew(dir)

	created := l.CreatedFiles()
	if len(created) != 2 {
		t.Fatalf("CreatedFiles = %d, want 2", len(created))
	}

	// Returned slice is a copy; mutating it must not touch the ledger.
	created[0].RelPath = "mutated"
	if l.CreatedFiles()[0].RelPath == "mutated" {
		t.Error("CreatedFiles leaked internal state")
	}
}

func TestFileLedgerScanMissingDir(t *testing.T) {
	l := service.NewFileLedger()

	if got := l.ScanForNew(filepath.Join(t.TempDir(), "gone")); got != nil {
		t.Errorf("scan of missing dir = %v, want nil", got)
	}
}
