// Package tools provides the built-in file tool set executed inside a
// session's output directory.
package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/haldis/agentrelay/internal/domain/run"
	toolsport "github.com/haldis/agentrelay/internal/port/tools"
)

// Executor implements the built-in tools write_file, read_file and
// list_files, all confined to a single directory.
type Executor struct {
	dir string
}

// NewExecutor returns an executor rooted at dir. The directory must exist.
func NewExecutor(dir string) *Executor {
	return &Executor{dir: dir}
}

// Definitions returns the built-in tool catalog.
func (e *Executor) Definitions() []toolsport.Definition {
	return BuiltinDefinitions()
}

// BuiltinDefinitions returns the built-in tool catalog without an executor
// instance, for wiring the oracle before any session exists.
func BuiltinDefinitions() []toolsport.Definition {
	return []toolsport.Definition{
		{
			Name:        "write_file",
			Description: "Write content to a file in the working directory, creating parent directories as needed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string", "description": "Relative path of the file to write"},
					"content": map[string]any{"type": "string", "description": "Full file content"},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        "read_file",
			Description: "Read a file from the working directory and return its content.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "Relative path of the file to read"},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "list_files",
			Description: "List files under the working directory, optionally below a subdirectory.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "Optional subdirectory to list"},
				},
			},
		},
	}
}

// Execute dispatches one tool call.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (string, *run.Change, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	switch name {
	case "write_file":
		return e.writeFile(args)
	case "read_file":
		return e.readFile(args)
	case "list_files":
		return e.listFiles(args)
	default:
		return "", nil, fmt.Errorf("unknown tool %q", name)
	}
}

func (e *Executor) writeFile(args map[string]any) (string, *run.Change, error) {
	rel, err := stringArg(args, "path")
	if err != nil {
		return "", nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return "", nil, err
	}

	abs, err := e.resolve(rel)
	if err != nil {
		return "", nil, err
	}

	action := "create"
	if _, statErr := os.Stat(abs); statErr == nil {
		action = "edit"
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return "", nil, fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o640); err != nil {
		return "", nil, fmt.Errorf("write %s: %w", rel, err)
	}

	return fmt.Sprintf("Wrote %d bytes to %s", len(content), rel), &run.Change{
		Action: action,
		Path:   rel,
	}, nil
}

func (e *Executor) readFile(args map[string]any) (string, *run.Change, error) {
	rel, err := stringArg(args, "path")
	if err != nil {
		return "", nil, err
	}

	abs, err := e.resolve(rel)
	if err != nil {
		return "", nil, err
	}

	data, err := os.ReadFile(abs) //nolint:gosec // G304: path confined by resolve
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return string(data), nil, nil
}

func (e *Executor) listFiles(args map[string]any) (string, *run.Change, error) {
	rel := ""
	if v, ok := args["path"].(string); ok {
		rel = v
	}

	root := e.dir
	if rel != "" {
		abs, err := e.resolve(rel)
		if err != nil {
			return "", nil, err
		}
		root = abs
	}

	var lines []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		entry, relErr := filepath.Rel(e.dir, path)
		if relErr != nil {
			entry = d.Name()
		}
		lines = append(lines, entry)
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("list %s: %w", root, err)
	}

	if len(lines) == 0 {
		return "No files found", nil, nil
	}
	return strings.Join(lines, "\n"), nil, nil
}

// resolve joins rel onto the executor's directory and rejects paths that
// escape it.
func (e *Executor) resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", rel)
	}
	abs := filepath.Join(e.dir, filepath.Clean(rel))
	prefix := filepath.Clean(e.dir) + string(filepath.Separator)
	if !strings.HasPrefix(abs, prefix) {
		return "", fmt.Errorf("path escapes working directory: %s", rel)
	}
	return abs, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("argument %q is required", key)
	}
	return v, nil
}
