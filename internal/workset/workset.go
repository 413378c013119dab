// Package workset manages the per-task scratch directory holding downloaded
// input and intermediate artifacts. A set is exclusively owned by one
// pipeline run and removed on release regardless of outcome.
package workset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Set is one task's scratch directory.
type Set struct {
	dir      string
	released bool
}

// Acquire creates a fresh scratch directory for the task under root. Any
// leftover directory from an interrupted earlier run of the same task is
// wiped first so stale intermediates never leak into a new attempt.
func Acquire(root, taskID string) (*Set, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("work root is required")
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("task id is required")
	}
	dir := filepath.Join(root, "task-"+sanitize(taskID))
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("clear stale working set: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create working set: %w", err)
	}
	return &Set{dir: dir}, nil
}

// Dir returns the scratch directory path.
func (s *Set) Dir() string {
	return s.dir
}

// Path joins elements under the scratch directory.
func (s *Set) Path(elem ...string) string {
	return filepath.Join(append([]string{s.dir}, elem...)...)
}

// Subdir creates and returns a named directory inside the set.
func (s *Set) Subdir(name string) (string, error) {
	dir := filepath.Join(s.dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	return dir, nil
}

// Release removes the scratch directory. It is idempotent and safe to defer.
func (s *Set) Release() error {
	if s == nil || s.released {
		return nil
	}
	s.released = true
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove working set: %w", err)
	}
	return nil
}

// Released reports whether Release has run.
func (s *Set) Released() bool {
	return s != nil && s.released
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
