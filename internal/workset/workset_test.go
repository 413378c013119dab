package workset_test

import (
	"os"
	"path/filepath"
	"testing"

	"lectern/internal/testsupport"
	"lectern/internal/workset"
)

func TestAcquireWipesStaleLeftovers(t *testing.T) {
	root := t.TempDir()

	first, err := workset.Acquire(root, "task-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	stale := first.Path("partial.pdf")
	testsupport.WriteFile(t, stale, 128)

	second, err := workset.Acquire(root, "task-1")
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("stale intermediate survived: %v", err)
	}
	if second.Dir() != first.Dir() {
		t.Fatalf("same task must map to same directory")
	}
}

func TestReleaseRemovesDirectoryAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	set, err := workset.Acquire(root, "task-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	testsupport.WriteFile(t, set.Path("frames", "frame-001.png"), 64)

	if err := set.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(set.Dir()); !os.IsNotExist(err) {
		t.Fatalf("working set not removed: %v", err)
	}
	if !set.Released() {
		t.Fatal("Released flag not set")
	}
	if err := set.Release(); err != nil {
		t.Fatalf("second Release must be a no-op: %v", err)
	}
}

func TestAcquireSanitizesTaskID(t *testing.T) {
	root := t.TempDir()
	set, err := workset.Acquire(root, "../evil/..id")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	rel, err := filepath.Rel(root, set.Dir())
	if err != nil || rel == ".." || filepath.IsAbs(rel) || len(rel) < 2 {
		t.Fatalf("directory escaped root: %q %v", rel, err)
	}
	if filepath.Dir(set.Dir()) != root {
		t.Fatalf("set not directly under root: %s", set.Dir())
	}
}
