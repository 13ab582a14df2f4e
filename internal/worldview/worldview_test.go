package worldview

import (
	"os"
	"path/filepath"
	"testing"

	"sentinel/internal/roles"
)

func TestGetReadsRoleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.md")
	if err := os.WriteFile(path, []byte("# SENTINEL\n核心记忆片段。\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir)
	defer l.Close()

	got := l.Get(roles.Sentinel)
	if got != "# SENTINEL\n核心记忆片段。" {
		t.Errorf("worldview = %q", got)
	}
}

func TestGetMissingFileIsEmpty(t *testing.T) {
	l := NewLoader(t.TempDir())
	defer l.Close()

	if got := l.Get(roles.Mystery); got != "" {
		t.Errorf("missing file should be empty, got %q", got)
	}
}

func TestInvalidateRereads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corporate.md")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir)
	defer l.Close()

	if got := l.Get(roles.Corporate); got != "v1" {
		t.Fatalf("first read = %q", got)
	}
	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	l.Invalidate(roles.Corporate)
	if got := l.Get(roles.Corporate); got != "v2" {
		t.Errorf("read after invalidate = %q", got)
	}
}

func TestLoaderWithoutWatchableDir(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "absent"))
	defer l.Close()

	if got := l.Get(roles.Resistance); got != "" {
		t.Errorf("unwatchable dir should still serve empty text, got %q", got)
	}
}
