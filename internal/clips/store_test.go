package clips

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeClip(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("riff"), 0o644); err != nil {
		t.Fatal(err)
	}
	mod := time.Now().Add(-age)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPurgeAllRemovesOnlyClips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeClip(t, dir, "a.wav", 0)
	writeClip(t, dir, "b.mp3", 0)
	keep := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(keep, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PurgeAll(); err != nil {
		t.Fatalf("PurgeAll: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "notes.txt" {
		t.Fatalf("directory after purge = %v; want only notes.txt", entries)
	}
}

func TestPruneKeepsMostRecent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var old []string
	for i, age := range []time.Duration{50, 40, 30} {
		old = append(old, writeClip(t, dir, fmt.Sprintf("old%d.wav", i), age*time.Minute))
	}
	newer := []string{
		writeClip(t, dir, "new1.wav", 2*time.Minute),
		writeClip(t, dir, "new2.wav", time.Minute),
	}

	s, err := NewStore(dir, WithKeep(2))
	if err != nil {
		t.Fatal(err)
	}
	removed, err := s.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d; want 3", removed)
	}
	for _, p := range old {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("%s should have been pruned", p)
		}
	}
	for _, p := range newer {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("%s should have survived: %v", p, err)
		}
	}
}

func TestPruneUnderLimitIsNoOp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeClip(t, dir, "only.wav", 0)

	s, err := NewStore(dir, WithKeep(5))
	if err != nil {
		t.Fatal(err)
	}
	removed, err := s.Prune()
	if err != nil || removed != 0 {
		t.Fatalf("Prune = %d, %v; want 0, nil", removed, err)
	}
}

func TestRemoveRefusesOutsidePaths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "clips"))
	if err != nil {
		t.Fatal(err)
	}
	outside := filepath.Join(dir, "elsewhere.wav")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(outside); err == nil {
		t.Fatal("expected refusal for a path outside the clip directory")
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatal("file outside the directory must not be touched")
	}
}

func TestRemoveMissingClipIsNoOp(t *testing.T) {
	t.Parallel()

	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(filepath.Join(s.Dir(), "gone.wav")); err != nil {
		t.Fatalf("Remove missing = %v; want nil", err)
	}
}
