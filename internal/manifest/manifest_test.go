package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"codesearch/internal/merkle"
)

func sampleTree() *merkle.Tree {
	return &merkle.Tree{
		Root:      &merkle.Node{Path: ".", Hash: "deadbeef", IsDir: true},
		RepoPath:  "/repo",
		FileCount: 3,
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)

	m := New("repo-1", sampleTree(), Stats{Files: 3, Symbols: 10, Chunks: 12, Refs: 4})
	if err := s.Save(m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if !s.Exists() {
		t.Fatal("expected manifest to exist after Save")
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected a manifest, got nil")
	}
	if loaded.RepoID != "repo-1" {
		t.Errorf("RepoID = %q, want repo-1", loaded.RepoID)
	}
	if loaded.Stats.Chunks != 12 {
		t.Errorf("Stats.Chunks = %d, want 12", loaded.Stats.Chunks)
	}
	if loaded.Tree == nil || loaded.Tree.RootHash() != "deadbeef" {
		t.Errorf("Tree not round-tripped correctly: %+v", loaded.Tree)
	}
	if loaded.RunID == "" {
		t.Error("expected a non-empty RunID")
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	m, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil manifest for missing file, got %+v", m)
	}
}

func TestLoadCorruptTreatedAsMissing(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)

	if err := os.WriteFile(s.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatalf("writing corrupt manifest: %v", err)
	}

	m, err := s.Load()
	if err != nil {
		t.Fatalf("Load should not error on corrupt manifest, got: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil manifest for corrupt file, got %+v", m)
	}
}

func TestLoadVersionMismatchTreatedAsMissing(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)

	m := New("repo-1", sampleTree(), Stats{})
	if err := s.Save(m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Simulate a future schema bump by tampering with the written file.
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	data = []byte(replaceOnce(string(data), `"schema_version": 1`, `"schema_version": 99`))
	if err := os.WriteFile(s.Path(), data, 0644); err != nil {
		t.Fatalf("rewriting manifest: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil manifest on version mismatch, got %+v", loaded)
	}
}

func TestSaveRejectsNilTree(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	m := &Manifest{SchemaVersion: CurrentSchemaVersion, RepoID: "repo-1"}
	if err := s.Save(m); err == nil {
		t.Fatal("expected an error saving a manifest with a nil tree")
	}
}

func TestSaveRejectsNilManifest(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	if err := s.Save(nil); err == nil {
		t.Fatal("expected an error saving a nil manifest")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)

	m := New("repo-1", sampleTree(), Stats{})
	if err := s.Save(m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if s.Exists() {
		t.Error("expected manifest to be gone after Delete")
	}
	if err := s.Delete(); err != nil {
		t.Fatalf("second Delete should be a no-op, got: %v", err)
	}
}

func TestPathJoinsDataDir(t *testing.T) {
	s := NewStore("/tmp/data", nil)
	if want := filepath.Join("/tmp/data", FileName); s.Path() != want {
		t.Errorf("Path() = %q, want %q", s.Path(), want)
	}
}

func replaceOnce(s, old, new string) string {
	i := indexOf(s, old)
	if i < 0 {
		return s
	}
	return s[:i] + new + s[i+len(old):]
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
