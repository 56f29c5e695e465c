package config

import (
	"os"
	"path/filepath"
	"testing"

	"codesearch/internal/provider"
)

func TestDefaultProjectConfig(t *testing.T) {
	cfg := DefaultProjectConfig()

	if cfg.EmbeddingProvider != provider.KindOllama {
		t.Errorf("expected default provider ollama, got %s", cfg.EmbeddingProvider)
	}
	if cfg.Watch.DebounceMs != 500 {
		t.Errorf("expected default debounce 500ms, got %d", cfg.Watch.DebounceMs)
	}
	if cfg.Watch.BatchWindowMs != 2000 {
		t.Errorf("expected default batch window 2000ms, got %d", cfg.Watch.BatchWindowMs)
	}
	if cfg.Concurrency != 5 {
		t.Errorf("expected default concurrency 5, got %d", cfg.Concurrency)
	}
	if cfg.DataDir != ".codesearch" {
		t.Errorf("expected default data dir .codesearch, got %s", cfg.DataDir)
	}
}

func TestLoadProjectConfigMissingFile(t *testing.T) {
	cfg, err := LoadProjectConfig(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.EmbeddingModel != "nomic-embed-text" {
		t.Errorf("expected defaults to apply, got model %s", cfg.EmbeddingModel)
	}
}

func TestLoadProjectConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"embeddingModel":"custom-model","concurrency":8,"watch":{"enabled":false,"debounceMs":100,"batchWindowMs":500,"awaitWriteFinish":false}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := LoadProjectConfig(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.EmbeddingModel != "custom-model" {
		t.Errorf("expected overridden model, got %s", cfg.EmbeddingModel)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("expected overridden concurrency, got %d", cfg.Concurrency)
	}
	if cfg.Watch.Enabled {
		t.Error("expected watch.enabled to be overridden to false")
	}
	if cfg.Watch.DebounceMs != 100 {
		t.Errorf("expected overridden debounce, got %d", cfg.Watch.DebounceMs)
	}
}

func TestProjectConfigPath(t *testing.T) {
	got := ProjectConfigPath("/repo")
	want := filepath.Join("/repo", ".codesearch", "config.json")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
