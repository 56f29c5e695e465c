package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"codesearch/internal/provider"
)

// WatchConfig controls the filesystem watcher's debounce/batch timing.
type WatchConfig struct {
	Enabled          bool `json:"enabled" yaml:"enabled"`
	DebounceMs       int  `json:"debounceMs" yaml:"debounce_ms"`
	BatchWindowMs    int  `json:"batchWindowMs" yaml:"batch_window_ms"`
	AwaitWriteFinish bool `json:"awaitWriteFinish" yaml:"await_write_finish"`
}

// APIKeyRef points at a secret stored outside the project config, never
// inline in it.
type APIKeyRef struct {
	Provider string `json:"provider" yaml:"provider"`
	KeyID    string `json:"keyId" yaml:"key_id"`
}

// ProjectConfig is the full per-project configuration: §6.2's recognized
// options plus the ambient stack every project also needs (data
// directory, concurrency, reranking, log level).
type ProjectConfig struct {
	EmbeddingProvider    provider.Kind `json:"embeddingProvider" yaml:"embedding_provider"`
	EmbeddingModel       string        `json:"embeddingModel" yaml:"embedding_model"`
	EmbeddingDimensions  int           `json:"embeddingDimensions" yaml:"embedding_dimensions"`
	Extensions           []string      `json:"extensions,omitempty" yaml:"extensions,omitempty"`
	ChunkMaxSize         int           `json:"chunkMaxSize" yaml:"chunk_max_size"`
	Watch                WatchConfig   `json:"watch" yaml:"watch"`
	APIKeyRef            APIKeyRef     `json:"apiKeyRef,omitempty" yaml:"api_key_ref,omitempty"`

	// Expansion fields: ambient stack, not a new feature.
	DataDir     string       `json:"dataDir" yaml:"data_dir"`
	Concurrency int          `json:"concurrency" yaml:"concurrency"`
	Rerank      RerankerConfig `json:"rerank" yaml:"rerank"`
	LogLevel    string       `json:"logLevel" yaml:"log_level"`

	// UseCtags enables a supplementary universal-ctags scan for the
	// "definition" search intent when the chunk store has no matching
	// symbol row (e.g. a language the AST chunker doesn't parse).
	// Off by default: it shells out to an external binary and only helps
	// when one is installed.
	UseCtags bool `json:"useCtags" yaml:"use_ctags"`
}

// DefaultProjectConfig returns the defaults named throughout §6.2 and
// §9's Open Questions resolution.
func DefaultProjectConfig() ProjectConfig {
	return ProjectConfig{
		EmbeddingProvider:   provider.KindOllama,
		EmbeddingModel:      "nomic-embed-text",
		EmbeddingDimensions: 768,
		ChunkMaxSize:        4000,
		Watch: WatchConfig{
			Enabled:          true,
			DebounceMs:       500,
			BatchWindowMs:    2000,
			AwaitWriteFinish: true,
		},
		DataDir:     ".codesearch",
		Concurrency: 5,
		Rerank:      DefaultRerankerConfig(),
		LogLevel:    "info",
	}
}

// LoadProjectConfig reads a JSON project config file at path, applying
// DefaultProjectConfig for any field the file omits (a field the file
// sets explicitly, even to its zero value, overrides the default).
// A missing file is not an error: it just means defaults apply.
func LoadProjectConfig(path string) (ProjectConfig, error) {
	cfg := DefaultProjectConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading project config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing project config %s: %w", path, err)
	}

	return cfg, nil
}

// ProjectConfigPath returns the default project config location under
// repoRoot, mirroring where the data directory itself lives.
func ProjectConfigPath(repoRoot string) string {
	return filepath.Join(repoRoot, ".codesearch", "config.json")
}
