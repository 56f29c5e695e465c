// Package provider defines the embedding capability the indexing core
// consumes. The only wire-level encodings are the Ollama and
// OpenAI-compatible HTTP embedders in remote.go: callers configure a
// concrete Embedder (or one of the fakes in this package, for tests) and
// the rest of the system only ever depends on the interface.
package provider

import (
	"context"

	"codesearch/internal/model"
)

// Embedder turns text into vectors. Implementations may call out to a
// network service; Embed must respect ctx cancellation.
type Embedder interface {
	// Embed returns one vector per input text, in the same order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Available reports whether the provider is currently reachable.
	Available() bool
	// ProviderID identifies the provider+model combination, used as part
	// of the embedding cache key namespace.
	ProviderID() string
	// Dimensions returns the vector size this provider produces.
	Dimensions() int
}

// Kind identifies a configured provider type.
type Kind string

const (
	KindOllama Kind = "ollama"
	KindLMStudio Kind = "lmstudio"
	KindLocal    Kind = "local"
	KindOff      Kind = "off"
)

// Config selects and configures a provider.
type Config struct {
	Kind       Kind
	BaseURL    string
	Model      string
	Dimensions int
}

// Option mutates a Config in the teacher's functional-options idiom.
type Option func(*Config)

func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

func WithDimensions(dim int) Option {
	return func(c *Config) { c.Dimensions = dim }
}

// New resolves a Config into an Embedder. KindLocal is rejected: there is
// no local-runtime fallback, callers must point at a reachable provider
// or explicitly configure KindOff.
func New(kind Kind, opts ...Option) (Embedder, error) {
	cfg := &Config{Kind: kind, Dimensions: 768}
	for _, opt := range opts {
		opt(cfg)
	}

	switch kind {
	case KindOff:
		return NoOpEmbedder{}, nil
	case KindLocal:
		return nil, model.NewError(model.ErrProviderInvalid, "local provider requires a runtime that is not configured", nil)
	case KindOllama, KindLMStudio:
		return newRemoteEmbedder(cfg), nil
	default:
		return nil, model.NewError(model.ErrProviderInvalid, "unknown embedding provider kind: "+string(kind), nil)
	}
}

// NoOpEmbedder returns zero vectors and is never reachable. It exists so
// indexing can run with embeddings disabled (`off`) without special-
// casing every pipeline call site.
type NoOpEmbedder struct{}

func (NoOpEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	return out, nil
}

func (NoOpEmbedder) Available() bool   { return true }
func (NoOpEmbedder) ProviderID() string { return "off" }
func (NoOpEmbedder) Dimensions() int    { return 0 }

var _ Embedder = NoOpEmbedder{}
