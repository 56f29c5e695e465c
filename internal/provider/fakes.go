package provider

import (
	"context"

	"codesearch/internal/model"
)

// FixedEmbedder returns a deterministic vector for every input, useful
// in tests that only care about plumbing, not embedding quality.
type FixedEmbedder struct {
	Vector []float32
	ID     string
}

func (f FixedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.Vector
	}
	return out, nil
}

func (f FixedEmbedder) Available() bool    { return true }
func (f FixedEmbedder) ProviderID() string { return f.ID }
func (f FixedEmbedder) Dimensions() int    { return len(f.Vector) }

// FailingEmbedder always returns the configured error, for exercising
// the batch pipeline's retry/failure bookkeeping.
type FailingEmbedder struct {
	Err error
}

func (f FailingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, f.Err
}

func (f FailingEmbedder) Available() bool    { return false }
func (f FailingEmbedder) ProviderID() string { return "failing" }
func (f FailingEmbedder) Dimensions() int    { return 0 }

// FlakyEmbedder fails with a retriable error the first N calls, then
// succeeds, for exercising the pipeline's exponential backoff.
type FlakyEmbedder struct {
	FailuresLeft int
	Vector       []float32
	RetriableErr error
	calls        int
}

func (f *FlakyEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.FailuresLeft > 0 {
		f.FailuresLeft--
		if f.RetriableErr != nil {
			return nil, f.RetriableErr
		}
		return nil, model.NewError(model.ErrProviderRateLimited, "simulated rate limit", nil)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.Vector
	}
	return out, nil
}

func (f *FlakyEmbedder) Available() bool    { return true }
func (f *FlakyEmbedder) ProviderID() string { return "flaky" }
func (f *FlakyEmbedder) Dimensions() int    { return len(f.Vector) }
func (f *FlakyEmbedder) Calls() int         { return f.calls }

var (
	_ Embedder = FixedEmbedder{}
	_ Embedder = FailingEmbedder{}
	_ Embedder = (*FlakyEmbedder)(nil)
)
