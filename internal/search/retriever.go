// Package search provides multi-signal code search capabilities.
// This file implements the Retriever which performs parallel retrieval
// from keyword, semantic, and symbol search signals and fuses them with
// Reciprocal Rank Fusion.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"codesearch/internal/config"
	"codesearch/internal/fusion"
	"codesearch/internal/provider"
	"codesearch/internal/search/symbols"
	"codesearch/internal/store"
)

// Retriever performs multi-signal search and combines results using RRF.
type Retriever struct {
	chunks      *store.Store
	embedder    provider.Embedder
	symbolIndex *symbols.Index
	config      config.RetrieverConfig
	log         *slog.Logger
}

// NewRetriever creates a new multi-signal retriever. symbolIndex may be
// nil if symbol search is not available.
func NewRetriever(chunks *store.Store, embedder provider.Embedder, symbolIndex *symbols.Index, cfg config.RetrieverConfig, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{
		chunks:      chunks,
		embedder:    embedder,
		symbolIndex: symbolIndex,
		config:      cfg,
		log:         log,
	}
}

// RetrieveOptions configures a single retrieval operation.
type RetrieveOptions struct {
	// Limit is the maximum number of final results to return
	Limit int

	// Filter restricts candidates in the keyword and semantic signals
	Filter store.Filter
}

// RetrieveResult contains the fused results and metadata about the retrieval.
type RetrieveResult struct {
	Results []fusion.RRFResult

	KeywordCount  int
	SemanticCount int
	SymbolCount   int

	SymbolAvailable bool

	Errors []error

	Duration time.Duration
}

// Retrieve performs multi-signal retrieval with RRF fusion. It runs
// keyword (BM25 over the FTS index), semantic (vector similarity), and
// symbol searches in parallel, then combines them with weighted RRF.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (*RetrieveResult, error) {
	return r.retrieveWithWeights(ctx, query, opts, r.config.Weights)
}

// RetrieveWithWeights runs the same three-signal retrieval as Retrieve
// but fuses with a caller-supplied weight map instead of the retriever's
// configured weights, for callers that need to re-weight fusion toward
// a stronger signal (for example, boosting keyword weight when vector
// confidence is low) without mutating shared retriever configuration.
func (r *Retriever) RetrieveWithWeights(ctx context.Context, query string, opts RetrieveOptions, weights map[string]float64) (*RetrieveResult, error) {
	return r.retrieveWithWeights(ctx, query, opts, weights)
}

func (r *Retriever) retrieveWithWeights(ctx context.Context, query string, opts RetrieveOptions, weights map[string]float64) (*RetrieveResult, error) {
	start := time.Now()

	if r.config.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.config.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	var (
		keywordResults  []fusion.Result
		semanticResults []fusion.Result
		symbolResults   []fusion.Result
		keywordErr      error
		semanticErr     error
		symbolErr       error
	)

	result := &RetrieveResult{SymbolAvailable: r.symbolIndex != nil}

	run := func() {
		var wg sync.WaitGroup
		wg.Add(3)

		go func() {
			defer wg.Done()
			keywordResults, keywordErr = r.searchKeyword(ctx, query, opts)
		}()
		go func() {
			defer wg.Done()
			semanticResults, semanticErr = r.searchSemantic(ctx, query, opts)
		}()
		go func() {
			defer wg.Done()
			symbolResults, symbolErr = r.searchSymbol(ctx, query)
		}()

		wg.Wait()
	}

	if r.config.Parallel {
		run()
	} else {
		keywordResults, keywordErr = r.searchKeyword(ctx, query, opts)
		semanticResults, semanticErr = r.searchSemantic(ctx, query, opts)
		symbolResults, symbolErr = r.searchSymbol(ctx, query)
	}

	if keywordErr != nil {
		r.log.Warn("keyword signal failed", "error", keywordErr)
		result.Errors = append(result.Errors, fmt.Errorf("keyword: %w", keywordErr))
	}
	if semanticErr != nil {
		r.log.Warn("semantic signal failed", "error", semanticErr)
		result.Errors = append(result.Errors, fmt.Errorf("semantic: %w", semanticErr))
	}
	if symbolErr != nil {
		r.log.Warn("symbol signal failed", "error", symbolErr)
		result.Errors = append(result.Errors, fmt.Errorf("symbol: %w", symbolErr))
	}

	result.KeywordCount = len(keywordResults)
	result.SemanticCount = len(semanticResults)
	result.SymbolCount = len(symbolResults)

	fused := fusion.WeightedRRF(weights, keywordResults, semanticResults, symbolResults)
	boostExactMatches(fused, query)

	if opts.Limit > 0 && len(fused) > opts.Limit {
		fused = fused[:opts.Limit]
	}

	result.Results = fused
	result.Duration = time.Since(start)
	return result, nil
}

// searchKeyword performs BM25 keyword search over the persisted chunk text.
func (r *Retriever) searchKeyword(ctx context.Context, query string, opts RetrieveOptions) ([]fusion.Result, error) {
	scored, err := r.chunks.FTSSearch(ctx, query, store.SearchOptions{
		Limit:  r.config.KeywordLimit,
		Filter: opts.Filter,
	})
	if err != nil {
		return nil, err
	}
	return chunksToResults(scored, "keyword"), nil
}

// searchSemantic performs semantic search using query embeddings.
func (r *Retriever) searchSemantic(ctx context.Context, query string, opts RetrieveOptions) ([]fusion.Result, error) {
	if r.embedder == nil {
		return nil, nil
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, nil
	}

	scored, err := r.chunks.VectorSearch(ctx, vecs[0], store.SearchOptions{
		Limit:  r.config.SemanticLimit,
		Filter: opts.Filter,
	})
	if err != nil {
		return nil, err
	}
	return chunksToResults(scored, "semantic"), nil
}

// searchSymbol performs symbol-name search using the symbol index.
func (r *Retriever) searchSymbol(ctx context.Context, query string) ([]fusion.Result, error) {
	if r.symbolIndex == nil {
		return nil, nil
	}

	syms, err := r.symbolIndex.FindSymbol(ctx, query, "", r.config.SymbolLimit)
	if err != nil {
		return nil, err
	}

	out := make([]fusion.Result, 0, len(syms))
	for i, sym := range syms {
		score := float64(r.config.SymbolLimit - i)
		out = append(out, fusion.Result{
			ID:     fmt.Sprintf("%s:%d:%s", sym.Path, sym.Line, sym.Name),
			Path:   sym.Path,
			Line:   sym.Line,
			Score:  score,
			Source: "symbol",
			Metadata: map[string]interface{}{
				"name":      sym.Name,
				"kind":      sym.Kind,
				"language":  sym.Language,
				"scope":     sym.Scope,
				"signature": sym.Signature,
			},
		})
	}
	return out, nil
}

// chunksToResults converts store-scored chunk rows into fusion results,
// ordered as returned (already descending by score).
func chunksToResults(scored []store.ScoredChunk, source string) []fusion.Result {
	out := make([]fusion.Result, 0, len(scored))
	for _, sc := range scored {
		row := sc.Row
		out = append(out, fusion.Result{
			ID:      row.ID,
			Path:    row.FilePath,
			Line:    row.StartLine,
			EndLine: row.EndLine,
			Score:   sc.Score,
			Source:  source,
			Snippet: row.CodeText,
			Metadata: map[string]interface{}{
				"symbol_name": row.SymbolName,
				"symbol_kind": string(row.SymbolKind),
				"qualname":    row.Qualname,
			},
		})
	}
	return out
}

// boostExactMatches nudges the RRF score of any result whose symbol name
// exactly matches the raw query string, so a precise identifier search
// surfaces its definition above loosely related text/semantic matches.
func boostExactMatches(results []fusion.RRFResult, query string) {
	for i := range results {
		name, _ := results[i].Metadata["symbol_name"].(string)
		if name == "" {
			name, _ = results[i].Metadata["name"].(string)
		}
		if name != "" && name == query {
			results[i].RRFScore += 1.0
		}
	}
}

// Config returns the current retriever configuration.
func (r *Retriever) Config() config.RetrieverConfig {
	return r.config
}

// SetConfig updates the retriever configuration.
func (r *Retriever) SetConfig(cfg config.RetrieverConfig) {
	r.config = cfg
}

// SymbolAvailable returns true if symbol search is available.
func (r *Retriever) SymbolAvailable() bool {
	return r.symbolIndex != nil
}
