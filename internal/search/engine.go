package search

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"codesearch/internal/config"
	"codesearch/internal/fusion"
	"codesearch/internal/rerank"
	"codesearch/internal/search/keyword"
	"codesearch/internal/search/symbols"
	"codesearch/internal/store"
)

// Intent selects which retrieval strategy a query is routed to.
type Intent string

const (
	IntentDefinition  Intent = "definition"
	IntentSimilarCode Intent = "similar_code"
	IntentExactText   Intent = "exact_text"
	IntentUsage       Intent = "usage"
	IntentConcept     Intent = "concept"
	IntentAuto        Intent = "auto"
)

// Result is one ranked hit returned to a caller, independent of which
// intent produced it.
type Result struct {
	ID          string
	FilePath    string
	Filename    string
	StartLine   int
	EndLine     int
	SymbolName  string
	SymbolKind  string
	Score       float64
	VectorScore *float64
	FTSScore    *float64
	Signature   string
	IsExported  bool
	Snippet     string
}

// QueryOptions configures a single Engine.Search call.
type QueryOptions struct {
	Intent     Intent
	Limit      int
	MinScore   float64
	Filter     store.Filter
	Exhaustive bool // limit = 500, reports TotalMatches
}

// QueryResult is everything a search call returns, including debug info
// about routing and auto-boost decisions.
type QueryResult struct {
	Results       []Result
	ResolvedIntent Intent
	TotalMatches  int
	AutoBoosted   bool
	Duration      time.Duration
}

const exhaustiveLimit = 500

// Engine is the top-level search surface: it routes a query to the
// right signal(s), fuses and optionally reranks hybrid results, and
// returns a uniform Result list regardless of intent.
type Engine struct {
	retriever   *Retriever
	reranker    *rerank.Reranker
	symbolIndex *symbols.Index
	chunks      *store.Store
	repoRoot    string
	log         *slog.Logger
}

// NewEngine builds a search Engine over an already-open chunk store.
func NewEngine(retriever *Retriever, reranker *rerank.Reranker, symbolIndex *symbols.Index, chunks *store.Store, repoRoot string, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		retriever:   retriever,
		reranker:    reranker,
		symbolIndex: symbolIndex,
		chunks:      chunks,
		repoRoot:    repoRoot,
		log:         log,
	}
}

// Search routes query according to opts.Intent (resolving IntentAuto
// first) and returns a ranked result list.
func (e *Engine) Search(ctx context.Context, query string, opts QueryOptions) (*QueryResult, error) {
	start := time.Now()

	intent := opts.Intent
	if intent == "" || intent == IntentAuto {
		intent = classifyIntent(query)
	}

	limit := opts.Limit
	if opts.Exhaustive {
		limit = exhaustiveLimit
	}
	if limit <= 0 {
		limit = 20
	}

	var results []Result
	var err error

	switch intent {
	case IntentDefinition:
		results, err = e.searchDefinition(ctx, query, limit)
	case IntentUsage:
		results, err = e.searchUsage(ctx, query, limit)
	case IntentExactText:
		results, err = e.searchExactText(query, limit)
	default: // similar_code, concept, and anything else go through hybrid RRF
		return e.searchHybrid(ctx, query, intent, limit, opts)
	}
	if err != nil {
		return nil, err
	}

	applyMinScore(&results, opts.MinScore)

	return &QueryResult{
		Results:        results,
		ResolvedIntent: intent,
		TotalMatches:   len(results),
		Duration:       time.Since(start),
	}, nil
}

// classifyIntent guesses the right intent from the query's shape,
// matching the auto-routing rules: explicit usage phrasing routes to
// usage, a single identifier-looking token routes to definition, a
// multi-line snippet routes to similar_code, and everything else falls
// through to the hybrid concept path.
func classifyIntent(query string) Intent {
	trimmed := strings.TrimSpace(query)
	lower := strings.ToLower(trimmed)

	for _, phrase := range []string{"where is", "usages of", "used", "callers of", "calls to", "who calls"} {
		if strings.Contains(lower, phrase) {
			return IntentUsage
		}
	}

	if strings.Contains(trimmed, "\n") {
		return IntentSimilarCode
	}

	if identifierPattern.MatchString(trimmed) {
		return IntentDefinition
	}

	return IntentConcept
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// searchDefinition resolves an exact symbol-name lookup, restricted to
// function/class/method rows.
func (e *Engine) searchDefinition(ctx context.Context, query string, limit int) ([]Result, error) {
	if e.symbolIndex == nil {
		return nil, nil
	}
	syms, err := e.symbolIndex.FindSymbol(ctx, query, "", limit)
	if err != nil {
		return nil, fmt.Errorf("definition lookup: %w", err)
	}

	var out []Result
	for i, sym := range syms {
		if sym.Name != query {
			continue // exact-name definitions only; FindSymbol does full-text matching internally
		}
		out = append(out, Result{
			ID:         fmt.Sprintf("%s:%d:%s", sym.Path, sym.Line, sym.Name),
			FilePath:   sym.Path,
			Filename:   baseName(sym.Path),
			StartLine:  sym.Line,
			SymbolName: sym.Name,
			SymbolKind: sym.Kind,
			Score:      1.0 / float64(1+i),
			Signature:  sym.Signature,
		})
	}
	return out, nil
}

// searchUsage finds ref occurrences of query as a bare or qualified
// token, grouped implicitly by file order. It returns the rows
// FindRefsByToken yields without further filtering.
func (e *Engine) searchUsage(ctx context.Context, query string, limit int) ([]Result, error) {
	refs, err := e.chunks.FindRefsByToken(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("usage lookup: %w", err)
	}

	var out []Result
	for _, r := range refs {
		out = append(out, Result{
			ID:        fmt.Sprintf("%s:%d:%s", r.FilePath, r.StartLine, r.RefKind),
			FilePath:  r.FilePath,
			Filename:  baseName(r.FilePath),
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Snippet:   r.ContextSnippet,
			Score:     1.0,
		})
	}
	return out, nil
}

// searchExactText runs a ripgrep scan (query used as a regex) over the repository tree,
// bypassing RRF fusion entirely since exact-text queries want
// grep-precision rather than a blended ranking.
func (e *Engine) searchExactText(query string, limit int) ([]Result, error) {
	sr, err := keyword.Search(query, e.repoRoot, limit)
	if err != nil {
		return nil, fmt.Errorf("exact text search: %w", err)
	}

	out := make([]Result, 0, len(sr.Results))
	for _, r := range sr.Results {
		out = append(out, Result{
			ID:        fmt.Sprintf("%s:%d", r.Path, r.LineStart),
			FilePath:  r.Path,
			Filename:  baseName(r.Path),
			StartLine: r.LineStart,
			EndLine:   r.LineEnd,
			Snippet:   r.Snippet,
			Score:     float64(r.Score),
		})
	}
	return out, nil
}

// searchHybrid implements the concept/similar_code path: embed + BM25 +
// symbol retrieval fused with weighted RRF, auto-boosted toward BM25
// when vector confidence is low, optionally reranked, and
// finally tie-broken by vector score, then line number, then path.
func (e *Engine) searchHybrid(ctx context.Context, query string, intent Intent, limit int, opts QueryOptions) (*QueryResult, error) {
	start := time.Now()

	oversample := limit * 2
	retrieveOpts := RetrieveOptions{Limit: oversample, Filter: opts.Filter}

	retrieved, err := e.retriever.Retrieve(ctx, query, retrieveOpts)
	if err != nil {
		return nil, fmt.Errorf("hybrid retrieval: %w", err)
	}

	autoBoosted := false
	maxVectorScore := maxScoreForSource(retrieved.Results, "semantic")
	if maxVectorScore < 0.3 {
		autoBoosted = true
		weights := map[string]float64{"keyword": 0.9, "semantic": 0.1, "symbol": 0.1}
		reboosted, err := e.retriever.RetrieveWithWeights(ctx, query, retrieveOpts, weights)
		if err == nil {
			retrieved = reboosted
		}
	}

	fused := retrieved.Results
	applyRRFMinScore(&fused, opts.MinScore)

	if e.reranker != nil && e.reranker.Enabled() {
		contents := contentsByID(fused)
		rr, err := e.reranker.Rerank(ctx, query, fused, contents)
		if err == nil {
			fused = rr.Results
		}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].RRFScore != fused[j].RRFScore {
			return fused[i].RRFScore > fused[j].RRFScore
		}
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		if fused[i].Line != fused[j].Line {
			return fused[i].Line < fused[j].Line
		}
		return fused[i].Path < fused[j].Path
	})

	if limit > 0 && len(fused) > limit {
		fused = fused[:limit]
	}

	out := make([]Result, 0, len(fused))
	for _, r := range fused {
		res := Result{
			ID:        r.ID,
			FilePath:  r.Path,
			Filename:  baseName(r.Path),
			StartLine: r.Line,
			EndLine:   r.EndLine,
			Score:     r.RRFScore,
			Snippet:   r.Snippet,
		}
		if name, ok := r.Metadata["symbol_name"].(string); ok {
			res.SymbolName = name
		}
		if kind, ok := r.Metadata["symbol_kind"].(string); ok {
			res.SymbolKind = kind
		}
		out = append(out, res)
	}

	return &QueryResult{
		Results:        out,
		ResolvedIntent: intent,
		TotalMatches:   len(out),
		AutoBoosted:    autoBoosted,
		Duration:       time.Since(start),
	}, nil
}

func maxScoreForSource(results []fusion.RRFResult, source string) float64 {
	max := 0.0
	for _, r := range results {
		if r.Source != source {
			continue
		}
		if r.Score > max {
			max = r.Score
		}
	}
	return max
}

func contentsByID(results []fusion.RRFResult) map[string]string {
	out := make(map[string]string, len(results))
	for _, r := range results {
		out[r.ID] = r.Snippet
	}
	return out
}

func applyMinScore(results *[]Result, minScore float64) {
	if minScore <= 0 {
		return
	}
	filtered := (*results)[:0]
	for _, r := range *results {
		if r.Score >= minScore {
			filtered = append(filtered, r)
		}
	}
	*results = filtered
}

func applyRRFMinScore(results *[]fusion.RRFResult, minScore float64) {
	if minScore <= 0 {
		return
	}
	*results = fusion.FilterByMinScore(*results, minScore)
}

func baseName(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

// Config exposes the retriever's current configuration.
func (e *Engine) Config() config.RetrieverConfig {
	return e.retriever.Config()
}
