package symbols

import (
	"context"

	"codesearch/internal/model"
	"codesearch/internal/store"
)

// Symbol represents a code symbol (function, type, variable, etc.)
// surfaced to a search signal.
type Symbol struct {
	Name      string
	Kind      string
	Path      string
	Line      int
	Language  string
	Pattern   string
	Scope     string
	Signature string
}

// Index answers symbol-name lookups for the "definition" search intent
// and the retriever's symbol signal. Rather than maintaining a second symbols table, it is
// a thin view over the chunk store's own symbol rows, which already
// carry name/kind/scope/signature for every indexed definition.
type Index struct {
	chunks   *store.Store
	repoRoot string
	useCtags bool
}

// NewIndex builds a symbol index view backed by chunks. When useCtags is
// set and a universal-ctags binary is on PATH, FindSymbol falls back to a
// live ctags scan of repoRoot for names the chunk store has no row for —
// a supplementary signal for languages/constructs outside the AST
// chunker's grammar set.
func NewIndex(chunks *store.Store, repoRoot string, useCtags bool) *Index {
	return &Index{chunks: chunks, repoRoot: repoRoot, useCtags: useCtags && CtagsAvailable()}
}

// FindSymbol searches indexed symbol rows by name, optionally restricted
// to a single symbol kind ("function", "class", "struct", ...).
func (idx *Index) FindSymbol(ctx context.Context, name string, kind string, limit int) ([]Symbol, error) {
	if limit <= 0 {
		limit = 50
	}

	filter := store.Filter{}
	if kind != "" {
		filter.SymbolKinds = []model.SymbolKind{model.SymbolKind(kind)}
	} else {
		filter.SymbolKinds = definitionKinds
	}

	scored, err := idx.chunks.FTSSearch(ctx, name, store.SearchOptions{
		Filter: filter,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}

	symbols := make([]Symbol, 0, len(scored))
	for _, sc := range scored {
		row := sc.Row
		symbols = append(symbols, Symbol{
			Name:      row.SymbolName,
			Kind:      string(row.SymbolKind),
			Path:      row.FilePath,
			Line:      row.StartLine,
			Language:  row.Extension,
			Pattern:   row.ContextHeader,
			Scope:     row.Qualname,
			Signature: row.Signature,
		})
	}

	if len(symbols) > 0 || !idx.useCtags {
		return symbols, nil
	}
	return idx.findSymbolViaCtags(name, kind, limit)
}

// findSymbolViaCtags scans idx.repoRoot with universal-ctags and filters
// its entries by exact name match. Any ctags failure is swallowed: this
// is a best-effort supplementary source, never a hard dependency of the
// "definition" intent.
func (idx *Index) findSymbolViaCtags(name, kind string, limit int) ([]Symbol, error) {
	entries, err := RunCtags(idx.repoRoot, nil)
	if err != nil {
		return nil, nil
	}

	var out []Symbol
	for _, e := range entries {
		if e.Name != name {
			continue
		}
		sym := e.ToSymbol()
		if kind != "" && sym.Kind != kind {
			continue
		}
		out = append(out, sym)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// definitionKinds restricts a kind-less symbol lookup to rows that are
// actual definitions rather than the one module-summary row every file
// carries.
var definitionKinds = []model.SymbolKind{
	model.SymbolFunction,
	model.SymbolMethod,
	model.SymbolClass,
}
