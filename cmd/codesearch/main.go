// Command codesearch indexes a repository into a local vector+FTS store
// and answers search queries over it. It exposes the three subcommands
// named in this project's control surface: index, search, and status.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"codesearch/internal/config"
	"codesearch/internal/indexer"
	"codesearch/internal/logging"
	"codesearch/internal/manifest"
	"codesearch/internal/rerank"
	"codesearch/internal/search"
	"codesearch/internal/search/files"
	"codesearch/internal/search/symbols"
	"codesearch/internal/watcher"
)

var logger *slog.Logger

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "index":
		runIndex(os.Args[2:])
	case "search":
		runSearch(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "version":
		fmt.Printf("codesearch v%s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`codesearch - local code search indexing engine

Usage:
  codesearch index [path] [--force] [--watch] [--json]
  codesearch search <query> [path] [--intent=auto|definition|usage|exact_text|similar_code] [--limit=20] [--context=N] [--json]
  codesearch status [path] [--json]
  codesearch version`)
}

// openIndexer loads the project config for absPath and wires an Indexer
// from it, sharing one code path between the index and search
// subcommands to avoid config drift between them.
func openIndexer(ctx context.Context, absPath string) (*indexer.Indexer, config.ProjectConfig, error) {
	cfg, err := config.LoadProjectConfig(config.ProjectConfigPath(absPath))
	if err != nil {
		return nil, cfg, err
	}

	dataDir := filepath.Join(absPath, cfg.DataDir)
	logger = logging.Default("codesearch", dataDir)

	idxCfg := indexer.Config{
		RepoPath:        absPath,
		DataDir:         dataDir,
		Provider:        cfg.EmbeddingProvider,
		EmbeddingModel:  cfg.EmbeddingModel,
		Dimensions:      cfg.EmbeddingDimensions,
		Concurrency:     cfg.Concurrency,
		Extensions:      cfg.Extensions,
		Logger:          logger,
	}

	idx, err := indexer.New(ctx, idxCfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("initializing indexer: %w", err)
	}
	return idx, cfg, nil
}

func runIndex(args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	force := fs.Bool("force", false, "force a full reindex")
	watch := fs.Bool("watch", false, "stay running and reindex on filesystem changes")
	jsonOutput := fs.Bool("json", false, "output results as JSON")
	fs.Parse(args)

	path := "."
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid path:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	idx, cfg, err := openIndexer(ctx, absPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer idx.Close()

	start := time.Now()
	stats, err := idx.Index(ctx, *force)
	if err != nil {
		logger.Error("indexing failed", "error", err)
		os.Exit(1)
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(stats)
	} else {
		logger.Info("index complete",
			"change_type", stats.ChangeType,
			"files_scanned", humanize.Comma(int64(stats.FilesScanned)),
			"chunks_added", humanize.Comma(int64(stats.ChunksAdded)),
			"symbols_added", humanize.Comma(int64(stats.SymbolsAdded)),
			"refs_added", humanize.Comma(int64(stats.RefsAdded)),
			"embeddings_computed", humanize.Comma(int64(stats.EmbeddingsComputed)),
			"embeddings_cached", humanize.Comma(int64(stats.EmbeddingsCached)),
			"duration", time.Since(start).Round(time.Millisecond))
	}

	if !*watch {
		return
	}
	if !cfg.Watch.Enabled {
		logger.Info("watch.enabled is false in project config, exiting after one-shot index")
		return
	}

	session, err := watcher.NewSession(idx, watcher.SessionConfig{
		DebounceWindow: time.Duration(cfg.Watch.DebounceMs) * time.Millisecond,
		BatchWindow:    time.Duration(cfg.Watch.BatchWindowMs) * time.Millisecond,
	}, logger)
	if err != nil {
		logger.Error("starting watch session failed", "error", err)
		os.Exit(1)
	}

	logger.Info("watching for changes", "path", absPath)
	if err := session.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("watch session ended with error", "error", err)
		os.Exit(1)
	}
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	intent := fs.String("intent", "auto", "search intent: auto, definition, usage, exact_text, similar_code")
	limit := fs.Int("limit", 20, "maximum number of results")
	exhaustive := fs.Bool("exhaustive", false, "return every match (limit=500)")
	contextLines := fs.Int("context", 0, "lines of surrounding source to print around each hit")
	jsonOutput := fs.Bool("json", false, "output results as JSON")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: codesearch search <query> [path]")
		os.Exit(1)
	}
	query := fs.Arg(0)
	path := "."
	if fs.NArg() > 1 {
		path = fs.Arg(1)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid path:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	idx, cfg, err := openIndexer(ctx, absPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer idx.Close()

	symbolIndex := symbols.NewIndex(idx.ChunkStore(), absPath, cfg.UseCtags)
	retriever := search.NewRetriever(idx.ChunkStore(), idx.Embedder(), symbolIndex, config.DefaultRetrieverConfig(), logger)
	reranker := rerank.NewReranker(cfg.Rerank)
	engine := search.NewEngine(retriever, reranker, symbolIndex, idx.ChunkStore(), absPath, logger)

	result, err := engine.Search(ctx, query, search.QueryOptions{
		Intent:     search.Intent(*intent),
		Limit:      *limit,
		Exhaustive: *exhaustive,
	})
	if err != nil {
		logger.Error("search failed", "error", err)
		os.Exit(1)
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(result)
		return
	}

	fmt.Printf("intent=%s matches=%d duration=%s\n", result.ResolvedIntent, result.TotalMatches, result.Duration.Round(time.Millisecond))
	for _, r := range result.Results {
		fmt.Printf("%.4f  %s:%d  %s\n", r.Score, r.FilePath, r.StartLine, r.SymbolName)
		if *contextLines <= 0 {
			continue
		}
		ctx, err := files.GetContext(absPath, r.FilePath, r.StartLine, r.EndLine, *contextLines)
		if err != nil {
			logger.Warn("reading context", "file", r.FilePath, "error", err)
			continue
		}
		for i, line := range strings.Split(ctx.Content, "\n") {
			fmt.Printf("    %4d | %s\n", ctx.StartLine+i, line)
		}
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "output results as JSON")
	fs.Parse(args)

	path := "."
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid path:", err)
		os.Exit(1)
	}

	cfg, err := config.LoadProjectConfig(config.ProjectConfigPath(absPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	dataDir := filepath.Join(absPath, cfg.DataDir)

	store := manifest.NewStore(dataDir, logging.Nop())
	initialized := store.Exists()

	status := struct {
		Initialized bool             `json:"initialized"`
		Indexed     bool             `json:"indexed"`
		Revision    string           `json:"revision,omitempty"`
		Stats       manifest.Stats   `json:"stats,omitempty"`
		Watch       config.WatchConfig `json:"watch"`
	}{
		Initialized: initialized,
		Watch:       cfg.Watch,
	}

	if initialized {
		m, err := store.Load()
		if err == nil && m != nil {
			status.Indexed = true
			status.Revision = m.Revision
			status.Stats = m.Stats
		}
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(status)
		return
	}

	fmt.Printf("initialized=%v indexed=%v revision=%s\n", status.Initialized, status.Indexed, status.Revision)
	if status.Indexed {
		fmt.Printf("files=%s symbols=%s chunks=%s refs=%s\n",
			humanize.Comma(int64(status.Stats.Files)),
			humanize.Comma(int64(status.Stats.Symbols)),
			humanize.Comma(int64(status.Stats.Chunks)),
			humanize.Comma(int64(status.Stats.Refs)))
	}
}
