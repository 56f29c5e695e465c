// Package indexer orchestrates one end-to-end indexing run: diff the
// repository tree against the prior manifest, chunk changed files,
// resolve embeddings through the cache and batch pipeline, persist
// rows, and rewrite the manifest atomically. It is the library type
// cmd/codesearch and internal/watcher both drive; neither owns the
// indexing logic itself.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codesearch/internal/chunker"
	"codesearch/internal/db"
	"codesearch/internal/embedding"
	"codesearch/internal/ignore"
	"codesearch/internal/manifest"
	"codesearch/internal/merkle"
	"codesearch/internal/model"
	"codesearch/internal/pipeline"
	"codesearch/internal/provider"
	"codesearch/internal/store"
)

// State is the indexer's run lifecycle, surfaced for status observers.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateScanning     State = "scanning"
	StateChunking     State = "chunking"
	StateEmbedding    State = "embedding"
	StateComplete     State = "complete"
	StateError        State = "error"
)

// Progress is one update emitted during a run. Stage mirrors State;
// Current/Total track work units within the current stage.
type Progress struct {
	Stage            State
	Current          int
	Total            int
	ChunksProcessed  int
	ThrottleMessage  string
}

// Config configures an Indexer instance.
type Config struct {
	RepoPath   string
	DataDir    string // defaults to <RepoPath>/.codesearch
	RepoID     string // defaults to the absolute repo path

	Provider   provider.Kind
	ProviderBaseURL string
	EmbeddingModel  string
	Dimensions      int

	Concurrency int // embedding pipeline slot count, default pipeline.DefaultSlots

	ExtraIgnorePatterns []string
	Extensions          []string // allow-list; empty means all supported extensions

	Logger *slog.Logger
}

// IndexStats summarizes one completed (or partially completed) run.
type IndexStats struct {
	FilesScanned       int
	FilesNew           int
	FilesModified      int
	FilesDeleted       int
	ChunksAdded        int
	SymbolsAdded       int // subset of ChunksAdded that are symbol rows, not block rows
	ChunksDeleted      int
	RefsAdded          int
	EmbeddingsComputed int
	EmbeddingsCached   int
	Failures           []pipeline.Failure
	Duration           time.Duration
	ChangeType         string // "full", "incremental", "none"
}

// Indexer coordinates one repository's Merkle store, chunker, embedding
// cache, batch pipeline, and persistent store.
type Indexer struct {
	cfg      Config
	log      *slog.Logger
	repoPath string
	dataDir  string
	repoID   string

	database db.DB
	dialect  db.Dialect

	merkleStore   *merkle.Store
	merkleBuilder *merkle.Builder
	manifestStore *manifest.Store
	chunker       *chunker.Chunker
	cache         *embedding.EmbeddingCache
	embedder      provider.Embedder
	pipeline      *pipeline.Pipeline
	chunkStore    *store.Store

	mu            sync.Mutex
	state         State
	lastCompleted time.Time
	lastStats     *IndexStats
	progressFn    func(Progress)
}

// New wires up every component Index needs from cfg. The database is
// always opened at <dataDir>/index.db; callers that want an in-memory
// database for tests should construct Indexer's components directly
// instead.
func New(ctx context.Context, cfg Config) (*Indexer, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	absPath, err := filepath.Abs(cfg.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("resolving repo path: %w", err)
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(absPath, ".codesearch")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	repoID := cfg.RepoID
	if repoID == "" {
		repoID = absPath
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 768
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = pipeline.DefaultSlots
	}

	dbCfg := db.DefaultConfig(filepath.Join(dataDir, "index.db"))
	database, err := db.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	idx := &Indexer{
		cfg:      cfg,
		log:      cfg.Logger,
		repoPath: absPath,
		dataDir:  dataDir,
		repoID:   repoID,
		database: database,
		dialect:  dbCfg.Dialect(),
		state:    StateIdle,
	}

	if err := idx.initComponents(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Indexer) initComponents(ctx context.Context) error {
	ignoreFilter, err := ignore.New(idx.repoPath, ignore.Options{ExtraSkipNames: idx.cfg.ExtraIgnorePatterns})
	if err != nil {
		return fmt.Errorf("building ignore filter: %w", err)
	}
	idx.merkleBuilder = &merkle.Builder{Filter: ignoreFilter}
	idx.merkleStore = merkle.NewStore(idx.dataDir)
	idx.manifestStore = manifest.NewStore(idx.dataDir, idx.log)
	idx.chunker = chunker.New(chunker.Options{})

	cache, err := embedding.NewEmbeddingCache(idx.database, idx.dialect, idx.cfg.Dimensions, idx.cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("creating embedding cache: %w", err)
	}
	idx.cache = cache

	embedder, err := idx.createEmbedder()
	if err != nil {
		return err
	}
	idx.embedder = embedder
	idx.pipeline = pipeline.New(embedder, pipeline.WithSlots(idx.cfg.Concurrency))

	chunkStore, invalidated, err := store.Open(ctx, idx.database, idx.dialect, idx.cfg.Dimensions, idx.log)
	if err != nil {
		return fmt.Errorf("opening chunk store: %w", err)
	}
	idx.chunkStore = chunkStore
	if invalidated {
		idx.log.Warn("store schema invalidated by dimension change, next run forces a full reindex")
		if err := idx.manifestStore.Delete(); err != nil {
			idx.log.Warn("failed to delete stale manifest", "error", err)
		}
	}

	return nil
}

func (idx *Indexer) createEmbedder() (provider.Embedder, error) {
	if idx.cfg.Provider == "" {
		return provider.NoOpEmbedder{}, nil
	}
	var opts []provider.Option
	if idx.cfg.ProviderBaseURL != "" {
		opts = append(opts, provider.WithBaseURL(idx.cfg.ProviderBaseURL))
	}
	if idx.cfg.EmbeddingModel != "" {
		opts = append(opts, provider.WithModel(idx.cfg.EmbeddingModel))
	}
	opts = append(opts, provider.WithDimensions(idx.cfg.Dimensions))
	embedder, err := provider.New(idx.cfg.Provider, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	return embedder, nil
}

// OnProgress registers a callback invoked as the run advances through
// its stages. Not safe to change concurrently with a running Index.
func (idx *Indexer) OnProgress(fn func(Progress)) {
	idx.progressFn = fn
}

func (idx *Indexer) emit(p Progress) {
	if idx.progressFn != nil {
		idx.progressFn(p)
	}
}

func (idx *Indexer) setState(s State) {
	idx.mu.Lock()
	idx.state = s
	idx.mu.Unlock()
}

// State returns the indexer's current lifecycle state.
func (idx *Indexer) State() State {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.state
}

// LastStats returns the stats from the most recently completed run,
// and the time it completed. Both are zero-valued before a first run.
func (idx *Indexer) LastStats() (*IndexStats, time.Time) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.lastStats, idx.lastCompleted
}

// Close releases the underlying database connection.
func (idx *Indexer) Close() error {
	if idx.database != nil {
		return idx.database.Close()
	}
	return nil
}

// Index runs one full index cycle: scan, diff, chunk, embed, persist,
// rewrite manifest. force treats the run as a full reindex regardless
// of the Merkle diff.
func (idx *Indexer) Index(ctx context.Context, force bool) (*IndexStats, error) {
	start := time.Now()
	idx.setState(StateInitializing)

	prior, err := idx.manifestStore.Load()
	if err != nil {
		idx.setState(StateError)
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	if prior == nil {
		force = true
	}

	idx.setState(StateScanning)
	idx.emit(Progress{Stage: StateScanning})
	newTree, err := idx.merkleBuilder.Build(idx.repoPath)
	if err != nil {
		idx.setState(StateError)
		return nil, fmt.Errorf("building merkle tree: %w", err)
	}

	stats := &IndexStats{}
	var added, modified, deleted []string

	if force {
		stats.ChangeType = "full"
		added = collectFiles(newTree.Root)
	} else {
		oldTree, err := idx.merkleStore.Load()
		if err != nil {
			idx.setState(StateError)
			return nil, fmt.Errorf("loading prior tree: %w", err)
		}
		changes := merkle.Diff(oldTree, newTree)
		if changes.IsEmpty() {
			stats.ChangeType = "none"
			stats.Duration = time.Since(start)
			idx.recordCompletion(stats)
			idx.setState(StateComplete)
			return stats, nil
		}
		stats.ChangeType = "incremental"
		added = changes.Added
		modified = changes.Modified
		deleted = changes.Deleted
	}

	stats.FilesNew = len(added)
	stats.FilesModified = len(modified)
	stats.FilesScanned = len(added) + len(modified)

	if err := idx.applyDeletions(ctx, deleted, stats); err != nil {
		idx.setState(StateError)
		return nil, err
	}
	if err := idx.chunkStore.DeleteRefsByPaths(ctx, modified); err != nil {
		idx.setState(StateError)
		return nil, fmt.Errorf("deleting ref rows: %w", err)
	}

	idx.setState(StateChunking)
	idx.emit(Progress{Stage: StateChunking})
	revision := newTree.RootHash()
	allFiles := append(append([]string{}, added...), modified...)
	fileResults, err := idx.chunkFiles(ctx, revision, allFiles)
	if err != nil {
		idx.setState(StateError)
		return nil, err
	}

	idx.setState(StateEmbedding)
	idx.emit(Progress{Stage: StateEmbedding})
	failures, err := idx.embedAndPersist(ctx, fileResults, stats)
	if err != nil {
		idx.setState(StateError)
		return nil, err
	}
	stats.Failures = failures

	if err := idx.merkleStore.Save(newTree); err != nil {
		idx.setState(StateError)
		return nil, fmt.Errorf("saving merkle tree: %w", err)
	}

	m := manifest.New(idx.repoID, newTree, manifest.Stats{
		Files:   stats.FilesScanned - stats.FilesDeleted,
		Symbols: stats.SymbolsAdded,
		Chunks:  stats.ChunksAdded,
		Refs:    stats.RefsAdded,
	})
	if err := idx.manifestStore.Save(m); err != nil {
		idx.setState(StateError)
		return nil, fmt.Errorf("saving manifest: %w", err)
	}

	stats.Duration = time.Since(start)
	idx.recordCompletion(stats)
	idx.setState(StateComplete)
	return stats, nil
}

func (idx *Indexer) recordCompletion(stats *IndexStats) {
	idx.mu.Lock()
	idx.lastStats = stats
	idx.lastCompleted = timeNow()
	idx.mu.Unlock()
}

// timeNow isolates the single time.Now() call Index's completion
// bookkeeping needs, so it reads clearly as intentional wall-clock use
// rather than an accidental nondeterminism leak.
func timeNow() time.Time { return time.Now() }

func (idx *Indexer) applyDeletions(ctx context.Context, deleted []string, stats *IndexStats) error {
	if len(deleted) == 0 {
		return nil
	}
	n, err := idx.chunkStore.DeleteByFilepaths(ctx, deleted)
	if err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if err := idx.chunkStore.DeleteFilesByPaths(ctx, deleted); err != nil {
		return fmt.Errorf("deleting file rows: %w", err)
	}
	if err := idx.chunkStore.DeleteRefsByPaths(ctx, deleted); err != nil {
		return fmt.Errorf("deleting ref rows: %w", err)
	}
	stats.FilesDeleted = len(deleted)
	stats.ChunksDeleted = n
	return nil
}

func (idx *Indexer) chunkFiles(ctx context.Context, revision string, relPaths []string) ([]chunker.FileResult, error) {
	var results []chunker.FileResult
	for _, rel := range relPaths {
		full := filepath.Join(idx.repoPath, rel)
		content, err := os.ReadFile(full)
		if err != nil {
			idx.log.Debug("skipping unreadable file", "path", rel, "error", err)
			continue
		}
		if len(idx.cfg.Extensions) > 0 && !extensionAllowed(rel, idx.cfg.Extensions) {
			continue
		}

		fileHash := embedding.HashContent(string(content))
		res, err := idx.chunker.ChunkFile(ctx, idx.repoID, revision, rel, content, fileHash)
		if err != nil {
			idx.log.Debug("chunk error, skipping file", "path", rel, "error", err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func extensionAllowed(path string, allow []string) bool {
	ext := filepath.Ext(path)
	for _, a := range allow {
		if a == ext {
			return true
		}
	}
	return false
}

// embedAndPersist resolves embeddings for every chunk across
// fileResults (cache-first, pipeline for misses), attaches vectors, and
// upserts chunks/files into the store.
func (idx *Indexer) embedAndPersist(ctx context.Context, fileResults []chunker.FileResult, stats *IndexStats) ([]pipeline.Failure, error) {
	if len(fileResults) == 0 {
		return nil, nil
	}

	type pending struct {
		hash string
		text string
		path string
	}
	seen := make(map[string]bool)
	var items []pending

	for _, fr := range fileResults {
		for _, sym := range fr.Symbols {
			if seen[sym.ContentHash] {
				continue
			}
			seen[sym.ContentHash] = true
			items = append(items, pending{hash: sym.ContentHash, text: sym.SearchText, path: sym.FilePath})
		}
		for _, b := range fr.Blocks {
			if seen[b.ContentHash] {
				continue
			}
			seen[b.ContentHash] = true
			items = append(items, pending{hash: b.ContentHash, text: b.SearchText, path: b.FilePath})
		}
	}

	hashes := make([]string, len(items))
	for i, it := range items {
		hashes[i] = it.hash
	}
	cached, err := idx.cache.GetBatch(hashes)
	if err != nil {
		return nil, fmt.Errorf("looking up embedding cache: %w", err)
	}

	vectors := make(map[string][]float32, len(hashes))
	var toEmbed []pipeline.Item
	for _, it := range items {
		if entry, ok := cached[it.hash]; ok {
			vectors[it.hash] = entry.Embedding
			stats.EmbeddingsCached++
			continue
		}
		toEmbed = append(toEmbed, pipeline.Item{ContentHash: it.hash, Text: it.text, FilePath: it.path})
	}

	var failures []pipeline.Failure
	if len(toEmbed) > 0 {
		embedded, runStats, err := idx.pipeline.Run(ctx, toEmbed)
		if err != nil && len(embedded) == 0 {
			return nil, fmt.Errorf("running embedding pipeline: %w", err)
		}
		for hash, vec := range embedded {
			vectors[hash] = vec
		}
		if runStats != nil {
			stats.EmbeddingsComputed += runStats.Embedded
			failures = runStats.Failures
		}
		if err := idx.cache.PutBatch(embedded); err != nil {
			idx.log.Warn("failed to persist new embeddings to cache", "error", err)
		}
	}

	var chunkRows []model.ChunkRow
	var fileRows []model.FileRow
	var refRows []model.Ref
	for _, fr := range fileResults {
		for _, sym := range fr.Symbols {
			sym.VecSummary = vectors[sym.ContentHash]
			chunkRows = append(chunkRows, model.ChunkRowFromSymbol(sym))
		}
		stats.SymbolsAdded += len(fr.Symbols)
		for _, b := range fr.Blocks {
			b.VecSummary = vectors[b.ContentHash]
			chunkRows = append(chunkRows, model.ChunkRowFromBlock(b))
		}
		fileRows = append(fileRows, fr.File)
		refRows = append(refRows, fr.Refs...)
	}

	if err := idx.chunkStore.UpsertChunks(ctx, chunkRows); err != nil {
		return nil, fmt.Errorf("persisting chunks: %w", err)
	}
	if err := idx.chunkStore.UpsertFiles(ctx, fileRows); err != nil {
		return nil, fmt.Errorf("persisting file rows: %w", err)
	}
	if err := idx.chunkStore.UpsertRefs(ctx, refRows); err != nil {
		return nil, fmt.Errorf("persisting ref rows: %w", err)
	}
	stats.ChunksAdded += len(chunkRows)
	stats.RefsAdded += len(refRows)

	return failures, nil
}

func collectFiles(node *merkle.Node) []string {
	if node == nil {
		return nil
	}
	if !node.IsDir {
		return []string{node.Path}
	}
	var files []string
	for _, child := range node.Children {
		files = append(files, collectFiles(child)...)
	}
	return files
}

// ChunkStore exposes the underlying chunk/vector/FTS store for search
// engines built over the same repository.
func (idx *Indexer) ChunkStore() *store.Store { return idx.chunkStore }

// RepoPath returns the absolute repository path this indexer watches.
func (idx *Indexer) RepoPath() string { return idx.repoPath }

// Embedder exposes the configured embedding provider for search engines
// built over the same repository.
func (idx *Indexer) Embedder() provider.Embedder { return idx.embedder }
