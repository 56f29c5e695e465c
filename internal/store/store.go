// Package store persists chunk rows and serves vector and full-text
// search over them. It is the one place in the core that knows the
// on-disk shape of the "chunks" table; callers deal only in
// model.ChunkRow and Filter.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"codesearch/internal/db"
	"codesearch/internal/model"
)

const (
	chunksTable = "chunks"
	ftsTable    = "chunks_fts"
	metaTable   = "store_meta"
	vecTable    = "chunks_vec"
)

// Store is the vector + FTS persistence facade over internal/db.
type Store struct {
	db         db.DB
	dialect    db.Dialect
	schema     *db.SchemaBuilder
	dimensions int
	vecStore   *db.SQLiteVecStore
	brute      *db.BruteForceVectorDB
	log        *slog.Logger

	mu  sync.Mutex
	ids map[int64]string // brute-force int64 key -> original chunk id
}

// rememberID records the int64<->string id mapping the brute-force
// index needs, since BruteForceVectorDB is keyed by int64 but chunk ids
// are hex content hashes.
func (s *Store) rememberID(id string) int64 {
	id64 := idToInt64(id)
	s.mu.Lock()
	s.ids[id64] = id
	s.mu.Unlock()
	return id64
}

func (s *Store) idFor(id64 int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[id64]
	return id, ok
}

// Open prepares the chunks table, its FTS5 shadow, and the vector index
// for the given dimensionality. If a prior run used a different
// dimension, the chunks table is dropped and recreated and the caller's
// manifest should be treated as invalidated.
func Open(ctx context.Context, database db.DB, dialect db.Dialect, dimensions int, log *slog.Logger) (*Store, bool, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		db:         database,
		dialect:    dialect,
		schema:     db.NewSchemaBuilder(database, dialect),
		dimensions: dimensions,
		log:        log,
		ids:        make(map[int64]string),
	}

	if err := s.schema.RunInitStatements(ctx); err != nil {
		return nil, false, fmt.Errorf("running init statements: %w", err)
	}

	if err := s.schema.CreateTable(ctx, metaTable, []db.ColumnDef{
		{Name: "key", Type: db.ColTypeText, PrimaryKey: true},
		{Name: "value", Type: db.ColTypeText},
	}); err != nil {
		return nil, false, fmt.Errorf("creating meta table: %w", err)
	}

	invalidated, err := s.reconcileDimensions(ctx)
	if err != nil {
		return nil, false, err
	}

	if err := s.ensureChunksTable(ctx); err != nil {
		return nil, false, err
	}
	if err := s.ensureFTSTable(ctx); err != nil {
		return nil, false, err
	}
	if err := s.ensureFilesTable(ctx); err != nil {
		return nil, false, err
	}
	if err := s.ensureRefsTable(ctx); err != nil {
		return nil, false, err
	}

	vecStore, err := db.NewSQLiteVecStore(database, db.SQLiteVecConfig{
		Dimensions:   dimensions,
		TableName:    chunksTable,
		VecTableName: vecTable,
	})
	if err != nil {
		return nil, false, fmt.Errorf("initializing vector store: %w", err)
	}
	s.vecStore = vecStore
	if !vecStore.IsVecAvailable() {
		s.log.Debug("vec0 extension unavailable, using brute-force vector search", "dimensions", dimensions)
	}
	s.brute = db.NewBruteForceVectorDB()
	if err := s.brute.CreateVectorIndex(ctx, chunksTable, dimensions, db.DistanceEuclidean); err != nil {
		return nil, false, fmt.Errorf("initializing brute-force index: %w", err)
	}
	if err := s.loadBruteForceIndex(ctx); err != nil {
		return nil, false, fmt.Errorf("loading brute-force index: %w", err)
	}

	return s, invalidated, nil
}

// reconcileDimensions compares the stored vector dimension against the
// requested one. On mismatch it drops the chunks table (and its FTS
// shadow and vector index) so they get recreated fresh, and reports the
// caller's manifest as invalidated.
func (s *Store) reconcileDimensions(ctx context.Context) (bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT value FROM "+metaTable+" WHERE key = ?", "vector_dimensions")
	var stored string
	err := row.Scan(&stored)
	if err == nil {
		if stored != fmt.Sprintf("%d", s.dimensions) {
			s.log.Warn("vector dimension changed, dropping chunk store",
				"previous", stored, "current", s.dimensions)
			for _, table := range []string{chunksTable, ftsTable, vecTable, filesTable} {
				if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
					return false, fmt.Errorf("dropping %s: %w", table, err)
				}
			}
			if err := s.writeDimension(ctx); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, nil
	}
	// No prior record: first run for this store.
	if err := s.writeDimension(ctx); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) writeDimension(ctx context.Context) error {
	_, err := s.schema.Upsert(ctx, metaTable,
		[]string{"key", "value"}, []string{"key"}, nil,
		"vector_dimensions", fmt.Sprintf("%d", s.dimensions))
	return err
}

func (s *Store) ensureChunksTable(ctx context.Context) error {
	columns := []db.ColumnDef{
		{Name: "id", Type: db.ColTypeText, PrimaryKey: true},
		{Name: "repo_id", Type: db.ColTypeText},
		{Name: "revision", Type: db.ColTypeText},
		{Name: "file_path", Type: db.ColTypeText},
		{Name: "extension", Type: db.ColTypeText},
		{Name: "start_line", Type: db.ColTypeInteger},
		{Name: "end_line", Type: db.ColTypeInteger},
		{Name: "start_byte", Type: db.ColTypeInteger},
		{Name: "end_byte", Type: db.ColTypeInteger},
		{Name: "is_symbol", Type: db.ColTypeInteger},
		{Name: "symbol_kind", Type: db.ColTypeText, Default: "''"},
		{Name: "chunk_kind", Type: db.ColTypeText, Default: "''"},
		{Name: "symbol_name", Type: db.ColTypeText, Default: "''"},
		{Name: "qualname", Type: db.ColTypeText, Default: "''"},
		{Name: "parent_symbol_id", Type: db.ColTypeText, Default: "''"},
		{Name: "owner_symbol_id", Type: db.ColTypeText, Default: "''"},
		{Name: "signature", Type: db.ColTypeText, Default: "''"},
		{Name: "docstring", Type: db.ColTypeText, Default: "''"},
		{Name: "is_exported", Type: db.ColTypeInteger, Default: "0"},
		{Name: "decorator_names", Type: db.ColTypeText, Default: "''"},
		{Name: "context_header", Type: db.ColTypeText},
		{Name: "code_text", Type: db.ColTypeText},
		{Name: "search_text", Type: db.ColTypeText},
		{Name: "content_hash", Type: db.ColTypeText},
		{Name: "file_hash", Type: db.ColTypeText},
		{Name: "vector", Type: db.ColTypeBlob},
	}
	if err := s.schema.CreateTable(ctx, chunksTable, columns); err != nil {
		return fmt.Errorf("creating chunks table: %w", err)
	}
	if err := s.schema.CreateIndex(ctx, chunksTable, "idx_chunks_file_path", []string{"file_path"}, false); err != nil {
		return fmt.Errorf("creating file_path index: %w", err)
	}
	if err := s.schema.CreateIndex(ctx, chunksTable, "idx_chunks_content_hash", []string{"content_hash"}, false); err != nil {
		return fmt.Errorf("creating content_hash index: %w", err)
	}
	return nil
}

func (s *Store) ensureFTSTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(id UNINDEXED, search_text)`, ftsTable))
	if err != nil {
		return fmt.Errorf("creating fts table: %w", err)
	}
	return nil
}

func (s *Store) loadBruteForceIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT id, vector FROM "+chunksTable+" WHERE vector IS NOT NULL")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return err
		}
		vec := blobToFloat32(blob)
		if len(vec) == 0 {
			continue
		}
		if err := s.brute.InsertVector(ctx, chunksTable, s.rememberID(id), vec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// UpsertChunks merges rows on id, updating all columns on match and
// inserting on miss.
func (s *Store) UpsertChunks(ctx context.Context, rows []model.ChunkRow) error {
	if len(rows) == 0 {
		return nil
	}

	columns := chunkColumns()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	upsertSQL := s.dialect.UpsertSQL(chunksTable, columns, []string{"id"}, nil)
	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	ftsStmt, err := tx.Prepare(fmt.Sprintf("INSERT OR REPLACE INTO %s(id, search_text) VALUES (?, ?)", ftsTable))
	if err != nil {
		stmt.Close()
		return fmt.Errorf("preparing fts upsert: %w", err)
	}

	for _, row := range rows {
		if _, err := stmt.Exec(chunkValues(row)...); err != nil {
			stmt.Close()
			ftsStmt.Close()
			return fmt.Errorf("upserting chunk %s: %w", row.ID, err)
		}
		if _, err := ftsStmt.Exec(row.ID, row.SearchText); err != nil {
			stmt.Close()
			ftsStmt.Close()
			return fmt.Errorf("upserting fts row %s: %w", row.ID, err)
		}
	}
	stmt.Close()
	ftsStmt.Close()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}

	for _, row := range rows {
		if len(row.Vector) == 0 {
			continue
		}
		if s.vecStore.IsVecAvailable() {
			if err := s.vecStore.Insert(ctx, row.ID, row.Vector); err != nil {
				return fmt.Errorf("indexing vector %s: %w", row.ID, err)
			}
		}
		if err := s.brute.InsertVector(ctx, chunksTable, s.rememberID(row.ID), row.Vector); err != nil {
			return fmt.Errorf("indexing brute-force vector %s: %w", row.ID, err)
		}
	}
	return nil
}

// AddChunks appends rows without checking for conflicts, the fast path
// used immediately after ResetChunks.
func (s *Store) AddChunks(ctx context.Context, rows []model.ChunkRow) error {
	if len(rows) == 0 {
		return nil
	}

	columns := chunkColumns()
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = s.dialect.Placeholder(i + 1)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		chunksTable, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	ftsStmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s(id, search_text) VALUES (?, ?)", ftsTable))
	if err != nil {
		stmt.Close()
		return fmt.Errorf("preparing fts insert: %w", err)
	}

	for _, row := range rows {
		if _, err := stmt.Exec(chunkValues(row)...); err != nil {
			stmt.Close()
			ftsStmt.Close()
			return fmt.Errorf("inserting chunk %s: %w", row.ID, err)
		}
		if _, err := ftsStmt.Exec(row.ID, row.SearchText); err != nil {
			stmt.Close()
			ftsStmt.Close()
			return fmt.Errorf("inserting fts row %s: %w", row.ID, err)
		}
	}
	stmt.Close()
	ftsStmt.Close()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing insert: %w", err)
	}

	for _, row := range rows {
		if len(row.Vector) == 0 {
			continue
		}
		if s.vecStore.IsVecAvailable() {
			if err := s.vecStore.Insert(ctx, row.ID, row.Vector); err != nil {
				return fmt.Errorf("indexing vector %s: %w", row.ID, err)
			}
		}
		if err := s.brute.InsertVector(ctx, chunksTable, s.rememberID(row.ID), row.Vector); err != nil {
			return fmt.Errorf("indexing brute-force vector %s: %w", row.ID, err)
		}
	}
	return nil
}

// ResetChunks drops and recreates the chunks/FTS/vector tables, for a
// forced full reindex.
func (s *Store) ResetChunks(ctx context.Context) error {
	for _, table := range []string{chunksTable, ftsTable, vecTable} {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("dropping %s: %w", table, err)
		}
	}
	if err := s.ensureChunksTable(ctx); err != nil {
		return err
	}
	if err := s.ensureFTSTable(ctx); err != nil {
		return err
	}
	vecStore, err := db.NewSQLiteVecStore(s.db, db.SQLiteVecConfig{
		Dimensions:   s.dimensions,
		TableName:    chunksTable,
		VecTableName: vecTable,
	})
	if err != nil {
		return fmt.Errorf("reinitializing vector store: %w", err)
	}
	s.vecStore = vecStore
	s.brute = db.NewBruteForceVectorDB()
	return s.brute.CreateVectorIndex(ctx, chunksTable, s.dimensions, db.DistanceEuclidean)
}

// DeleteByFilepath removes every chunk for path, returning the number deleted.
func (s *Store) DeleteByFilepath(ctx context.Context, path string) (int, error) {
	return s.DeleteByFilepaths(ctx, []string{path})
}

// DeleteByFilepaths removes every chunk for any of paths, returning the
// total number deleted.
func (s *Store) DeleteByFilepaths(ctx context.Context, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}

	ids, err := s.idsForFilepaths(ctx, paths)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(paths))
	args := make([]any, len(paths))
	for i, p := range paths {
		placeholders[i] = s.dialect.Placeholder(i + 1)
		args[i] = p
	}
	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE file_path IN (%s)", chunksTable, strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, deleteSQL, args...); err != nil {
		return 0, fmt.Errorf("deleting chunks: %w", err)
	}

	idPlaceholders := make([]string, len(ids))
	idArgs := make([]any, len(ids))
	for i, id := range ids {
		idPlaceholders[i] = s.dialect.Placeholder(i + 1)
		idArgs[i] = id
	}
	ftsDelete := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", ftsTable, strings.Join(idPlaceholders, ", "))
	if _, err := s.db.ExecContext(ctx, ftsDelete, idArgs...); err != nil {
		return 0, fmt.Errorf("deleting fts rows: %w", err)
	}

	if s.vecStore.IsVecAvailable() {
		if err := s.vecStore.DeleteBatch(ctx, ids); err != nil {
			return 0, fmt.Errorf("deleting vector rows: %w", err)
		}
	}
	for _, id := range ids {
		if err := s.brute.DeleteVector(ctx, chunksTable, idToInt64(id)); err != nil {
			return 0, fmt.Errorf("deleting brute-force vector: %w", err)
		}
	}

	return len(ids), nil
}

func (s *Store) idsForFilepaths(ctx context.Context, paths []string) ([]string, error) {
	placeholders := make([]string, len(paths))
	args := make([]any, len(paths))
	for i, p := range paths {
		placeholders[i] = s.dialect.Placeholder(i + 1)
		args[i] = p
	}
	q := fmt.Sprintf("SELECT id FROM %s WHERE file_path IN (%s)", chunksTable, strings.Join(placeholders, ", "))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetAllFilepaths returns the distinct set of file paths currently
// persisted, used to compute deletes against a Merkle diff.
func (s *Store) GetAllFilepaths(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT file_path FROM "+chunksTable)
	if err != nil {
		return nil, fmt.Errorf("selecting file paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]bool)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths[path] = true
	}
	return paths, rows.Err()
}

// SearchOptions bounds and filters a vector or FTS search.
type SearchOptions struct {
	Limit    int
	Filter   Filter
	MinScore float64
}

// ScoredChunk is a chunk row paired with a search score, descending.
type ScoredChunk struct {
	Row   model.ChunkRow
	Score float64
}

// VectorSearch ranks chunks by descending 1/(1+distance) against
// queryVec, using the vec0 index when available and falling back to
// brute force otherwise.
func (s *Store) VectorSearch(ctx context.Context, queryVec []float32, opts SearchOptions) ([]ScoredChunk, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var ranked []db.VectorSearchResult
	var err error
	if s.vecStore.IsVecAvailable() {
		results, searchErr := s.vecStore.Search(ctx, queryVec, limit*4)
		if searchErr != nil {
			return nil, fmt.Errorf("vec0 search: %w", searchErr)
		}
		ranked = make([]db.VectorSearchResult, len(results))
		for i, r := range results {
			ranked[i] = db.VectorSearchResult{ID: s.rememberID(r.ContentHash), Distance: r.Distance, Score: r.Score}
		}
	} else {
		ranked, err = s.brute.SearchKNN(ctx, chunksTable, queryVec, limit*4)
		if err != nil {
			return nil, fmt.Errorf("brute-force search: %w", err)
		}
	}

	var out []ScoredChunk
	for _, r := range ranked {
		row, ok, err := s.rowByInt64ID(ctx, r.ID, opts.Filter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		score := float64(r.Score)
		if score < opts.MinScore {
			continue
		}
		out = append(out, ScoredChunk{Row: row, Score: score})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// FTSSearch ranks chunks by BM25 relevance to queryString.
func (s *Store) FTSSearch(ctx context.Context, queryString string, opts SearchOptions) ([]ScoredChunk, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	q := fmt.Sprintf(`
		SELECT c.* , bm25(f) AS rank
		FROM %s f
		JOIN %s c ON c.id = f.id
		WHERE f.search_text MATCH ?`, ftsTable, chunksTable)
	args := []any{queryString}

	clauses, filterArgs := opts.Filter.clauses(s.dialect)
	for _, c := range clauses {
		q += " AND " + c
	}
	args = append(args, filterArgs...)

	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit*2)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var out []ScoredChunk
	for rows.Next() {
		row, rank, err := scanChunkRowWithRank(rows)
		if err != nil {
			return nil, err
		}
		// bm25() in SQLite is non-positive, more negative meaning a
		// better match; negate it into an ascending, positive score.
		score := -rank
		if score < opts.MinScore {
			continue
		}
		out = append(out, ScoredChunk{Row: row, Score: score})
		if len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

func (s *Store) rowByInt64ID(ctx context.Context, id64 int64, filter Filter) (model.ChunkRow, bool, error) {
	id, ok := s.idFor(id64)
	if !ok {
		return model.ChunkRow{}, false, nil
	}

	q := fmt.Sprintf("SELECT * FROM %s WHERE id = ?", chunksTable)
	args := []any{id}

	clauses, filterArgs := filter.clauses(s.dialect)
	for _, c := range clauses {
		q += " AND " + c
	}
	args = append(args, filterArgs...)

	row := s.db.QueryRowContext(ctx, q, args...)
	chunk, err := scanChunkRow(row)
	if err != nil {
		return model.ChunkRow{}, false, nil //nolint:nilerr
	}
	return chunk, true, nil
}
