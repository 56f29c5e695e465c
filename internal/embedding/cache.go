// Package embedding provides content-addressed embedding storage on top
// of internal/db and the internal/provider.Embedder capability.
package embedding

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"codesearch/internal/db"
)

// HashContent computes the SHA-256 content hash used as a cache key.
func HashContent(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// EmbeddingCache stores vectors keyed by content hash (SHA-256), so
// identical code chunks across files, repos, and time share one entry.
type EmbeddingCache struct {
	database   db.DB
	dialect    db.Dialect
	schema     *db.SchemaBuilder
	dimensions int
	model      string
	mu         sync.RWMutex
}

// CacheEntry represents a cached embedding with metadata.
type CacheEntry struct {
	ContentHash  string
	Embedding    []float32
	Model        string
	Dimensions   int
	CreatedAt    time.Time
	AccessCount  int
	LastAccessed time.Time
}

// CacheStats provides cache statistics.
type CacheStats struct {
	TotalEntries   int
	AvgAccessCount float64
	OldestEntry    time.Time
	NewestEntry    time.Time
	MostAccessed   int
	LeastAccessed  int
}

const cacheTableName = "embedding_cache"

// NewEmbeddingCache creates a content-addressed embedding cache.
// dimensions is the vector size (e.g. 768 for nomic-embed-text); model
// identifies the provider+model combination, used to scope eviction.
func NewEmbeddingCache(database db.DB, dialect db.Dialect, dimensions int, model string) (*EmbeddingCache, error) {
	cache := &EmbeddingCache{
		database:   database,
		dialect:    dialect,
		schema:     db.NewSchemaBuilder(database, dialect),
		dimensions: dimensions,
		model:      model,
	}

	if err := cache.initSchema(); err != nil {
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}

	return cache, nil
}

func (c *EmbeddingCache) initSchema() error {
	columns := []db.ColumnDef{
		{Name: "content_hash", Type: db.ColTypeText, PrimaryKey: true},
		{Name: "embedding", Type: db.ColTypeText},
		{Name: "model", Type: db.ColTypeText},
		{Name: "dimensions", Type: db.ColTypeInteger},
		{Name: "created_at", Type: db.ColTypeInteger},
		{Name: "access_count", Type: db.ColTypeInteger, Default: "1"},
		{Name: "last_accessed", Type: db.ColTypeInteger},
	}

	createSQL := c.dialect.CreateTableSQL(cacheTableName, columns)
	if _, err := c.database.Exec(createSQL); err != nil {
		return fmt.Errorf("creating %s table: %w", cacheTableName, err)
	}

	idxModel := c.dialect.CreateIndexSQL(cacheTableName, "idx_embedding_cache_model", []string{"model"}, false)
	if _, err := c.database.Exec(idxModel); err != nil {
		return fmt.Errorf("creating model index: %w", err)
	}

	idxAccess := c.dialect.CreateIndexSQL(cacheTableName, "idx_embedding_cache_access", []string{"last_accessed"}, false)
	if _, err := c.database.Exec(idxAccess); err != nil {
		return fmt.Errorf("creating access index: %w", err)
	}

	return nil
}

// Get retrieves an embedding by content hash. A cache miss returns a nil
// entry without error. Updates access statistics on a hit.
func (c *EmbeddingCache) Get(contentHash string) (*CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query := fmt.Sprintf(`
		SELECT content_hash, embedding, model, dimensions, created_at, access_count, last_accessed
		FROM %s WHERE content_hash = ?
	`, cacheTableName)

	row := c.database.QueryRow(query, contentHash)

	var entry CacheEntry
	var embeddingData string
	var createdAt, lastAccessed int64

	err := row.Scan(
		&entry.ContentHash,
		&embeddingData,
		&entry.Model,
		&entry.Dimensions,
		&createdAt,
		&entry.AccessCount,
		&lastAccessed,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(embeddingData), &entry.Embedding); err != nil {
		return nil, fmt.Errorf("parsing embedding: %w", err)
	}

	entry.CreatedAt = time.Unix(createdAt, 0)
	entry.LastAccessed = time.Unix(lastAccessed, 0)

	go c.updateAccessStats(contentHash)

	return &entry, nil
}

// GetBatch retrieves multiple embeddings by content hash. Missing hashes
// are simply absent from the result map, without error.
func (c *EmbeddingCache) GetBatch(hashes []string) (map[string]*CacheEntry, error) {
	if len(hashes) == 0 {
		return make(map[string]*CacheEntry), nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	placeholders := make([]string, len(hashes))
	args := make([]any, len(hashes))
	for i, hash := range hashes {
		placeholders[i] = "?"
		args[i] = hash
	}

	query := fmt.Sprintf(`
		SELECT content_hash, embedding, model, dimensions, created_at, access_count, last_accessed
		FROM %s WHERE content_hash IN (%s)
	`, cacheTableName, strings.Join(placeholders, ", "))

	rows, err := c.database.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("batch lookup: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*CacheEntry)
	var foundHashes []string

	for rows.Next() {
		var entry CacheEntry
		var embeddingData string
		var createdAt, lastAccessed int64

		if err := rows.Scan(
			&entry.ContentHash,
			&embeddingData,
			&entry.Model,
			&entry.Dimensions,
			&createdAt,
			&entry.AccessCount,
			&lastAccessed,
		); err != nil {
			continue
		}

		if err := json.Unmarshal([]byte(embeddingData), &entry.Embedding); err != nil {
			continue
		}

		entry.CreatedAt = time.Unix(createdAt, 0)
		entry.LastAccessed = time.Unix(lastAccessed, 0)

		result[entry.ContentHash] = &entry
		foundHashes = append(foundHashes, entry.ContentHash)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}

	if len(foundHashes) > 0 {
		go c.updateAccessStatsBatch(foundHashes)
	}

	return result, nil
}

// Put stores an embedding, incrementing access_count if it already exists.
func (c *EmbeddingCache) Put(contentHash string, embedding []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().Unix()

	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("marshaling embedding: %w", err)
	}

	upsertSQL := fmt.Sprintf(`
		INSERT INTO %s (content_hash, embedding, model, dimensions, created_at, access_count, last_accessed)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (content_hash) DO UPDATE SET
			access_count = access_count + 1,
			last_accessed = ?
	`, cacheTableName)

	_, err = c.database.Exec(upsertSQL, contentHash, string(embJSON), c.model, c.dimensions, now, now, now)
	if err != nil {
		return fmt.Errorf("storing embedding: %w", err)
	}

	return nil
}

// PutBatch stores multiple embeddings in one transaction.
func (c *EmbeddingCache) PutBatch(entries map[string][]float32) error {
	if len(entries) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.database.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().Unix()

	stmtSQL := fmt.Sprintf(`
		INSERT INTO %s (content_hash, embedding, model, dimensions, created_at, access_count, last_accessed)
		VALUES (?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (content_hash) DO UPDATE SET
			access_count = access_count + 1,
			last_accessed = ?
	`, cacheTableName)

	stmt, err := tx.Prepare(stmtSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for hash, embedding := range entries {
		embJSON, err := json.Marshal(embedding)
		if err != nil {
			return fmt.Errorf("marshaling embedding for %s: %w", hash, err)
		}

		if _, err := stmt.Exec(hash, string(embJSON), c.model, c.dimensions, now, now, now); err != nil {
			return fmt.Errorf("inserting %s: %w", hash, err)
		}
	}

	return tx.Commit()
}

// Delete removes an embedding from the cache.
func (c *EmbeddingCache) Delete(contentHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := fmt.Sprintf("DELETE FROM %s WHERE content_hash = ?", cacheTableName)
	_, err := c.database.Exec(query, contentHash)
	return err
}

// DeleteBatch removes multiple embeddings from the cache.
func (c *EmbeddingCache) DeleteBatch(hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	placeholders := make([]string, len(hashes))
	args := make([]any, len(hashes))
	for i, hash := range hashes {
		placeholders[i] = "?"
		args[i] = hash
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE content_hash IN (%s)",
		cacheTableName, strings.Join(placeholders, ", "))
	_, err := c.database.Exec(query, args...)
	return err
}

// Count returns the number of entries in the cache.
func (c *EmbeddingCache) Count() (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var count int
	err := c.database.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", cacheTableName)).Scan(&count)
	return count, err
}

// Stats returns cache statistics.
func (c *EmbeddingCache) Stats() (*CacheStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var stats CacheStats
	var oldest, newest, mostAccessed, leastAccessed sql.NullInt64
	var avgAccess sql.NullFloat64

	query := fmt.Sprintf(`
		SELECT COUNT(*), AVG(access_count), MIN(created_at), MAX(created_at), MAX(access_count), MIN(access_count)
		FROM %s
	`, cacheTableName)

	err := c.database.QueryRow(query).Scan(
		&stats.TotalEntries,
		&avgAccess,
		&oldest,
		&newest,
		&mostAccessed,
		&leastAccessed,
	)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}

	if avgAccess.Valid {
		stats.AvgAccessCount = avgAccess.Float64
	}
	if oldest.Valid {
		stats.OldestEntry = time.Unix(oldest.Int64, 0)
	}
	if newest.Valid {
		stats.NewestEntry = time.Unix(newest.Int64, 0)
	}
	if mostAccessed.Valid {
		stats.MostAccessed = int(mostAccessed.Int64)
	}
	if leastAccessed.Valid {
		stats.LeastAccessed = int(leastAccessed.Int64)
	}

	return &stats, nil
}

// Evict removes least-recently-used entries, keeping at most keepCount.
func (c *EmbeddingCache) Evict(keepCount int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var currentCount int
	if err := c.database.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", cacheTableName)).Scan(&currentCount); err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}

	if currentCount <= keepCount {
		return 0, nil
	}

	toEvict := currentCount - keepCount
	deleteSQL := fmt.Sprintf(`
		DELETE FROM %s WHERE content_hash IN (
			SELECT content_hash FROM %s ORDER BY last_accessed ASC LIMIT %d
		)
	`, cacheTableName, cacheTableName, toEvict)

	result, err := c.database.Exec(deleteSQL)
	if err != nil {
		return 0, fmt.Errorf("evicting entries: %w", err)
	}

	evicted, _ := result.RowsAffected()
	return int(evicted), nil
}

// EvictByModel removes all entries for a specific model, for switching
// embedding providers without leaving orphaned vectors behind.
func (c *EmbeddingCache) EvictByModel(model string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	query := fmt.Sprintf("DELETE FROM %s WHERE model = ?", cacheTableName)
	result, err := c.database.Exec(query, model)
	if err != nil {
		return 0, fmt.Errorf("evicting model %s: %w", model, err)
	}

	evicted, _ := result.RowsAffected()
	return int(evicted), nil
}

func (c *EmbeddingCache) updateAccessStats(contentHash string) {
	now := time.Now().Unix()
	query := fmt.Sprintf(`
		UPDATE %s SET access_count = access_count + 1, last_accessed = ?
		WHERE content_hash = ?
	`, cacheTableName)
	c.database.Exec(query, now, contentHash)
}

func (c *EmbeddingCache) updateAccessStatsBatch(hashes []string) {
	if len(hashes) == 0 {
		return
	}

	now := time.Now().Unix()
	placeholders := make([]string, len(hashes))
	args := make([]any, len(hashes)+1)
	args[0] = now
	for i, hash := range hashes {
		placeholders[i] = "?"
		args[i+1] = hash
	}

	query := fmt.Sprintf(`
		UPDATE %s SET access_count = access_count + 1, last_accessed = ?
		WHERE content_hash IN (%s)
	`, cacheTableName, strings.Join(placeholders, ", "))
	c.database.Exec(query, args...)
}

// Model returns the embedding model this cache is configured for.
func (c *EmbeddingCache) Model() string { return c.model }

// Dimensions returns the vector dimensions for this cache.
func (c *EmbeddingCache) Dimensions() int { return c.dimensions }

// HasEntry checks if a content hash exists in the cache.
func (c *EmbeddingCache) HasEntry(contentHash string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query := fmt.Sprintf("SELECT 1 FROM %s WHERE content_hash = ? LIMIT 1", cacheTableName)
	var exists int
	err := c.database.QueryRow(query, contentHash).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HasEntryBatch reports which content hashes already exist in the cache.
func (c *EmbeddingCache) HasEntryBatch(hashes []string) (map[string]bool, error) {
	if len(hashes) == 0 {
		return make(map[string]bool), nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	placeholders := make([]string, len(hashes))
	args := make([]any, len(hashes))
	for i, hash := range hashes {
		placeholders[i] = "?"
		args[i] = hash
	}

	query := fmt.Sprintf("SELECT content_hash FROM %s WHERE content_hash IN (%s)",
		cacheTableName, strings.Join(placeholders, ", "))

	rows, err := c.database.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]bool, len(hashes))
	for _, hash := range hashes {
		result[hash] = false
	}
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			continue
		}
		result[hash] = true
	}

	return result, rows.Err()
}
