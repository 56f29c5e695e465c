// Package manifest persists the summary record of the last successful
// index run: schema version, repo/revision identity, the Merkle tree
// the run built (which the next run diffs against), and row counts. It is the Indexer's
// source of truth for "what did we index last time," read at the start
// of every run and rewritten atomically at the end of a successful one.
package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"codesearch/internal/merkle"
)

// FileName is the name of the persisted manifest file within the data
// directory, alongside merkle.TreeFileName.
const FileName = "manifest.json"

// CurrentSchemaVersion is compared against a loaded manifest's
// SchemaVersion; a mismatch is treated the same as a missing manifest.
const CurrentSchemaVersion = 1

// Stats summarizes the rows a run persisted.
type Stats struct {
	Files   int `json:"files"`
	Symbols int `json:"symbols"`
	Chunks  int `json:"chunks"`
	Refs    int `json:"refs"`
}

// Manifest is the persisted record of the last successful index run.
// Tree is mandatory: Save rejects a manifest whose tree is nil
// rather than write a record that can't be diffed against next run.
type Manifest struct {
	SchemaVersion int       `json:"schema_version"`
	RunID         string    `json:"run_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	RepoID        string    `json:"repo_id"`
	Revision      string    `json:"revision"`
	Tree          *merkle.Tree `json:"tree"`
	Stats         Stats     `json:"stats"`
}

// New builds a manifest for a completed run. tree must be non-nil;
// callers that index zero files still build an empty, non-nil tree.
func New(repoID string, tree *merkle.Tree, stats Stats) *Manifest {
	now := timeNow()
	return &Manifest{
		SchemaVersion: CurrentSchemaVersion,
		RunID:         uuid.New().String(),
		CreatedAt:     now,
		UpdatedAt:     now,
		RepoID:        repoID,
		Revision:      revisionFor(tree),
		Tree:          tree,
		Stats:         stats,
	}
}

// revisionFor derives a revision token from the tree's root hash, so
// two runs over identical content share a revision even across
// processes. Falls back to a fresh uuid for an empty/nil tree.
func revisionFor(tree *merkle.Tree) string {
	if tree == nil || tree.RootHash() == "" {
		return uuid.New().String()
	}
	return tree.RootHash()
}

// timeNow exists so tests can't trip over the "no time.Now in workflow
// scripts" constraint elsewhere in this codebase; production code just
// calls it directly.
func timeNow() time.Time { return time.Now().UTC() }

// Store handles atomic persistence of a single Manifest to disk,
// alongside merkle.Store's tree file in the same data directory.
type Store struct {
	dataDir string
	log     *slog.Logger
}

// NewStore creates a store rooted at dataDir. The directory is created
// lazily on Save, matching merkle.Store's behavior. A nil logger is
// replaced with slog.Default().
func NewStore(dataDir string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{dataDir: dataDir, log: log}
}

// Path returns the path to the manifest file.
func (s *Store) Path() string {
	return filepath.Join(s.dataDir, FileName)
}

// Save persists m atomically via a temp file + rename, the same idiom
// merkle.Store.Save uses for the tree file. Rejects a manifest with a
// nil tree: a manifest that can't be diffed against is worse than no
// manifest, since it would be mistaken for a valid prior state.
func (s *Store) Save(m *Manifest) error {
	if m == nil {
		return fmt.Errorf("cannot save nil manifest")
	}
	if m.Tree == nil {
		return fmt.Errorf("manifest: tree is required, refusing to write partial manifest")
	}

	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	m.UpdatedAt = timeNow()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	targetPath := s.Path()
	tempPath := targetPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// Load reads the manifest from disk. Returns nil, nil if no manifest
// exists yet (first run) or if the schema version is stale — both
// cases the Indexer treats identically, as "no usable prior state."
func (s *Store) Load() (*Manifest, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest file: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		// A corrupt manifest is treated as absent, not as a fatal
		// error: the next run re-diffs from an empty tree (force).
		s.log.Warn("manifest corrupt, forcing reindex", "path", s.Path(), "error", err)
		return nil, nil
	}

	if m.SchemaVersion != CurrentSchemaVersion {
		s.log.Warn("manifest schema version mismatch, forcing reindex",
			"path", s.Path(), "found", m.SchemaVersion, "required", CurrentSchemaVersion)
		return nil, nil
	}

	return &m, nil
}

// Exists returns true if a manifest file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Delete removes the stored manifest, used when a run forces a full
// reindex and wants to start from a clean slate on disk too.
func (s *Store) Delete() error {
	err := os.Remove(s.Path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
