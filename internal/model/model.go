// Package model defines the row-level data types shared across the
// indexing and search core: symbols, block chunks, file summaries, refs,
// and the embedding cache row. These are explicit tagged-variant structs
// rather than dynamic field bags.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SymbolKind is the declaration kind a symbol chunk's boundary corresponds to.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolClass    SymbolKind = "class"
	SymbolMethod   SymbolKind = "method"
	SymbolModule   SymbolKind = "module"
)

// ChunkKind classifies a non-symbol (block) chunk.
type ChunkKind string

const (
	ChunkStatementGroup  ChunkKind = "statement_group"
	ChunkBlock           ChunkKind = "block"
	ChunkMarkdownSection ChunkKind = "markdown_section"
	ChunkUnknown         ChunkKind = "unknown"
)

// RefKind classifies an occurrence of a name in code.
type RefKind string

const (
	RefImport     RefKind = "import"
	RefCall       RefKind = "call"
	RefIdentifier RefKind = "identifier"
)

// SearchIntent is the routed intent of a search query.
type SearchIntent string

const (
	IntentDefinition  SearchIntent = "definition"
	IntentSimilarCode SearchIntent = "similar_code"
	IntentExactText   SearchIntent = "exact_text"
	IntentUsage       SearchIntent = "usage"
	IntentAuto        SearchIntent = "auto"
	// IntentConcept is the resolved hybrid-rerank path `auto` falls back to
	// when none of the shape-based heuristics match.
	IntentConcept SearchIntent = "concept"
)

// Symbol is a symbol-boundary chunk: one per top-level function, class,
// method, plus one module chunk per file.
type Symbol struct {
	SymbolID        string     `json:"symbol_id"`
	RepoID          string     `json:"repo_id"`
	Revision        string     `json:"revision"`
	FilePath        string     `json:"file_path"`
	Extension       string     `json:"extension"`
	StartLine       int        `json:"start_line"`
	EndLine         int        `json:"end_line"`
	StartByte       int        `json:"start_byte"`
	EndByte         int        `json:"end_byte"`
	SymbolKind      SymbolKind `json:"symbol_kind"`
	SymbolName      string     `json:"symbol_name"`
	Qualname        string     `json:"qualname"`
	ParentSymbolID  string     `json:"parent_symbol_id,omitempty"`
	Signature       string     `json:"signature,omitempty"`
	Docstring       string     `json:"docstring,omitempty"`
	IsExported      bool       `json:"is_exported"`
	DecoratorNames  []string   `json:"decorator_names,omitempty"`
	ContextHeader   string     `json:"context_header"`
	CodeText        string     `json:"code_text"`
	SearchText      string     `json:"search_text"`
	Identifiers     []string   `json:"identifiers,omitempty"`
	IdentifierParts []string   `json:"identifier_parts,omitempty"`
	CalledNames     []string   `json:"called_names,omitempty"`
	StringLiterals  []string   `json:"string_literals,omitempty"`
	ContentHash     string     `json:"content_hash"`
	FileHash        string     `json:"file_hash"`
	VecSummary      []float32  `json:"vec_summary,omitempty"`
}

// ComputeContentHash implements `content_hash = SHA256(context_header ||
// "\n" || code_text)`. It is the identity key for the embedding cache and
// must be called whenever ContextHeader or CodeText change.
func (s *Symbol) ComputeContentHash() string {
	h := sha256.Sum256([]byte(s.ContextHeader + "\n" + s.CodeText))
	s.ContentHash = hex.EncodeToString(h[:])
	return s.ContentHash
}

// ComputeSymbolID implements `symbol_id = SHA256(file_path || ":" ||
// start_line || "-" || end_line || ":" || content_hash)`. Must be called
// after ComputeContentHash.
func (s *Symbol) ComputeSymbolID() string {
	input := fmt.Sprintf("%s:%d-%d:%s", s.FilePath, s.StartLine, s.EndLine, s.ContentHash)
	h := sha256.Sum256([]byte(input))
	s.SymbolID = hex.EncodeToString(h[:])
	return s.SymbolID
}

// BlockChunk is a non-symbol code region. It shares the symbol chunk's
// shape but is identified by ChunkKind rather than SymbolKind, and may
// reference the symbol chunk that owns it.
type BlockChunk struct {
	ChunkID       string    `json:"chunk_id"`
	RepoID        string    `json:"repo_id"`
	Revision      string    `json:"revision"`
	FilePath      string    `json:"file_path"`
	Extension     string    `json:"extension"`
	StartLine     int       `json:"start_line"`
	EndLine       int       `json:"end_line"`
	StartByte     int       `json:"start_byte"`
	EndByte       int       `json:"end_byte"`
	ChunkKind     ChunkKind `json:"chunk_kind"`
	OwnerSymbolID string    `json:"owner_symbol_id,omitempty"`
	ContextHeader string    `json:"context_header"`
	CodeText      string    `json:"code_text"`
	SearchText    string    `json:"search_text"`
	ContentHash   string    `json:"content_hash"`
	FileHash      string    `json:"file_hash"`
	VecSummary    []float32 `json:"vec_summary,omitempty"`
}

// ComputeContentHash mirrors Symbol.ComputeContentHash for block chunks.
func (b *BlockChunk) ComputeContentHash() string {
	h := sha256.Sum256([]byte(b.ContextHeader + "\n" + b.CodeText))
	b.ContentHash = hex.EncodeToString(h[:])
	return b.ContentHash
}

// ComputeChunkID mirrors Symbol.ComputeSymbolID for block chunks.
func (b *BlockChunk) ComputeChunkID() string {
	input := fmt.Sprintf("%s:%d-%d:%s", b.FilePath, b.StartLine, b.EndLine, b.ContentHash)
	h := sha256.Sum256([]byte(input))
	b.ChunkID = hex.EncodeToString(h[:])
	return b.ChunkID
}

// FileRow is the per-file summary row.
type FileRow struct {
	FileID      string    `json:"file_id"`
	RepoID      string    `json:"repo_id"`
	Revision    string    `json:"revision"`
	FilePath    string    `json:"file_path"`
	Extension   string    `json:"extension"`
	FileHash    string    `json:"file_hash"`
	Imports     []string  `json:"imports,omitempty"`
	Exports     []string  `json:"exports,omitempty"`
	TopLevelDoc string    `json:"top_level_doc,omitempty"`
	FileSummary string    `json:"file_summary_text"`
	VecFile     []float32 `json:"vec_file,omitempty"`
}

// ComputeFileID derives the file_id as SHA256(repo_id + ":" + file_path),
// mirroring Symbol.ComputeSymbolID's composition of identity fields.
func (f *FileRow) ComputeFileID() string {
	h := sha256.Sum256([]byte(f.RepoID + ":" + f.FilePath))
	f.FileID = hex.EncodeToString(h[:])
	return f.FileID
}

// Ref is an occurrence of a name in code, classified as import, call, or
// identifier.
type Ref struct {
	RefID           string  `json:"ref_id"`
	FilePath        string  `json:"file_path"`
	StartLine       int     `json:"start_line"`
	EndLine         int     `json:"end_line"`
	RefKind         RefKind `json:"ref_kind"`
	TokenText       string  `json:"token_text"`
	ContextSnippet  string  `json:"context_snippet"`
	ModuleName      string  `json:"module_name,omitempty"`
	ImportedName    string  `json:"imported_name,omitempty"`
}

// ComputeRefID derives a stable id from the occurrence's position and
// kind, so re-chunking an unchanged file upserts the same ref rows
// instead of accumulating duplicates.
func (r *Ref) ComputeRefID() string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s:%s", r.FilePath, r.StartLine, r.RefKind, r.TokenText)))
	r.RefID = hex.EncodeToString(h[:])
	return r.RefID
}

// EmbeddingCacheRow is the content-addressed embedding cache entry.
type EmbeddingCacheRow struct {
	InputHash string    `json:"input_hash"`
	Vector    []float32 `json:"vector"`
	CreatedAt int64     `json:"created_at"`
}

// ChunkRow is the persisted, storage-facing union of Symbol and
// BlockChunk: the "chunks" table holds one row per symbol or block chunk,
// discriminated by IsSymbol. The vector search store and the filter
// predicate AST operate on this shape rather than on Symbol/BlockChunk
// directly, since both chunk families share it.
type ChunkRow struct {
	ID             string
	RepoID         string
	Revision       string
	FilePath       string
	Extension      string
	StartLine      int
	EndLine        int
	StartByte      int
	EndByte        int
	IsSymbol       bool
	SymbolKind     SymbolKind
	ChunkKind      ChunkKind
	SymbolName     string
	Qualname       string
	ParentSymbolID string
	OwnerSymbolID  string
	Signature      string
	Docstring      string
	IsExported     bool
	DecoratorNames []string
	ContextHeader  string
	CodeText       string
	SearchText     string
	ContentHash    string
	FileHash       string
	Vector         []float32
}

// FromSymbol converts a Symbol into its ChunkRow persistence form.
func ChunkRowFromSymbol(s Symbol) ChunkRow {
	return ChunkRow{
		ID:             s.SymbolID,
		RepoID:         s.RepoID,
		Revision:       s.Revision,
		FilePath:       s.FilePath,
		Extension:      s.Extension,
		StartLine:      s.StartLine,
		EndLine:        s.EndLine,
		StartByte:      s.StartByte,
		EndByte:        s.EndByte,
		IsSymbol:       true,
		SymbolKind:     s.SymbolKind,
		SymbolName:     s.SymbolName,
		Qualname:       s.Qualname,
		ParentSymbolID: s.ParentSymbolID,
		Signature:      s.Signature,
		Docstring:      s.Docstring,
		IsExported:     s.IsExported,
		DecoratorNames: s.DecoratorNames,
		ContextHeader:  s.ContextHeader,
		CodeText:       s.CodeText,
		SearchText:     s.SearchText,
		ContentHash:    s.ContentHash,
		FileHash:       s.FileHash,
		Vector:         s.VecSummary,
	}
}

// ChunkRowFromBlock converts a BlockChunk into its ChunkRow persistence form.
func ChunkRowFromBlock(b BlockChunk) ChunkRow {
	return ChunkRow{
		ID:            b.ChunkID,
		RepoID:        b.RepoID,
		Revision:      b.Revision,
		FilePath:      b.FilePath,
		Extension:     b.Extension,
		StartLine:     b.StartLine,
		EndLine:       b.EndLine,
		StartByte:     b.StartByte,
		EndByte:       b.EndByte,
		IsSymbol:      false,
		ChunkKind:     b.ChunkKind,
		OwnerSymbolID: b.OwnerSymbolID,
		ContextHeader: b.ContextHeader,
		CodeText:      b.CodeText,
		SearchText:    b.SearchText,
		ContentHash:   b.ContentHash,
		FileHash:      b.FileHash,
		Vector:        b.VecSummary,
	}
}
