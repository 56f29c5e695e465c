package store

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math"

	"codesearch/internal/db"
	"codesearch/internal/model"
)

// chunkColumns lists the chunks table columns in the fixed order
// chunkValues produces values in.
func chunkColumns() []string {
	return []string{
		"id", "repo_id", "revision", "file_path", "extension",
		"start_line", "end_line", "start_byte", "end_byte",
		"is_symbol", "symbol_kind", "chunk_kind", "symbol_name", "qualname",
		"parent_symbol_id", "owner_symbol_id", "signature", "docstring",
		"is_exported", "decorator_names", "context_header", "code_text",
		"search_text", "content_hash", "file_hash", "vector",
	}
}

func chunkValues(row model.ChunkRow) []any {
	isSymbol := 0
	if row.IsSymbol {
		isSymbol = 1
	}
	isExported := 0
	if row.IsExported {
		isExported = 1
	}
	decorators, _ := json.Marshal(row.DecoratorNames)

	return []any{
		row.ID, row.RepoID, row.Revision, row.FilePath, row.Extension,
		row.StartLine, row.EndLine, row.StartByte, row.EndByte,
		isSymbol, string(row.SymbolKind), string(row.ChunkKind), row.SymbolName, row.Qualname,
		row.ParentSymbolID, row.OwnerSymbolID, row.Signature, row.Docstring,
		isExported, string(decorators), row.ContextHeader, row.CodeText,
		row.SearchText, row.ContentHash, row.FileHash, float32SliceToBlob(row.Vector),
	}
}

// scanChunkRow scans a row produced by `SELECT * FROM chunks ...` in the
// column order chunkColumns defines.
func scanChunkRow(row db.Row) (model.ChunkRow, error) {
	var c model.ChunkRow
	var isSymbol, isExported int
	var symbolKind, chunkKind, decorators string
	var vectorBlob []byte

	err := row.Scan(
		&c.ID, &c.RepoID, &c.Revision, &c.FilePath, &c.Extension,
		&c.StartLine, &c.EndLine, &c.StartByte, &c.EndByte,
		&isSymbol, &symbolKind, &chunkKind, &c.SymbolName, &c.Qualname,
		&c.ParentSymbolID, &c.OwnerSymbolID, &c.Signature, &c.Docstring,
		&isExported, &decorators, &c.ContextHeader, &c.CodeText,
		&c.SearchText, &c.ContentHash, &c.FileHash, &vectorBlob,
	)
	if err != nil {
		return model.ChunkRow{}, err
	}

	c.IsSymbol = isSymbol != 0
	c.IsExported = isExported != 0
	c.SymbolKind = model.SymbolKind(symbolKind)
	c.ChunkKind = model.ChunkKind(chunkKind)
	if decorators != "" {
		_ = json.Unmarshal([]byte(decorators), &c.DecoratorNames)
	}
	c.Vector = blobToFloat32(vectorBlob)
	return c, nil
}

// scanChunkRowWithRank scans a row from the FTS join query, which
// appends a trailing bm25 rank column after the chunk columns.
func scanChunkRowWithRank(rows db.Rows) (model.ChunkRow, float64, error) {
	var c model.ChunkRow
	var isSymbol, isExported int
	var symbolKind, chunkKind, decorators string
	var vectorBlob []byte
	var rank float64

	err := rows.Scan(
		&c.ID, &c.RepoID, &c.Revision, &c.FilePath, &c.Extension,
		&c.StartLine, &c.EndLine, &c.StartByte, &c.EndByte,
		&isSymbol, &symbolKind, &chunkKind, &c.SymbolName, &c.Qualname,
		&c.ParentSymbolID, &c.OwnerSymbolID, &c.Signature, &c.Docstring,
		&isExported, &decorators, &c.ContextHeader, &c.CodeText,
		&c.SearchText, &c.ContentHash, &c.FileHash, &vectorBlob,
		&rank,
	)
	if err != nil {
		return model.ChunkRow{}, 0, err
	}

	c.IsSymbol = isSymbol != 0
	c.IsExported = isExported != 0
	c.SymbolKind = model.SymbolKind(symbolKind)
	c.ChunkKind = model.ChunkKind(chunkKind)
	if decorators != "" {
		_ = json.Unmarshal([]byte(decorators), &c.DecoratorNames)
	}
	c.Vector = blobToFloat32(vectorBlob)
	return c, rank, nil
}

// float32SliceToBlob encodes a vector as a little-endian binary blob,
// the same layout sqlite_hnsw.go uses for its vec0 table.
func float32SliceToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func blobToFloat32(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// idToInt64 derives a stable int64 key from a chunk's hex content-hash
// id, for BruteForceVectorDB's int64-keyed index. Collisions are
// astronomically unlikely at 64 bits of a SHA-256 digest and are not
// otherwise guarded against.
func idToInt64(id string) int64 {
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) < 8 {
		// Non-hex or short ids (e.g. test fixtures): hash the bytes we have.
		var h int64
		for _, b := range []byte(id) {
			h = h*31 + int64(b)
		}
		return h
	}
	return int64(binary.BigEndian.Uint64(raw[:8]))
}
