package chunker

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"codesearch/internal/model"
)

// Options configures the translation from raw AST chunks to the symbol
// and block chunk rows the indexer persists.
type Options struct {
	// EmitStringLiteralRefs enables ref_kind identifier extraction for
	// string literal contents. Off by default: most string literals are
	// not references to other symbols, and scanning every literal adds
	// noise without much recall benefit.
	EmitStringLiteralRefs bool
}

// FileResult is everything the Chunker produces for one file.
type FileResult struct {
	File    model.FileRow
	Symbols []model.Symbol
	Blocks  []model.BlockChunk
	Refs    []model.Ref
}

// Chunker turns source file content into the row-level chunk/ref model
// used downstream by the embedding cache and store.
type Chunker struct {
	ast  *ASTChunker
	opts Options
}

// New creates a Chunker with the given options.
func New(opts Options) *Chunker {
	return &Chunker{ast: NewASTChunker(), opts: opts}
}

// ChunkFile parses path/content and builds the full FileResult: one
// module-level symbol, one symbol per split AST node, block chunks for
// gaps, and a best-effort ref list.
func (c *Chunker) ChunkFile(ctx context.Context, repoID, revision, path string, content []byte, fileHash string) (FileResult, error) {
	rawChunks, err := c.ast.ChunkFile(ctx, path, content)
	if err != nil {
		return FileResult{}, fmt.Errorf("chunking %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var result FileResult

	// Module-level symbol summarizing the whole file. Its code_text is
	// the concatenation of module-scope (non-symbol) regions so the
	// embedding captures imports, package doc, and top-level constants.
	moduleCode := moduleLevelText(rawChunks)
	moduleSym := model.Symbol{
		RepoID:     repoID,
		Revision:   revision,
		FilePath:   path,
		Extension:  ext,
		StartLine:  1,
		EndLine:    lineCount(content),
		SymbolKind: model.SymbolModule,
		SymbolName: filepath.Base(path),
		Qualname:   path,
		ContextHeader: fmt.Sprintf("module %s", path),
		CodeText:   moduleCode,
		SearchText: moduleCode,
		FileHash:   fileHash,
	}
	moduleSym.ComputeContentHash()
	moduleSym.ComputeSymbolID()
	result.Symbols = append(result.Symbols, moduleSym)

	for _, rc := range rawChunks {
		header := contextHeader(path, rc)

		if isSymbolNode(rc.NodeType) {
			sym := model.Symbol{
				RepoID:          repoID,
				Revision:        revision,
				FilePath:        path,
				Extension:       ext,
				StartLine:       rc.StartLine,
				EndLine:         rc.EndLine,
				StartByte:       rc.StartByte,
				EndByte:         rc.EndByte,
				SymbolKind:      symbolKindFor(rc.NodeType, rc.ParentName),
				SymbolName:      rc.NodeName,
				Qualname:        qualname(path, rc),
				Signature:       rc.Signature,
				Docstring:       rc.Docstring,
				IsExported:      rc.IsExported,
				DecoratorNames:  rc.DecoratorNames,
				ContextHeader:   header,
				CodeText:        rc.Content,
				SearchText:      rc.Content,
				FileHash:        fileHash,
			}
			if rc.ParentName != "" {
				sym.ParentSymbolID = parentIDPlaceholder(path, rc.ParentName)
			}
			sym.Identifiers, sym.IdentifierParts = identifierParts(sym.SymbolName)

			calls := extractCalledNames(rc.Content, rc.Language)
			sym.CalledNames = make([]string, 0, len(calls))
			for _, call := range calls {
				sym.CalledNames = append(sym.CalledNames, call.Bare)
				result.Refs = append(result.Refs, model.Ref{
					FilePath:  path,
					StartLine: rc.StartLine,
					EndLine:   rc.EndLine,
					RefKind:   model.RefCall,
					TokenText: call.Qualified,
				})
			}

			if c.opts.EmitStringLiteralRefs {
				sym.StringLiterals = extractStringLiterals(rc.Content, rc.Language)
				for _, lit := range sym.StringLiterals {
					result.Refs = append(result.Refs, model.Ref{
						FilePath:  path,
						StartLine: rc.StartLine,
						EndLine:   rc.EndLine,
						RefKind:   model.RefIdentifier,
						TokenText: lit,
					})
				}
			}

			sym.ComputeContentHash()
			sym.ComputeSymbolID()
			result.Symbols = append(result.Symbols, sym)
			continue
		}

		if rc.NodeType == "gap" || rc.NodeType == "block" {
			block := model.BlockChunk{
				RepoID:        repoID,
				Revision:      revision,
				FilePath:      path,
				Extension:     ext,
				StartLine:     rc.StartLine,
				EndLine:       rc.EndLine,
				StartByte:     rc.StartByte,
				EndByte:       rc.EndByte,
				ChunkKind:     blockKindFor(rc.NodeType),
				ContextHeader: header,
				CodeText:      rc.Content,
				SearchText:    rc.Content,
				FileHash:      fileHash,
			}
			block.ComputeContentHash()
			block.ComputeChunkID()
			result.Blocks = append(result.Blocks, block)

			for _, imp := range extractImports(rc.Content, rc.Language) {
				result.Refs = append(result.Refs, model.Ref{
					FilePath:   path,
					StartLine:  rc.StartLine + imp.StartLine - 1,
					EndLine:    rc.StartLine + imp.EndLine - 1,
					RefKind:    model.RefImport,
					TokenText:  imp.Module,
					ModuleName: imp.Module,
				})
			}
		}
	}

	result.File = model.FileRow{
		RepoID:      repoID,
		Revision:    revision,
		FilePath:    path,
		Extension:   ext,
		FileHash:    fileHash,
		Imports:     refImports(result.Refs),
		FileSummary: moduleCode,
	}
	result.File.ComputeFileID()

	for i := range result.Refs {
		result.Refs[i].ComputeRefID()
	}

	return result, nil
}

func lineCount(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	return strings.Count(string(content), "\n") + 1
}

// moduleLevelText joins the gap chunks (uncovered, module-scope
// regions) so the module symbol's embedding reflects imports and
// top-level declarations rather than the whole file verbatim.
func moduleLevelText(chunks []Chunk) string {
	var parts []string
	for _, c := range chunks {
		if c.NodeType == "gap" {
			parts = append(parts, c.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// refImports collects the import module names seen while scanning the
// file, for FileRow.Imports.
func refImports(refs []model.Ref) []string {
	var imports []string
	for _, r := range refs {
		if r.RefKind == model.RefImport {
			imports = append(imports, r.ModuleName)
		}
	}
	return imports
}

func isSymbolNode(nodeType string) bool {
	return nodeType != "gap" && nodeType != "block"
}

func symbolKindFor(nodeType, parentName string) model.SymbolKind {
	lower := strings.ToLower(nodeType)
	switch {
	case strings.Contains(lower, "class") || strings.Contains(lower, "struct") ||
		strings.Contains(lower, "interface") || strings.Contains(lower, "trait") ||
		strings.Contains(lower, "impl") || strings.Contains(lower, "module") ||
		strings.Contains(lower, "namespace") || strings.Contains(lower, "object_declaration"):
		return model.SymbolClass
	case strings.Contains(lower, "method") || (parentName != "" && strings.Contains(lower, "function")):
		return model.SymbolMethod
	case strings.Contains(lower, "function") || strings.Contains(lower, "func"):
		return model.SymbolFunction
	default:
		return model.SymbolFunction
	}
}

func blockKindFor(nodeType string) model.ChunkKind {
	if nodeType == "gap" {
		return model.ChunkStatementGroup
	}
	return model.ChunkBlock
}

func contextHeader(path string, rc Chunk) string {
	if rc.ParentName != "" {
		return fmt.Sprintf("%s > %s.%s", path, rc.ParentName, rc.NodeName)
	}
	if rc.NodeName != "" {
		return fmt.Sprintf("%s > %s", path, rc.NodeName)
	}
	return path
}

func qualname(path string, rc Chunk) string {
	if rc.ParentName != "" {
		return rc.ParentName + "." + rc.NodeName
	}
	return rc.NodeName
}

// parentIDPlaceholder derives a stable identifier for the owning symbol
// from its file and name. The real symbol_id is only known once that
// symbol's own content hash is computed, so callers that need exact
// linkage resolve this after a full-file pass; until then, this value
// is stable enough for grouping.
func parentIDPlaceholder(path, parentName string) string {
	return path + "#" + parentName
}

// identifierParts splits a camelCase/snake_case/PascalCase symbol name
// into its component words, for keyword/fulltext indexing.
func identifierParts(name string) ([]string, []string) {
	if name == "" {
		return nil, nil
	}
	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-':
			flush()
		case r >= 'A' && r <= 'Z' && i > 0 && !(runes[i-1] >= 'A' && runes[i-1] <= 'Z'):
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return []string{name}, parts
}
