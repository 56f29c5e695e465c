package chunker

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// CallRef is one call site found inside a chunk. Bare is the trailing
// identifier being invoked; Qualified additionally carries the
// receiver/namespace portion for member calls (`repo.Save(x)` -> Bare
// "Save", Qualified "repo.Save"). Qualified equals Bare for a plain
// `foo(x)` call.
type CallRef struct {
	Bare      string
	Qualified string
}

// memberCallSpec covers grammars where a call node carries its receiver
// and method name as two direct fields of the call node itself, rather
// than through a nested member-access expression in a "function" field.
type memberCallSpec struct {
	receiverField string
	nameField     string
}

var memberCallNodeTypes = map[string]map[string]memberCallSpec{
	"java": {"method_invocation": {receiverField: "object", nameField: "name"}},
	"ruby": {"call": {receiverField: "receiver", nameField: "method"}},
	"php":  {"member_call_expression": {receiverField: "object", nameField: "name"}},
}

// callExprField maps a language's call-expression node type to the field
// holding the callee expression. That expression's own source text
// becomes the qualified call ("obj.method", "pkg::fn", "a.b.c"); its
// last dotted/scoped segment becomes the bare name.
var callExprField = map[string]map[string]string{
	"go":         {"call_expression": "function"},
	"python":     {"call": "function"},
	"javascript": {"call_expression": "function"},
	"typescript": {"call_expression": "function"},
	"tsx":        {"call_expression": "function"},
	"rust":       {"call_expression": "function"},
	"c":          {"call_expression": "function"},
	"cpp":        {"call_expression": "function"},
	"csharp":     {"invocation_expression": "function"},
	"kotlin":     {"call_expression": "function"},
	"swift":      {"call_expression": "function"},
	"php":        {"function_call_expression": "function"},
}

// extractCalledNames parses text with language's grammar and walks the
// resulting AST for call-expression nodes. Unlike a character scan, this
// never mistakes an identifier inside a comment or a string literal for a
// call: the walk only recognizes the grammar's own call/invocation node
// types, and it never descends into comment or string subtrees looking
// for more of them.
func extractCalledNames(text, language string) []CallRef {
	tree, content, ok := parseFragment(text, language)
	if !ok {
		return nil
	}
	defer tree.Close()

	var refs []CallRef
	seen := make(map[string]bool)

	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		t := node.Type()
		if strings.Contains(t, "comment") || isStringNodeType(t) {
			return
		}
		if spec, ok := memberCallNodeTypes[language][t]; ok {
			bare := fieldText(node, spec.nameField, content)
			qualified := bare
			if recv := node.ChildByFieldName(spec.receiverField); recv != nil {
				qualified = string(content[recv.StartByte():recv.EndByte()]) + "." + bare
			}
			addCallRef(&refs, seen, bare, qualified)
		} else if field, ok := callExprField[language][t]; ok {
			if callee := node.ChildByFieldName(field); callee != nil {
				qualified := strings.TrimSpace(string(content[callee.StartByte():callee.EndByte()]))
				addCallRef(&refs, seen, lastSegment(qualified), qualified)
			}
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(tree.RootNode())
	return refs
}

func addCallRef(refs *[]CallRef, seen map[string]bool, bare, qualified string) {
	if bare == "" {
		return
	}
	key := qualified
	if key == "" {
		key = bare
	}
	if seen[key] {
		return
	}
	seen[key] = true
	*refs = append(*refs, CallRef{Bare: bare, Qualified: qualified})
}

func lastSegment(s string) string {
	s = strings.TrimSpace(s)
	for _, sep := range []string{"::", "->", "."} {
		if idx := strings.LastIndex(s, sep); idx != -1 {
			return s[idx+len(sep):]
		}
	}
	return s
}

func fieldText(node *sitter.Node, field string, content []byte) string {
	n := node.ChildByFieldName(field)
	if n == nil {
		return ""
	}
	return string(content[n.StartByte():n.EndByte()])
}

// ImportRef is one import/use/require statement resolved to a module
// name, with the statement's own line span so a multi-line import block
// (a parenthesized Go import group, a multi-line JS named-import list) is
// reported once, fully, rather than only the line it starts on.
type ImportRef struct {
	Module    string
	StartLine int
	EndLine   int
}

// importNodeTypes maps a language to the AST node type(s) that represent
// a whole import/use/using statement, however many lines it spans.
var importNodeTypes = map[string][]string{
	"go":         {"import_declaration"},
	"python":     {"import_statement", "import_from_statement"},
	"javascript": {"import_statement"},
	"typescript": {"import_statement"},
	"tsx":        {"import_statement"},
	"rust":       {"use_declaration"},
	"java":       {"import_declaration"},
	"c":          {"preproc_include"},
	"cpp":        {"preproc_include"},
	"csharp":     {"using_directive"},
	"kotlin":     {"import_header"},
	"php":        {"namespace_use_declaration"},
	"swift":      {"import_declaration"},
}

// extractImports parses text with language's grammar and walks it for
// import-statement nodes, returning one ImportRef per module referenced.
// Because each ref is built from the statement node's full byte range,
// continuation lines of a multi-line import are captured along with the
// first.
func extractImports(text, language string) []ImportRef {
	tree, content, ok := parseFragment(text, language)
	if !ok {
		return nil
	}
	defer tree.Close()

	nodeTypes := importNodeTypes[language]
	set := make(map[string]bool, len(nodeTypes))
	for _, t := range nodeTypes {
		set[t] = true
	}

	var imports []ImportRef
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		t := node.Type()
		if strings.Contains(t, "comment") {
			return
		}
		if set[t] {
			for _, mod := range modulesFromImportNode(node, content, language) {
				imports = append(imports, ImportRef{
					Module:    mod,
					StartLine: int(node.StartPoint().Row) + 1,
					EndLine:   int(node.EndPoint().Row) + 1,
				})
			}
			return
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	if len(nodeTypes) > 0 {
		walk(tree.RootNode())
	}

	if language == "ruby" {
		imports = append(imports, rubyRequireCalls(tree.RootNode(), content)...)
	}

	return imports
}

// modulesFromImportNode resolves the module name(s) referenced by an
// import-statement node. Grammars that expose a dedicated path/source
// field (Go's import_spec, JS/TS's "source", C/C++'s "path") use that
// field directly; everything else falls back to the statement's own full
// text, which already spans every continuation line, with the leading
// keyword and trailing punctuation stripped.
func modulesFromImportNode(node *sitter.Node, content []byte, language string) []string {
	switch language {
	case "go":
		var mods []string
		collectByType(node, "import_spec", func(spec *sitter.Node) {
			if p := spec.ChildByFieldName("path"); p != nil {
				mods = append(mods, unquote(string(content[p.StartByte():p.EndByte()])))
			}
		})
		if len(mods) > 0 {
			return mods
		}
	case "javascript", "typescript", "tsx":
		if src := node.ChildByFieldName("source"); src != nil {
			return []string{unquote(string(content[src.StartByte():src.EndByte()]))}
		}
	case "c", "cpp":
		if p := node.ChildByFieldName("path"); p != nil {
			return []string{unquote(string(content[p.StartByte():p.EndByte()]))}
		}
	case "python":
		var mods []string
		collectByType(node, "dotted_name", func(n *sitter.Node) {
			mods = append(mods, string(content[n.StartByte():n.EndByte()]))
		})
		if len(mods) > 0 {
			return mods
		}
	}

	text := strings.TrimSpace(string(content[node.StartByte():node.EndByte()]))
	if lit := firstQuoted(text); lit != "" {
		return []string{lit}
	}
	if stripped := stripImportKeywords(text); stripped != "" {
		return []string{stripped}
	}
	return nil
}

func collectByType(node *sitter.Node, nodeType string, fn func(*sitter.Node)) {
	if node.Type() == nodeType {
		fn(node)
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectByType(node.Child(i), nodeType, fn)
	}
}

func stripImportKeywords(s string) string {
	for _, kw := range []string{"import static ", "import ", "using static ", "using ", "use "} {
		if strings.HasPrefix(s, kw) {
			s = s[len(kw):]
			break
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), ";")
	if idx := strings.IndexAny(s, "{(\n"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'`<>")
}

func firstQuoted(s string) string {
	for _, q := range []byte{'"', '\''} {
		if start := strings.IndexByte(s, q); start != -1 {
			if end := strings.IndexByte(s[start+1:], q); end != -1 {
				return s[start+1 : start+1+end]
			}
		}
	}
	return ""
}

// rubyRequireCalls handles Ruby's lack of a dedicated import node:
// `require`/`require_relative` are ordinary method calls.
func rubyRequireCalls(root *sitter.Node, content []byte) []ImportRef {
	var out []ImportRef
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node.Type() == "call" {
			if m := node.ChildByFieldName("method"); m != nil {
				name := string(content[m.StartByte():m.EndByte()])
				if name == "require" || name == "require_relative" {
					if args := node.ChildByFieldName("arguments"); args != nil {
						text := string(content[args.StartByte():args.EndByte()])
						if lit := firstQuoted(text); lit != "" {
							out = append(out, ImportRef{
								Module:    lit,
								StartLine: int(node.StartPoint().Row) + 1,
								EndLine:   int(node.EndPoint().Row) + 1,
							})
						}
					}
				}
			}
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(root)
	return out
}

// isStringNodeType reports whether t is a grammar's string/char/rune
// literal node type, so walks can skip their contents entirely.
func isStringNodeType(t string) bool {
	switch t {
	case "interpreted_string_literal", "raw_string_literal", "rune_literal",
		"char_literal", "template_string":
		return true
	}
	return strings.Contains(t, "string")
}

// extractStringLiterals parses text with language's grammar and returns
// the unquoted contents of every string-literal node, for the optional
// identifier-ref pass gated by Options.EmitStringLiteralRefs.
func extractStringLiterals(text, language string) []string {
	tree, content, ok := parseFragment(text, language)
	if !ok {
		return nil
	}
	defer tree.Close()

	var out []string
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if isStringNodeType(node.Type()) {
			out = append(out, unquote(string(content[node.StartByte():node.EndByte()])))
			return
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	walk(tree.RootNode())
	return out
}

// parseFragment parses text as a standalone source fragment using
// language's grammar. Tree-sitter tolerates parsing an isolated
// declaration (a single function or method body) outside its enclosing
// file: real nodes still appear, wrapped in an ERROR node where the
// fragment isn't a complete top-level construct on its own, and callers
// here only care about finding call/import/string nodes wherever they
// land in the resulting tree.
func parseFragment(text, language string) (*sitter.Tree, []byte, bool) {
	config := GetLanguageConfigByName(language)
	if config == nil {
		return nil, nil, false
	}
	content := []byte(text)
	parser := sitter.NewParser()
	parser.SetLanguage(config.Language)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil || tree == nil {
		return nil, nil, false
	}
	return tree, content, true
}
