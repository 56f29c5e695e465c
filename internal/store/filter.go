package store

import (
	"strings"

	"codesearch/internal/db"
	"codesearch/internal/model"
)

// Filter is a predicate over chunk rows, compiled to a dialect-aware
// WHERE clause rather than evaluated row-by-row in Go. All string
// comparisons go through placeholders, so no caller input ever reaches
// the query as raw SQL text.
type Filter struct {
	PathPrefix        string
	PathContains      string
	PathNotContains   string
	Extensions        []string
	SymbolKinds       []model.SymbolKind
	IsExported        *bool
	HasDocstring      *bool
	DecoratorContains string
}

// IsZero reports whether the filter has no constraints.
func (f Filter) IsZero() bool {
	return f.PathPrefix == "" && f.PathContains == "" && f.PathNotContains == "" &&
		len(f.Extensions) == 0 && len(f.SymbolKinds) == 0 &&
		f.IsExported == nil && f.HasDocstring == nil && f.DecoratorContains == ""
}

// clauses compiles the filter into AND-joined SQL fragments plus their
// positional arguments, in the dialect's placeholder form.
func (f Filter) clauses(dialect db.Dialect) ([]string, []any) {
	var clauses []string
	var args []any

	placeholder := func() string {
		p := dialect.Placeholder(len(args) + 1)
		return p
	}
	addArg := func(a any) string {
		p := placeholder()
		args = append(args, a)
		return p
	}

	if f.PathPrefix != "" {
		clauses = append(clauses, "file_path LIKE "+addArg(escapeLike(f.PathPrefix)+"%")+" ESCAPE '\\'")
	}
	if f.PathContains != "" {
		clauses = append(clauses, "file_path LIKE "+addArg("%"+escapeLike(f.PathContains)+"%")+" ESCAPE '\\'")
	}
	if f.PathNotContains != "" {
		clauses = append(clauses, "file_path NOT LIKE "+addArg("%"+escapeLike(f.PathNotContains)+"%")+" ESCAPE '\\'")
	}
	if len(f.Extensions) > 0 {
		placeholders := make([]string, len(f.Extensions))
		for i, ext := range f.Extensions {
			placeholders[i] = addArg(ext)
		}
		clauses = append(clauses, "extension IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(f.SymbolKinds) > 0 {
		placeholders := make([]string, len(f.SymbolKinds))
		for i, k := range f.SymbolKinds {
			placeholders[i] = addArg(string(k))
		}
		clauses = append(clauses, "symbol_kind IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.IsExported != nil {
		val := 0
		if *f.IsExported {
			val = 1
		}
		clauses = append(clauses, "is_exported = "+addArg(val))
	}
	if f.HasDocstring != nil {
		if *f.HasDocstring {
			clauses = append(clauses, "docstring <> ''")
		} else {
			clauses = append(clauses, "docstring = ''")
		}
	}
	if f.DecoratorContains != "" {
		clauses = append(clauses, "decorator_names LIKE "+addArg("%"+escapeLike(f.DecoratorContains)+"%")+" ESCAPE '\\'")
	}

	return clauses, args
}

// escapeLike escapes LIKE metacharacters so user-controlled substrings
// are matched literally rather than as wildcards.
func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}
