package store

import (
	"context"
	"fmt"
	"strings"

	"codesearch/internal/db"
	"codesearch/internal/model"
)

const refsTable = "refs"

func (s *Store) ensureRefsTable(ctx context.Context) error {
	columns := []db.ColumnDef{
		{Name: "ref_id", Type: db.ColTypeText, PrimaryKey: true},
		{Name: "file_path", Type: db.ColTypeText},
		{Name: "start_line", Type: db.ColTypeInteger},
		{Name: "end_line", Type: db.ColTypeInteger},
		{Name: "ref_kind", Type: db.ColTypeText},
		{Name: "token_text", Type: db.ColTypeText},
		{Name: "context_snippet", Type: db.ColTypeText, Default: "''"},
		{Name: "module_name", Type: db.ColTypeText, Default: "''"},
		{Name: "imported_name", Type: db.ColTypeText, Default: "''"},
	}
	if err := s.schema.CreateTable(ctx, refsTable, columns); err != nil {
		return fmt.Errorf("creating refs table: %w", err)
	}
	if err := s.schema.CreateIndex(ctx, refsTable, "idx_refs_token_text", []string{"token_text"}, false); err != nil {
		return err
	}
	return s.schema.CreateIndex(ctx, refsTable, "idx_refs_file_path", []string{"file_path"}, false)
}

// UpsertRefs persists ref occurrences, replacing any existing row with
// the same ref_id (a file path + line + token composite).
func (s *Store) UpsertRefs(ctx context.Context, rows []model.Ref) error {
	if len(rows) == 0 {
		return nil
	}

	columns := []string{
		"ref_id", "file_path", "start_line", "end_line", "ref_kind",
		"token_text", "context_snippet", "module_name", "imported_name",
	}
	upsertSQL := s.dialect.UpsertSQL(refsTable, columns, []string{"ref_id"}, nil)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		return fmt.Errorf("preparing ref upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(
			row.RefID, row.FilePath, row.StartLine, row.EndLine, string(row.RefKind),
			row.TokenText, row.ContextSnippet, row.ModuleName, row.ImportedName,
		); err != nil {
			return fmt.Errorf("upserting ref %s: %w", row.RefID, err)
		}
	}

	return tx.Commit()
}

// DeleteRefsByPaths removes all ref rows belonging to any of paths.
func (s *Store) DeleteRefsByPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	placeholders := make([]string, len(paths))
	args := make([]any, len(paths))
	for i, p := range paths {
		placeholders[i] = s.dialect.Placeholder(i + 1)
		args[i] = p
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE file_path IN (%s)", refsTable, strings.Join(placeholders, ", "))
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

// FindRefsByToken returns ref rows whose token_text exactly matches
// symbolName, or whose token_text ends with ".symbolName" (a qualified
// reference such as pkg.Symbol or obj.method), up to limit rows ordered
// by file_path then start_line.
func (s *Store) FindRefsByToken(ctx context.Context, symbolName string, limit int) ([]model.Ref, error) {
	if limit <= 0 {
		limit = 100
	}

	q := fmt.Sprintf(`SELECT ref_id, file_path, start_line, end_line, ref_kind, token_text, context_snippet, module_name, imported_name
		FROM %s
		WHERE token_text = %s OR token_text LIKE %s ESCAPE '\'
		ORDER BY file_path, start_line
		LIMIT %s`,
		refsTable, s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3))

	rows, err := s.db.QueryContext(ctx, q, symbolName, "%."+escapeLike(symbolName), limit)
	if err != nil {
		return nil, fmt.Errorf("querying refs: %w", err)
	}
	defer rows.Close()

	var out []model.Ref
	for rows.Next() {
		var r model.Ref
		var refKind string
		if err := rows.Scan(&r.RefID, &r.FilePath, &r.StartLine, &r.EndLine, &refKind,
			&r.TokenText, &r.ContextSnippet, &r.ModuleName, &r.ImportedName); err != nil {
			return nil, fmt.Errorf("scanning ref: %w", err)
		}
		r.RefKind = model.RefKind(refKind)
		out = append(out, r)
	}
	return out, rows.Err()
}
