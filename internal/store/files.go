package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"codesearch/internal/db"
	"codesearch/internal/model"
)

const filesTable = "files"

func (s *Store) ensureFilesTable(ctx context.Context) error {
	columns := []db.ColumnDef{
		{Name: "file_id", Type: db.ColTypeText, PrimaryKey: true},
		{Name: "repo_id", Type: db.ColTypeText},
		{Name: "revision", Type: db.ColTypeText},
		{Name: "file_path", Type: db.ColTypeText},
		{Name: "extension", Type: db.ColTypeText},
		{Name: "file_hash", Type: db.ColTypeText},
		{Name: "imports", Type: db.ColTypeText, Default: "''"},
		{Name: "exports", Type: db.ColTypeText, Default: "''"},
		{Name: "top_level_doc", Type: db.ColTypeText, Default: "''"},
		{Name: "file_summary_text", Type: db.ColTypeText},
		{Name: "vec_file", Type: db.ColTypeBlob},
	}
	if err := s.schema.CreateTable(ctx, filesTable, columns); err != nil {
		return fmt.Errorf("creating files table: %w", err)
	}
	return s.schema.CreateIndex(ctx, filesTable, "idx_files_file_path", []string{"file_path"}, false)
}

// UpsertFiles persists per-file summary rows, merging on file_path.
func (s *Store) UpsertFiles(ctx context.Context, rows []model.FileRow) error {
	if len(rows) == 0 {
		return nil
	}

	columns := []string{
		"file_id", "repo_id", "revision", "file_path", "extension", "file_hash",
		"imports", "exports", "top_level_doc", "file_summary_text", "vec_file",
	}
	upsertSQL := s.dialect.UpsertSQL(filesTable, columns, []string{"file_path"}, nil)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(upsertSQL)
	if err != nil {
		return fmt.Errorf("preparing file upsert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		imports, _ := json.Marshal(row.Imports)
		exports, _ := json.Marshal(row.Exports)
		if _, err := stmt.Exec(
			row.FileID, row.RepoID, row.Revision, row.FilePath, row.Extension, row.FileHash,
			string(imports), string(exports), row.TopLevelDoc, row.FileSummary,
			float32SliceToBlob(row.VecFile),
		); err != nil {
			return fmt.Errorf("upserting file %s: %w", row.FilePath, err)
		}
	}

	return tx.Commit()
}

// DeleteFilesByPaths removes file summary rows for any of paths.
func (s *Store) DeleteFilesByPaths(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	placeholders := make([]string, len(paths))
	args := make([]any, len(paths))
	for i, p := range paths {
		placeholders[i] = s.dialect.Placeholder(i + 1)
		args[i] = p
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE file_path IN (%s)", filesTable, strings.Join(placeholders, ", "))
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

// GetFile returns the persisted summary row for path, if any.
func (s *Store) GetFile(ctx context.Context, path string) (model.FileRow, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT * FROM "+filesTable+" WHERE file_path = ?", path)

	var f model.FileRow
	var imports, exports string
	var vecBlob []byte
	err := row.Scan(&f.FileID, &f.RepoID, &f.Revision, &f.FilePath, &f.Extension, &f.FileHash,
		&imports, &exports, &f.TopLevelDoc, &f.FileSummary, &vecBlob)
	if err != nil {
		return model.FileRow{}, false, nil //nolint:nilerr
	}
	_ = json.Unmarshal([]byte(imports), &f.Imports)
	_ = json.Unmarshal([]byte(exports), &f.Exports)
	f.VecFile = blobToFloat32(vecBlob)
	return f, true, nil
}
