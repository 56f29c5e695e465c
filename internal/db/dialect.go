package db

import (
	"fmt"
	"strings"
)

// ColType is a portable column type name that a Dialect renders into its
// own SQL syntax.
type ColType int

const (
	ColTypeText ColType = iota
	ColTypeInteger
	ColTypeReal
	ColTypeBlob
	// ColTypeVector exists for dialects with a native vector column type.
	// SQLiteDialect has none and renders it as ColTypeBlob.
	ColTypeVector
)

// ColumnDef describes one column for CreateTableSQL.
type ColumnDef struct {
	Name            string
	Type            ColType
	Nullable        bool
	PrimaryKey      bool
	Default         string
	VectorDimension int
}

// Dialect renders portable schema/query operations into a specific SQL
// syntax. SQLiteDialect is the only implementation this module ships;
// the interface stays in place because SchemaBuilder and QueryBuilder are
// written against it rather than against raw SQL strings.
type Dialect interface {
	Name() string
	Placeholder(argIndex int) string
	CreateTableSQL(table string, columns []ColumnDef) string
	CreateIndexSQL(table, indexName string, columns []string, unique bool) string
	UpsertSQL(table string, columns, conflictColumns, updateColumns []string) string
	InitStatements() []string
}

// SQLiteDialect renders SQL for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(int) string { return "?" }

func (d *SQLiteDialect) CreateTableSQL(table string, columns []ColumnDef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	for i, col := range columns {
		b.WriteString("  ")
		b.WriteString(col.Name)
		b.WriteString(" ")
		b.WriteString(d.sqlType(col.Type))
		if col.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		if !col.Nullable && !col.PrimaryKey {
			b.WriteString(" NOT NULL")
		}
		if col.Default != "" {
			b.WriteString(" DEFAULT ")
			b.WriteString(col.Default)
		}
		if i < len(columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

func (d *SQLiteDialect) sqlType(t ColType) string {
	switch t {
	case ColTypeInteger:
		return "INTEGER"
	case ColTypeReal:
		return "REAL"
	case ColTypeBlob, ColTypeVector:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) CreateIndexSQL(table, indexName string, columns []string, unique bool) string {
	kw := "INDEX"
	if unique {
		kw = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kw, indexName, table, strings.Join(columns, ", "))
}

func (d *SQLiteDialect) UpsertSQL(table string, columns, conflictColumns, updateColumns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = "?"
	}

	if len(updateColumns) == 0 {
		updateColumns = nonConflictColumns(columns, conflictColumns)
	}

	setClauses := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		setClauses[i] = fmt.Sprintf("%s = excluded.%s", col, col)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(conflictColumns, ", "),
		strings.Join(setClauses, ", "),
	)
}

func (d *SQLiteDialect) InitStatements() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
}

func nonConflictColumns(columns, conflictColumns []string) []string {
	conflict := make(map[string]bool, len(conflictColumns))
	for _, c := range conflictColumns {
		conflict[c] = true
	}
	var out []string
	for _, c := range columns {
		if !conflict[c] {
			out = append(out, c)
		}
	}
	return out
}

var _ Dialect = (*SQLiteDialect)(nil)
