// Package db wraps database/sql behind a small interface so the rest of
// the indexing core never imports database/sql or a driver package
// directly. The only supported driver is modernc.org/sqlite, a pure-Go
// (CGO-free) SQLite implementation.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Driver identifies a supported database/sql driver registration.
type Driver string

const (
	DriverModernc Driver = "modernc"
	// DriverNcruces names the CGO-free ncruces/go-sqlite3 driver. It is
	// recognized by Config but not implemented: the codebase standardizes
	// on modernc.org/sqlite, and Open rejects it explicitly rather than
	// silently falling back to modernc.
	DriverNcruces Driver = "ncruces"
)

// Config selects and configures a database connection.
type Config struct {
	Driver    Driver
	Path      string
	DSN       string
	EnableWAL bool
}

// DefaultConfig returns a Config for a modernc-backed SQLite file with WAL
// enabled, which is the layout every indexer-managed database uses.
func DefaultConfig(path string) Config {
	return Config{
		Driver:    DriverModernc,
		Path:      path,
		EnableWAL: true,
	}
}

// Dialect returns the SQL dialect for this config. There is only one.
func (c Config) Dialect() Dialect {
	return &SQLiteDialect{}
}

// Result mirrors database/sql.Result.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Row mirrors database/sql.Row.
type Row interface {
	Scan(dest ...any) error
}

// Rows mirrors database/sql.Rows.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Stmt mirrors database/sql.Stmt.
type Stmt interface {
	Exec(args ...any) (Result, error)
	Query(args ...any) (Rows, error)
	QueryRow(args ...any) Row
	Close() error
}

// Tx mirrors database/sql.Tx, scoped to what the schema and store layers need.
type Tx interface {
	Exec(query string, args ...any) (Result, error)
	Query(query string, args ...any) (Rows, error)
	QueryRow(query string, args ...any) Row
	Prepare(query string) (Stmt, error)
	Commit() error
	Rollback() error
}

// DB is the capability surface the rest of the codebase depends on,
// rather than *sql.DB directly, so a fake can stand in for tests that
// want to exercise error paths database/sql makes hard to reach.
type DB interface {
	Exec(query string, args ...any) (Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (Result, error)
	Query(query string, args ...any) (Rows, error)
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	QueryRow(query string, args ...any) Row
	QueryRowContext(ctx context.Context, query string, args ...any) Row
	Begin() (Tx, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Prepare(query string) (Stmt, error)
	Ping() error
	Close() error
	Unwrap() *sql.DB
}

// ModerncDB adapts *sql.DB (opened with the modernc.org/sqlite driver) to DB.
type ModerncDB struct {
	sqlDB *sql.DB
}

// OpenModernc opens a SQLite database using the pure-Go modernc.org/sqlite
// driver, creating the parent directory and enabling WAL mode as configured.
func OpenModernc(cfg Config) (*ModerncDB, error) {
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	dsn := cfg.DSN
	if dsn == "" {
		dsn = cfg.Path
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// modernc's driver serializes writes internally; a single connection
	// avoids SQLITE_BUSY churn under concurrent access from the pipeline.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	if cfg.EnableWAL {
		if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return &ModerncDB{sqlDB: sqlDB}, nil
}

// Open dispatches on cfg.Driver. Only DriverModernc is implemented.
func Open(cfg Config) (DB, error) {
	switch cfg.Driver {
	case DriverModernc, "":
		return OpenModernc(cfg)
	case DriverNcruces:
		return nil, fmt.Errorf("driver %q is not implemented, use %q", DriverNcruces, DriverModernc)
	default:
		return nil, fmt.Errorf("unsupported driver: %q", cfg.Driver)
	}
}

// WrapSQL adapts an already-open *sql.DB, for callers that obtained one
// from elsewhere (e.g. a test harness) rather than through Open.
func WrapSQL(sqlDB *sql.DB) DB {
	return &ModerncDB{sqlDB: sqlDB}
}

func (d *ModerncDB) Exec(query string, args ...any) (Result, error) {
	return d.sqlDB.Exec(query, args...)
}

func (d *ModerncDB) ExecContext(ctx context.Context, query string, args ...any) (Result, error) {
	return d.sqlDB.ExecContext(ctx, query, args...)
}

func (d *ModerncDB) Query(query string, args ...any) (Rows, error) {
	return d.sqlDB.Query(query, args...)
}

func (d *ModerncDB) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	return d.sqlDB.QueryContext(ctx, query, args...)
}

func (d *ModerncDB) QueryRow(query string, args ...any) Row {
	return d.sqlDB.QueryRow(query, args...)
}

func (d *ModerncDB) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	return d.sqlDB.QueryRowContext(ctx, query, args...)
}

func (d *ModerncDB) Begin() (Tx, error) {
	tx, err := d.sqlDB.Begin()
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

func (d *ModerncDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := d.sqlDB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

func (d *ModerncDB) Prepare(query string) (Stmt, error) {
	stmt, err := d.sqlDB.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &sqlStmt{stmt: stmt}, nil
}

func (d *ModerncDB) Ping() error    { return d.sqlDB.Ping() }
func (d *ModerncDB) Close() error   { return d.sqlDB.Close() }
func (d *ModerncDB) Unwrap() *sql.DB { return d.sqlDB }

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Exec(query string, args ...any) (Result, error) { return t.tx.Exec(query, args...) }
func (t *sqlTx) Query(query string, args ...any) (Rows, error)  { return t.tx.Query(query, args...) }
func (t *sqlTx) QueryRow(query string, args ...any) Row         { return t.tx.QueryRow(query, args...) }
func (t *sqlTx) Prepare(query string) (Stmt, error) {
	stmt, err := t.tx.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &sqlStmt{stmt: stmt}, nil
}
func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

type sqlStmt struct {
	stmt *sql.Stmt
}

func (s *sqlStmt) Exec(args ...any) (Result, error)  { return s.stmt.Exec(args...) }
func (s *sqlStmt) Query(args ...any) (Rows, error)   { return s.stmt.Query(args...) }
func (s *sqlStmt) QueryRow(args ...any) Row          { return s.stmt.QueryRow(args...) }
func (s *sqlStmt) Close() error                      { return s.stmt.Close() }

var _ DB = (*ModerncDB)(nil)
