// Package sqlite implements the warehouse interface on SQLite. Besides being
// a real target in its own right it keeps the load path testable without a
// database server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"sqlparquet/internal/parquetio"
	"sqlparquet/internal/warehouse"
)

// SQLite's default SQLITE_MAX_VARIABLE_NUMBER is 999 on older builds; honour
// the conservative limit.
const maxParams = 999

func init() {
	warehouse.Register("sqlite", New)
}

// Repo is an open SQLite database.
type Repo struct {
	db *sql.DB
}

// New opens (or creates) the database file named by the DSN.
func New(ctx context.Context, cfg warehouse.Config) (warehouse.Warehouse, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

// Close closes the database.
func (r *Repo) Close() { _ = r.db.Close() }

// Tx implements warehouse.Warehouse.
func (r *Repo) Tx(ctx context.Context, fn func(warehouse.Session) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&session{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type session struct {
	tx *sql.Tx
}

func (s *session) TableExists(ctx context.Context, table string) (bool, error) {
	// SQLite has no schemas; a qualified name only matches on its last part.
	name := table
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	var n int
	err := s.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *session) DropTable(ctx context.Context, table string) error {
	_, err := s.tx.ExecContext(ctx, "DROP TABLE "+tableIdent(table))
	return err
}

func (s *session) CreateTable(ctx context.Context, table string, cols []warehouse.Column) error {
	stmt, err := createTableSQL(table, cols)
	if err != nil {
		return err
	}
	_, err = s.tx.ExecContext(ctx, stmt)
	return err
}

func (s *session) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	maxRows := maxParams / len(columns)
	if maxRows < 1 {
		return 0, fmt.Errorf("sqlite: %d columns exceed the parameter limit", len(columns))
	}

	var total int64
	for start := 0; start < len(rows); start += maxRows {
		end := start + maxRows
		if end > len(rows) {
			end = len(rows)
		}
		q, args := buildInsertSQL(table, columns, rows[start:end])
		res, err := s.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func createTableSQL(table string, cols []warehouse.Column) (string, error) {
	if len(cols) == 0 {
		return "", fmt.Errorf("sqlite: no columns")
	}
	defs := make([]string, len(cols))
	for i, c := range cols {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("sqlite: column %d has empty name", i)
		}
		defs[i] = ident(c.Name) + " " + sqlType(c.Kind)
	}
	return "CREATE TABLE " + tableIdent(table) + " (" + strings.Join(defs, ", ") + ")", nil
}

func sqlType(k parquetio.Kind) string {
	switch k {
	case parquetio.KindInt, parquetio.KindBool:
		return "INTEGER"
	case parquetio.KindFloat:
		return "REAL"
	case parquetio.KindTime:
		return "TIMESTAMP"
	case parquetio.KindBytes:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") VALUES ")

	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(columns))
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
		args = append(args, r...)
	}
	return b.String(), args
}

func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// tableIdent drops any schema qualifier; SQLite attaches everything to main.
func tableIdent(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return ident(strings.TrimSpace(name))
}
