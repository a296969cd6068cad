// Package postgres implements the warehouse interface for PostgreSQL,
// backed by a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sqlparquet/internal/parquetio"
	"sqlparquet/internal/warehouse"
)

// Postgres caps a statement at 65535 bind parameters. Stay under it with a
// round number.
const maxParams = 65000

func init() {
	warehouse.Register("postgres", New)
}

// Repo is a connected Postgres target.
type Repo struct {
	pool *pgxpool.Pool
}

// New opens a pool against the DSN and validates it with a ping.
func New(ctx context.Context, cfg warehouse.Config) (warehouse.Warehouse, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool}, nil
}

// Close releases the pool.
func (r *Repo) Close() { r.pool.Close() }

// Tx implements warehouse.Warehouse. Postgres DDL is transactional, so the
// drop/create and every insert commit or roll back together.
func (r *Repo) Tx(ctx context.Context, fn func(warehouse.Session) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&session{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type session struct {
	tx pgx.Tx
}

func (s *session) TableExists(ctx context.Context, table string) (bool, error) {
	// to_regclass resolves schema-qualified names through the search path and
	// returns NULL for missing relations.
	var exists bool
	err := s.tx.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", table).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *session) DropTable(ctx context.Context, table string) error {
	_, err := s.tx.Exec(ctx, "DROP TABLE "+tableIdent(table))
	return err
}

func (s *session) CreateTable(ctx context.Context, table string, cols []warehouse.Column) error {
	stmt, err := createTableSQL(table, cols)
	if err != nil {
		return err
	}
	_, err = s.tx.Exec(ctx, stmt)
	return err
}

func (s *session) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	maxRows := maxParams / len(columns)
	if maxRows < 1 {
		return 0, fmt.Errorf("postgres: %d columns exceed the parameter limit", len(columns))
	}

	var total int64
	for start := 0; start < len(rows); start += maxRows {
		end := start + maxRows
		if end > len(rows) {
			end = len(rows)
		}
		q, args := buildInsertSQL(table, columns, rows[start:end])
		tag, err := s.tx.Exec(ctx, q, args...)
		if err != nil {
			return total, err
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func createTableSQL(table string, cols []warehouse.Column) (string, error) {
	if len(cols) == 0 {
		return "", fmt.Errorf("postgres: no columns")
	}
	defs := make([]string, len(cols))
	for i, c := range cols {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("postgres: column %d has empty name", i)
		}
		defs[i] = ident(c.Name) + " " + sqlType(c.Kind)
	}
	return "CREATE TABLE " + tableIdent(table) + " (" + strings.Join(defs, ", ") + ")", nil
}

func sqlType(k parquetio.Kind) string {
	switch k {
	case parquetio.KindInt:
		return "BIGINT"
	case parquetio.KindFloat:
		return "DOUBLE PRECISION"
	case parquetio.KindBool:
		return "BOOLEAN"
	case parquetio.KindTime:
		return "TIMESTAMPTZ"
	case parquetio.KindBytes:
		return "BYTEA"
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

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$")
			b.WriteString(strconv.Itoa(p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// ident double-quotes an identifier, escaping embedded quotes.
func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func tableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = ident(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
