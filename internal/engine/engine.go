// Package engine wraps the embedded DuckDB engine used by the analyze and
// restore commands.
//
// DuckDB runs in-process and queries parquet files directly, so there is no
// server to manage: each job opens an in-memory database, points a view at the
// file set, runs SQL, and exits. All query planning and vectorized execution
// belong to DuckDB; this package only builds the view statements and collects
// results.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Open returns an in-memory DuckDB session.
func Open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init duckdb: %w", err)
	}
	return db, nil
}

// RegisterParquetView creates (or replaces) a view over a parquet file set so
// user queries can address it by name. Hive partition directories produced by
// the extractor are folded back into columns.
func RegisterParquetView(ctx context.Context, db *sql.DB, viewName, parquetPath string) error {
	if strings.TrimSpace(viewName) == "" {
		return fmt.Errorf("empty view name")
	}
	if _, err := os.Stat(parquetPath); err != nil {
		return fmt.Errorf("parquet path: %w", err)
	}

	stmt := ViewSQL(viewName, parquetPath)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("register view %s: %w", viewName, err)
	}
	return nil
}

// ViewSQL builds the CREATE VIEW statement for a file set path. Split out so
// the statement shape is testable without a live engine.
func ViewSQL(viewName, parquetPath string) string {
	return fmt.Sprintf(
		"CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s, hive_partitioning = true)",
		QuoteIdent(viewName),
		quoteString(ParquetGlob(parquetPath)),
	)
}

// ParquetGlob converts a file set path into the glob read_parquet expects:
// directories become recursive part-file globs, single files pass through.
// DuckDB accepts forward slashes on every platform.
func ParquetGlob(path string) string {
	p := filepath.ToSlash(path)
	if strings.HasSuffix(p, ".parquet") {
		return p
	}
	return strings.TrimRight(p, "/") + "/**/*.parquet"
}

// Result is a fully materialized query result. Zero rows is a valid result,
// not an error.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Empty reports whether the result has no rows.
func (r Result) Empty() bool { return len(r.Rows) == 0 }

// Query runs one SQL statement and materializes the result. The query string
// is passed through verbatim; a malformed query surfaces DuckDB's own error.
func Query(ctx context.Context, db *sql.DB, query string) (Result, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	res := Result{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		dests := make([]any, len(cols))
		for i := range vals {
			dests[i] = &vals[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return Result{}, err
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return res, nil
}

// QuoteIdent double-quotes an identifier for DuckDB, escaping embedded quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
