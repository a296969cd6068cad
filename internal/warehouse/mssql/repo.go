// Package mssql implements the warehouse interface for Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"sqlparquet/internal/parquetio"
	"sqlparquet/internal/warehouse"
)

// SQL Server has a hard limit of 2100 statement parameters. We stay
// comfortably below that when splitting insert statements.
const maxParams = 2000

func init() {
	warehouse.Register("sqlserver", New)
}

// Repo is a connected SQL Server target.
type Repo struct {
	db *sql.DB
}

// New opens a SQL Server connection and validates it with a ping.
func New(ctx context.Context, cfg warehouse.Config) (warehouse.Warehouse, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

// Close releases the connection pool.
func (r *Repo) Close() { _ = r.db.Close() }

// Tx implements warehouse.Warehouse. DDL is transactional on SQL Server, so
// drop/create participate in the rollback like the inserts do.
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
	var id sql.NullInt64
	err := s.tx.QueryRowContext(ctx, "SELECT OBJECT_ID(@p1, N'U')", table).Scan(&id)
	if err != nil {
		return false, err
	}
	return id.Valid, nil
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

	// Each row consumes len(columns) parameters; split the batch so one
	// statement never exceeds the parameter limit.
	maxRows := maxParams / len(columns)
	if maxRows < 1 {
		return 0, fmt.Errorf("mssql: %d columns exceed the parameter limit", len(columns))
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

// createTableSQL maps neutral column kinds onto SQL Server types.
func createTableSQL(table string, cols []warehouse.Column) (string, error) {
	if len(cols) == 0 {
		return "", fmt.Errorf("mssql: no columns")
	}
	defs := make([]string, len(cols))
	for i, c := range cols {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("mssql: column %d has empty name", i)
		}
		defs[i] = ident(c.Name) + " " + sqlType(c.Kind) + " NULL"
	}
	return "CREATE TABLE " + tableIdent(table) + " (" + strings.Join(defs, ", ") + ")", nil
}

func sqlType(k parquetio.Kind) string {
	switch k {
	case parquetio.KindInt:
		return "BIGINT"
	case parquetio.KindFloat:
		return "FLOAT"
	case parquetio.KindBool:
		return "BIT"
	case parquetio.KindTime:
		return "DATETIME2"
	case parquetio.KindBytes:
		return "VARBINARY(MAX)"
	default:
		return "NVARCHAR(MAX)"
	}
}

// buildInsertSQL builds a single INSERT ... VALUES statement for all rows.
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
			b.WriteString("@p")
			b.WriteString(strconv.Itoa(p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// ident returns a bracket-quoted identifier, escaping ']' as ']]'.
func ident(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// tableIdent bracket-quotes a possibly schema-qualified name:
// "dbo.imports" -> [dbo].[imports].
func tableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = ident(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}
