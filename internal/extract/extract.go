// Package extract implements the database → parquet extraction job.
//
// The job is a thin pipe: open a connection, run one SELECT, stream the rows
// into a parquet file set. Resilience is whatever the driver provides; there
// are no retries here.
package extract

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sqlparquet/internal/config"
	"sqlparquet/internal/metrics"
	"sqlparquet/internal/parquetio"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// StampColumn is appended to every extracted row so restored data can be
// traced back to its extraction run.
const StampColumn = "extraction_timestamp"

const stampLayout = "2006-01-02 15:04:05"

// Job describes one extraction. Exactly one of Table and Query must be set.
type Job struct {
	Kind string // source database kind; empty means sqlserver
	DSN  string

	Table string
	Query string

	OutputPath  string
	Compression string
	PartitionBy []string
	Mode        string // parquetio write mode; empty means overwrite

	// Stamp controls whether StampColumn is appended to each row.
	Stamp bool
}

// Validate checks everything that can be checked without touching the network.
// Run calls it first, so configuration errors always surface before any
// connection attempt.
func (j Job) Validate() error {
	if (j.Table == "") == (j.Query == "") {
		return fmt.Errorf("exactly one of table and query must be provided")
	}
	if strings.TrimSpace(j.OutputPath) == "" {
		return fmt.Errorf("output path is required")
	}
	if err := parquetio.ValidateCompression(j.Compression); err != nil {
		return err
	}
	if _, err := config.NormalizeKind(j.Kind); err != nil {
		return err
	}
	for _, p := range j.PartitionBy {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("empty partition column name")
		}
	}
	return nil
}

// openDB is a seam so tests can prove that configuration errors short-circuit
// before any connection is opened.
var openDB = sql.Open

// Run executes the job and returns the number of rows written.
func Run(ctx context.Context, j Job) (int64, error) {
	if err := j.Validate(); err != nil {
		return 0, err
	}

	driver, err := config.DriverName(j.Kind)
	if err != nil {
		return 0, err
	}

	db, err := openDB(driver, j.DSN)
	if err != nil {
		return 0, fmt.Errorf("open source database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("connect to source database: %w", err)
	}

	start := time.Now()
	rows, err := db.QueryContext(ctx, selectSQL(j))
	if err != nil {
		return 0, fmt.Errorf("source query: %w", err)
	}
	defer rows.Close()

	cols, err := resultColumns(rows, j.Stamp)
	if err != nil {
		return 0, err
	}

	w, err := parquetio.NewFileSetWriter(j.OutputPath, cols, parquetio.WriterOptions{
		Compression: j.Compression,
		PartitionBy: j.PartitionBy,
		Mode:        j.Mode,
	})
	if err != nil {
		return 0, err
	}

	stamp := start.UTC().Format(stampLayout)
	if err := copyRows(ctx, rows, cols, w, j.Stamp, stamp); err != nil {
		_ = w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return w.Rows(), fmt.Errorf("finalize file set: %w", err)
	}

	metrics.IncCounter("rows_total", float64(w.Rows()), metrics.Labels{"kind": "extracted"})
	metrics.ObserveHistogram("step_duration_seconds", time.Since(start).Seconds(),
		metrics.Labels{"step": "extract", "status": "ok"})
	return w.Rows(), nil
}

// selectSQL builds the statement sent to the source. A raw query passes
// through verbatim; a table name becomes a quoted SELECT *.
func selectSQL(j Job) string {
	if j.Query != "" {
		return j.Query
	}
	return "SELECT * FROM " + tableIdent(j.Kind, j.Table)
}

// tableIdent quotes a possibly schema-qualified table name for the source
// dialect: brackets on SQL Server, double quotes elsewhere.
func tableIdent(kind, name string) string {
	k, _ := config.NormalizeKind(kind)
	parts := strings.Split(name, ".")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if k == config.KindSQLServer {
			parts[i] = "[" + strings.ReplaceAll(p, "]", "]]") + "]"
		} else {
			parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
		}
	}
	return strings.Join(parts, ".")
}

// resultColumns maps the driver's column metadata onto the neutral schema,
// optionally appending the extraction stamp column.
func resultColumns(rows *sql.Rows, stamp bool) ([]parquetio.Column, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("inspect result schema: %w", err)
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("source query returned no columns")
	}

	cols := make([]parquetio.Column, 0, len(types)+1)
	for _, t := range types {
		cols = append(cols, parquetio.Column{
			Name: t.Name(),
			Kind: kindForTypeName(t.DatabaseTypeName()),
		})
	}
	if stamp {
		cols = append(cols, parquetio.Column{Name: StampColumn, Kind: parquetio.KindString})
	}
	return cols, nil
}

// kindForTypeName maps a driver-reported SQL type name to a neutral kind.
//
// DECIMAL/NUMERIC/MONEY collapse to float. That loses precision beyond
// float64, which matches what the original pipeline's dataframe round-trip
// did; callers that need exact decimals should CAST in the query.
func kindForTypeName(name string) parquetio.Kind {
	n := strings.ToUpper(name)
	switch {
	case strings.Contains(n, "BIGINT"), strings.Contains(n, "SMALLINT"),
		strings.Contains(n, "TINYINT"), strings.Contains(n, "INT"),
		strings.Contains(n, "SERIAL"):
		return parquetio.KindInt
	case strings.Contains(n, "FLOAT"), strings.Contains(n, "REAL"),
		strings.Contains(n, "DOUBLE"), strings.Contains(n, "DECIMAL"),
		strings.Contains(n, "NUMERIC"), strings.Contains(n, "MONEY"):
		return parquetio.KindFloat
	case n == "BIT", strings.Contains(n, "BOOL"):
		return parquetio.KindBool
	case strings.Contains(n, "DATE"), strings.Contains(n, "TIME"):
		return parquetio.KindTime
	case strings.Contains(n, "BINARY"), strings.Contains(n, "BLOB"),
		strings.Contains(n, "IMAGE"):
		return parquetio.KindBytes
	default:
		return parquetio.KindString
	}
}

// copyRows streams the result set into the writer.
func copyRows(ctx context.Context, rows *sql.Rows, cols []parquetio.Column, w *parquetio.FileSetWriter, stamp bool, stampValue string) error {
	scanCols := cols
	if stamp {
		scanCols = cols[:len(cols)-1]
	}

	vals := make([]any, len(scanCols))
	dests := make([]any, len(scanCols))
	for i := range vals {
		dests[i] = &vals[i]
	}

	for rows.Next() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := rows.Scan(dests...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, c := range scanCols {
			row[c.Name] = convertValue(c.Kind, vals[i])
		}
		if stamp {
			row[StampColumn] = stampValue
		}

		if err := w.Write(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read source rows: %w", err)
	}
	return nil
}

// convertValue normalizes a scanned value for its target kind. SQL Server
// returns DECIMAL/NUMERIC/MONEY as ASCII bytes, so numeric kinds parse
// textual input before falling back to the generic normalization.
func convertValue(k parquetio.Kind, v any) any {
	if v == nil {
		return nil
	}
	switch k {
	case parquetio.KindFloat:
		if s, ok := textual(v); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
	case parquetio.KindInt:
		if s, ok := textual(v); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
	case parquetio.KindBool:
		switch b := v.(type) {
		case int64:
			return b != 0
		case []byte:
			return len(b) > 0 && b[0] != 0
		}
	}
	return parquetio.NormalizeValue(k, v)
}

func textual(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}
