// Package restore moves a parquet file set back into a relational database.
//
// The parquet data is exposed to DuckDB as a view named parquet_view; an
// optional transform query runs against that view before loading, so column
// pruning, renames, and filters happen in SQL rather than in Go. The whole
// load runs in one target-side transaction.
package restore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sqlparquet/internal/engine"
	"sqlparquet/internal/metrics"
	"sqlparquet/internal/parquetio"
	"sqlparquet/internal/warehouse"
)

// ViewName is the name the parquet file set is registered under for the
// transform query.
const ViewName = "parquet_view"

// DefaultBatchSize is the rows-per-insert-batch default.
const DefaultBatchSize = 1000

// Job describes one restore run.
type Job struct {
	ParquetPath    string
	TransformQuery string // optional; runs against parquet_view

	Kind      string // target backend: sqlserver, postgres, sqlite
	DSN       string
	Schema    string // optional target schema
	Table     string
	Mode      warehouse.WriteMode
	BatchSize int
}

// Validate reports configuration errors before anything is opened.
func (j Job) Validate() error {
	if strings.TrimSpace(j.ParquetPath) == "" {
		return fmt.Errorf("missing parquet path")
	}
	if strings.TrimSpace(j.Table) == "" {
		return fmt.Errorf("missing target table")
	}
	if strings.TrimSpace(j.Kind) == "" {
		return fmt.Errorf("missing target db kind")
	}
	if _, err := warehouse.ParseWriteMode(string(j.Mode)); err != nil {
		return err
	}
	if j.BatchSize < 0 {
		return fmt.Errorf("batch size must not be negative")
	}
	return nil
}

// TargetTable is the table name handed to the warehouse, schema-qualified
// when a schema is set.
func (j Job) TargetTable() string {
	if s := strings.TrimSpace(j.Schema); s != "" {
		return s + "." + j.Table
	}
	return j.Table
}

// selectSQL is the query that produces the rows to load.
func (j Job) selectSQL() string {
	if q := strings.TrimSpace(j.TransformQuery); q != "" {
		return q
	}
	return "SELECT * FROM " + engine.QuoteIdent(ViewName)
}

// newWarehouse is a seam for tests.
var newWarehouse = warehouse.New

// Run executes the restore and returns the number of rows written.
func Run(ctx context.Context, j Job) (int64, error) {
	start := time.Now()

	if err := j.Validate(); err != nil {
		return 0, err
	}
	batchSize := j.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}

	db, err := engine.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	if err := engine.RegisterParquetView(ctx, db, ViewName, j.ParquetPath); err != nil {
		return 0, err
	}

	res, err := engine.Query(ctx, db, j.selectSQL())
	if err != nil {
		return 0, fmt.Errorf("transform: %w", err)
	}
	if len(res.Columns) == 0 {
		return 0, fmt.Errorf("transform produced no columns")
	}

	cols := inferColumns(res)
	rows := normalizeRows(cols, res.Rows)

	wh, err := newWarehouse(ctx, warehouse.Config{Kind: j.Kind, DSN: j.DSN})
	if err != nil {
		return 0, fmt.Errorf("connect %s: %w", j.Kind, err)
	}
	defer wh.Close()

	n, err := warehouse.Load(ctx, wh, j.TargetTable(), j.Mode, cols, rows, batchSize)
	if err != nil {
		return 0, err
	}

	metrics.IncCounter("rows_total", float64(n), metrics.Labels{"kind": "restored"})
	metrics.IncCounter("batches_total", float64(batchCount(len(rows), batchSize)), nil)
	metrics.ObserveHistogram("step_duration_seconds", time.Since(start).Seconds(),
		metrics.Labels{"step": "restore", "status": "ok"})
	return n, nil
}

func batchCount(rows, batchSize int) int {
	if rows == 0 {
		return 0
	}
	return (rows + batchSize - 1) / batchSize
}

// inferColumns derives target column types from the materialized result: the
// first non-nil value in each column decides. A column that is NULL in every
// row loads as text.
func inferColumns(res engine.Result) []warehouse.Column {
	cols := make([]warehouse.Column, len(res.Columns))
	for i, name := range res.Columns {
		cols[i] = warehouse.Column{Name: name, Kind: kindOf(res.Rows, i)}
	}
	return cols
}

func kindOf(rows [][]any, idx int) parquetio.Kind {
	for _, row := range rows {
		if v := row[idx]; v != nil {
			return kindOfValue(v)
		}
	}
	return parquetio.KindString
}

func kindOfValue(v any) parquetio.Kind {
	switch v.(type) {
	case bool:
		return parquetio.KindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return parquetio.KindInt
	case float32, float64:
		return parquetio.KindFloat
	case time.Time:
		return parquetio.KindTime
	case []byte:
		return parquetio.KindBytes
	default:
		return parquetio.KindString
	}
}

// normalizeRows widens every value to the canonical Go type for its column
// kind so the three database drivers see uniform bind values.
func normalizeRows(cols []warehouse.Column, rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		r := make([]any, len(cols))
		for j := range cols {
			r[j] = parquetio.NormalizeValue(cols[j].Kind, row[j])
		}
		out[i] = r
	}
	return out
}
