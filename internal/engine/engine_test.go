package engine

import (
	"context"
	"testing"
)

func TestParquetGlob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"/data/out", "/data/out/**/*.parquet"},
		{"/data/out/", "/data/out/**/*.parquet"},
		{"/data/out/part-00000.parquet", "/data/out/part-00000.parquet"},
		{"relative/dir", "relative/dir/**/*.parquet"},
	}
	for _, tc := range tests {
		if got := ParquetGlob(tc.in); got != tc.want {
			t.Fatalf("ParquetGlob(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestViewSQL_EscapesNameAndPath(t *testing.T) {
	t.Parallel()

	got := ViewSQL(`my"view`, `/tmp/o'brien`)
	want := `CREATE OR REPLACE VIEW "my""view" AS SELECT * FROM read_parquet('/tmp/o''brien/**/*.parquet', hive_partitioning = true)`
	if got != want {
		t.Fatalf("ViewSQL=%q, want %q", got, want)
	}
}

func TestQuery_EmptyResultIsNotAnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := Open(ctx)
	if err != nil {
		t.Skipf("embedded engine unavailable in this environment: %v", err)
	}
	defer db.Close()

	res, err := Query(ctx, db, "SELECT 1 AS n WHERE 1 = 0")
	if err != nil {
		t.Fatalf("Query err=%v, want nil for empty result", err)
	}
	if !res.Empty() {
		t.Fatalf("rows=%d, want 0", len(res.Rows))
	}
	if len(res.Columns) != 1 || res.Columns[0] != "n" {
		t.Fatalf("columns=%v, want [n]", res.Columns)
	}
}

func TestQuery_MalformedSQLSurfacesEngineError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := Open(ctx)
	if err != nil {
		t.Skipf("embedded engine unavailable in this environment: %v", err)
	}
	defer db.Close()

	if _, err := Query(ctx, db, "SELEKT oops"); err == nil {
		t.Fatalf("want parse error from the engine")
	}
}
