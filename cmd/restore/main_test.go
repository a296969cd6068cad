package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"sqlparquet/internal/restore"
	"sqlparquet/internal/warehouse"
)

func testEnv(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	cfg, err := parseFlags([]string{"-parquet-path", "/data/orders", "-table-name", "orders"})
	if err != nil {
		t.Fatalf("parseFlags err=%v", err)
	}
	if cfg.IfExists != "fail" || cfg.BatchSize != restore.DefaultBatchSize || cfg.DBKind != "sqlserver" {
		t.Fatalf("defaults wrong: %+v", cfg)
	}

	if _, err := parseFlags([]string{"-table-name", "t"}); err == nil || !strings.Contains(err.Error(), "-parquet-path") {
		t.Fatalf("missing parquet err=%v", err)
	}
	if _, err := parseFlags([]string{"-parquet-path", "/p"}); err == nil || !strings.Contains(err.Error(), "-table-name") {
		t.Fatalf("missing table err=%v", err)
	}
}

func TestRun_Success(t *testing.T) {
	t.Parallel()

	var gotJob restore.Job
	var out bytes.Buffer

	code := run(context.Background(), []string{
		"-db-kind", "sqlite",
		"-database", "/tmp/wh.db",
		"-parquet-path", "/data/orders",
		"-schema", "main",
		"-table-name", "orders",
		"-if-exists", "replace",
		"-batch-size", "500",
		"-transform-query", "SELECT id FROM parquet_view",
	}, deps{
		Stdout: &out,
		Getenv: testEnv(nil),
		Restore: func(ctx context.Context, j restore.Job) (int64, error) {
			gotJob = j
			return 7, nil
		},
	})
	if code != 0 {
		t.Fatalf("code=%d", code)
	}
	if gotJob.Mode != warehouse.ModeReplace || gotJob.BatchSize != 500 {
		t.Fatalf("job=%+v", gotJob)
	}
	if gotJob.TargetTable() != "main.orders" {
		t.Fatalf("target=%q", gotJob.TargetTable())
	}
	if !strings.Contains(out.String(), "restored 7 rows into main.orders") {
		t.Fatalf("stdout=%q", out.String())
	}
}

func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	fatalRestore := func(ctx context.Context, j restore.Job) (int64, error) {
		t.Fatalf("restore must not run on usage errors")
		return 0, nil
	}

	cases := [][]string{
		{},                         // missing parquet/table
		{"-parquet-path", "/p", "-table-name", "t"}, // missing connection params
		{"-parquet-path", "/p", "-table-name", "t", "-db-kind", "oracle"},
		{"-parquet-path", "/p", "-table-name", "t", "-db-kind", "sqlite", "-database", "d", "-if-exists", "upsert"},
		{"-parquet-path", "/p", "-table-name", "t", "-db-kind", "sqlite", "-database", "d", "-metrics-backend", "statsd"},
	}
	for i, args := range cases {
		var errOut bytes.Buffer
		code := run(context.Background(), args, deps{
			Stderr:  &errOut,
			Getenv:  testEnv(nil),
			Restore: fatalRestore,
		})
		if code != 2 {
			t.Fatalf("case %d: code=%d, want 2 (stderr=%s)", i, code, errOut.String())
		}
	}
}

func TestRun_RestoreFailureIsExit1(t *testing.T) {
	t.Parallel()

	var errOut bytes.Buffer
	code := run(context.Background(), []string{
		"-db-kind", "sqlite", "-database", "/tmp/d", "-parquet-path", "/p", "-table-name", "t",
	}, deps{
		Stderr: &errOut,
		Getenv: testEnv(nil),
		Restore: func(ctx context.Context, j restore.Job) (int64, error) {
			return 0, context.DeadlineExceeded
		},
	})
	if code != 1 {
		t.Fatalf("code=%d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "restore failed") {
		t.Fatalf("stderr=%q", errOut.String())
	}
}
