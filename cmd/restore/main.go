// Command restore loads a parquet file set back into a relational database,
// optionally reshaping it first with a SQL transform that runs in the embedded
// engine against a view named parquet_view.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"sqlparquet/internal/config"
	"sqlparquet/internal/metrics"
	"sqlparquet/internal/metrics/datadog"
	"sqlparquet/internal/restore"
	"sqlparquet/internal/warehouse"

	// register all warehouse backends; -db-kind selects one at runtime.
	_ "sqlparquet/internal/warehouse/all"
)

type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	Getenv  func(string) string
	Restore func(ctx context.Context, j restore.Job) (int64, error)
}

type runConfig struct {
	Conn   config.Conn
	DBKind string

	Parquet        string
	TransformQuery string
	Schema         string
	Table          string
	IfExists       string
	BatchSize      int

	AppName        string
	MetricsBackend string
	DDTagsCSV      string
	FlushEvery     time.Duration
}

func main() {
	config.LoadDotenv()
	code := run(context.Background(), os.Args[1:], deps{
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Getenv:  os.Getenv,
		Restore: restore.Run,
	})
	os.Exit(code)
}

// run executes the restore command and returns an exit code.
//
// Exit codes:
//   - 0: success.
//   - 1: the restore itself failed; the target is rolled back.
//   - 2: configuration/initialization error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	if d.Restore == nil {
		d.Restore = restore.Run
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	kind, err := config.NormalizeKind(cfg.DBKind)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	mode, err := warehouse.ParseWriteMode(cfg.IfExists)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	conn := config.Resolve(cfg.Conn, d.Getenv)
	if err := config.Validate(kind, conn); err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	dsn, err := config.BuildDSN(kind, conn)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	if code := setupMetrics(ctx, d.Stderr, cfg.MetricsBackend, cfg.AppName, cfg.DDTagsCSV, cfg.FlushEvery); code != 0 {
		return code
	}
	defer func() {
		if err := metrics.Close(); err != nil {
			log.Printf("metrics: close error: %v", err)
		}
	}()

	job := restore.Job{
		ParquetPath:    cfg.Parquet,
		TransformQuery: cfg.TransformQuery,
		Kind:           kind,
		DSN:            dsn,
		Schema:         cfg.Schema,
		Table:          cfg.Table,
		Mode:           mode,
		BatchSize:      cfg.BatchSize,
	}
	if err := job.Validate(); err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	start := time.Now()
	n, err := d.Restore(ctx, job)
	if err != nil {
		fmt.Fprintf(d.Stderr, "restore failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(d.Stdout, "restored %d rows into %s in %s\n", n, job.TargetTable(), time.Since(start).Round(time.Millisecond))
	return 0
}

func setupMetrics(ctx context.Context, stderr io.Writer, backend, jobName, tagsCSV string, flushEvery time.Duration) int {
	switch backend {
	case "", "none":
		return 0
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       datadog.ParseTagsCSV(tagsCSV),
			FlushEvery: flushEvery,
		})
		if err != nil {
			fmt.Fprintf(stderr, "datadog backend init failed: %v\n", err)
			return 2
		}
		metrics.SetBackend(b)
		return 0
	default:
		fmt.Fprintf(stderr, "unsupported metrics backend %q (want none|datadog)\n", backend)
		return 2
	}
}

func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.Conn.Server, "server", "", "Target host[:port] (default from SQL_SERVER)")
	fs.StringVar(&cfg.Conn.Database, "database", "", "Target database, or file path for sqlite (default from SQL_DATABASE)")
	fs.StringVar(&cfg.Conn.Username, "username", "", "Target user (default from SQL_USERNAME)")
	fs.StringVar(&cfg.Conn.Password, "password", "", "Target password (default from SQL_PASSWORD)")
	fs.StringVar(&cfg.DBKind, "db-kind", "sqlserver", "Target database kind (sqlserver, postgres, sqlite)")

	fs.StringVar(&cfg.Parquet, "parquet-path", "", "Parquet file set to restore from")
	fs.StringVar(&cfg.TransformQuery, "transform-query", "", "SQL run against parquet_view before loading")
	fs.StringVar(&cfg.Schema, "schema", "", "Target schema (prefixed to -table-name)")
	fs.StringVar(&cfg.Table, "table-name", "", "Target table name")
	fs.StringVar(&cfg.IfExists, "if-exists", "fail", "Behavior when the target table exists (fail, replace, append)")
	fs.IntVar(&cfg.BatchSize, "batch-size", restore.DefaultBatchSize, "Rows per insert batch")

	fs.StringVar(&cfg.AppName, "app-name", "restore", "Logical job name used in metrics tags")
	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", "none", "Metrics backend (none, datadog)")
	fs.StringVar(&cfg.DDTagsCSV, "dd-tags", "", "Extra Datadog tags CSV (e.g. env:prod,service:restore)")
	fs.DurationVar(&cfg.FlushEvery, "metrics-flush", time.Minute, "Datadog flush interval")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	if cfg.Parquet == "" {
		return runConfig{}, errors.New("missing required -parquet-path <path>")
	}
	if cfg.Table == "" {
		return runConfig{}, errors.New("missing required -table-name <name>")
	}

	return cfg, nil
}
