// Command extract copies a SQL table or query result into a parquet file set.
//
// Connection parameters fall back to SQL_SERVER/SQL_DATABASE/SQL_USERNAME/
// SQL_PASSWORD, which a .env file in the working directory can provide.
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
	"sqlparquet/internal/extract"
	"sqlparquet/internal/metrics"
	"sqlparquet/internal/metrics/datadog"
)

// deps carries the process-level dependencies so run stays testable.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	Getenv  func(string) string
	Extract func(ctx context.Context, j extract.Job) (int64, error)
}

// runConfig holds the parsed flags for one invocation.
type runConfig struct {
	Conn   config.Conn
	DBKind string

	Table string
	Query string

	Output      string
	Compression string
	PartitionBy string
	Mode        string
	NoStamp     bool

	AppName        string
	MetricsBackend string
	DDTagsCSV      string
	FlushEvery     time.Duration
}

// main is intentionally small: it wires real dependencies and exits with a code.
func main() {
	config.LoadDotenv()
	code := run(context.Background(), os.Args[1:], deps{
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Getenv:  os.Getenv,
		Extract: extract.Run,
	})
	os.Exit(code)
}

// run executes the extract command and returns an exit code.
//
// Exit codes:
//   - 0: success.
//   - 1: the extraction itself failed.
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
	if d.Extract == nil {
		d.Extract = extract.Run
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

	job := extract.Job{
		Kind:        kind,
		DSN:         dsn,
		Table:       cfg.Table,
		Query:       cfg.Query,
		OutputPath:  cfg.Output,
		Compression: cfg.Compression,
		PartitionBy: splitCSV(cfg.PartitionBy),
		Mode:        cfg.Mode,
		Stamp:       !cfg.NoStamp,
	}
	if err := job.Validate(); err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	start := time.Now()
	n, err := d.Extract(ctx, job)
	if err != nil {
		fmt.Fprintf(d.Stderr, "extract failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(d.Stdout, "extracted %d rows to %s in %s\n", n, cfg.Output, time.Since(start).Round(time.Millisecond))
	return 0
}

// setupMetrics installs the requested metrics backend. Returns a non-zero
// exit code on a configuration error.
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

// parseFlags parses CLI flags without exiting the process.
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.Conn.Server, "server", "", "Database host[:port] (default from SQL_SERVER)")
	fs.StringVar(&cfg.Conn.Database, "database", "", "Database name, or file path for sqlite (default from SQL_DATABASE)")
	fs.StringVar(&cfg.Conn.Username, "username", "", "Database user (default from SQL_USERNAME)")
	fs.StringVar(&cfg.Conn.Password, "password", "", "Database password (default from SQL_PASSWORD)")
	fs.StringVar(&cfg.DBKind, "db-kind", "sqlserver", "Source database kind (sqlserver, postgres, sqlite)")

	fs.StringVar(&cfg.Table, "table", "", "Source table, optionally schema-qualified (mutually exclusive with -query)")
	fs.StringVar(&cfg.Query, "query", "", "Source SELECT statement (mutually exclusive with -table)")

	fs.StringVar(&cfg.Output, "output-path", "", "Output directory for the parquet file set")
	fs.StringVar(&cfg.Compression, "compression", "snappy", "Parquet codec (snappy, gzip, zstd, lz4, none)")
	fs.StringVar(&cfg.PartitionBy, "partition-by", "", "CSV of columns to partition the file set by")
	fs.StringVar(&cfg.Mode, "mode", "overwrite", "Behavior for an existing output directory (overwrite, append, error)")
	fs.BoolVar(&cfg.NoStamp, "no-stamp", false, "Do not append the extraction_timestamp column")

	fs.StringVar(&cfg.AppName, "app-name", "extract", "Logical job name used in metrics tags")
	fs.StringVar(&cfg.MetricsBackend, "metrics-backend", "none", "Metrics backend (none, datadog)")
	fs.StringVar(&cfg.DDTagsCSV, "dd-tags", "", "Extra Datadog tags CSV (e.g. env:prod,service:extract)")
	fs.DurationVar(&cfg.FlushEvery, "metrics-flush", time.Minute, "Datadog flush interval")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	if cfg.Output == "" {
		return runConfig{}, errors.New("missing required -output-path <dir>")
	}

	return cfg, nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
