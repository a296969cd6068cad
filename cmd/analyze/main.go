// Command analyze runs SQL over a parquet file set with the embedded engine
// and prints the result. Results can also be saved as results.csv and plotted
// to a self-contained chart.html.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"sqlparquet/internal/analyze"
)

type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	Analyze func(ctx context.Context, j analyze.Job) (*analyze.Report, error)
}

type runConfig struct {
	Parquet   string
	TableName string
	Query     string

	OutputDir   string
	SaveResults bool
	Column      string
	PlotType    string
}

func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Analyze: analyze.Run,
	})
	os.Exit(code)
}

// run executes the analyze command and returns an exit code.
//
// Exit codes:
//   - 0: success (including a query with zero rows).
//   - 1: the query or an output artifact failed.
//   - 2: configuration error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Analyze == nil {
		d.Analyze = analyze.Run
	}

	cfg, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	job := analyze.Job{
		ParquetPath: cfg.Parquet,
		ViewName:    cfg.TableName,
		Query:       cfg.Query,
		OutputDir:   cfg.OutputDir,
		SaveCSV:     cfg.SaveResults,
		PlotColumn:  cfg.Column,
		PlotType:    cfg.PlotType,
	}
	if err := job.Validate(); err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	start := time.Now()
	rep, err := d.Analyze(ctx, job)
	if err != nil {
		fmt.Fprintf(d.Stderr, "analyze failed: %v\n", err)
		return 1
	}

	if err := analyze.WriteTable(d.Stdout, rep.Result); err != nil {
		fmt.Fprintf(d.Stderr, "write results: %v\n", err)
		return 1
	}
	if rep.CSVPath != "" {
		fmt.Fprintf(d.Stdout, "results saved to %s\n", rep.CSVPath)
	}
	if rep.ChartPath != "" {
		fmt.Fprintf(d.Stdout, "chart saved to %s\n", rep.ChartPath)
	}
	fmt.Fprintf(d.Stdout, "query finished in %s\n", time.Since(start).Round(time.Millisecond))
	return 0
}

func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	var cfg runConfig
	fs.StringVar(&cfg.Parquet, "parquet-path", "", "Parquet file set to analyze")
	fs.StringVar(&cfg.TableName, "table-name", analyze.DefaultViewName, "View name the query addresses the file set by")
	fs.StringVar(&cfg.Query, "query", "", "SQL to run against the view")
	fs.StringVar(&cfg.OutputDir, "output-dir", "", "Directory for results.csv and chart.html")
	fs.BoolVar(&cfg.SaveResults, "save-results", false, "Write the result to results.csv in -output-dir")
	fs.StringVar(&cfg.Column, "column", "", "Numeric result column to plot; enables charting")
	fs.StringVar(&cfg.PlotType, "plot-type", "bar", "Chart type (bar, line, scatter, pie)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	if cfg.Parquet == "" {
		return runConfig{}, errors.New("missing required -parquet-path <path>")
	}
	if cfg.Query == "" {
		return runConfig{}, errors.New("missing required -query <sql>")
	}

	return cfg, nil
}
