// Package analyze runs ad-hoc SQL over a parquet file set and renders the
// results. The file set is registered as a DuckDB view so the query addresses
// it by name; results can go to stdout as a table, to results.csv, and to an
// HTML chart.
package analyze

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sqlparquet/internal/engine"
)

// DefaultViewName is used when the caller does not name the view.
const DefaultViewName = "data"

// Job describes one analysis run.
type Job struct {
	ParquetPath string
	ViewName    string // name the query addresses the file set by
	Query       string

	OutputDir  string // target for results.csv and chart.html
	SaveCSV    bool
	PlotColumn string // value column for the chart; empty disables plotting
	PlotType   string // bar, line, scatter, pie
}

// Report is what a run produced.
type Report struct {
	Result    engine.Result
	CSVPath   string // empty unless SaveCSV
	ChartPath string // empty unless a chart was rendered
}

// Validate reports configuration errors before the engine is opened.
func (j Job) Validate() error {
	if strings.TrimSpace(j.ParquetPath) == "" {
		return fmt.Errorf("missing parquet path")
	}
	if strings.TrimSpace(j.Query) == "" {
		return fmt.Errorf("missing query")
	}
	if j.PlotColumn != "" {
		if err := validatePlotType(j.PlotType); err != nil {
			return err
		}
	}
	if (j.SaveCSV || j.PlotColumn != "") && strings.TrimSpace(j.OutputDir) == "" {
		return fmt.Errorf("missing output dir for results")
	}
	return nil
}

func (j Job) viewName() string {
	if v := strings.TrimSpace(j.ViewName); v != "" {
		return v
	}
	return DefaultViewName
}

// Run executes the query and writes the requested artifacts.
func Run(ctx context.Context, j Job) (*Report, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}

	db, err := engine.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	if err := engine.RegisterParquetView(ctx, db, j.viewName(), j.ParquetPath); err != nil {
		return nil, err
	}

	res, err := engine.Query(ctx, db, j.Query)
	if err != nil {
		return nil, err
	}

	rep := &Report{Result: res}

	if j.SaveCSV {
		path := filepath.Join(j.OutputDir, "results.csv")
		if err := writeCSV(path, res); err != nil {
			return nil, err
		}
		rep.CSVPath = path
	}

	if j.PlotColumn != "" {
		path := filepath.Join(j.OutputDir, "chart.html")
		if err := renderChart(path, j.PlotType, j.PlotColumn, res); err != nil {
			return nil, err
		}
		rep.ChartPath = path
	}

	return rep, nil
}

// WriteTable prints the result as an aligned text table, the way the query
// output appears on stdout.
func WriteTable(w io.Writer, res engine.Result) error {
	widths := make([]int, len(res.Columns))
	for i, c := range res.Columns {
		widths[i] = len(c)
	}
	cells := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			s := formatCell(v)
			cells[i][j] = s
			if len(s) > widths[j] {
				widths[j] = len(s)
			}
		}
	}

	writeRow := func(vals []string) error {
		for i, v := range vals {
			if i > 0 {
				if _, err := fmt.Fprint(w, "  "); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(w, "%-*s", widths[i], v); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintln(w)
		return err
	}

	if err := writeRow(res.Columns); err != nil {
		return err
	}
	rules := make([]string, len(res.Columns))
	for i := range rules {
		rules[i] = strings.Repeat("-", widths[i])
	}
	if err := writeRow(rules); err != nil {
		return err
	}
	for _, row := range cells {
		if err := writeRow(row); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", len(res.Rows))
	return err
}

func writeCSV(path string, res engine.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(res.Columns); err != nil {
		_ = f.Close()
		return err
	}
	record := make([]string, len(res.Columns))
	for _, row := range res.Rows {
		for i, v := range row {
			record[i] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			_ = f.Close()
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// formatCell renders one value for text output. NULL prints as empty.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case float64:
		return formatFloat(x)
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	return s
}
