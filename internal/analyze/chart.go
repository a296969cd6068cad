package analyze

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"sqlparquet/internal/engine"
)

// Plot types accepted by renderChart.
const (
	PlotBar     = "bar"
	PlotLine    = "line"
	PlotScatter = "scatter"
	PlotPie     = "pie"
)

func validatePlotType(t string) error {
	switch t {
	case PlotBar, PlotLine, PlotScatter, PlotPie:
		return nil
	case "":
		return fmt.Errorf("missing plot type (want bar|line|scatter|pie)")
	default:
		return fmt.Errorf("unsupported plot type %q (want bar|line|scatter|pie)", t)
	}
}

// renderChart writes a self-contained HTML chart. The first result column
// provides the category labels, valueColumn the numeric values.
func renderChart(path, plotType, valueColumn string, res engine.Result) error {
	if len(res.Columns) == 0 {
		return fmt.Errorf("chart: query returned no columns")
	}

	valIdx := -1
	for i, c := range res.Columns {
		if c == valueColumn {
			valIdx = i
			break
		}
	}
	if valIdx < 0 {
		return fmt.Errorf("chart: column %q not in query result %v", valueColumn, res.Columns)
	}

	labels := make([]string, len(res.Rows))
	values := make([]float64, len(res.Rows))
	for i, row := range res.Rows {
		labels[i] = formatCell(row[0])
		v, err := asFloat(row[valIdx])
		if err != nil {
			return fmt.Errorf("chart: row %d column %q: %w", i, valueColumn, err)
		}
		values[i] = v
	}

	title := charts.WithTitleOpts(opts.Title{Title: valueColumn + " by " + res.Columns[0]})

	var renderer interface{ Render(w io.Writer) error }
	switch plotType {
	case PlotBar:
		bar := charts.NewBar()
		bar.SetGlobalOptions(title)
		data := make([]opts.BarData, len(values))
		for i, v := range values {
			data[i] = opts.BarData{Value: v}
		}
		bar.SetXAxis(labels).AddSeries(valueColumn, data)
		renderer = bar

	case PlotLine:
		line := charts.NewLine()
		line.SetGlobalOptions(title)
		data := make([]opts.LineData, len(values))
		for i, v := range values {
			data[i] = opts.LineData{Value: v}
		}
		line.SetXAxis(labels).AddSeries(valueColumn, data)
		renderer = line

	case PlotScatter:
		scatter := charts.NewScatter()
		scatter.SetGlobalOptions(title)
		data := make([]opts.ScatterData, len(values))
		for i, v := range values {
			data[i] = opts.ScatterData{Value: v}
		}
		scatter.SetXAxis(labels).AddSeries(valueColumn, data)
		renderer = scatter

	case PlotPie:
		pie := charts.NewPie()
		pie.SetGlobalOptions(title)
		data := make([]opts.PieData, len(values))
		for i, v := range values {
			data[i] = opts.PieData{Name: labels[i], Value: v}
		}
		pie.AddSeries(valueColumn, data)
		renderer = pie

	default:
		return validatePlotType(plotType)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := renderer.Render(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func asFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	case []byte:
		return strconv.ParseFloat(string(n), 64)
	default:
		return 0, fmt.Errorf("not numeric: %T", v)
	}
}
