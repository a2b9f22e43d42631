// Package render draws the equity-curve comparison chart for a finished
// backtest run as a standalone HTML file.
package render

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/newthinker/crossover/internal/backtest"
	"github.com/newthinker/crossover/internal/core"
)

// EquityChart builds a line chart comparing the strategy equity curve
// against buy-and-hold. Undefined strategy values (the warmup prefix) are
// rendered as gaps.
func EquityChart(result *backtest.Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s SMA(%d/%d) crossover",
				result.Symbol, result.ShortWindow, result.LongWindow),
			Subtitle: "strategy vs buy-and-hold equity",
		}),
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: result.Symbol,
			Width:     "1100px",
			Height:    "550px",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	dates := make([]string, result.Len())
	for i, d := range result.Dates {
		dates[i] = d.Format("2006-01-02")
	}

	line.SetXAxis(dates).
		AddSeries("strategy", lineData(result.StrategyEquity)).
		AddSeries("buy & hold", lineData(result.BenchmarkEquity))

	return line
}

// WriteHTML renders the chart to an HTML file at path, creating parent
// directories as needed.
func WriteHTML(result *backtest.Result, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}
	defer f.Close()

	if err := EquityChart(result).Render(f); err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}
	return nil
}

// lineData converts an equity series to chart points, leaving NaN entries
// as nil so echarts breaks the line instead of plotting zero.
func lineData(series []float64) []opts.LineData {
	data := make([]opts.LineData, len(series))
	for i, v := range series {
		if math.IsNaN(v) {
			data[i] = opts.LineData{Value: nil}
			continue
		}
		data[i] = opts.LineData{Value: v}
	}
	return data
}
