package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"

	"github.com/newthinker/crossover/internal/backtest"
	"github.com/newthinker/crossover/internal/core"
)

// CurveKey returns the archive key an equity curve is stored under.
func CurveKey(symbol, runID string) string {
	return fmt.Sprintf("backtests/%s/%s.csv", symbol, runID)
}

// WriteEquityCurve serializes the run's equity curve as CSV and stores it
// under CurveKey. Undefined strategy values (the warmup prefix) become empty
// cells. Returns the key written.
func WriteEquityCurve(ctx context.Context, a Archive, runID string, result *backtest.Result) (string, error) {
	data, err := encodeCurve(result)
	if err != nil {
		return "", core.WrapError(core.ErrSinkFailed, err)
	}

	key := CurveKey(result.Symbol, runID)
	if err := a.Put(ctx, key, data); err != nil {
		return "", core.WrapError(core.ErrSinkFailed, err)
	}
	return key, nil
}

func encodeCurve(result *backtest.Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"date", "strategy_equity", "benchmark_equity"}); err != nil {
		return nil, err
	}
	for i := 0; i < result.Len(); i++ {
		row := []string{
			result.Dates[i].Format("2006-01-02"),
			formatEquity(result.StrategyEquity[i]),
			formatEquity(result.BenchmarkEquity[i]),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatEquity(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
