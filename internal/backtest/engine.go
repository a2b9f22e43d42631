// Package backtest implements a dual-SMA crossover backtest over a daily
// price series, compared against a buy-and-hold benchmark.
package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/newthinker/crossover/internal/core"
	"github.com/newthinker/crossover/internal/indicator"
)

// Default window lengths, in trading days.
const (
	DefaultShortWindow = 20
	DefaultLongWindow  = 50
)

// Config holds the engine parameters for a single run.
type Config struct {
	Symbol        string
	ShortWindow   int
	LongWindow    int
	InitialEquity float64
}

// Validate checks the window and equity parameters.
func (c Config) Validate() error {
	if c.ShortWindow < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("short window must be at least 1, got %d", c.ShortWindow))
	}
	if c.LongWindow < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("long window must be at least 1, got %d", c.LongWindow))
	}
	if c.ShortWindow >= c.LongWindow {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("short window (%d) must be smaller than long window (%d)",
				c.ShortWindow, c.LongWindow))
	}
	if c.InitialEquity <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial equity must be positive, got %f", c.InitialEquity))
	}
	return nil
}

// Run executes a backtest over the given price series. It is a pure
// function: identical inputs produce identical results, and no state is
// kept between runs. A series shorter than the long window yields empty
// derived series rather than an error.
func Run(cfg Config, points []core.PricePoint) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateSeries(points); err != nil {
		return nil, err
	}

	n := len(points)
	res := &Result{
		Symbol:        cfg.Symbol,
		ShortWindow:   cfg.ShortWindow,
		LongWindow:    cfg.LongWindow,
		InitialEquity: cfg.InitialEquity,
		Dates:         make([]time.Time, n),
		Closes:        make([]float64, n),
	}
	for i, p := range points {
		res.Dates[i] = p.Day()
		res.Closes[i] = p.Close
	}

	res.Returns = dailyReturns(res.Closes)
	res.ShortSMA = indicator.SMAAligned(res.Closes, cfg.ShortWindow)
	res.LongSMA = indicator.SMAAligned(res.Closes, cfg.LongWindow)
	res.Signals = deriveSignals(res.ShortSMA, res.LongSMA)
	res.Positions = shiftSignals(res.Signals)
	res.BenchmarkEquity = benchmarkEquity(res.Returns, cfg.InitialEquity)
	res.StrategyEquity = strategyEquity(res.Returns, res.Positions, cfg.InitialEquity)
	res.Trades = extractTrades(res.Dates, res.Closes, res.Positions)
	res.Stats = calculateStats(res)

	return res, nil
}

// validateSeries checks the fetched series for corrupt data: non-positive
// or non-finite closes and non-ascending dates both abort the run before
// any derived value is computed.
func validateSeries(points []core.PricePoint) error {
	for i, p := range points {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) || p.Close <= 0 {
			return core.WrapError(core.ErrDataIntegrity,
				fmt.Errorf("bar %d (%s): invalid close %v",
					i, p.Date.Format("2006-01-02"), p.Close))
		}
		if i > 0 && !points[i].Date.After(points[i-1].Date) {
			return core.WrapError(core.ErrDataIntegrity,
				fmt.Errorf("bar %d (%s): date not after previous bar (%s)",
					i, points[i].Date.Format("2006-01-02"),
					points[i-1].Date.Format("2006-01-02")))
		}
	}
	return nil
}

// dailyReturns computes close(d)/close(d-1) - 1 per bar. The first bar has
// no previous close and is NaN.
func dailyReturns(closes []float64) []float64 {
	returns := make([]float64, len(closes))
	if len(returns) > 0 {
		returns[0] = math.NaN()
	}
	for i := 1; i < len(closes); i++ {
		returns[i] = closes[i]/closes[i-1] - 1
	}
	return returns
}

// deriveSignals maps the two SMA series to intended positions: long where
// the short SMA is strictly above the long SMA, flat otherwise. An exact
// tie is flat, so the signal cannot oscillate on equal averages. Entries
// where either SMA is still warming up are SideNone.
func deriveSignals(short, long []float64) []core.Side {
	signals := make([]core.Side, len(short))
	for i := range signals {
		if math.IsNaN(short[i]) || math.IsNaN(long[i]) {
			continue
		}
		if short[i] > long[i] {
			signals[i] = core.SideLong
		} else {
			signals[i] = core.SideFlat
		}
	}
	return signals
}

// shiftSignals produces the position series: each bar holds the signal of
// the previous bar, so a decision made on day d's close is first acted on
// during day d+1. The shift is by exactly one entry; the bar carrying the
// first signal has no position.
func shiftSignals(signals []core.Side) []core.Side {
	positions := make([]core.Side, len(signals))
	for i := 1; i < len(signals); i++ {
		positions[i] = signals[i-1]
	}
	return positions
}

// benchmarkEquity compounds the raw daily price return from the first bar.
func benchmarkEquity(returns []float64, initial float64) []float64 {
	equity := nanSlice(len(returns))
	if len(equity) == 0 {
		return equity
	}
	equity[0] = initial
	for i := 1; i < len(returns); i++ {
		equity[i] = equity[i-1] * (1 + returns[i])
	}
	return equity
}

// strategyEquity compounds the daily return only on bars held long. The
// curve is seeded at the first bar with a defined position and is NaN
// before that.
func strategyEquity(returns []float64, positions []core.Side, initial float64) []float64 {
	equity := nanSlice(len(returns))

	start := -1
	for i, p := range positions {
		if p != core.SideNone {
			start = i
			break
		}
	}
	if start < 0 {
		return equity
	}

	equity[start] = initial
	for i := start + 1; i < len(returns); i++ {
		r := 0.0
		if positions[i] == core.SideLong {
			r = returns[i]
		}
		equity[i] = equity[i-1] * (1 + r)
	}
	return equity
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
