package backtest

import (
	"time"

	"github.com/newthinker/crossover/internal/core"
)

// Result holds the complete backtest output. All per-bar series are parallel
// to Dates. Float series use NaN for entries that are not yet defined
// (indicator warmup, pre-seed equity); Side series use core.SideNone.
type Result struct {
	Symbol        string
	ShortWindow   int
	LongWindow    int
	InitialEquity float64

	Dates           []time.Time
	Closes          []float64
	Returns         []float64 // close(d)/close(d-1) - 1; NaN at index 0
	ShortSMA        []float64
	LongSMA         []float64
	Signals         []core.Side // intended position, known at close of day d
	Positions       []core.Side // signal shifted by one bar
	StrategyEquity  []float64
	BenchmarkEquity []float64

	Trades []Trade
	Stats  Stats
}

// Len returns the number of bars in the run.
func (r *Result) Len() int {
	return len(r.Dates)
}

// FirstSignalIndex returns the first bar with a defined signal, or -1.
func (r *Result) FirstSignalIndex() int {
	for i, s := range r.Signals {
		if s != core.SideNone {
			return i
		}
	}
	return -1
}

// FirstPositionIndex returns the first bar with a defined position, or -1.
func (r *Result) FirstPositionIndex() int {
	for i, s := range r.Positions {
		if s != core.SideNone {
			return i
		}
	}
	return -1
}

// Trade represents a simulated position from entry to exit
type Trade struct {
	Side       core.Side
	EntryDate  time.Time
	EntryPrice float64
	ExitDate   *time.Time // nil if position still open
	ExitPrice  float64    // meaningful only when closed
}

// IsClosed returns true if the trade has an exit
func (t Trade) IsClosed() bool {
	return t.ExitDate != nil
}

// RealizedReturn returns exit/entry - 1 for closed trades. The second return
// value is false while the position is still open.
func (t Trade) RealizedReturn() (float64, bool) {
	if !t.IsClosed() {
		return 0, false
	}
	return t.ExitPrice/t.EntryPrice - 1, true
}

// IsWin returns true if the trade closed profitably
func (t Trade) IsWin() bool {
	ret, ok := t.RealizedReturn()
	return ok && ret > 0
}

// Stats holds performance statistics
type Stats struct {
	FinalEquity     float64 // strategy equity at the last bar
	BenchmarkFinal  float64 // buy-and-hold equity at the last bar
	TotalReturn     float64 // strategy net return, as a fraction
	BenchmarkReturn float64 // buy-and-hold net return, as a fraction
	CAGR            float64 // annualized return; NaN with under a year of data
	SharpeRatio     float64 // annualized, risk-free rate 0
	MaxDrawdown     float64 // largest peak-to-trough decline, as a fraction
	MaxDrawdownDays int     // longest underwater streak, in bars
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	WinRate         float64 // percentage of profitable closed trades
	OpenTrade       bool    // true if a position was still open at the end
}
