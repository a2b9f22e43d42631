package backtest

import (
	"math"

	"github.com/newthinker/crossover/internal/core"
)

// Annualization assumes ~252 trading days.
const tradingDaysPerYear = 252

// calculateStats computes performance statistics from a finished run.
func calculateStats(res *Result) Stats {
	stats := Stats{CAGR: math.NaN()}

	n := res.Len()
	if n == 0 {
		return stats
	}

	stats.BenchmarkFinal = res.BenchmarkEquity[n-1]
	stats.BenchmarkReturn = stats.BenchmarkFinal/res.InitialEquity - 1

	tradeStats(&stats, res.Trades)

	start := res.FirstPositionIndex()
	if start < 0 {
		return stats
	}

	stats.FinalEquity = res.StrategyEquity[n-1]
	stats.TotalReturn = stats.FinalEquity/res.InitialEquity - 1

	// Daily strategy returns: the market return while long, zero while flat.
	daily := make([]float64, 0, n-start-1)
	for i := start + 1; i < n; i++ {
		r := 0.0
		if res.Positions[i] == core.SideLong {
			r = res.Returns[i]
		}
		daily = append(daily, r)
	}

	if len(daily) > tradingDaysPerYear {
		normalized := stats.FinalEquity / res.InitialEquity
		stats.CAGR = math.Pow(normalized, tradingDaysPerYear/float64(len(daily))) - 1
	}
	stats.SharpeRatio = sharpeRatio(daily)
	stats.MaxDrawdown, stats.MaxDrawdownDays = maxDrawdown(res.StrategyEquity[start:])

	return stats
}

func tradeStats(stats *Stats, trades []Trade) {
	stats.TotalTrades = len(trades)

	var closed int
	for _, t := range trades {
		if !t.IsClosed() {
			stats.OpenTrade = true
			continue
		}
		closed++
		if t.IsWin() {
			stats.WinningTrades++
		} else {
			stats.LosingTrades++
		}
	}

	if closed > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(closed) * 100
	}
}

// sharpeRatio computes the annualized risk-adjusted return from daily
// returns, assuming a risk-free rate of 0.
func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(returns)-1))

	if stdDev == 0 {
		return 0
	}

	annualizedReturn := mean * tradingDaysPerYear
	annualizedStdDev := stdDev * math.Sqrt(tradingDaysPerYear)

	return annualizedReturn / annualizedStdDev
}

// maxDrawdown finds the largest peak-to-trough decline of an equity curve
// and the longest stretch of bars spent below a previous peak.
func maxDrawdown(equity []float64) (float64, int) {
	var maxDD float64
	var maxDays, cur int
	peak := math.Inf(-1)

	for _, eq := range equity {
		if eq > peak {
			peak = eq
		}
		dd := (peak - eq) / peak
		if dd > maxDD {
			maxDD = dd
		}
		if eq < peak {
			cur++
			if cur > maxDays {
				maxDays = cur
			}
		} else {
			cur = 0
		}
	}

	return maxDD, maxDays
}
