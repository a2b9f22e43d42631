package backtest

import (
	"time"

	"github.com/newthinker/crossover/internal/core"
)

// extractTrades scans the position series once and pairs flat-to-long
// transitions with the next long-to-flat transition. Positions before the
// first defined entry count as flat, so a run that starts long opens a
// trade on its first bar. At most one trade is open at any time. A
// position still open at the end of the series is emitted with a nil
// ExitDate, never force-closed at the last price.
func extractTrades(dates []time.Time, closes []float64, positions []core.Side) []Trade {
	var trades []Trade
	var open *Trade

	for i, pos := range positions {
		switch pos {
		case core.SideLong:
			if open == nil {
				open = &Trade{
					Side:       core.SideLong,
					EntryDate:  dates[i],
					EntryPrice: closes[i],
				}
			}
		case core.SideFlat:
			if open != nil {
				exit := dates[i]
				open.ExitDate = &exit
				open.ExitPrice = closes[i]
				trades = append(trades, *open)
				open = nil
			}
		}
	}

	if open != nil {
		trades = append(trades, *open)
	}

	return trades
}
