package backtest

import (
	"math/rand"
	"testing"
	"time"

	"github.com/newthinker/crossover/internal/core"
)

func tradeFixture(positions []core.Side) ([]time.Time, []float64) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, len(positions))
	closes := make([]float64, len(positions))
	for i := range positions {
		dates[i] = base.AddDate(0, 0, i)
		closes[i] = 100 + float64(i)
	}
	return dates, closes
}

func TestExtractTrades_RoundTrip(t *testing.T) {
	positions := []core.Side{
		core.SideNone, core.SideFlat, core.SideLong, core.SideLong, core.SideFlat,
	}
	dates, closes := tradeFixture(positions)

	trades := extractTrades(dates, closes, positions)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	trade := trades[0]
	if trade.Side != core.SideLong {
		t.Errorf("Side = %v, want long", trade.Side)
	}
	if !trade.EntryDate.Equal(dates[2]) || trade.EntryPrice != closes[2] {
		t.Errorf("entry = %v @ %v, want %v @ %v", trade.EntryDate, trade.EntryPrice, dates[2], closes[2])
	}
	if !trade.IsClosed() || !trade.ExitDate.Equal(dates[4]) || trade.ExitPrice != closes[4] {
		t.Errorf("exit = %v @ %v, want %v @ %v", trade.ExitDate, trade.ExitPrice, dates[4], closes[4])
	}
}

func TestExtractTrades_OpenAtEnd(t *testing.T) {
	positions := []core.Side{core.SideFlat, core.SideLong, core.SideLong}
	dates, closes := tradeFixture(positions)

	trades := extractTrades(dates, closes, positions)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].IsClosed() {
		t.Error("trailing position should be reported as still open")
	}
	if _, ok := trades[0].RealizedReturn(); ok {
		t.Error("open trade has no realized return")
	}
}

func TestExtractTrades_StartsLong(t *testing.T) {
	// Undefined entries count as flat, so a series whose first defined
	// position is long opens a trade on that bar.
	positions := []core.Side{core.SideNone, core.SideNone, core.SideLong, core.SideFlat}
	dates, closes := tradeFixture(positions)

	trades := extractTrades(dates, closes, positions)
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if !trades[0].EntryDate.Equal(dates[2]) {
		t.Errorf("EntryDate = %v, want %v", trades[0].EntryDate, dates[2])
	}
}

func TestExtractTrades_NoPositions(t *testing.T) {
	positions := []core.Side{core.SideNone, core.SideFlat, core.SideFlat}
	dates, closes := tradeFixture(positions)

	if trades := extractTrades(dates, closes, positions); len(trades) != 0 {
		t.Errorf("expected no trades, got %d", len(trades))
	}
}

// TestExtractTrades_PairingInvariants checks on random position series that
// closed trades match long-to-flat transitions exactly, and that the open
// trade count at the end follows from the final position.
func TestExtractTrades_PairingInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(80)
		positions := make([]core.Side, n)
		for i := range positions {
			switch rng.Intn(3) {
			case 0:
				positions[i] = core.SideNone
			case 1:
				positions[i] = core.SideFlat
			default:
				positions[i] = core.SideLong
			}
		}
		// Undefined entries only occur as a prefix in practice, but the
		// extractor should hold its invariants regardless.

		dates, closes := tradeFixture(positions)
		trades := extractTrades(dates, closes, positions)

		exits := 0
		long := false
		for _, p := range positions {
			switch p {
			case core.SideLong:
				long = true
			case core.SideFlat:
				if long {
					exits++
				}
				long = false
			}
		}

		closed, open := 0, 0
		for _, tr := range trades {
			if tr.IsClosed() {
				closed++
			} else {
				open++
			}
		}

		if closed != exits {
			t.Errorf("trial %d: closed trades %d != long-to-flat transitions %d", trial, closed, exits)
		}
		if long && open != 1 {
			t.Errorf("trial %d: ended long but %d open trades", trial, open)
		}
		if !long && open != 0 {
			t.Errorf("trial %d: ended flat/undefined but %d open trades", trial, open)
		}

		// Chronological, non-overlapping entries.
		for i := 1; i < len(trades); i++ {
			if !trades[i].EntryDate.After(*trades[i-1].ExitDate) {
				t.Errorf("trial %d: trade %d entry %v not after previous exit %v",
					trial, i, trades[i].EntryDate, *trades[i-1].ExitDate)
			}
		}
	}
}

func TestTrade_RealizedReturn(t *testing.T) {
	exit := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	trade := Trade{
		Side:       core.SideLong,
		EntryDate:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		EntryPrice: 100,
		ExitDate:   &exit,
		ExitPrice:  110,
	}

	ret, ok := trade.RealizedReturn()
	if !ok {
		t.Fatal("expected realized return for closed trade")
	}
	if !almostEqual(ret, 0.1) {
		t.Errorf("RealizedReturn() = %v, want 0.1", ret)
	}
	if !trade.IsWin() {
		t.Error("expected winning trade")
	}

	trade.ExitPrice = 90
	if trade.IsWin() {
		t.Error("losing trade reported as win")
	}
}
