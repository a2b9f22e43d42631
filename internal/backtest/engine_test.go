package backtest

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/newthinker/crossover/internal/core"
)

// series builds a daily price series from closes, one bar per calendar day.
func series(closes ...float64) []core.PricePoint {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]core.PricePoint, len(closes))
	for i, c := range closes {
		points[i] = core.PricePoint{Date: base.AddDate(0, 0, i), Close: c}
	}
	return points
}

func testConfig() Config {
	return Config{Symbol: "TEST", ShortWindow: 3, LongWindow: 5, InitialEquity: 1.0}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"valid", Config{ShortWindow: 20, LongWindow: 50, InitialEquity: 1}, true},
		{"valid minimal windows", Config{ShortWindow: 1, LongWindow: 2, InitialEquity: 1}, true},
		{"short window zero", Config{ShortWindow: 0, LongWindow: 50, InitialEquity: 1}, false},
		{"long window zero", Config{ShortWindow: 20, LongWindow: 0, InitialEquity: 1}, false},
		{"short equals long", Config{ShortWindow: 50, LongWindow: 50, InitialEquity: 1}, false},
		{"short above long", Config{ShortWindow: 50, LongWindow: 20, InitialEquity: 1}, false},
		{"zero equity", Config{ShortWindow: 20, LongWindow: 50, InitialEquity: 0}, false},
		{"negative equity", Config{ShortWindow: 20, LongWindow: 50, InitialEquity: -5}, false},
	}

	for _, tt := range tests {
		err := tt.cfg.Validate()
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("%s: expected error", tt.name)
			} else if !errors.Is(err, core.ErrConfigInvalid) {
				t.Errorf("%s: expected ErrConfigInvalid, got %v", tt.name, err)
			}
		}
	}
}

func TestRun_CrossoverScenario(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 12, 14, 16, 18, 20, 9, 9, 9, 9, 9}
	res, err := Run(testConfig(), series(closes...))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Len() != len(closes) {
		t.Fatalf("Len() = %d, want %d", res.Len(), len(closes))
	}

	// Signals are undefined until both windows fill (index 4), then:
	// tie at index 4 (both SMAs 10) is flat, the rising closes push the
	// short SMA above the long from index 5 through 10, and the collapse
	// to 9 flips it back to flat from index 11 on.
	wantSignals := []core.Side{
		core.SideNone, core.SideNone, core.SideNone, core.SideNone,
		core.SideFlat,
		core.SideLong, core.SideLong, core.SideLong, core.SideLong, core.SideLong, core.SideLong,
		core.SideFlat, core.SideFlat, core.SideFlat, core.SideFlat,
	}
	if !reflect.DeepEqual(res.Signals, wantSignals) {
		t.Errorf("Signals = %v\nwant      %v", res.Signals, wantSignals)
	}

	// Positions lag signals by exactly one index.
	for i := 1; i < res.Len(); i++ {
		if res.Positions[i] != res.Signals[i-1] {
			t.Errorf("Positions[%d] = %v, want Signals[%d] = %v",
				i, res.Positions[i], i-1, res.Signals[i-1])
		}
	}
	if res.Positions[0] != core.SideNone {
		t.Errorf("Positions[0] = %v, want none", res.Positions[0])
	}

	// One round trip: enter at index 6 (first long position bar), exit at
	// index 12 (first flat position bar after the long stretch).
	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	trade := res.Trades[0]
	if !trade.EntryDate.Equal(res.Dates[6]) || trade.EntryPrice != 14 {
		t.Errorf("entry = %v @ %v, want %v @ 14", trade.EntryDate, trade.EntryPrice, res.Dates[6])
	}
	if !trade.IsClosed() || !trade.ExitDate.Equal(res.Dates[12]) || trade.ExitPrice != 9 {
		t.Errorf("exit = %v @ %v, want %v @ 9", trade.ExitDate, trade.ExitPrice, res.Dates[12])
	}

	// Strategy equity is seeded 1.0 at the first defined position (index 5),
	// tracks the benchmark's daily returns through the long stretch, and is
	// constant through flat stretches.
	if !almostEqual(res.StrategyEquity[5], 1.0) {
		t.Errorf("StrategyEquity[5] = %v, want 1.0", res.StrategyEquity[5])
	}
	for i := 6; i <= 11; i++ {
		strategyGrowth := res.StrategyEquity[i] / res.StrategyEquity[i-1]
		benchmarkGrowth := res.BenchmarkEquity[i] / res.BenchmarkEquity[i-1]
		if !almostEqual(strategyGrowth, benchmarkGrowth) {
			t.Errorf("bar %d: strategy growth %v != benchmark growth %v while long",
				i, strategyGrowth, benchmarkGrowth)
		}
	}
	for i := 13; i < res.Len(); i++ {
		if !almostEqual(res.StrategyEquity[i], res.StrategyEquity[12]) {
			t.Errorf("StrategyEquity[%d] = %v, want constant %v while flat",
				i, res.StrategyEquity[i], res.StrategyEquity[12])
		}
	}
	if !almostEqual(res.StrategyEquity[14], 0.75) {
		t.Errorf("final strategy equity = %v, want 0.75", res.StrategyEquity[14])
	}
	if !almostEqual(res.BenchmarkEquity[14], 0.9) {
		t.Errorf("final benchmark equity = %v, want 0.9", res.BenchmarkEquity[14])
	}
}

func TestRun_ConstantCloses(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 42
	}
	res, err := Run(testConfig(), series(closes...))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for i := 1; i < res.Len(); i++ {
		if res.Returns[i] != 0 {
			t.Errorf("Returns[%d] = %v, want 0", i, res.Returns[i])
		}
		if !almostEqual(res.BenchmarkEquity[i], 1.0) {
			t.Errorf("BenchmarkEquity[%d] = %v, want 1.0", i, res.BenchmarkEquity[i])
		}
	}

	// Equal SMAs are a tie, which is flat: no trades, flat equity.
	if len(res.Trades) != 0 {
		t.Errorf("expected no trades, got %d", len(res.Trades))
	}
	for i := res.FirstPositionIndex(); i < res.Len(); i++ {
		if res.Positions[i] != core.SideFlat {
			t.Errorf("Positions[%d] = %v, want flat on SMA tie", i, res.Positions[i])
		}
		if !almostEqual(res.StrategyEquity[i], 1.0) {
			t.Errorf("StrategyEquity[%d] = %v, want 1.0", i, res.StrategyEquity[i])
		}
	}
}

func TestRun_SinglePoint(t *testing.T) {
	cfg := Config{Symbol: "TEST", ShortWindow: 20, LongWindow: 50, InitialEquity: 1.0}
	res, err := Run(cfg, series(100))
	if err != nil {
		t.Fatalf("a series shorter than the window is empty output, not an error: %v", err)
	}

	if !math.IsNaN(res.ShortSMA[0]) || !math.IsNaN(res.LongSMA[0]) {
		t.Error("expected undefined SMAs")
	}
	if res.Signals[0] != core.SideNone || res.Positions[0] != core.SideNone {
		t.Error("expected undefined signal and position")
	}
	if len(res.Trades) != 0 {
		t.Errorf("expected no trades, got %d", len(res.Trades))
	}
	if !math.IsNaN(res.StrategyEquity[0]) {
		t.Errorf("expected undefined strategy equity, got %v", res.StrategyEquity[0])
	}
	if res.BenchmarkEquity[0] != 1.0 {
		t.Errorf("BenchmarkEquity[0] = %v, want 1.0", res.BenchmarkEquity[0])
	}
	if res.FirstPositionIndex() != -1 {
		t.Errorf("FirstPositionIndex() = %d, want -1", res.FirstPositionIndex())
	}
}

func TestRun_EmptySeries(t *testing.T) {
	res, err := Run(testConfig(), nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Len() != 0 || len(res.Trades) != 0 {
		t.Error("expected empty result")
	}
}

// TestRun_NoLookAhead mutates the close of one bar and verifies positions up
// to and including that bar are unaffected: a decision made on day d's close
// can only influence day d+1 onward.
func TestRun_NoLookAhead(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 12, 14, 16, 18, 20, 9, 9, 9, 9, 9}

	base, err := Run(testConfig(), series(closes...))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for d := 0; d < len(closes); d++ {
		mutated := make([]float64, len(closes))
		copy(mutated, closes)
		mutated[d] *= 3

		got, err := Run(testConfig(), series(mutated...))
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		for i := 0; i <= d; i++ {
			if got.Positions[i] != base.Positions[i] {
				t.Errorf("mutating close[%d] changed Positions[%d]: %v -> %v",
					d, i, base.Positions[i], got.Positions[i])
			}
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 12, 14, 16, 18, 20, 9, 9, 9, 9, 9}

	first, err := Run(testConfig(), series(closes...))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	second, err := Run(testConfig(), series(closes...))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// NaN != NaN, so compare the float series via bit patterns.
	if !reflect.DeepEqual(floatBits(first.StrategyEquity), floatBits(second.StrategyEquity)) {
		t.Error("strategy equity not bit-identical across runs")
	}
	if !reflect.DeepEqual(floatBits(first.BenchmarkEquity), floatBits(second.BenchmarkEquity)) {
		t.Error("benchmark equity not bit-identical across runs")
	}
	if !reflect.DeepEqual(first.Signals, second.Signals) ||
		!reflect.DeepEqual(first.Positions, second.Positions) ||
		!reflect.DeepEqual(first.Trades, second.Trades) {
		t.Error("derived series not identical across runs")
	}
}

func floatBits(values []float64) []uint64 {
	bits := make([]uint64, len(values))
	for i, v := range values {
		bits[i] = math.Float64bits(v)
	}
	return bits
}

func TestRun_DataIntegrity(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("non-positive close", func(t *testing.T) {
		points := series(10, 11, 12)
		points[1].Close = 0
		_, err := Run(testConfig(), points)
		if !errors.Is(err, core.ErrDataIntegrity) {
			t.Errorf("expected ErrDataIntegrity, got %v", err)
		}
	})

	t.Run("negative close", func(t *testing.T) {
		points := series(10, 11, 12)
		points[2].Close = -4
		_, err := Run(testConfig(), points)
		if !errors.Is(err, core.ErrDataIntegrity) {
			t.Errorf("expected ErrDataIntegrity, got %v", err)
		}
	})

	t.Run("NaN close", func(t *testing.T) {
		points := series(10, 11, 12)
		points[1].Close = math.NaN()
		_, err := Run(testConfig(), points)
		if !errors.Is(err, core.ErrDataIntegrity) {
			t.Errorf("expected ErrDataIntegrity, got %v", err)
		}
	})

	t.Run("duplicate date", func(t *testing.T) {
		points := []core.PricePoint{
			{Date: base, Close: 10},
			{Date: base, Close: 11},
		}
		_, err := Run(testConfig(), points)
		if !errors.Is(err, core.ErrDataIntegrity) {
			t.Errorf("expected ErrDataIntegrity, got %v", err)
		}
	})

	t.Run("dates out of order", func(t *testing.T) {
		points := []core.PricePoint{
			{Date: base.AddDate(0, 0, 1), Close: 10},
			{Date: base, Close: 11},
		}
		_, err := Run(testConfig(), points)
		if !errors.Is(err, core.ErrDataIntegrity) {
			t.Errorf("expected ErrDataIntegrity, got %v", err)
		}
	})
}

// TestRun_FlatStretchesConstantEquity checks on random walks that strategy
// equity never moves across any contiguous flat stretch.
func TestRun_FlatStretchesConstantEquity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		closes := make([]float64, 120)
		price := 100.0
		for i := range closes {
			price *= 1 + (rng.Float64()-0.5)*0.06
			closes[i] = price
		}

		res, err := Run(testConfig(), series(closes...))
		if err != nil {
			t.Fatalf("trial %d: Run() error = %v", trial, err)
		}

		start := res.FirstPositionIndex()
		if start < 0 {
			continue
		}
		for i := start + 1; i < res.Len(); i++ {
			if res.Positions[i] == core.SideFlat && !math.IsNaN(res.StrategyEquity[i-1]) {
				if !almostEqual(res.StrategyEquity[i], res.StrategyEquity[i-1]) {
					t.Errorf("trial %d bar %d: equity moved while flat: %v -> %v",
						trial, i, res.StrategyEquity[i-1], res.StrategyEquity[i])
				}
			}
		}
	}
}
