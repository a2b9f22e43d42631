// Package tradelog persists backtest runs to a local SQLite database: one
// summary row per run plus the full trade list, per-bar series and equity
// curve, so past runs can be inspected and compared offline.
package tradelog

import (
	"context"
	"database/sql"
	"math"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/newthinker/crossover/internal/backtest"
	"github.com/newthinker/crossover/internal/core"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// Store records completed backtest runs.
type Store interface {
	// SaveRun persists a run and all of its derived series atomically.
	SaveRun(ctx context.Context, runID string, createdAt time.Time, result *backtest.Result) error

	// ListRuns returns summaries of stored runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// LoadTrades returns the trades of a stored run in entry order.
	LoadTrades(ctx context.Context, runID string) ([]backtest.Trade, error)

	Close() error
}

// RunSummary is the per-run header row. Undefined statistics load as NaN.
type RunSummary struct {
	ID            string
	Symbol        string
	ShortWindow   int
	LongWindow    int
	StartDate     time.Time
	EndDate       time.Time
	InitialEquity float64
	FinalEquity   float64
	TotalReturn   float64
	SharpeRatio   float64
	MaxDrawdown   float64
	TotalTrades   int
	WinRate       float64
	CreatedAt     time.Time
}

const dateFormat = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	symbol          TEXT NOT NULL,
	short_window    INTEGER NOT NULL,
	long_window     INTEGER NOT NULL,
	start_date      TEXT NOT NULL,
	end_date        TEXT NOT NULL,
	initial_equity  REAL NOT NULL,
	final_equity    REAL,
	benchmark_final REAL,
	total_return    REAL,
	sharpe_ratio    REAL,
	max_drawdown    REAL,
	total_trades    INTEGER NOT NULL,
	win_rate        REAL,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	seq             INTEGER NOT NULL,
	side            TEXT NOT NULL,
	entry_date      TEXT NOT NULL,
	entry_price     REAL NOT NULL,
	exit_date       TEXT,
	exit_price      REAL,
	realized_return REAL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS bars (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	seq      INTEGER NOT NULL,
	date     TEXT NOT NULL,
	close    REAL NOT NULL,
	ret      REAL,
	signal   TEXT NOT NULL,
	position TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS equity_curve (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	seq              INTEGER NOT NULL,
	date             TEXT NOT NULL,
	strategy_equity  REAL,
	benchmark_equity REAL,
	PRIMARY KEY (run_id, seq)
);
`

// SQLiteStore implements Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, core.WrapError(core.ErrSinkFailed, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrSinkFailed, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun persists the run header, trades, bars and equity curve in a single
// transaction. Undefined values (NaN) are stored as NULL.
func (s *SQLiteStore) SaveRun(ctx context.Context, runID string, createdAt time.Time, result *backtest.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}
	defer tx.Rollback()

	if err := insertRun(ctx, tx, runID, createdAt, result); err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}
	if err := insertTrades(ctx, tx, runID, result.Trades); err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}
	if err := insertBars(ctx, tx, runID, result); err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}
	if err := insertEquityCurve(ctx, tx, runID, result); err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}
	return nil
}

func insertRun(ctx context.Context, tx *sql.Tx, runID string, createdAt time.Time, result *backtest.Result) error {
	var startDate, endDate string
	if n := result.Len(); n > 0 {
		startDate = result.Dates[0].Format(dateFormat)
		endDate = result.Dates[n-1].Format(dateFormat)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, symbol, short_window, long_window, start_date,
			end_date, initial_equity, final_equity, benchmark_final,
			total_return, sharpe_ratio, max_drawdown, total_trades, win_rate,
			created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, result.Symbol, result.ShortWindow, result.LongWindow,
		startDate, endDate, result.InitialEquity,
		nullFloat(result.Stats.FinalEquity),
		nullFloat(result.Stats.BenchmarkFinal),
		nullFloat(result.Stats.TotalReturn),
		nullFloat(result.Stats.SharpeRatio),
		nullFloat(result.Stats.MaxDrawdown),
		result.Stats.TotalTrades,
		nullFloat(result.Stats.WinRate),
		createdAt.UTC().Format(time.RFC3339))
	return err
}

func insertTrades(ctx context.Context, tx *sql.Tx, runID string, trades []backtest.Trade) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, seq, side, entry_date, entry_price,
			exit_date, exit_price, realized_return)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, tr := range trades {
		var exitDate sql.NullString
		var exitPrice, realized sql.NullFloat64
		if tr.IsClosed() {
			exitDate = sql.NullString{String: tr.ExitDate.Format(dateFormat), Valid: true}
			exitPrice = sql.NullFloat64{Float64: tr.ExitPrice, Valid: true}
			if r, ok := tr.RealizedReturn(); ok {
				realized = sql.NullFloat64{Float64: r, Valid: true}
			}
		}
		_, err := stmt.ExecContext(ctx, runID, i, string(tr.Side),
			tr.EntryDate.Format(dateFormat), tr.EntryPrice,
			exitDate, exitPrice, realized)
		if err != nil {
			return err
		}
	}
	return nil
}

func insertBars(ctx context.Context, tx *sql.Tx, runID string, result *backtest.Result) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (run_id, seq, date, close, ret, signal, position)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < result.Len(); i++ {
		_, err := stmt.ExecContext(ctx, runID, i,
			result.Dates[i].Format(dateFormat), result.Closes[i],
			nullFloat(result.Returns[i]),
			string(result.Signals[i]), string(result.Positions[i]))
		if err != nil {
			return err
		}
	}
	return nil
}

func insertEquityCurve(ctx context.Context, tx *sql.Tx, runID string, result *backtest.Result) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO equity_curve (run_id, seq, date, strategy_equity,
			benchmark_equity)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < result.Len(); i++ {
		_, err := stmt.ExecContext(ctx, runID, i,
			result.Dates[i].Format(dateFormat),
			nullFloat(result.StrategyEquity[i]),
			nullFloat(result.BenchmarkEquity[i]))
		if err != nil {
			return err
		}
	}
	return nil
}

// ListRuns returns run summaries, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, short_window, long_window, start_date, end_date,
			initial_equity, final_equity, total_return, sharpe_ratio,
			max_drawdown, total_trades, win_rate, created_at
		FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, core.WrapError(core.ErrSinkFailed, err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		var startDate, endDate, createdAt string
		var finalEquity, totalReturn, sharpe, maxDD, winRate sql.NullFloat64
		err := rows.Scan(&r.ID, &r.Symbol, &r.ShortWindow, &r.LongWindow,
			&startDate, &endDate, &r.InitialEquity, &finalEquity,
			&totalReturn, &sharpe, &maxDD, &r.TotalTrades, &winRate,
			&createdAt)
		if err != nil {
			return nil, core.WrapError(core.ErrSinkFailed, err)
		}
		r.StartDate, _ = time.Parse(dateFormat, startDate)
		r.EndDate, _ = time.Parse(dateFormat, endDate)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		r.FinalEquity = floatOrNaN(finalEquity)
		r.TotalReturn = floatOrNaN(totalReturn)
		r.SharpeRatio = floatOrNaN(sharpe)
		r.MaxDrawdown = floatOrNaN(maxDD)
		r.WinRate = floatOrNaN(winRate)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrSinkFailed, err)
	}
	return runs, nil
}

// LoadTrades returns the trades of a stored run in entry order.
func (s *SQLiteStore) LoadTrades(ctx context.Context, runID string) ([]backtest.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT side, entry_date, entry_price, exit_date, exit_price
		FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, core.WrapError(core.ErrSinkFailed, err)
	}
	defer rows.Close()

	var trades []backtest.Trade
	for rows.Next() {
		var tr backtest.Trade
		var side, entryDate string
		var exitDate sql.NullString
		var exitPrice sql.NullFloat64
		if err := rows.Scan(&side, &entryDate, &tr.EntryPrice, &exitDate, &exitPrice); err != nil {
			return nil, core.WrapError(core.ErrSinkFailed, err)
		}
		tr.Side = core.Side(side)
		tr.EntryDate, _ = time.Parse(dateFormat, entryDate)
		if exitDate.Valid {
			d, _ := time.Parse(dateFormat, exitDate.String)
			tr.ExitDate = &d
			tr.ExitPrice = exitPrice.Float64
		}
		trades = append(trades, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrSinkFailed, err)
	}
	return trades, nil
}

// nullFloat maps NaN to NULL so undefined values round-trip cleanly.
func nullFloat(f float64) sql.NullFloat64 {
	if math.IsNaN(f) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}

func floatOrNaN(f sql.NullFloat64) float64 {
	if !f.Valid {
		return math.NaN()
	}
	return f.Float64
}
