// Package app wires the backtest pipeline together: fetch prices, run the
// engine, then fan the result out to the configured sinks.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/newthinker/crossover/internal/backtest"
	"github.com/newthinker/crossover/internal/config"
	"github.com/newthinker/crossover/internal/core"
	"github.com/newthinker/crossover/internal/metrics"
	"github.com/newthinker/crossover/internal/provider"
	"github.com/newthinker/crossover/internal/provider/csvfile"
	"github.com/newthinker/crossover/internal/provider/yahoo"
	"github.com/newthinker/crossover/internal/render"
	"github.com/newthinker/crossover/internal/storage/archive"
	"github.com/newthinker/crossover/internal/storage/tradelog"
)

// RunRequest identifies one backtest: the symbol and the date range to
// evaluate.
type RunRequest struct {
	Symbol string
	Start  time.Time
	End    time.Time
}

// RunOutput reports where a finished run landed.
type RunOutput struct {
	RunID      string
	Result     *backtest.Result
	ChartPath  string // empty if rendering is disabled
	ArchiveKey string // empty if archiving is disabled
}

// App is the application orchestrator.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	provider provider.PriceProvider
	store    tradelog.Store
	archive  archive.Archive
	registry *metrics.Registry
}

// New builds an App from validated configuration.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	p, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		provider: p,
	}

	if cfg.Storage.Tradelog.Enabled {
		store, err := tradelog.NewSQLiteStore(cfg.Storage.Tradelog.Path)
		if err != nil {
			return nil, err
		}
		a.store = store
	}

	a.archive, err = buildArchive(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.registry = metrics.NewRegistry()
	}

	return a, nil
}

func buildProvider(cfg *config.Config) (provider.PriceProvider, error) {
	switch cfg.Provider.Type {
	case "yahoo":
		return yahoo.New(cfg.Provider.Timeout, cfg.Provider.MaxRetries), nil
	case "csv":
		return csvfile.New(cfg.Provider.CSVPath), nil
	default:
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown provider type %q", cfg.Provider.Type))
	}
}

func buildArchive(cfg *config.Config) (archive.Archive, error) {
	switch cfg.Storage.Archive.Type {
	case "", "none":
		return nil, nil
	case "localfs":
		return archive.NewLocalFS(cfg.Storage.Archive.Path)
	case "s3":
		s3cfg := cfg.Storage.Archive.S3
		return archive.NewS3(archive.S3Config{
			Bucket:    s3cfg.Bucket,
			Endpoint:  s3cfg.Endpoint,
			Region:    s3cfg.Region,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
			Prefix:    s3cfg.Prefix,
		})
	default:
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive type %q", cfg.Storage.Archive.Type))
	}
}

// Run executes one backtest end to end. Sink failures do not void the
// computation: the output is returned alongside the first sink error.
func (a *App) Run(ctx context.Context, req RunRequest) (*RunOutput, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	started := time.Now()

	a.logger.Info("fetching price history",
		zap.String("symbol", req.Symbol),
		zap.Time("start", req.Start),
		zap.Time("end", req.End),
	)

	points, err := a.provider.FetchDaily(ctx, req.Symbol, req.Start, req.End)
	if err != nil {
		a.recordFailure()
		return nil, err
	}

	result, err := backtest.Run(backtest.Config{
		Symbol:        req.Symbol,
		ShortWindow:   a.cfg.Backtest.ShortWindow,
		LongWindow:    a.cfg.Backtest.LongWindow,
		InitialEquity: a.cfg.Backtest.InitialEquity,
	}, points)
	if err != nil {
		a.recordFailure()
		return nil, err
	}

	out := &RunOutput{
		RunID:  uuid.NewString(),
		Result: result,
	}

	a.logger.Info("backtest finished",
		zap.String("run_id", out.RunID),
		zap.Int("bars", result.Len()),
		zap.Int("trades", result.Stats.TotalTrades),
		zap.Float64("final_equity", result.Stats.FinalEquity),
	)

	sinkErr := a.dispatch(ctx, out)

	if a.registry != nil {
		a.registry.RecordRun(result, time.Since(started).Seconds())
		if err := a.registry.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.logger.Error("metrics textfile write failed", zap.Error(err))
			if sinkErr == nil {
				sinkErr = err
			}
		}
	}

	return out, sinkErr
}

// dispatch fans the result out to the enabled sinks, logging each failure
// and returning the first one.
func (a *App) dispatch(ctx context.Context, out *RunOutput) error {
	var firstErr error
	fail := func(sink string, err error) {
		a.logger.Error("sink failed",
			zap.String("sink", sink),
			zap.String("run_id", out.RunID),
			zap.Error(err),
		)
		if firstErr == nil {
			firstErr = err
		}
	}

	if a.store != nil {
		if err := a.store.SaveRun(ctx, out.RunID, time.Now(), out.Result); err != nil {
			fail("tradelog", err)
		}
	}

	if a.archive != nil {
		key, err := archive.WriteEquityCurve(ctx, a.archive, out.RunID, out.Result)
		if err != nil {
			fail("archive", err)
		} else {
			out.ArchiveKey = key
		}
	}

	if a.cfg.Render.Enabled {
		if err := render.WriteHTML(out.Result, a.cfg.Render.Path); err != nil {
			fail("render", err)
		} else {
			out.ChartPath = a.cfg.Render.Path
		}
	}

	return firstErr
}

func (a *App) recordFailure() {
	if a.registry == nil {
		return
	}
	a.registry.RecordFailure()
	if err := a.registry.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Error("metrics textfile write failed", zap.Error(err))
	}
}

func validateRequest(req RunRequest) error {
	if req.Symbol == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("symbol required"))
	}
	if !req.Start.Before(req.End) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("start %s is not before end %s",
				req.Start.Format("2006-01-02"), req.End.Format("2006-01-02")))
	}
	return nil
}

// Close releases sink resources.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
