// Package metrics exposes run statistics as Prometheus metrics. The process
// is one-shot, so instead of serving a scrape endpoint it writes the metrics
// to a textfile for the node_exporter textfile collector.
package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/newthinker/crossover/internal/backtest"
	"github.com/newthinker/crossover/internal/core"
)

// Registry holds the Prometheus metrics of a single run.
type Registry struct {
	*prometheus.Registry

	barsProcessed   *prometheus.GaugeVec
	tradesTotal     *prometheus.GaugeVec
	finalEquity     *prometheus.GaugeVec
	benchmarkEquity *prometheus.GaugeVec
	maxDrawdown     *prometheus.GaugeVec
	runDuration     *prometheus.GaugeVec
	runsTotal       *prometheus.CounterVec
}

// NewRegistry creates a registry with all run metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		Registry: reg,

		barsProcessed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crossover_bars_processed",
				Help: "Number of daily bars in the last run",
			},
			[]string{"symbol"},
		),
		tradesTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crossover_trades_total",
				Help: "Number of trades extracted in the last run",
			},
			[]string{"symbol"},
		),
		finalEquity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crossover_final_equity",
				Help: "Final strategy equity of the last run",
			},
			[]string{"symbol"},
		),
		benchmarkEquity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crossover_benchmark_equity",
				Help: "Final buy-and-hold equity of the last run",
			},
			[]string{"symbol"},
		),
		maxDrawdown: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crossover_max_drawdown",
				Help: "Maximum strategy drawdown of the last run",
			},
			[]string{"symbol"},
		),
		runDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crossover_run_duration_seconds",
				Help: "Wall-clock duration of the last run",
			},
			[]string{"symbol"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossover_runs_total",
				Help: "Completed runs by status",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(r.barsProcessed)
	reg.MustRegister(r.tradesTotal)
	reg.MustRegister(r.finalEquity)
	reg.MustRegister(r.benchmarkEquity)
	reg.MustRegister(r.maxDrawdown)
	reg.MustRegister(r.runDuration)
	reg.MustRegister(r.runsTotal)

	return r
}

// RecordRun records the outcome of a finished backtest.
func (r *Registry) RecordRun(result *backtest.Result, duration float64) {
	symbol := result.Symbol

	r.barsProcessed.WithLabelValues(symbol).Set(float64(result.Len()))
	r.tradesTotal.WithLabelValues(symbol).Set(float64(result.Stats.TotalTrades))
	r.runDuration.WithLabelValues(symbol).Set(duration)
	r.runsTotal.WithLabelValues("ok").Inc()

	// Gauges hold no NaN: an undefined stat is simply not exported.
	if !math.IsNaN(result.Stats.FinalEquity) {
		r.finalEquity.WithLabelValues(symbol).Set(result.Stats.FinalEquity)
	}
	if !math.IsNaN(result.Stats.BenchmarkFinal) {
		r.benchmarkEquity.WithLabelValues(symbol).Set(result.Stats.BenchmarkFinal)
	}
	if !math.IsNaN(result.Stats.MaxDrawdown) {
		r.maxDrawdown.WithLabelValues(symbol).Set(result.Stats.MaxDrawdown)
	}
}

// RecordFailure counts a run that ended in a fault.
func (r *Registry) RecordFailure() {
	r.runsTotal.WithLabelValues("error").Inc()
}

// WriteTextfile exports the registry in the node_exporter textfile format.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return core.WrapError(core.ErrSinkFailed, err)
	}
	return nil
}
