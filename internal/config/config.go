package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newthinker/crossover/internal/backtest"
	"github.com/newthinker/crossover/internal/core"
)

type Config struct {
	Backtest BacktestConfig `mapstructure:"backtest"`
	Provider ProviderConfig `mapstructure:"provider"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Render   RenderConfig   `mapstructure:"render"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// BacktestConfig holds the engine parameters.
type BacktestConfig struct {
	ShortWindow   int     `mapstructure:"short_window"`
	LongWindow    int     `mapstructure:"long_window"`
	InitialEquity float64 `mapstructure:"initial_equity"`
}

// ProviderConfig selects and tunes the price-history source.
type ProviderConfig struct {
	Type       string        `mapstructure:"type"` // "yahoo" or "csv"
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	CSVPath    string        `mapstructure:"csv_path"`
}

type StorageConfig struct {
	Tradelog TradelogConfig `mapstructure:"tradelog"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
}

// TradelogConfig holds the SQLite trade-log settings.
type TradelogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ArchiveConfig selects the cold-storage backend for equity curves.
type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "none", "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// RenderConfig holds the equity-chart output settings.
type RenderConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MetricsConfig holds run-metrics export settings. A backtest is a one-shot
// process, so metrics go to a textfile for node-exporter style collection
// instead of a scrape endpoint.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Backtest: BacktestConfig{
			ShortWindow:   backtest.DefaultShortWindow,
			LongWindow:    backtest.DefaultLongWindow,
			InitialEquity: 1.0,
		},
		Provider: ProviderConfig{
			Type:       "yahoo",
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Storage: StorageConfig{
			Tradelog: TradelogConfig{
				Enabled: true,
				Path:    "trades.db",
			},
			Archive: ArchiveConfig{
				Type: "none",
			},
		},
		Render: RenderConfig{
			Enabled: true,
			Path:    "equity.html",
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	engineCfg := backtest.Config{
		ShortWindow:   c.Backtest.ShortWindow,
		LongWindow:    c.Backtest.LongWindow,
		InitialEquity: c.Backtest.InitialEquity,
	}
	if err := engineCfg.Validate(); err != nil {
		return err
	}

	switch c.Provider.Type {
	case "yahoo":
	case "csv":
		if c.Provider.CSVPath == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("provider.csv_path required when provider is csv"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown provider type %q", c.Provider.Type))
	}

	if c.Provider.MaxRetries < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_retries cannot be negative, got %d", c.Provider.MaxRetries))
	}

	switch c.Storage.Archive.Type {
	case "", "none":
	case "localfs":
		if c.Storage.Archive.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("archive.path required when archive is localfs"))
		}
	case "s3":
		if c.Storage.Archive.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("archive.s3.bucket required when archive is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive type %q", c.Storage.Archive.Type))
	}

	if c.Storage.Tradelog.Enabled && c.Storage.Tradelog.Path == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("tradelog.path required when tradelog is enabled"))
	}
	if c.Render.Enabled && c.Render.Path == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("render.path required when rendering is enabled"))
	}
	if c.Metrics.Enabled && c.Metrics.Textfile == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("metrics.textfile required when metrics are enabled"))
	}

	return nil
}
