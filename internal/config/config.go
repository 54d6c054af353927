package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/fx"
	"github.com/newthinker/portsim/internal/portfolio"
	"github.com/newthinker/portsim/internal/schedule"
	"github.com/newthinker/portsim/internal/storage/archive"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Runner     RunnerConfig     `mapstructure:"runner"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

// SimulationConfig holds engine policy and request defaults.
type SimulationConfig struct {
	ReportingCurrency  string  `mapstructure:"reporting_currency"`
	CommissionRate     float64 `mapstructure:"commission_rate"`
	RebalanceCadence   string  `mapstructure:"rebalance_cadence"`
	DelistingGraceDays int     `mapstructure:"delisting_grace_days"`
	RebalanceThreshold float64 `mapstructure:"rebalance_threshold"`
	FxLookbackDays     int     `mapstructure:"fx_lookback_days"`
}

// FeedConfig selects where price and rate history comes from.
type FeedConfig struct {
	Provider      string        `mapstructure:"provider"`       // "yahoo", "eastmoney", "csv" or "sqlite"
	RatesProvider string        `mapstructure:"rates_provider"` // defaults to provider, or yahoo for price-only feeds
	Timeout       time.Duration `mapstructure:"timeout"`
	BaseURL       string        `mapstructure:"base_url"`
	CSVDir        string        `mapstructure:"csv_dir"`
	SQLiteDSN     string        `mapstructure:"sqlite_dsn"`
	Concurrency   int           `mapstructure:"concurrency"`
}

type CacheConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	PoolSize   int           `mapstructure:"pool_size"`
	MaxRetries int           `mapstructure:"max_retries"`
	TLSEnabled bool          `mapstructure:"tls_enabled"`
	TTL        time.Duration `mapstructure:"ttl"`
}

type RunnerConfig struct {
	Workers    int           `mapstructure:"workers"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
}

type ArchiveConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Type    string   `mapstructure:"type"` // "localfs" or "s3"
	Path    string   `mapstructure:"path"` // For localfs
	S3      S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Path     string `mapstructure:"path"`
	Textfile string `mapstructure:"textfile"`
}

// Load reads configuration from file over Defaults. Keys can be
// overridden from the environment as PORTSIM_SECTION_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.SetEnvPrefix("PORTSIM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("reading config: %w", err))
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
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unmarshaling config: %w", err))
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	engine := portfolio.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Simulation: SimulationConfig{
			ReportingCurrency:  fx.USD,
			RebalanceCadence:   "none",
			DelistingGraceDays: engine.DelistingGraceDays,
			RebalanceThreshold: engine.RebalanceThreshold,
			FxLookbackDays:     engine.FxLookbackDays,
		},
		Feed: FeedConfig{
			Provider:    "yahoo",
			Timeout:     10 * time.Second,
			CSVDir:      "data",
			SQLiteDSN:   "portsim.db",
			Concurrency: 8,
		},
		Cache: CacheConfig{
			Redis: RedisConfig{
				Addr: "localhost:6379",
				TTL:  24 * time.Hour,
			},
		},
		Runner: RunnerConfig{
			Workers:    4,
			JobTimeout: 5 * time.Minute,
		},
		Archive: ArchiveConfig{
			Type: "localfs",
			Path: "archive",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	// Simulation validation
	if _, err := fx.Normalize(c.Simulation.ReportingCurrency); err != nil {
		return err
	}
	if c.Simulation.CommissionRate < 0 || c.Simulation.CommissionRate >= 0.1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("commission_rate must be in [0, 0.1), got %f", c.Simulation.CommissionRate))
	}
	if _, err := schedule.ParseCadence(c.Simulation.RebalanceCadence); err != nil {
		return err
	}
	if c.Simulation.DelistingGraceDays < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("delisting_grace_days cannot be negative, got %d", c.Simulation.DelistingGraceDays))
	}
	if c.Simulation.RebalanceThreshold < 0 || c.Simulation.RebalanceThreshold >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("rebalance_threshold must be in [0, 1), got %f", c.Simulation.RebalanceThreshold))
	}
	if c.Simulation.FxLookbackDays < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fx_lookback_days cannot be negative, got %d", c.Simulation.FxLookbackDays))
	}

	// Feed validation - the chosen providers need their source
	if err := c.Feed.validateProvider("provider", c.Feed.Provider); err != nil {
		return err
	}
	if c.Feed.RatesProvider != "" {
		if c.Feed.RatesProvider == "eastmoney" {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("eastmoney serves no exchange rates"))
		}
		if err := c.Feed.validateProvider("rates_provider", c.Feed.RatesProvider); err != nil {
			return err
		}
	}

	if c.Cache.Redis.Enabled && c.Cache.Redis.Addr == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("cache.redis.addr required when redis is enabled"))
	}
	if c.Runner.Workers < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("runner.workers must be at least 1, got %d", c.Runner.Workers))
	}
	if c.Archive.Enabled && c.Archive.Type == "s3" && c.Archive.S3.Bucket == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("archive.s3.bucket required when archive type is s3"))
	}

	return nil
}

func (f FeedConfig) validateProvider(key, name string) error {
	switch name {
	case "yahoo", "eastmoney":
	case "csv":
		if f.CSVDir == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("feed.csv_dir required when %s is csv", key))
		}
	case "sqlite":
		if f.SQLiteDSN == "" {
			return core.WrapError(core.ErrConfigMissing, fmt.Errorf("feed.sqlite_dsn required when %s is sqlite", key))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown feed %s %q", key, name))
	}
	return nil
}

// Uses reports whether name serves prices or rates.
func (f FeedConfig) Uses(name string) bool {
	return f.Provider == name || f.RatesProvider == name
}

// Engine returns the simulator policy.
func (c *Config) Engine() portfolio.Config {
	return portfolio.Config{
		DelistingGraceDays: c.Simulation.DelistingGraceDays,
		RebalanceThreshold: c.Simulation.RebalanceThreshold,
		FxLookbackDays:     c.Simulation.FxLookbackDays,
	}
}

// Storage returns the archive backend settings.
func (a ArchiveConfig) Storage() archive.Config {
	return archive.Config{
		Type: a.Type,
		Path: a.Path,
		S3: archive.S3Config{
			Bucket:    a.S3.Bucket,
			Endpoint:  a.S3.Endpoint,
			Region:    a.S3.Region,
			AccessKey: a.S3.AccessKey,
			SecretKey: a.S3.SecretKey,
			Prefix:    a.S3.Prefix,
		},
	}
}
