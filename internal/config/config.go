// Package config defines the top-level configuration for the autopricer and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PRICER_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Feed      FeedConfig      `toml:"feed"`
	Schema    SchemaConfig    `toml:"schema"`
	Baseline  BaselineConfig  `toml:"baseline"`
	ExtMarket ExtMarketConfig `toml:"extmarket"`
	Pricing   PricingConfig   `toml:"pricing"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Server    ServerConfig    `toml:"server"`
	LogLevel  string          `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds object storage parameters for price-history archival.
// Archival is skipped entirely when Enabled is false.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// FeedConfig holds the upstream marketplace feed parameters.
type FeedConfig struct {
	URL               string   `toml:"url"`
	BlockedAttributes []string `toml:"blocked_attributes"`
	ExcludedSources   []string `toml:"excluded_sources"`
	BackoffMin        duration `toml:"backoff_min"`
	BackoffMax        duration `toml:"backoff_max"`
	FlushInterval     duration `toml:"flush_interval"`
	MonitorInterval   duration `toml:"monitor_interval"`
	MonitorTimeout    duration `toml:"monitor_timeout"`
}

// SchemaConfig holds the item schema service parameters.
type SchemaConfig struct {
	BaseURL  string   `toml:"base_url"`
	CacheTTL duration `toml:"cache_ttl"`
}

// BaselineConfig holds the reference price feed parameters.
type BaselineConfig struct {
	BaseURL string `toml:"base_url"`
}

// ExtMarketConfig holds the secondary external market parameters.
type ExtMarketConfig struct {
	Enabled    bool     `toml:"enabled"`
	BaseURL    string   `toml:"base_url"`
	BatchSize  int      `toml:"batch_size"`
	BatchDelay duration `toml:"batch_delay"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// CurrencyConfig is a two-denomination price in TOML form.
type CurrencyConfig struct {
	Keys  float64 `toml:"keys"`
	Metal float64 `toml:"metal"`
}

// ItemBoundsConfig holds per-item hard price limits.
type ItemBoundsConfig struct {
	MinBuy  CurrencyConfig `toml:"min_buy"`
	MaxBuy  CurrencyConfig `toml:"max_buy"`
	MinSell CurrencyConfig `toml:"min_sell"`
	MaxSell CurrencyConfig `toml:"max_sell"`
}

// BoundsConfig holds the static limits and dynamic-margin parameters.
type BoundsConfig struct {
	BaseMargin         float64                     `toml:"base_margin"`
	MaxMargin          float64                     `toml:"max_margin"`
	QualityMultipliers map[string]float64          `toml:"quality_multipliers"`
	Items              map[string]ItemBoundsConfig `toml:"items"`
}

// PricingConfig holds the pricing pipeline parameters.
type PricingConfig struct {
	KeyItemID               string       `toml:"key_item_id"`
	PivotBootstrapMetal     float64      `toml:"pivot_bootstrap_metal"`
	MaxConcurrent           int          `toml:"max_concurrent"`
	HistoryLimit            int          `toml:"history_limit"`
	HistoryMaxAge           duration     `toml:"history_max_age"`
	MinMarginMetal          float64      `toml:"min_margin_metal"`
	SpreadOffset            float64      `toml:"spread_offset"`
	TrendMargin             float64      `toml:"trend_margin"`
	BuyFromSellRatio        float64      `toml:"buy_from_sell_ratio"`
	SellFromBuyRatio        float64      `toml:"sell_from_buy_ratio"`
	MaxBuyIncreasePct       float64      `toml:"max_buy_increase_pct"`
	MaxSellDecreasePct      float64      `toml:"max_sell_decrease_pct"`
	MaxBaselineDeviationPct float64      `toml:"max_baseline_deviation_pct"`
	AllowBaselineFallback   bool         `toml:"allow_baseline_fallback"`
	Bounds                  BoundsConfig `toml:"bounds"`
}

// DiscoveryConfig holds the consensus weights of the discovery engine.
type DiscoveryConfig struct {
	Weights map[string]float64 `toml:"weights"`
}

// SchedulerConfig holds the recurring task cadences.
type SchedulerConfig struct {
	PricingInterval  duration `toml:"pricing_interval"`
	StatsInterval    duration `toml:"stats_interval"`
	BaselineInterval duration `toml:"baseline_interval"`
	EvictionInterval duration `toml:"eviction_interval"`
	ArchiveInterval  duration `toml:"archive_interval"`
}

// ServerConfig holds the operational HTTP surface parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "autopricer",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "autopricer-data",
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Feed: FeedConfig{
			URL:             "wss://ws.backpack.tf/events",
			BackoffMin:      duration{time.Second},
			BackoffMax:      duration{60 * time.Second},
			FlushInterval:   duration{10 * time.Second},
			MonitorInterval: duration{30 * time.Second},
			MonitorTimeout:  duration{120 * time.Second},
		},
		Schema: SchemaConfig{
			BaseURL:  "http://localhost:4000",
			CacheTTL: duration{24 * time.Hour},
		},
		Baseline: BaselineConfig{
			BaseURL: "http://localhost:4100",
		},
		ExtMarket: ExtMarketConfig{
			Enabled:    false,
			BatchSize:  5,
			BatchDelay: duration{2 * time.Second},
			RateLimit:  60,
			RateWindow: duration{time.Minute},
		},
		Pricing: PricingConfig{
			KeyItemID:               "5021;6",
			PivotBootstrapMetal:     68,
			MaxConcurrent:           15,
			HistoryLimit:            100,
			HistoryMaxAge:           duration{7 * 24 * time.Hour},
			MinMarginMetal:          0.11,
			SpreadOffset:            0.08,
			TrendMargin:             0.05,
			BuyFromSellRatio:        0.85,
			SellFromBuyRatio:        1.18,
			MaxBuyIncreasePct:       10,
			MaxSellDecreasePct:      10,
			MaxBaselineDeviationPct: 50,
			Bounds: BoundsConfig{
				BaseMargin: 0.05,
				MaxMargin:  0.5,
			},
		},
		Scheduler: SchedulerConfig{
			PricingInterval:  duration{30 * time.Minute},
			StatsInterval:    duration{5 * time.Minute},
			BaselineInterval: duration{10 * time.Minute},
			EvictionInterval: duration{10 * time.Minute},
			ArchiveInterval:  duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when archival is on.
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1 when enabled")
		}
	}

	// Feed
	if c.Feed.URL == "" {
		errs = append(errs, "feed: url must not be empty")
	}
	if c.Feed.BackoffMin.Duration > c.Feed.BackoffMax.Duration {
		errs = append(errs, "feed: backoff_min must not exceed backoff_max")
	}

	// Schema and baseline services
	if c.Schema.BaseURL == "" {
		errs = append(errs, "schema: base_url must not be empty")
	}
	if c.Baseline.BaseURL == "" {
		errs = append(errs, "baseline: base_url must not be empty")
	}
	if c.ExtMarket.Enabled && c.ExtMarket.BaseURL == "" {
		errs = append(errs, "extmarket: base_url must not be empty when enabled")
	}

	// Pricing
	if c.Pricing.KeyItemID == "" {
		errs = append(errs, "pricing: key_item_id must not be empty")
	}
	if c.Pricing.PivotBootstrapMetal <= 0 {
		errs = append(errs, "pricing: pivot_bootstrap_metal must be > 0")
	}
	if c.Pricing.BuyFromSellRatio <= 0 || c.Pricing.BuyFromSellRatio >= 1 {
		errs = append(errs, "pricing: buy_from_sell_ratio must be in (0, 1)")
	}
	if c.Pricing.SellFromBuyRatio <= 1 {
		errs = append(errs, "pricing: sell_from_buy_ratio must be > 1")
	}
	if c.Pricing.MaxConcurrent < 1 {
		errs = append(errs, "pricing: max_concurrent must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
