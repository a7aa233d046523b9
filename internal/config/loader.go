package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PRICER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PRICER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PRICER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PRICER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PRICER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PRICER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PRICER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PRICER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PRICER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PRICER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PRICER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PRICER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PRICER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PRICER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PRICER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PRICER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PRICER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PRICER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PRICER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PRICER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PRICER_S3_REGION")
	setStr(&cfg.S3.Bucket, "PRICER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PRICER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PRICER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PRICER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PRICER_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "PRICER_S3_RETENTION_DAYS")

	// ── Feed ──
	setStr(&cfg.Feed.URL, "PRICER_FEED_URL")
	setStringSlice(&cfg.Feed.BlockedAttributes, "PRICER_FEED_BLOCKED_ATTRIBUTES")
	setStringSlice(&cfg.Feed.ExcludedSources, "PRICER_FEED_EXCLUDED_SOURCES")
	setDuration(&cfg.Feed.BackoffMin, "PRICER_FEED_BACKOFF_MIN")
	setDuration(&cfg.Feed.BackoffMax, "PRICER_FEED_BACKOFF_MAX")
	setDuration(&cfg.Feed.FlushInterval, "PRICER_FEED_FLUSH_INTERVAL")
	setDuration(&cfg.Feed.MonitorInterval, "PRICER_FEED_MONITOR_INTERVAL")
	setDuration(&cfg.Feed.MonitorTimeout, "PRICER_FEED_MONITOR_TIMEOUT")

	// ── Schema / baseline / external market ──
	setStr(&cfg.Schema.BaseURL, "PRICER_SCHEMA_BASE_URL")
	setDuration(&cfg.Schema.CacheTTL, "PRICER_SCHEMA_CACHE_TTL")
	setStr(&cfg.Baseline.BaseURL, "PRICER_BASELINE_BASE_URL")
	setBool(&cfg.ExtMarket.Enabled, "PRICER_EXTMARKET_ENABLED")
	setStr(&cfg.ExtMarket.BaseURL, "PRICER_EXTMARKET_BASE_URL")
	setInt(&cfg.ExtMarket.BatchSize, "PRICER_EXTMARKET_BATCH_SIZE")
	setDuration(&cfg.ExtMarket.BatchDelay, "PRICER_EXTMARKET_BATCH_DELAY")
	setInt(&cfg.ExtMarket.RateLimit, "PRICER_EXTMARKET_RATE_LIMIT")
	setDuration(&cfg.ExtMarket.RateWindow, "PRICER_EXTMARKET_RATE_WINDOW")

	// ── Pricing ──
	setStr(&cfg.Pricing.KeyItemID, "PRICER_PRICING_KEY_ITEM_ID")
	setFloat64(&cfg.Pricing.PivotBootstrapMetal, "PRICER_PRICING_PIVOT_BOOTSTRAP_METAL")
	setInt(&cfg.Pricing.MaxConcurrent, "PRICER_PRICING_MAX_CONCURRENT")
	setInt(&cfg.Pricing.HistoryLimit, "PRICER_PRICING_HISTORY_LIMIT")
	setDuration(&cfg.Pricing.HistoryMaxAge, "PRICER_PRICING_HISTORY_MAX_AGE")
	setFloat64(&cfg.Pricing.MinMarginMetal, "PRICER_PRICING_MIN_MARGIN_METAL")
	setFloat64(&cfg.Pricing.SpreadOffset, "PRICER_PRICING_SPREAD_OFFSET")
	setFloat64(&cfg.Pricing.TrendMargin, "PRICER_PRICING_TREND_MARGIN")
	setFloat64(&cfg.Pricing.BuyFromSellRatio, "PRICER_PRICING_BUY_FROM_SELL_RATIO")
	setFloat64(&cfg.Pricing.SellFromBuyRatio, "PRICER_PRICING_SELL_FROM_BUY_RATIO")
	setFloat64(&cfg.Pricing.MaxBuyIncreasePct, "PRICER_PRICING_MAX_BUY_INCREASE_PCT")
	setFloat64(&cfg.Pricing.MaxSellDecreasePct, "PRICER_PRICING_MAX_SELL_DECREASE_PCT")
	setFloat64(&cfg.Pricing.MaxBaselineDeviationPct, "PRICER_PRICING_MAX_BASELINE_DEVIATION_PCT")
	setBool(&cfg.Pricing.AllowBaselineFallback, "PRICER_PRICING_ALLOW_BASELINE_FALLBACK")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.PricingInterval, "PRICER_SCHEDULER_PRICING_INTERVAL")
	setDuration(&cfg.Scheduler.StatsInterval, "PRICER_SCHEDULER_STATS_INTERVAL")
	setDuration(&cfg.Scheduler.BaselineInterval, "PRICER_SCHEDULER_BASELINE_INTERVAL")
	setDuration(&cfg.Scheduler.EvictionInterval, "PRICER_SCHEDULER_EVICTION_INTERVAL")
	setDuration(&cfg.Scheduler.ArchiveInterval, "PRICER_SCHEDULER_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PRICER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PRICER_SERVER_PORT")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PRICER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
