package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestValidateCatchesBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.LogLevel = "verbose" },
			want:   "log_level",
		},
		{
			name:   "empty feed url",
			mutate: func(c *Config) { c.Feed.URL = "" },
			want:   "feed: url",
		},
		{
			name:   "empty key item",
			mutate: func(c *Config) { c.Pricing.KeyItemID = "" },
			want:   "key_item_id",
		},
		{
			name:   "buy ratio above one",
			mutate: func(c *Config) { c.Pricing.BuyFromSellRatio = 1.3 },
			want:   "buy_from_sell_ratio",
		},
		{
			name: "pool min exceeds max",
			mutate: func(c *Config) {
				c.Postgres.PoolMinConns = 20
				c.Postgres.PoolMaxConns = 5
			},
			want: "pool_min_conns",
		},
		{
			name: "s3 enabled without bucket",
			mutate: func(c *Config) {
				c.S3.Enabled = true
				c.S3.Bucket = ""
			},
			want: "s3: bucket",
		},
		{
			name: "backoff min above max",
			mutate: func(c *Config) {
				c.Feed.BackoffMin = duration{time.Minute}
				c.Feed.BackoffMax = duration{time.Second}
			},
			want: "backoff_min",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PRICER_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("PRICER_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("PRICER_PRICING_MAX_CONCURRENT", "4")
	t.Setenv("PRICER_SCHEDULER_PRICING_INTERVAL", "15m")
	t.Setenv("PRICER_FEED_EXCLUDED_SOURCES", "bot-spam, relister")
	t.Setenv("PRICER_S3_ENABLED", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Errorf("postgres password = %q", cfg.Postgres.Password)
	}
	if cfg.Pricing.MaxConcurrent != 4 {
		t.Errorf("max concurrent = %d", cfg.Pricing.MaxConcurrent)
	}
	if cfg.Scheduler.PricingInterval.Duration != 15*time.Minute {
		t.Errorf("pricing interval = %s", cfg.Scheduler.PricingInterval.Duration)
	}
	if len(cfg.Feed.ExcludedSources) != 2 || cfg.Feed.ExcludedSources[1] != "relister" {
		t.Errorf("excluded sources = %v", cfg.Feed.ExcludedSources)
	}
	if !cfg.S3.Enabled {
		t.Error("s3 enabled override not applied")
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.Redis.Password = "secret"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "shhh"

	red := RedactedConfig(&cfg)

	if red.Postgres.Password != redacted || red.Redis.Password != redacted {
		t.Error("database passwords not redacted")
	}
	if red.S3.AccessKey != redacted || red.S3.SecretKey != redacted {
		t.Error("s3 credentials not redacted")
	}
	if cfg.Postgres.Password != "secret" {
		t.Error("original config mutated")
	}
}
