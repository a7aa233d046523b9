package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/calebwaine/autopricer/internal/baseline"
	s3blob "github.com/calebwaine/autopricer/internal/blob/s3"
	"github.com/calebwaine/autopricer/internal/cache/redis"
	"github.com/calebwaine/autopricer/internal/config"
	"github.com/calebwaine/autopricer/internal/discovery"
	"github.com/calebwaine/autopricer/internal/domain"
	"github.com/calebwaine/autopricer/internal/extmarket"
	"github.com/calebwaine/autopricer/internal/feed"
	"github.com/calebwaine/autopricer/internal/pricing"
	"github.com/calebwaine/autopricer/internal/schema"
	"github.com/calebwaine/autopricer/internal/store/postgres"
)

// Dependencies bundles every component the application lifecycle needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Listings domain.ListingStore
	Stats    domain.StatsStore
	History  domain.HistoryStore

	// Redis-backed
	PriceList domain.PriceListStore
	Bus       domain.EventBus
	Limiter   domain.RateLimiter

	// External services
	Schema   *schema.Client
	Baseline *baseline.Client
	External *extmarket.Client // nil when disabled

	// Pricing
	Pivot    *domain.PivotRate
	Pipeline *pricing.Pipeline

	// Feed
	Monitor  *feed.Monitor
	Batcher  *feed.Batcher
	Ingestor *feed.Ingestor

	// Cold storage (nil when disabled)
	Archiver *s3blob.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Listings = postgres.NewListingStore(pool)
	deps.Stats = postgres.NewStatsStore(pool)
	deps.History = postgres.NewHistoryStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceList = redis.NewPriceListCache(redisClient)
	deps.Bus = redis.NewEventBus(redisClient)
	deps.Limiter = redis.NewRateLimiter(redisClient)

	// --- External services ---
	deps.Schema = schema.NewClient(cfg.Schema.BaseURL, cfg.Schema.CacheTTL.Duration)
	deps.Baseline = baseline.NewClient(cfg.Baseline.BaseURL, logger)
	if cfg.ExtMarket.Enabled {
		deps.External = extmarket.NewClient(extmarket.Config{
			BaseURL:    cfg.ExtMarket.BaseURL,
			BatchSize:  cfg.ExtMarket.BatchSize,
			BatchDelay: cfg.ExtMarket.BatchDelay.Duration,
			Limit:      cfg.ExtMarket.RateLimit,
			Window:     cfg.ExtMarket.RateWindow.Duration,
		}, deps.Limiter, logger)
	}

	// --- Pivot rate ---
	// Resume from the last published key-item price when one survives in the
	// price list, otherwise start from the configured bootstrap value.
	pivotMetal := cfg.Pricing.PivotBootstrapMetal
	if item, err := deps.PriceList.Get(ctx, cfg.Pricing.KeyItemID); err == nil && item.Sell.Metal > 0 {
		pivotMetal = item.Sell.Metal
		logger.Info("pivot rate restored from price list",
			slog.Float64("metal", pivotMetal),
		)
	}
	deps.Pivot = domain.NewPivotRate(pivotMetal)

	// --- Pricing pipeline ---
	engine := discovery.NewEngine(discovery.Config{Weights: cfg.Discovery.Weights}, logger)
	bounder := pricing.NewBounder(boundsConfig(cfg.Pricing.Bounds), logger)

	var external pricing.ExternalSource
	if deps.External != nil {
		external = deps.External
	}
	deps.Pipeline = pricing.NewPipeline(pricing.Config{
		KeyItemID:               cfg.Pricing.KeyItemID,
		MaxConcurrent:           cfg.Pricing.MaxConcurrent,
		HistoryLimit:            cfg.Pricing.HistoryLimit,
		HistoryMaxAge:           cfg.Pricing.HistoryMaxAge.Duration,
		MinMarginMetal:          cfg.Pricing.MinMarginMetal,
		SpreadOffset:            cfg.Pricing.SpreadOffset,
		TrendMargin:             cfg.Pricing.TrendMargin,
		BuyFromSellRatio:        cfg.Pricing.BuyFromSellRatio,
		SellFromBuyRatio:        cfg.Pricing.SellFromBuyRatio,
		MaxBuyIncreasePct:       cfg.Pricing.MaxBuyIncreasePct,
		MaxSellDecreasePct:      cfg.Pricing.MaxSellDecreasePct,
		MaxBaselineDeviationPct: cfg.Pricing.MaxBaselineDeviationPct,
		AllowBaselineFallback:   cfg.Pricing.AllowBaselineFallback,
	}, pricing.Dependencies{
		Engine:    engine,
		Bounder:   bounder,
		Listings:  deps.Listings,
		History:   deps.History,
		PriceList: deps.PriceList,
		Bus:       deps.Bus,
		Resolver:  deps.Schema,
		Baseline:  deps.Baseline,
		External:  external,
		Pivot:     deps.Pivot,
	}, logger)

	// --- Feed ---
	deps.Monitor = feed.NewMonitor(cfg.Feed.MonitorInterval.Duration, cfg.Feed.MonitorTimeout.Duration, logger)
	deps.Batcher = feed.NewBatcher(deps.Listings, deps.Stats, cfg.Feed.FlushInterval.Duration, logger)
	deps.Ingestor = feed.NewIngestor(feed.Config{
		URL:               cfg.Feed.URL,
		BlockedAttributes: toSet(cfg.Feed.BlockedAttributes),
		ExcludedSources:   toSet(cfg.Feed.ExcludedSources),
		BackoffMin:        cfg.Feed.BackoffMin.Duration,
		BackoffMax:        cfg.Feed.BackoffMax.Duration,
	}, deps.Schema, deps.Batcher, deps.Listings, deps.Stats, deps.Monitor, logger)

	// --- S3 cold storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.History, logger)
	}

	return deps, cleanup, nil
}

// boundsConfig converts the TOML bounds section into pipeline parameters.
func boundsConfig(bc config.BoundsConfig) pricing.BoundsConfig {
	out := pricing.DefaultBoundsConfig()
	if bc.BaseMargin > 0 {
		out.BaseMargin = bc.BaseMargin
	}
	if bc.MaxMargin > 0 {
		out.MaxMargin = bc.MaxMargin
	}
	if len(bc.QualityMultipliers) > 0 {
		out.QualityMultipliers = bc.QualityMultipliers
	}
	if len(bc.Items) > 0 {
		out.Items = make(map[string]pricing.ItemBounds, len(bc.Items))
		for id, b := range bc.Items {
			out.Items[id] = pricing.ItemBounds{
				MinBuy:  currency(b.MinBuy),
				MaxBuy:  currency(b.MaxBuy),
				MinSell: currency(b.MinSell),
				MaxSell: currency(b.MaxSell),
			}
		}
	}
	return out
}

func currency(c config.CurrencyConfig) domain.Currency {
	return domain.Currency{Keys: c.Keys, Metal: c.Metal}
}

// toSet converts a list of strings into a lookup set.
func toSet(items []string) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
