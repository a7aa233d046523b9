// Package scheduler coordinates the long-lived loops: feed ingestion, batched
// writes, liveness monitoring, and the periodic pricing, stats-refresh,
// baseline-refresh, and archival tasks. Periodic task failures are logged and
// swallowed; only context cancellation stops a loop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calebwaine/autopricer/internal/domain"
	"github.com/calebwaine/autopricer/internal/feed"
	"github.com/calebwaine/autopricer/internal/pricing"
)

// BaselineRefresher re-pulls the reference price feed. *baseline.Client
// satisfies it.
type BaselineRefresher interface {
	Refresh(ctx context.Context) error
}

// HistoryArchiver moves aged price history to cold storage. *s3blob.Archiver
// satisfies it.
type HistoryArchiver interface {
	ArchiveHistory(ctx context.Context, before time.Time) (int64, error)
}

// Config holds the task cadences.
type Config struct {
	PricingInterval  time.Duration
	StatsInterval    time.Duration
	BaselineInterval time.Duration
	// EvictionInterval paces the standalone stale-listing sweep; eviction
	// also runs at the start of every pricing pass.
	EvictionInterval time.Duration
	ArchiveInterval  time.Duration
	// RetentionDays is how much price history stays in the relational store
	// before archival.
	RetentionDays int
}

// DefaultConfig returns the stock cadences.
func DefaultConfig() Config {
	return Config{
		PricingInterval:  30 * time.Minute,
		StatsInterval:    5 * time.Minute,
		BaselineInterval: 10 * time.Minute,
		EvictionInterval: 10 * time.Minute,
		ArchiveInterval:  24 * time.Hour,
		RetentionDays:    90,
	}
}

// Scheduler owns every recurring task in the process.
type Scheduler struct {
	cfg      Config
	ingestor *feed.Ingestor
	batcher  *feed.Batcher
	monitor  *feed.Monitor
	pipeline *pricing.Pipeline
	listings domain.ListingStore
	stats    domain.StatsStore
	baseline BaselineRefresher
	archiver HistoryArchiver
	logger   *slog.Logger
}

// New creates a scheduler. Archiver may be nil when cold storage is not
// configured.
func New(
	cfg Config,
	ingestor *feed.Ingestor,
	batcher *feed.Batcher,
	monitor *feed.Monitor,
	pipeline *pricing.Pipeline,
	listings domain.ListingStore,
	stats domain.StatsStore,
	baseline BaselineRefresher,
	archiver HistoryArchiver,
	logger *slog.Logger,
) *Scheduler {
	def := DefaultConfig()
	if cfg.PricingInterval <= 0 {
		cfg.PricingInterval = def.PricingInterval
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = def.StatsInterval
	}
	if cfg.BaselineInterval <= 0 {
		cfg.BaselineInterval = def.BaselineInterval
	}
	if cfg.EvictionInterval <= 0 {
		cfg.EvictionInterval = def.EvictionInterval
	}
	if cfg.ArchiveInterval <= 0 {
		cfg.ArchiveInterval = def.ArchiveInterval
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = def.RetentionDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		ingestor: ingestor,
		batcher:  batcher,
		monitor:  monitor,
		pipeline: pipeline,
		listings: listings,
		stats:    stats,
		baseline: baseline,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "scheduler")),
	}
}

// Run starts every loop as a concurrent goroutine under an errgroup. The
// loops run until the context is cancelled; a clean shutdown waits for the
// batched writer to drain its queue.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		slog.Duration("pricing_interval", s.cfg.PricingInterval),
		slog.Duration("stats_interval", s.cfg.StatsInterval),
		slog.Duration("baseline_interval", s.cfg.BaselineInterval),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.ingestor.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("ingestor: %w", err)
	})

	g.Go(func() error {
		err := s.batcher.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("batched writer: %w", err)
	})

	g.Go(func() error {
		err := s.monitor.Run(ctx, s.ingestor.ForceReconnect)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("liveness monitor: %w", err)
	})

	g.Go(func() error {
		s.runPricingLoop(ctx)
		return nil
	})

	g.Go(func() error {
		s.tick(ctx, s.cfg.StatsInterval, "stats refresh", s.refreshStats)
		return nil
	})

	// Eviction also runs inside every pricing pass; the standalone sweep
	// keeps the snapshot decaying when no pass is due.
	g.Go(func() error {
		s.tick(ctx, s.cfg.EvictionInterval, "stale eviction", s.evictStale)
		return nil
	})

	g.Go(func() error {
		// One refresh up front so the first pricing pass has a reference.
		if err := s.baseline.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("initial baseline refresh failed", slog.String("error", err.Error()))
		}
		s.tick(ctx, s.cfg.BaselineInterval, "baseline refresh", s.baseline.Refresh)
		return nil
	})

	if s.archiver != nil {
		g.Go(func() error {
			s.tick(ctx, s.cfg.ArchiveInterval, "history archival", s.archiveHistory)
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		s.logger.Error("scheduler stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("scheduler stopped cleanly")
	return nil
}

// runPricingLoop prices the touched items on each tick, evicting stale
// listings first so dead quotes never feed an estimate.
func (s *Scheduler) runPricingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PricingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.evictStale(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("stale eviction failed", slog.String("error", err.Error()))
			}

			items := s.ingestor.TakeTouched()
			if len(items) == 0 {
				s.logger.Debug("no items touched since last pass")
				continue
			}
			s.pipeline.RunPass(ctx, items)
		}
	}
}

// evictStale applies the banded retention policy across all tracked items.
func (s *Scheduler) evictStale(ctx context.Context) error {
	allStats, err := s.stats.List(ctx)
	if err != nil {
		return fmt.Errorf("list stats: %w", err)
	}
	deleted, err := s.listings.DeleteStale(ctx, allStats)
	if err != nil {
		return fmt.Errorf("delete stale: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("stale listings evicted", slog.Int64("deleted", deleted))
	}
	return nil
}

// refreshStats recomputes activity statistics for every tracked item, keeping
// the moving averages honest for items that stopped receiving events.
func (s *Scheduler) refreshStats(ctx context.Context) error {
	allStats, err := s.stats.List(ctx)
	if err != nil {
		return fmt.Errorf("list stats: %w", err)
	}
	for _, st := range allStats {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.stats.Refresh(ctx, st.ItemID); err != nil {
			s.logger.Warn("stats refresh failed",
				slog.String("item_id", st.ItemID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// archiveHistory moves history rows past the retention window to cold
// storage.
func (s *Scheduler) archiveHistory(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	archived, err := s.archiver.ArchiveHistory(ctx, cutoff)
	if err != nil {
		return err
	}
	if archived > 0 {
		s.logger.Info("history rows archived", slog.Int64("rows", archived))
	}
	return nil
}

// tick runs fn on a fixed interval, logging and swallowing per-tick errors.
// Overlapping runs are not prevented; every task is idempotent.
func (s *Scheduler) tick(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(name+" failed", slog.String("error", err.Error()))
			}
		}
	}
}
