// Package app provides the top-level application lifecycle for the
// autopricer. It wires together all dependencies (stores, caches, blob
// storage, feed, and the pricing pipeline) and runs the scheduler and the
// operational HTTP server until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calebwaine/autopricer/internal/config"
	"github.com/calebwaine/autopricer/internal/scheduler"
	"github.com/calebwaine/autopricer/internal/server"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the
// scheduler and (when enabled) the HTTP server, and blocks until the context
// is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	sched := scheduler.New(
		scheduler.Config{
			PricingInterval:  a.cfg.Scheduler.PricingInterval.Duration,
			StatsInterval:    a.cfg.Scheduler.StatsInterval.Duration,
			BaselineInterval: a.cfg.Scheduler.BaselineInterval.Duration,
			EvictionInterval: a.cfg.Scheduler.EvictionInterval.Duration,
			ArchiveInterval:  a.cfg.Scheduler.ArchiveInterval.Duration,
			RetentionDays:    a.cfg.S3.RetentionDays,
		},
		deps.Ingestor,
		deps.Batcher,
		deps.Monitor,
		deps.Pipeline,
		deps.Listings,
		deps.Stats,
		deps.Baseline,
		archiverOrNil(deps),
		a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gctx)
	})

	if a.cfg.Server.Enabled {
		srv := server.New(server.Config{Port: a.cfg.Server.Port}, deps.Monitor, deps.PriceList, a.logger)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// archiverOrNil avoids handing the scheduler a typed-nil interface value when
// cold storage is not configured.
func archiverOrNil(deps *Dependencies) scheduler.HistoryArchiver {
	if deps.Archiver == nil {
		return nil
	}
	return deps.Archiver
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
