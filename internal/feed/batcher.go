package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/calebwaine/autopricer/internal/domain"
)

// Batcher accumulates accepted listings and writes them in a single multi-row
// upsert when the flush timer fires or on an explicit drain. It is the sole
// mutator of its queue; appends and flushes are mutually exclusive.
type Batcher struct {
	store    domain.ListingStore
	stats    domain.StatsStore
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	queue []domain.Listing
}

// NewBatcher creates a batched listing writer.
func NewBatcher(store domain.ListingStore, stats domain.StatsStore, interval time.Duration, logger *slog.Logger) *Batcher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{
		store:    store,
		stats:    stats,
		interval: interval,
		logger:   logger.With(slog.String("component", "batcher")),
	}
}

// Add appends one listing to the pending queue.
func (b *Batcher) Add(listing domain.Listing) {
	b.mu.Lock()
	b.queue = append(b.queue, listing)
	b.mu.Unlock()
}

// Pending returns the current queue depth.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Run flushes on the fixed interval until the context is cancelled, then
// drains whatever is still queued so in-flight writes survive shutdown.
func (b *Batcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			b.Flush(drainCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			b.Flush(ctx)
		}
	}
}

// Flush writes the queued listings in one batch upsert and clears the queue.
// Each distinct item's activity stats are refreshed asynchronously afterward.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.queue
	b.queue = nil
	b.mu.Unlock()

	if err := b.store.UpsertBatch(ctx, batch); err != nil {
		b.logger.Error("flush failed",
			slog.Int("listings", len(batch)),
			slog.String("error", err.Error()),
		)
		return
	}
	b.logger.Debug("flushed listings", slog.Int("count", len(batch)))

	seen := make(map[string]struct{}, len(batch))
	for _, l := range batch {
		if _, ok := seen[l.ItemID]; ok {
			continue
		}
		seen[l.ItemID] = struct{}{}
		go b.refreshStats(l.ItemID)
	}
}

func (b *Batcher) refreshStats(itemID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.stats.Refresh(ctx, itemID); err != nil {
		b.logger.Warn("stats refresh failed",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
}
