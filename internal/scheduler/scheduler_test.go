package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calebwaine/autopricer/internal/domain"
)

type fakeListingStore struct {
	staleCalls atomic.Int64
	deleted    int64
}

func (f *fakeListingStore) GetListings(ctx context.Context, itemName string, side domain.Side) ([]domain.Listing, error) {
	return nil, nil
}

func (f *fakeListingStore) UpsertBatch(ctx context.Context, listings []domain.Listing) error {
	return nil
}

func (f *fakeListingStore) Delete(ctx context.Context, ownerID, itemName string, side domain.Side) (string, error) {
	return "", domain.ErrNotFound
}

func (f *fakeListingStore) DeleteStale(ctx context.Context, stats []domain.ListingActivityStats) (int64, error) {
	f.staleCalls.Add(1)
	return f.deleted, nil
}

type fakeStatsStore struct {
	stats []domain.ListingActivityStats
}

func (f *fakeStatsStore) Refresh(ctx context.Context, itemID string) error {
	return nil
}

func (f *fakeStatsStore) Get(ctx context.Context, itemID string) (domain.ListingActivityStats, error) {
	return domain.ListingActivityStats{}, domain.ErrNotFound
}

func (f *fakeStatsStore) List(ctx context.Context) ([]domain.ListingActivityStats, error) {
	return f.stats, nil
}

func newTestScheduler(cfg Config, listings *fakeListingStore, stats *fakeStatsStore) *Scheduler {
	return New(cfg, nil, nil, nil, nil, listings, stats, nil, nil, nil)
}

func TestEvictStaleSweepsTrackedItems(t *testing.T) {
	listings := &fakeListingStore{deleted: 3}
	stats := &fakeStatsStore{stats: []domain.ListingActivityStats{
		{ItemID: "725;6"},
		{ItemID: "5021;6"},
	}}
	s := newTestScheduler(Config{}, listings, stats)

	if err := s.evictStale(context.Background()); err != nil {
		t.Fatalf("evictStale: %v", err)
	}
	if got := listings.staleCalls.Load(); got != 1 {
		t.Errorf("DeleteStale calls = %d, want 1", got)
	}
}

func TestEvictionTickRunsIndependently(t *testing.T) {
	listings := &fakeListingStore{}
	stats := &fakeStatsStore{}
	s := newTestScheduler(Config{EvictionInterval: 10 * time.Millisecond}, listings, stats)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.tick(ctx, s.cfg.EvictionInterval, "stale eviction", s.evictStale)
	}()

	deadline := time.After(2 * time.Second)
	for listings.staleCalls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("eviction tick never fired twice")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tick loop did not stop on cancellation")
	}
}

func TestConfigDefaultsFillGaps(t *testing.T) {
	s := newTestScheduler(Config{PricingInterval: time.Minute}, &fakeListingStore{}, &fakeStatsStore{})

	if s.cfg.PricingInterval != time.Minute {
		t.Errorf("pricing interval = %s, want the configured value", s.cfg.PricingInterval)
	}
	def := DefaultConfig()
	if s.cfg.EvictionInterval != def.EvictionInterval {
		t.Errorf("eviction interval = %s, want the default", s.cfg.EvictionInterval)
	}
	if s.cfg.RetentionDays != def.RetentionDays {
		t.Errorf("retention days = %d, want the default", s.cfg.RetentionDays)
	}
}
