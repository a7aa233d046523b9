package domain

import (
	"context"
	"time"
)

// ListingStore persists current listings and owns the retention policy.
type ListingStore interface {
	GetListings(ctx context.Context, itemName string, side Side) ([]Listing, error)
	UpsertBatch(ctx context.Context, listings []Listing) error
	Delete(ctx context.Context, ownerID, itemName string, side Side) (itemID string, err error)
	DeleteStale(ctx context.Context, stats []ListingActivityStats) (int64, error)
}

// StatsStore maintains per-item listing activity statistics.
type StatsStore interface {
	Refresh(ctx context.Context, itemID string) error
	Get(ctx context.Context, itemID string) (ListingActivityStats, error)
	List(ctx context.Context) ([]ListingActivityStats, error)
}

// HistoryStore persists emitted price samples.
type HistoryStore interface {
	Append(ctx context.Context, entry PriceHistoryEntry) error
	Recent(ctx context.Context, itemID string, limit int, maxAge time.Duration) ([]PriceHistoryEntry, error)
	OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]PriceHistoryEntry, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PriceListStore persists the price-list document read by the trading bot,
// replaced per item id on each emission.
type PriceListStore interface {
	Put(ctx context.Context, item PricedItem) error
	Get(ctx context.Context, itemID string) (PricedItem, error)
	All(ctx context.Context) ([]PricedItem, error)
}

// EventBus broadcasts one event per priced item.
type EventBus interface {
	PublishPrice(ctx context.Context, event PriceEvent) error
}

// RateLimiter gates calls against a third-party quota.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}
