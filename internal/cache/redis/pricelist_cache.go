package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/calebwaine/autopricer/internal/domain"
)

// priceListKey is the hash holding the full price-list document, one field
// per item id.
const priceListKey = "pricelist"

// PriceListCache implements domain.PriceListStore using a Redis hash. Each
// emission replaces the item's field, so the document always holds exactly
// one current price per item; the bot consumer reads the whole hash.
type PriceListCache struct {
	rdb *redis.Client
}

// NewPriceListCache creates a PriceListCache backed by the given Client.
func NewPriceListCache(c *Client) *PriceListCache {
	return &PriceListCache{rdb: c.Underlying()}
}

// Put stores or replaces the priced item keyed by its item id.
func (pc *PriceListCache) Put(ctx context.Context, item domain.PricedItem) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("redis: marshal priced item %s: %w", item.ItemID, err)
	}
	if err := pc.rdb.HSet(ctx, priceListKey, item.ItemID, payload).Err(); err != nil {
		return fmt.Errorf("redis: put price %s: %w", item.ItemID, err)
	}
	return nil
}

// Get retrieves one priced item. Returns domain.ErrNotFound when the item has
// never been priced.
func (pc *PriceListCache) Get(ctx context.Context, itemID string) (domain.PricedItem, error) {
	payload, err := pc.rdb.HGet(ctx, priceListKey, itemID).Bytes()
	if err == redis.Nil {
		return domain.PricedItem{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PricedItem{}, fmt.Errorf("redis: get price %s: %w", itemID, err)
	}

	var item domain.PricedItem
	if err := json.Unmarshal(payload, &item); err != nil {
		return domain.PricedItem{}, fmt.Errorf("redis: unmarshal price %s: %w", itemID, err)
	}
	return item, nil
}

// All returns the full price-list document.
func (pc *PriceListCache) All(ctx context.Context) ([]domain.PricedItem, error) {
	fields, err := pc.rdb.HGetAll(ctx, priceListKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read price list: %w", err)
	}

	items := make([]domain.PricedItem, 0, len(fields))
	for id, payload := range fields {
		var item domain.PricedItem
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			return nil, fmt.Errorf("redis: unmarshal price %s: %w", id, err)
		}
		items = append(items, item)
	}
	return items, nil
}
