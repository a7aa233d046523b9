package domain

import "time"

// PriceHistoryEntry is one emitted price sample for an item, stored in metal.
// Append-only; the discovery engine reads it back as a rolling window.
type PriceHistoryEntry struct {
	ItemID    string
	BuyMetal  float64
	SellMetal float64
	Timestamp time.Time
}

// PricedItem is the final output of a pricing pass for one item. Before
// emission the scalar buy price is strictly below the scalar sell price.
type PricedItem struct {
	ItemID    string    `json:"item_id"`
	ItemName  string    `json:"name"`
	Buy       Currency  `json:"buy"`
	Sell      Currency  `json:"sell"`
	EmittedAt time.Time `json:"time"`
}

// PriceEvent is the broadcast form of a priced item.
type PriceEvent struct {
	ID     string   `json:"id"`
	ItemID string   `json:"item_id"`
	Name   string   `json:"name"`
	Buy    Currency `json:"buy"`
	Sell   Currency `json:"sell"`
	Time   int64    `json:"time"`
	Source string   `json:"source"`
}
