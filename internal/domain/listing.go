package domain

import "time"

// Side is the direction of a posted listing.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Listing is a single posted buy or sell order for an item at a price, by a
// specific owner. The composite key (ItemName, ItemID, Side, OwnerID) is
// upserted last-write-wins on price and time.
type Listing struct {
	ItemName  string
	ItemID    string
	Side      Side
	Price     Currency
	OwnerID   string
	UpdatedAt time.Time
}

// Metals converts a slice of listings to scalar metal prices under the given
// pivot rate, skipping zero-priced rows.
func Metals(listings []Listing, pivot float64) []float64 {
	out := make([]float64, 0, len(listings))
	for _, l := range listings {
		if m := l.Price.ToMetal(pivot); m > 0 {
			out = append(out, m)
		}
	}
	return out
}
