package pricing

import (
	"fmt"

	"github.com/calebwaine/autopricer/internal/domain"
	"github.com/calebwaine/autopricer/internal/stats"
)

// swingWindow is how many recent history rows form the swing reference.
const swingWindow = 5

// Guard rejects candidates that jump too far from the item's recent emitted
// prices. The pivot-currency item is exempt: its float is the pivot rate, and
// pinning it to its own history would freeze cross-denomination math.
type Guard struct {
	maxBuyIncreasePct  float64
	maxSellDecreasePct float64
	keyItemID          string
}

// NewGuard creates a swing guard. Percentages are expressed as whole numbers,
// e.g. 10 for ten percent.
func NewGuard(maxBuyIncreasePct, maxSellDecreasePct float64, keyItemID string) *Guard {
	return &Guard{
		maxBuyIncreasePct:  maxBuyIncreasePct,
		maxSellDecreasePct: maxSellDecreasePct,
		keyItemID:          keyItemID,
	}
}

// Check compares the candidate against a trimmed mean of the last few emitted
// prices. With no history there is nothing to swing from and the candidate
// passes.
func (g *Guard) Check(itemID string, buy, sell float64, history []domain.PriceHistoryEntry) error {
	if itemID == g.keyItemID {
		return nil
	}
	if len(history) == 0 {
		return nil
	}

	recent := history
	if len(recent) > swingWindow {
		recent = recent[:swingWindow]
	}

	buys := make([]float64, 0, len(recent))
	sells := make([]float64, 0, len(recent))
	for _, h := range recent {
		if h.BuyMetal > 0 {
			buys = append(buys, h.BuyMetal)
		}
		if h.SellMetal > 0 {
			sells = append(sells, h.SellMetal)
		}
	}

	if len(buys) > 0 && g.maxBuyIncreasePct > 0 {
		ref := stats.TrimmedMean(buys, 0.15)
		limit := ref * (1 + g.maxBuyIncreasePct/100)
		if buy > limit {
			return fmt.Errorf("buy %.2f above limit %.2f (ref %.2f): %w",
				buy, limit, ref, domain.ErrPriceSwing)
		}
	}
	if len(sells) > 0 && g.maxSellDecreasePct > 0 {
		ref := stats.TrimmedMean(sells, 0.15)
		limit := ref * (1 - g.maxSellDecreasePct/100)
		if sell < limit {
			return fmt.Errorf("sell %.2f below limit %.2f (ref %.2f): %w",
				sell, limit, ref, domain.ErrPriceSwing)
		}
	}
	return nil
}
