package pricing

import (
	"fmt"
	"time"

	"github.com/calebwaine/autopricer/internal/domain"
	"github.com/calebwaine/autopricer/internal/stats"
)

// candidate is a pre-bound scalar quote produced by a tier or a fallback.
type candidate struct {
	buy    float64
	sell   float64
	source string
}

// selectTier routes an item to a fallback rung from how much data it has.
// Returns 0 when no tier applies.
func selectTier(buyCount, sellCount, historyCount int) int {
	switch {
	case buyCount >= 3 && sellCount >= 3:
		return 1
	case (buyCount >= 5 && sellCount >= 1) || (sellCount >= 5 && buyCount >= 1):
		return 2
	case historyCount >= 5:
		return 3
	case buyCount+sellCount >= 2:
		return 4
	default:
		return 0
	}
}

// tier1 runs the full discovery engine over both sides of the book.
func (p *Pipeline) tier1(buys, sells []domain.Listing, history []domain.PriceHistoryEntry, pivot float64) (candidate, error) {
	result, err := p.engine.DiscoverPrice(buys, sells, history, pivot)
	if err != nil {
		return candidate{}, err
	}
	return candidate{buy: result.Buy, sell: result.Sell, source: SourceTier1}, nil
}

// tier2 estimates the deep side directly and synthesizes the thin side with a
// configured spread offset, since a handful of listings on the thin side is
// more likely manipulation than signal.
func (p *Pipeline) tier2(buys, sells []float64) (candidate, error) {
	if len(buys) >= len(sells) {
		est, err := stats.AdaptiveRobustMean(buys)
		if err != nil {
			return candidate{}, err
		}
		return candidate{
			buy:    est.Value,
			sell:   est.Value * (1 + p.cfg.SpreadOffset),
			source: SourceTier2,
		}, nil
	}
	est, err := stats.AdaptiveRobustMean(sells)
	if err != nil {
		return candidate{}, err
	}
	return candidate{
		buy:    est.Value * (1 - p.cfg.SpreadOffset),
		sell:   est.Value,
		source: SourceTier2,
	}, nil
}

// tier3 fits a linear trend over the history window, projects it to now, and
// sets buy/sell symmetrically around the projection.
func (p *Pipeline) tier3(history []domain.PriceHistoryEntry, now time.Time) (candidate, error) {
	if len(history) < 5 {
		return candidate{}, fmt.Errorf("history too short: %d", len(history))
	}

	projected := projectTrend(history, now)
	if projected <= 0 {
		return candidate{}, fmt.Errorf("trend projection non-positive")
	}

	margin := p.cfg.TrendMargin
	return candidate{
		buy:    projected * (1 - margin),
		sell:   projected * (1 + margin),
		source: SourceTier3,
	}, nil
}

// tier4 uses whatever exists: each present side is estimated directly, a
// missing side is synthesized from the other with a fixed ratio, and an empty
// book falls back to the historical average.
func (p *Pipeline) tier4(buys, sells []float64, history []domain.PriceHistoryEntry) (candidate, error) {
	var buy, sell float64
	if len(buys) > 0 {
		est, err := stats.AdaptiveRobustMean(buys)
		if err != nil {
			return candidate{}, err
		}
		buy = est.Value
	}
	if len(sells) > 0 {
		est, err := stats.AdaptiveRobustMean(sells)
		if err != nil {
			return candidate{}, err
		}
		sell = est.Value
	}

	switch {
	case buy > 0 && sell > 0:
	case sell > 0:
		buy = sell * p.cfg.BuyFromSellRatio
	case buy > 0:
		sell = buy * p.cfg.SellFromBuyRatio
	default:
		mid := historicalMid(history)
		if mid <= 0 {
			return candidate{}, domain.ErrNoListings
		}
		buy = mid * p.cfg.BuyFromSellRatio
		sell = mid * p.cfg.SellFromBuyRatio
	}

	return candidate{buy: buy, sell: sell, source: SourceTier4}, nil
}

// projectTrend fits least-squares over the mid price of each history entry and
// evaluates the line at now. A degenerate fit (all samples at one instant)
// returns the plain mean.
func projectTrend(history []domain.PriceHistoryEntry, now time.Time) float64 {
	n := float64(len(history))
	base := history[len(history)-1].Timestamp

	var sumX, sumY, sumXY, sumXX float64
	for _, h := range history {
		x := h.Timestamp.Sub(base).Hours()
		y := (h.BuyMetal + h.SellMetal) / 2
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return sumY / n
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n
	return intercept + slope*now.Sub(base).Hours()
}

// historicalMid averages the mid price over the history window.
func historicalMid(history []domain.PriceHistoryEntry) float64 {
	if len(history) == 0 {
		return 0
	}
	var sum float64
	for _, h := range history {
		sum += (h.BuyMetal + h.SellMetal) / 2
	}
	return sum / float64(len(history))
}
