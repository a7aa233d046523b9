package discovery

import (
	"math"

	"github.com/calebwaine/autopricer/internal/stats"
)

// imbalanceShiftThreshold is the absolute volume imbalance above which the
// book quotes are shifted toward the pressured side.
const imbalanceShiftThreshold = 0.3

// book holds derived order-book structure for one item.
type book struct {
	bestBid        float64
	bestAsk        float64
	depth          int
	imbalance      float64 // >0: buy pressure, <0: sell pressure
	liquidityScore float64
	stabilityScore float64
}

func bookMetrics(buys, sells []float64) book {
	b := book{depth: len(buys) + len(sells)}
	for _, v := range buys {
		if v > b.bestBid {
			b.bestBid = v
		}
	}
	b.bestAsk = math.Inf(1)
	for _, v := range sells {
		if v < b.bestAsk {
			b.bestAsk = v
		}
	}
	if math.IsInf(b.bestAsk, 1) {
		b.bestAsk = 0
	}

	if b.depth > 0 {
		b.imbalance = float64(len(buys)-len(sells)) / float64(b.depth)
	}
	b.liquidityScore = math.Min(1, float64(b.depth)/10)

	all := make([]float64, 0, b.depth)
	all = append(all, buys...)
	all = append(all, sells...)
	b.stabilityScore = 1 - math.Min(1, stats.CoefficientOfVariation(all))
	return b
}

// orderBookMethod quotes from book structure: best bid/ask by default,
// shifted toward the pressured side when the volume imbalance is strong.
func orderBookMethod(buys, sells []float64) methodResult {
	b := bookMetrics(buys, sells)
	if b.bestBid <= 0 || b.bestAsk <= 0 {
		return methodResult{name: MethodOrderBook}
	}

	buy := b.bestBid
	sell := b.bestAsk
	if spread := b.bestAsk - b.bestBid; spread > 0 && math.Abs(b.imbalance) > imbalanceShiftThreshold {
		shift := b.imbalance * spread * 0.25
		buy += shift
		sell += shift
	}
	// A crossed or degenerate book falls back to mid-prices per side.
	if buy >= sell {
		buy = stats.Median(buys)
		sell = stats.Median(sells)
		if buy >= sell {
			return methodResult{name: MethodOrderBook}
		}
	}

	return methodResult{
		name:       MethodOrderBook,
		buy:        buy,
		sell:       sell,
		confidence: (b.liquidityScore + b.stabilityScore) / 2,
		ok:         true,
	}
}
