package discovery

import (
	"log/slog"
	"math"

	"github.com/calebwaine/autopricer/internal/domain"
	"github.com/calebwaine/autopricer/internal/stats"
)

// robustMethod runs one pass of outlier removal per side and re-estimates the
// adaptive robust mean over the cleaned samples.
func robustMethod(buys, sells []float64) methodResult {
	buyEst, buyErr := cleanedEstimate(buys)
	sellEst, sellErr := cleanedEstimate(sells)
	if buyErr != nil || sellErr != nil {
		return methodResult{name: MethodRobust}
	}
	return methodResult{
		name:       MethodRobust,
		buy:        buyEst.Value,
		sell:       sellEst.Value,
		confidence: (buyEst.Confidence + sellEst.Confidence) / 2,
		ok:         true,
	}
}

func cleanedEstimate(samples []float64) (domain.RobustEstimate, error) {
	outliers := stats.DetectOutliers(samples, stats.DefaultOutlierThreshold)
	cleaned := stats.RemoveOutliers(samples, outliers)
	est, err := stats.AdaptiveRobustMean(cleaned)
	if err != nil {
		return domain.RobustEstimate{}, err
	}
	est.OutlierCount = len(outliers)
	return est, nil
}

// traditionalMethod uses the same adaptive robust mean but scores itself from
// sample size and cross-side consistency, giving the ensemble an
// independently-scored member with identical math.
func traditionalMethod(buys, sells []float64) methodResult {
	buyEst, buyErr := stats.AdaptiveRobustMean(buys)
	sellEst, sellErr := stats.AdaptiveRobustMean(sells)
	if buyErr != nil || sellErr != nil {
		return methodResult{name: MethodTraditional}
	}

	sizeScore := math.Min(1, float64(len(buys)+len(sells))/12)
	consistency := 1 - math.Min(1, (stats.CoefficientOfVariation(buys)+stats.CoefficientOfVariation(sells))/2)
	base := (buyEst.Confidence + sellEst.Confidence) / 2

	return methodResult{
		name:       MethodTraditional,
		buy:        buyEst.Value,
		sell:       sellEst.Value,
		confidence: base * (0.5*sizeScore + 0.5*consistency),
		ok:         true,
	}
}

// historicalWindow is how far back the historical consensus looks.
const historicalBlendCurrent = 0.7

// historicalMethod blends current-listing averages with the trailing
// historical average per side, 70/30. Cross-period consistency drives the
// confidence: a quote far from its own history is suspect.
func historicalMethod(buys, sells []float64, history []domain.PriceHistoryEntry) methodResult {
	if len(history) == 0 {
		return methodResult{name: MethodHistorical}
	}

	var histBuy, histSell float64
	for _, h := range history {
		histBuy += h.BuyMetal
		histSell += h.SellMetal
	}
	histBuy /= float64(len(history))
	histSell /= float64(len(history))
	if histBuy <= 0 || histSell <= 0 {
		return methodResult{name: MethodHistorical}
	}

	curBuy := stats.Median(buys)
	curSell := stats.Median(sells)

	buy := historicalBlendCurrent*curBuy + (1-historicalBlendCurrent)*histBuy
	sell := historicalBlendCurrent*curSell + (1-historicalBlendCurrent)*histSell

	buyDrift := math.Abs(curBuy-histBuy) / histBuy
	sellDrift := math.Abs(curSell-histSell) / histSell
	confidence := 1 - math.Min(1, (buyDrift+sellDrift)/2)

	return methodResult{
		name:       MethodHistorical,
		buy:        buy,
		sell:       sell,
		confidence: confidence,
		ok:         true,
	}
}

// adaptiveMethod inspects volatility, liquidity, and order-book quality, then
// selects one of the already-computed results as its answer, logging the
// regime that drove the choice.
func (e *Engine) adaptiveMethod(buys, sells []float64, history []domain.PriceHistoryEntry, results []methodResult) methodResult {
	byName := make(map[string]methodResult, len(results))
	for _, r := range results {
		byName[r.name] = r
	}

	var histBuys []float64
	for _, h := range history {
		histBuys = append(histBuys, h.BuyMetal)
	}
	volatility := stats.CoefficientOfVariation(histBuys)
	liquidity := len(buys) + len(sells)
	book := bookMetrics(buys, sells)

	var (
		chosen string
		reason string
	)
	switch {
	case volatility > 0.25:
		chosen, reason = MethodRobust, "high volatility"
	case liquidity < 4:
		chosen, reason = MethodHistorical, "low liquidity"
	case book.liquidityScore > 0.7 && book.stabilityScore > 0.7:
		chosen, reason = MethodOrderBook, "deep stable book"
	default:
		chosen, reason = MethodTraditional, "default regime"
	}

	picked, ok := byName[chosen]
	if !ok || !picked.contributes() {
		// Fall back to the robust result rather than dropping out.
		picked = byName[MethodRobust]
		reason += " (fallback to robust)"
	}
	if !picked.contributes() {
		return methodResult{name: MethodAdaptive}
	}

	e.logger.Debug("adaptive method selection",
		slog.String("chosen", picked.name),
		slog.String("reason", reason),
		slog.Float64("volatility", volatility),
		slog.Int("liquidity", liquidity),
	)

	return methodResult{
		name:       MethodAdaptive,
		buy:        picked.buy,
		sell:       picked.sell,
		confidence: picked.confidence,
		ok:         true,
	}
}
