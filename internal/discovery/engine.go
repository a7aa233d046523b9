// Package discovery computes a consensus buy/sell price per item from
// current listings and recent price history. Several independent estimation
// methods each produce a candidate quote; the engine combines every method
// that produced a usable result, weighted by its own confidence times the
// configured method weight.
package discovery

import (
	"log/slog"

	"github.com/calebwaine/autopricer/internal/domain"
	"github.com/calebwaine/autopricer/internal/stats"
)

// Method names used for weighting and reporting.
const (
	MethodRobust      = "robust"
	MethodOrderBook   = "order_book"
	MethodTraditional = "traditional"
	MethodHistorical  = "historical"
	MethodAdaptive    = "adaptive"
)

// Config holds per-method consensus weights.
type Config struct {
	Weights map[string]float64
}

// DefaultConfig weights the ensemble toward the robust estimators.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			MethodRobust:      1.0,
			MethodOrderBook:   0.8,
			MethodTraditional: 0.9,
			MethodHistorical:  0.7,
			MethodAdaptive:    0.6,
		},
	}
}

// Engine runs the estimation methods and produces the weighted consensus.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// NewEngine creates a discovery engine.
func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Weights) == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg, logger: logger.With(slog.String("component", "discovery"))}
}

// methodResult is one method's candidate quote. A method contributes to the
// consensus only when it produced both sides with positive confidence.
type methodResult struct {
	name       string
	buy        float64
	sell       float64
	confidence float64
	ok         bool
}

func (r methodResult) contributes() bool {
	return r.ok && r.buy > 0 && r.sell > 0 && r.confidence > 0
}

// DiscoverPrice estimates scalar metal buy/sell prices for one item.
// buyListings and sellListings are the item's current order book; history is
// the rolling window of previously emitted prices.
func (e *Engine) DiscoverPrice(
	buyListings, sellListings []domain.Listing,
	history []domain.PriceHistoryEntry,
	pivot float64,
) (domain.DiscoveryResult, error) {
	buys := domain.Metals(buyListings, pivot)
	sells := domain.Metals(sellListings, pivot)
	if len(buys) == 0 || len(sells) == 0 {
		return domain.DiscoveryResult{}, domain.ErrNoListings
	}

	results := []methodResult{
		robustMethod(buys, sells),
		orderBookMethod(buys, sells),
		traditionalMethod(buys, sells),
		historicalMethod(buys, sells, history),
	}
	results = append(results, e.adaptiveMethod(buys, sells, history, results))

	return e.combine(results)
}

// combine folds the contributing methods into one weighted result. Agreement
// is the inverse coefficient of variation across the methods' buy prices and
// sell prices, averaged; it scales the mean method confidence so that
// disagreeing ensembles report low trust even when each member is confident.
func (e *Engine) combine(results []methodResult) (domain.DiscoveryResult, error) {
	var (
		buySum, sellSum, weightSum, confSum float64
		buys, sells                         []float64
		used                                []string
	)
	for _, r := range results {
		if !r.contributes() {
			continue
		}
		w := r.confidence * e.cfg.Weights[r.name]
		if w <= 0 {
			continue
		}
		buySum += r.buy * w
		sellSum += r.sell * w
		weightSum += w
		confSum += r.confidence
		buys = append(buys, r.buy)
		sells = append(sells, r.sell)
		used = append(used, r.name)
	}
	if weightSum == 0 {
		return domain.DiscoveryResult{}, domain.ErrNoListings
	}

	cv := (stats.CoefficientOfVariation(buys) + stats.CoefficientOfVariation(sells)) / 2
	agreement := 1 / (1 + cv)

	confidence := (confSum / float64(len(used))) * agreement
	if len(used) < 2 && confidence > 0.5 {
		confidence = 0.5
	}

	return domain.DiscoveryResult{
		Buy:         buySum / weightSum,
		Sell:        sellSum / weightSum,
		Confidence:  confidence,
		MethodsUsed: used,
		Agreement:   agreement,
	}, nil
}
