package pricing

import (
	"log/slog"
	"math"
	"time"

	"github.com/calebwaine/autopricer/internal/domain"
	"github.com/calebwaine/autopricer/internal/stats"
)

// ItemBounds are operator-configured hard limits for one item. Keys and metal
// are clamped independently; a zero max means unbounded.
type ItemBounds struct {
	MinBuy  domain.Currency
	MaxBuy  domain.Currency
	MinSell domain.Currency
	MaxSell domain.Currency
}

// BoundsConfig holds the static limits and the dynamic-margin parameters.
type BoundsConfig struct {
	// BaseMargin is the relative width of the dynamic corridor around the
	// historical center before any factor is applied.
	BaseMargin float64
	// MaxMargin caps the corridor after all factors.
	MaxMargin float64
	// QualityMultipliers widens the corridor per item quality tier.
	QualityMultipliers map[string]float64
	// Items maps item id to hard limits.
	Items map[string]ItemBounds
}

// DefaultBoundsConfig returns the stock margin parameters.
func DefaultBoundsConfig() BoundsConfig {
	return BoundsConfig{
		BaseMargin: 0.05,
		MaxMargin:  0.5,
		QualityMultipliers: map[string]float64{
			"Unique":  1.0,
			"Strange": 1.1,
			"Genuine": 1.2,
			"Vintage": 1.2,
			"Unusual": 1.5,
		},
	}
}

// Bounder clamps candidate prices to static per-item limits and to a dynamic
// corridor around the item's recent price history.
type Bounder struct {
	cfg    BoundsConfig
	logger *slog.Logger
}

// NewBounder creates a bounder.
func NewBounder(cfg BoundsConfig, logger *slog.Logger) *Bounder {
	if cfg.BaseMargin <= 0 {
		cfg.BaseMargin = 0.05
	}
	if cfg.MaxMargin <= 0 {
		cfg.MaxMargin = 0.5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bounder{cfg: cfg, logger: logger.With(slog.String("component", "bounds"))}
}

// Apply clamps the candidate. Dynamic bounds need at least three history
// points; with fewer the corridor is skipped and only the static limits hold.
func (b *Bounder) Apply(
	itemID, quality string,
	c candidate,
	history []domain.PriceHistoryEntry,
	listingCount int,
	pivot float64,
	now time.Time,
) candidate {
	if len(history) >= 3 {
		c = b.applyDynamic(itemID, quality, c, history, listingCount, now)
	}
	return b.applyStatic(itemID, c, pivot)
}

// applyDynamic computes the corridor and clamps each side into it.
func (b *Bounder) applyDynamic(
	itemID, quality string,
	c candidate,
	history []domain.PriceHistoryEntry,
	listingCount int,
	now time.Time,
) candidate {
	mids := make([]float64, len(history))
	for i, h := range history {
		mids[i] = (h.BuyMetal + h.SellMetal) / 2
	}
	center := stats.TrimmedMean(mids, 0.15)
	if center <= 0 {
		return c
	}

	buyMargin, sellMargin, confidence := b.margins(quality, mids, center, history, listingCount, now)
	if confidence < 0.4 {
		b.logger.Warn("low confidence in dynamic bounds",
			slog.String("item_id", itemID),
			slog.Float64("confidence", confidence),
			slog.Int("listings", listingCount),
		)
	}

	c.buy = clamp(c.buy, center*(1-buyMargin), center*(1+buyMargin))
	c.sell = clamp(c.sell, center*(1-sellMargin), center*(1+sellMargin))
	return c
}

// margins derives the per-side corridor width from volatility, liquidity,
// trend direction, quality tier, and calendar liquidity patterns. The second
// return is a confidence score for the corridor itself.
func (b *Bounder) margins(
	quality string,
	mids []float64,
	center float64,
	history []domain.PriceHistoryEntry,
	listingCount int,
	now time.Time,
) (buyMargin, sellMargin, confidence float64) {
	// Volatility widens the corridor, at most doubling it.
	volatility := stats.CoefficientOfVariation(mids)
	volFactor := 1 + math.Min(volatility*4, 1.0)

	// Thin books widen it further, up to 1.8x.
	liqFactor := 1 + 0.8*math.Max(0, 1-float64(listingCount)/10)

	qualityFactor := 1.0
	if m, ok := b.cfg.QualityMultipliers[quality]; ok && m > 0 {
		qualityFactor = m
	}

	margin := b.cfg.BaseMargin * volFactor * liqFactor * qualityFactor *
		timeOfDayFactor(now) * seasonalFactor(now)

	// A trend tightens the side it moves away from and loosens the side it
	// moves toward, asymmetrically.
	buyMargin, sellMargin = margin, margin
	projected := projectTrend(history, now)
	if projected > 0 && center > 0 {
		strength := math.Min(math.Abs(projected-center)/center, 0.5)
		if projected > center {
			sellMargin *= 1 + strength
			buyMargin *= 1 - strength/2
		} else {
			buyMargin *= 1 + strength
			sellMargin *= 1 - strength/2
		}
	}

	buyMargin = math.Min(buyMargin, b.cfg.MaxMargin)
	sellMargin = math.Min(sellMargin, b.cfg.MaxMargin)

	confidence = 1 / (volFactor * liqFactor)
	return buyMargin, sellMargin, confidence
}

// applyStatic clamps keys and metal independently against the configured
// per-item limits, then returns the candidate re-collapsed to scalar metal.
func (b *Bounder) applyStatic(itemID string, c candidate, pivot float64) candidate {
	limits, ok := b.cfg.Items[itemID]
	if !ok {
		return c
	}

	buy := clampCurrency(domain.MetalToCurrency(c.buy, pivot), limits.MinBuy, limits.MaxBuy)
	sell := clampCurrency(domain.MetalToCurrency(c.sell, pivot), limits.MinSell, limits.MaxSell)
	c.buy = buy.ToMetal(pivot)
	c.sell = sell.ToMetal(pivot)
	return c
}

func clampCurrency(c, min, max domain.Currency) domain.Currency {
	c.Keys = math.Max(c.Keys, min.Keys)
	c.Metal = math.Max(c.Metal, min.Metal)
	if max.Keys > 0 {
		c.Keys = math.Min(c.Keys, max.Keys)
	}
	if max.Metal > 0 {
		c.Metal = math.Min(c.Metal, max.Metal)
	}
	return c
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// timeOfDayFactor widens bounds during the off-peak window when books thin
// out and single listings move the estimate more.
func timeOfDayFactor(now time.Time) float64 {
	hour := now.UTC().Hour()
	if hour >= 2 && hour < 9 {
		return 1.2
	}
	return 1.0
}

// seasonalFactor widens bounds around the mid-year and winter sale periods.
func seasonalFactor(now time.Time) float64 {
	switch now.UTC().Month() {
	case time.June, time.July, time.December:
		return 1.15
	default:
		return 1.0
	}
}
