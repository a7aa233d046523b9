// Package pricing orchestrates the per-item pricing pass: fetch the order
// book, verify a reference quote exists, run the tiered estimation chain,
// clamp and sanity-check the candidate, and emit the final price. Items fail
// individually and carry the stage they failed in; a pass never aborts on a
// single bad item.
package pricing

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calebwaine/autopricer/internal/baseline"
	"github.com/calebwaine/autopricer/internal/discovery"
	"github.com/calebwaine/autopricer/internal/domain"
	"github.com/calebwaine/autopricer/internal/extmarket"
	"github.com/calebwaine/autopricer/internal/schema"
)

// ItemResolver maps item ids back to canonical names and attributes.
// *schema.Client satisfies it.
type ItemResolver interface {
	ResolveName(ctx context.Context, id string) (schema.ItemAttributes, error)
}

// BaselineSource supplies the lower-trust reference quote.
type BaselineSource interface {
	Quote(ctx context.Context, itemID string) (baseline.Quote, error)
}

// ExternalSource supplies the secondary-market fallback quotes. A pricing
// pass fetches them once up front through Quotes, which batches under the
// upstream quota; Quote serves single-item computations outside a pass.
type ExternalSource interface {
	Quote(ctx context.Context, itemID string) (extmarket.Quote, error)
	Quotes(ctx context.Context, itemIDs []string) (map[string]extmarket.Quote, error)
}

// Config holds the pipeline parameters.
type Config struct {
	// KeyItemID designates the pivot-currency item. It is priced first each
	// pass, in metal only, and its sell price becomes the pivot rate.
	KeyItemID string

	// MaxConcurrent bounds in-flight per-item computations.
	MaxConcurrent int

	// HistoryLimit and HistoryMaxAge shape the rolling history window.
	HistoryLimit  int
	HistoryMaxAge time.Duration

	// MinMarginMetal is the smallest allowed sell-over-buy gap.
	MinMarginMetal float64

	// SpreadOffset synthesizes the thin side at tier 2.
	SpreadOffset float64

	// TrendMargin is the symmetric half-spread around a tier-3 projection.
	TrendMargin float64

	// BuyFromSellRatio and SellFromBuyRatio synthesize a missing side at
	// tier 4.
	BuyFromSellRatio float64
	SellFromBuyRatio float64

	// MaxBuyIncreasePct / MaxSellDecreasePct parameterize the swing guard,
	// in whole percent.
	MaxBuyIncreasePct  float64
	MaxSellDecreasePct float64

	// MaxBaselineDeviationPct discards tier results that stray this far from
	// the reference quote, in whole percent.
	MaxBaselineDeviationPct float64

	// AllowBaselineFallback lets the baseline itself be emitted when every
	// tier and the external market failed. Off by default: the baseline is a
	// reference, not an estimate.
	AllowBaselineFallback bool
}

// DefaultConfig returns the stock pipeline parameters.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:           15,
		HistoryLimit:            100,
		HistoryMaxAge:           7 * 24 * time.Hour,
		MinMarginMetal:          0.11,
		SpreadOffset:            0.08,
		TrendMargin:             0.05,
		BuyFromSellRatio:        0.85,
		SellFromBuyRatio:        1.18,
		MaxBuyIncreasePct:       10,
		MaxSellDecreasePct:      10,
		MaxBaselineDeviationPct: 50,
	}
}

// Dependencies are the collaborators a pipeline needs.
type Dependencies struct {
	Engine    *discovery.Engine
	Bounder   *Bounder
	Listings  domain.ListingStore
	History   domain.HistoryStore
	PriceList domain.PriceListStore
	Bus       domain.EventBus
	Resolver  ItemResolver
	Baseline  BaselineSource
	External  ExternalSource
	Pivot     *domain.PivotRate
}

// Pipeline prices items.
type Pipeline struct {
	cfg    Config
	deps   Dependencies
	engine *discovery.Engine
	guard  *Guard
	logger *slog.Logger
}

// NewPipeline creates a pricing pipeline.
func NewPipeline(cfg Config, deps Dependencies, logger *slog.Logger) *Pipeline {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.HistoryMaxAge <= 0 {
		cfg.HistoryMaxAge = def.HistoryMaxAge
	}
	if cfg.MinMarginMetal <= 0 {
		cfg.MinMarginMetal = def.MinMarginMetal
	}
	if cfg.SpreadOffset <= 0 {
		cfg.SpreadOffset = def.SpreadOffset
	}
	if cfg.TrendMargin <= 0 {
		cfg.TrendMargin = def.TrendMargin
	}
	if cfg.BuyFromSellRatio <= 0 {
		cfg.BuyFromSellRatio = def.BuyFromSellRatio
	}
	if cfg.SellFromBuyRatio <= 0 {
		cfg.SellFromBuyRatio = def.SellFromBuyRatio
	}
	if cfg.MaxBaselineDeviationPct <= 0 {
		cfg.MaxBaselineDeviationPct = def.MaxBaselineDeviationPct
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg,
		deps:   deps,
		engine: deps.Engine,
		guard:  NewGuard(cfg.MaxBuyIncreasePct, cfg.MaxSellDecreasePct, cfg.KeyItemID),
		logger: logger.With(slog.String("component", "pricing")),
	}
}

// RunPass prices the given items. The pivot-currency item, when present, is
// priced first and synchronously so every other item converts denominations
// at the fresh rate; the rest run concurrently under the configured limit.
// Every item yields an outcome; a failed item never aborts the pass.
func (p *Pipeline) RunPass(ctx context.Context, itemIDs []string) []Outcome {
	started := time.Now()
	outcomes := make([]Outcome, 0, len(itemIDs))

	// One batched secondary-market fetch covers the whole pass, so per-item
	// work never hits the external quota individually.
	ext := p.prefetchExternal(ctx, itemIDs)

	rest := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		if id == p.cfg.KeyItemID {
			outcome := p.computePrice(ctx, id, ext)
			if outcome.Emitted() {
				p.deps.Pivot.Set(outcome.Priced.Sell.Metal)
				p.logger.Info("pivot rate updated",
					slog.Float64("metal", outcome.Priced.Sell.Metal),
				)
			}
			outcomes = append(outcomes, outcome)
			continue
		}
		rest = append(rest, id)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrent)
	for _, id := range rest {
		g.Go(func() error {
			outcome := p.computePrice(gctx, id, ext)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var emitted, failed int
	for _, o := range outcomes {
		if o.Emitted() {
			emitted++
		} else {
			failed++
		}
	}
	p.logger.Info("pricing pass complete",
		slog.Int("items", len(itemIDs)),
		slog.Int("emitted", emitted),
		slog.Int("skipped", failed),
		slog.Duration("elapsed", time.Since(started)),
	)
	return outcomes
}

// prefetchExternal fetches the secondary-market quotes for an entire pass in
// one batched call. A nil result means no prefetch happened and external
// lookups fall back to single-item calls.
func (p *Pipeline) prefetchExternal(ctx context.Context, itemIDs []string) map[string]extmarket.Quote {
	if p.deps.External == nil || len(itemIDs) == 0 {
		return nil
	}
	quotes, err := p.deps.External.Quotes(ctx, itemIDs)
	if err != nil {
		p.logger.Warn("external market prefetch incomplete",
			slog.Int("items", len(itemIDs)),
			slog.Int("fetched", len(quotes)),
			slog.String("error", err.Error()),
		)
	}
	if quotes == nil {
		quotes = map[string]extmarket.Quote{}
	}
	return quotes
}

// ComputePrice runs the full per-item chain and returns its outcome.
func (p *Pipeline) ComputePrice(ctx context.Context, itemID string) Outcome {
	return p.computePrice(ctx, itemID, nil)
}

func (p *Pipeline) computePrice(ctx context.Context, itemID string, ext map[string]extmarket.Quote) Outcome {
	outcome := Outcome{ItemID: itemID}

	attrs, err := p.deps.Resolver.ResolveName(ctx, itemID)
	if err != nil {
		outcome.Fail = fail(StageFetchListings, err)
		return outcome
	}
	outcome.ItemName = attrs.Name

	buys, sells, err := p.fetchListings(ctx, attrs.Name)
	if err != nil {
		outcome.Fail = fail(StageFetchListings, err)
		return outcome
	}

	history, err := p.deps.History.Recent(ctx, itemID, p.cfg.HistoryLimit, p.cfg.HistoryMaxAge)
	if err != nil {
		outcome.Fail = fail(StageFetchListings, err)
		return outcome
	}

	pivot := p.deps.Pivot.Metal()

	refMid, err := p.referenceMid(ctx, itemID, pivot, ext)
	if err != nil {
		outcome.Fail = fail(StageCheckBaseline, err)
		return outcome
	}

	cand, tierErr := p.runTiers(ctx, itemID, buys, sells, history, pivot)
	if tierErr == nil && refMid > 0 {
		mid := (cand.buy + cand.sell) / 2
		if dev := math.Abs(mid-refMid) / refMid; dev > p.cfg.MaxBaselineDeviationPct/100 {
			p.logger.Warn("tier result strays from reference",
				slog.String("item_id", itemID),
				slog.String("source", cand.source),
				slog.Float64("deviation", dev),
			)
			tierErr = errors.New("tier result strays from reference")
		}
	}
	if tierErr != nil {
		cand, err = p.fallback(ctx, itemID, pivot, ext)
		if err != nil {
			outcome.Fail = fail(StageExternalFallback, errors.Join(tierErr, err))
			return outcome
		}
	}
	outcome.Source = cand.source

	cand = p.deps.Bounder.Apply(itemID, attrs.QualityName, cand, history,
		len(buys)+len(sells), pivot, time.Now())
	if cand.buy <= 0 || cand.sell <= 0 {
		outcome.Fail = fail(StageBound, errors.New("non-positive price after bounds"))
		return outcome
	}

	if err := p.guard.Check(itemID, cand.buy, cand.sell, history); err != nil {
		outcome.Fail = fail(StageSwingCheck, err)
		return outcome
	}

	priced, err := p.emit(ctx, itemID, attrs.Name, cand, pivot)
	if err != nil {
		outcome.Fail = fail(StageEmit, err)
		return outcome
	}
	outcome.Priced = priced
	return outcome
}

// fetchListings pulls both sides of the book, retrying once under the
// definite-article naming variant when the canonical name has nothing.
func (p *Pipeline) fetchListings(ctx context.Context, name string) ([]domain.Listing, []domain.Listing, error) {
	buys, err := p.deps.Listings.GetListings(ctx, name, domain.SideBuy)
	if err != nil {
		return nil, nil, err
	}
	sells, err := p.deps.Listings.GetListings(ctx, name, domain.SideSell)
	if err != nil {
		return nil, nil, err
	}
	if len(buys)+len(sells) > 0 || strings.HasPrefix(name, "The ") {
		return buys, sells, nil
	}

	alt := "The " + name
	buys, err = p.deps.Listings.GetListings(ctx, alt, domain.SideBuy)
	if err != nil {
		return nil, nil, err
	}
	sells, err = p.deps.Listings.GetListings(ctx, alt, domain.SideSell)
	if err != nil {
		return nil, nil, err
	}
	return buys, sells, nil
}

// referenceMid returns the scalar mid of the reference quote an item must
// have before any price is emitted: the baseline feed first, then the
// external market. With neither, the item fails for this pass.
func (p *Pipeline) referenceMid(ctx context.Context, itemID string, pivot float64, ext map[string]extmarket.Quote) (float64, error) {
	if q, err := p.deps.Baseline.Quote(ctx, itemID); err == nil {
		return (q.Buy.ToMetal(pivot) + q.Sell.ToMetal(pivot)) / 2, nil
	}
	if q, ok := p.externalQuote(ctx, itemID, ext); ok {
		return (q.BuyMetal + q.SellMetal) / 2, nil
	}
	return 0, domain.ErrNoBaseline
}

// externalQuote resolves one item's secondary-market quote, preferring the
// pass's prefetched batch. Outside a pass (nil prefetch) it issues a
// single-item call.
func (p *Pipeline) externalQuote(ctx context.Context, itemID string, ext map[string]extmarket.Quote) (extmarket.Quote, bool) {
	if ext != nil {
		q, ok := ext[itemID]
		return q, ok
	}
	if p.deps.External == nil {
		return extmarket.Quote{}, false
	}
	q, err := p.deps.External.Quote(ctx, itemID)
	if err != nil {
		p.logger.Debug("external quote unavailable",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
		return extmarket.Quote{}, false
	}
	return q, true
}

// runTiers selects and executes the tier for the item's data shape.
func (p *Pipeline) runTiers(
	ctx context.Context,
	itemID string,
	buys, sells []domain.Listing,
	history []domain.PriceHistoryEntry,
	pivot float64,
) (candidate, error) {
	buyMetals := domain.Metals(buys, pivot)
	sellMetals := domain.Metals(sells, pivot)

	tier := selectTier(len(buys), len(sells), len(history))
	p.logger.Debug("tier selected",
		slog.String("item_id", itemID),
		slog.Int("tier", tier),
		slog.Int("buys", len(buys)),
		slog.Int("sells", len(sells)),
		slog.Int("history", len(history)),
	)

	switch tier {
	case 1:
		return p.tier1(buys, sells, history, pivot)
	case 2:
		return p.tier2(buyMetals, sellMetals)
	case 3:
		return p.tier3(history, time.Now())
	case 4:
		return p.tier4(buyMetals, sellMetals, history)
	default:
		return candidate{}, domain.ErrNoListings
	}
}

// fallback tries the external market, then (only when opted in) the baseline
// reference itself.
func (p *Pipeline) fallback(ctx context.Context, itemID string, pivot float64, ext map[string]extmarket.Quote) (candidate, error) {
	if q, ok := p.externalQuote(ctx, itemID, ext); ok {
		return candidate{buy: q.BuyMetal, sell: q.SellMetal, source: SourceExternal}, nil
	}

	if p.cfg.AllowBaselineFallback {
		q, err := p.deps.Baseline.Quote(ctx, itemID)
		if err == nil {
			return candidate{
				buy:    q.Buy.ToMetal(pivot),
				sell:   q.Sell.ToMetal(pivot),
				source: SourceBaseline,
			}, nil
		}
	}
	return candidate{}, domain.ErrNoBaseline
}

// emit rounds the candidate to the scrap grid, repairs an inverted or too
// tight quote by forcing the minimum margin, persists the history sample and
// price-list entry, and broadcasts the event. The broadcast is best-effort;
// persistence failures fail the item.
func (p *Pipeline) emit(ctx context.Context, itemID, name string, cand candidate, pivot float64) (*domain.PricedItem, error) {
	buy := domain.RoundMetal(cand.buy)
	sell := domain.RoundMetal(cand.sell)
	if buy >= sell {
		sell = domain.RoundMetal(buy + p.cfg.MinMarginMetal)
	}

	// The pivot item's own price stays in metal; splitting it into keys
	// would define the rate in terms of itself.
	convPivot := pivot
	if itemID == p.cfg.KeyItemID {
		convPivot = 0
	}

	now := time.Now()
	priced := &domain.PricedItem{
		ItemID:    itemID,
		ItemName:  name,
		Buy:       domain.MetalToCurrency(buy, convPivot),
		Sell:      domain.MetalToCurrency(sell, convPivot),
		EmittedAt: now,
	}
	if priced.Buy.ToMetal(pivot) >= priced.Sell.ToMetal(pivot) {
		return nil, domain.ErrPriceInverted
	}

	if err := p.deps.History.Append(ctx, domain.PriceHistoryEntry{
		ItemID:    itemID,
		BuyMetal:  buy,
		SellMetal: sell,
		Timestamp: now,
	}); err != nil {
		return nil, err
	}
	if err := p.deps.PriceList.Put(ctx, *priced); err != nil {
		return nil, err
	}

	event := domain.PriceEvent{
		ID:     uuid.NewString(),
		ItemID: itemID,
		Name:   name,
		Buy:    priced.Buy,
		Sell:   priced.Sell,
		Time:   now.Unix(),
		Source: cand.source,
	}
	if err := p.deps.Bus.PublishPrice(ctx, event); err != nil {
		p.logger.Warn("price broadcast failed",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}

	p.logger.Info("price emitted",
		slog.String("item_id", itemID),
		slog.String("name", name),
		slog.Float64("buy_metal", buy),
		slog.Float64("sell_metal", sell),
		slog.String("source", cand.source),
	)
	return priced, nil
}
