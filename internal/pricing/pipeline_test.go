package pricing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/calebwaine/autopricer/internal/baseline"
	"github.com/calebwaine/autopricer/internal/discovery"
	"github.com/calebwaine/autopricer/internal/domain"
	"github.com/calebwaine/autopricer/internal/extmarket"
	"github.com/calebwaine/autopricer/internal/schema"
)

type fakeListings struct {
	byName map[string]map[domain.Side][]domain.Listing
}

func (f *fakeListings) GetListings(ctx context.Context, itemName string, side domain.Side) ([]domain.Listing, error) {
	return f.byName[itemName][side], nil
}

func (f *fakeListings) UpsertBatch(ctx context.Context, listings []domain.Listing) error {
	return nil
}

func (f *fakeListings) Delete(ctx context.Context, ownerID, itemName string, side domain.Side) (string, error) {
	return "", domain.ErrNotFound
}

func (f *fakeListings) DeleteStale(ctx context.Context, stats []domain.ListingActivityStats) (int64, error) {
	return 0, nil
}

type fakeHistory struct {
	mu       sync.Mutex
	entries  map[string][]domain.PriceHistoryEntry
	appended []domain.PriceHistoryEntry
}

func (f *fakeHistory) Append(ctx context.Context, entry domain.PriceHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, entry)
	return nil
}

func (f *fakeHistory) Recent(ctx context.Context, itemID string, limit int, maxAge time.Duration) ([]domain.PriceHistoryEntry, error) {
	return f.entries[itemID], nil
}

func (f *fakeHistory) OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.PriceHistoryEntry, error) {
	return nil, nil
}

func (f *fakeHistory) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakePriceList struct {
	mu    sync.Mutex
	items map[string]domain.PricedItem
}

func (f *fakePriceList) Put(ctx context.Context, item domain.PricedItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items == nil {
		f.items = make(map[string]domain.PricedItem)
	}
	f.items[item.ItemID] = item
	return nil
}

func (f *fakePriceList) Get(ctx context.Context, itemID string) (domain.PricedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return domain.PricedItem{}, domain.ErrNotFound
	}
	return item, nil
}

func (f *fakePriceList) All(ctx context.Context) ([]domain.PricedItem, error) {
	return nil, nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []domain.PriceEvent
}

func (f *fakeBus) PublishPrice(ctx context.Context, event domain.PriceEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type fakePipelineResolver struct {
	names map[string]string
}

func (f *fakePipelineResolver) ResolveName(ctx context.Context, id string) (schema.ItemAttributes, error) {
	name, ok := f.names[id]
	if !ok {
		return schema.ItemAttributes{}, domain.ErrUnresolvedItem
	}
	return schema.ItemAttributes{Name: name, QualityName: "Unique"}, nil
}

type fakeBaseline struct {
	quotes map[string]baseline.Quote
}

func (f *fakeBaseline) Quote(ctx context.Context, itemID string) (baseline.Quote, error) {
	q, ok := f.quotes[itemID]
	if !ok {
		return baseline.Quote{}, domain.ErrNoBaseline
	}
	return q, nil
}

type fakeExternal struct {
	mu          sync.Mutex
	quotes      map[string]extmarket.Quote
	singleCalls int
	batchCalls  int
}

func (f *fakeExternal) Quote(ctx context.Context, itemID string) (extmarket.Quote, error) {
	f.mu.Lock()
	f.singleCalls++
	f.mu.Unlock()
	q, ok := f.quotes[itemID]
	if !ok {
		return extmarket.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

func (f *fakeExternal) Quotes(ctx context.Context, itemIDs []string) (map[string]extmarket.Quote, error) {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()
	out := make(map[string]extmarket.Quote, len(itemIDs))
	for _, id := range itemIDs {
		if q, ok := f.quotes[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

type fixture struct {
	listings *fakeListings
	history  *fakeHistory
	list     *fakePriceList
	bus      *fakeBus
	baseline *fakeBaseline
	external *fakeExternal
	pivot    *domain.PivotRate
}

func newFixture() *fixture {
	return &fixture{
		listings: &fakeListings{byName: make(map[string]map[domain.Side][]domain.Listing)},
		history:  &fakeHistory{entries: make(map[string][]domain.PriceHistoryEntry)},
		list:     &fakePriceList{},
		bus:      &fakeBus{},
		baseline: &fakeBaseline{quotes: make(map[string]baseline.Quote)},
		external: &fakeExternal{quotes: make(map[string]extmarket.Quote)},
		pivot:    domain.NewPivotRate(68),
	}
}

func (fx *fixture) addListings(name string, side domain.Side, metals ...float64) {
	if fx.listings.byName[name] == nil {
		fx.listings.byName[name] = make(map[domain.Side][]domain.Listing)
	}
	for i, m := range metals {
		fx.listings.byName[name][side] = append(fx.listings.byName[name][side], domain.Listing{
			ItemName: name,
			Side:     side,
			Price:    domain.Currency{Metal: m},
			OwnerID:  string(rune('a' + i)),
		})
	}
}

func (fx *fixture) pipeline(cfg Config, names map[string]string) *Pipeline {
	return NewPipeline(cfg, Dependencies{
		Engine:    discovery.NewEngine(discovery.DefaultConfig(), nil),
		Bounder:   NewBounder(DefaultBoundsConfig(), nil),
		Listings:  fx.listings,
		History:   fx.history,
		PriceList: fx.list,
		Bus:       fx.bus,
		Resolver:  &fakePipelineResolver{names: names},
		Baseline:  fx.baseline,
		External:  fx.external,
		Pivot:     fx.pivot,
	}, nil)
}

func TestSelectTier(t *testing.T) {
	tests := []struct {
		name                 string
		buys, sells, history int
		want                 int
	}{
		{"balanced book", 4, 4, 0, 1},
		{"deep one side", 6, 1, 0, 2},
		{"deep sell side", 1, 6, 0, 2},
		{"thin book long history", 1, 1, 6, 3},
		{"thin book no history", 1, 1, 0, 4},
		{"single listing", 1, 0, 0, 0},
		{"nothing at all", 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := selectTier(tt.buys, tt.sells, tt.history); got != tt.want {
				t.Errorf("selectTier(%d, %d, %d) = %d, want %d",
					tt.buys, tt.sells, tt.history, got, tt.want)
			}
		})
	}
}

func TestSwingGuard(t *testing.T) {
	history := make([]domain.PriceHistoryEntry, 5)
	for i := range history {
		history[i] = domain.PriceHistoryEntry{BuyMetal: 10, SellMetal: 11}
	}
	guard := NewGuard(10, 10, "key-id")

	if err := guard.Check("item", 11.5, 11, history); err == nil {
		t.Error("buy jump to 11.5 against average 10 passed a 10% guard")
	}
	if err := guard.Check("item", 10.9, 11, history); err != nil {
		t.Errorf("buy 10.9 against average 10 rejected: %v", err)
	}
	if err := guard.Check("item", 10, 9.5, history); err == nil {
		t.Error("sell drop to 9.5 against average 11 passed a 10% guard")
	}
	if err := guard.Check("key-id", 50, 11, history); err != nil {
		t.Errorf("pivot item not exempt from swing guard: %v", err)
	}
	if err := guard.Check("item", 11.5, 11, nil); err != nil {
		t.Errorf("guard rejected with no history: %v", err)
	}
}

func TestComputePriceTier1EndToEnd(t *testing.T) {
	fx := newFixture()
	fx.addListings("Tour of Duty Ticket", domain.SideBuy, 9.00, 9.25, 9.50)
	fx.addListings("Tour of Duty Ticket", domain.SideSell, 9.75, 10.00, 10.25)
	fx.baseline.quotes["725;6"] = baseline.Quote{
		ItemID: "725;6",
		Buy:    domain.Currency{Metal: 9},
		Sell:   domain.Currency{Metal: 10},
	}
	p := fx.pipeline(Config{}, map[string]string{"725;6": "Tour of Duty Ticket"})

	outcome := p.ComputePrice(context.Background(), "725;6")
	if !outcome.Emitted() {
		t.Fatalf("clean tier-1 item not emitted: %+v", outcome.Fail)
	}
	if outcome.Source != SourceTier1 {
		t.Errorf("source = %q, want %q", outcome.Source, SourceTier1)
	}

	pivot := fx.pivot.Metal()
	buy := outcome.Priced.Buy.ToMetal(pivot)
	sell := outcome.Priced.Sell.ToMetal(pivot)
	if buy >= sell {
		t.Errorf("emitted buy %.2f not strictly below sell %.2f", buy, sell)
	}
	if buy < 9.0 || buy > 9.6 {
		t.Errorf("buy = %.2f, want near the robust mean of the buy side", buy)
	}
	if sell < 9.6 || sell > 10.25 {
		t.Errorf("sell = %.2f, want within the sell side's range", sell)
	}

	if len(fx.history.appended) != 1 {
		t.Fatalf("history rows appended = %d, want 1", len(fx.history.appended))
	}
	if len(fx.bus.events) != 1 {
		t.Fatalf("events published = %d, want 1", len(fx.bus.events))
	}
	if fx.bus.events[0].ID == "" || fx.bus.events[0].Source != SourceTier1 {
		t.Errorf("event = %+v, want an id and tier1 source", fx.bus.events[0])
	}
	if _, err := fx.list.Get(context.Background(), "725;6"); err != nil {
		t.Errorf("price list missing emitted item: %v", err)
	}
}

func TestComputePriceNoBaselineFails(t *testing.T) {
	fx := newFixture()
	fx.addListings("Tour of Duty Ticket", domain.SideBuy, 9.00, 9.25, 9.50)
	fx.addListings("Tour of Duty Ticket", domain.SideSell, 9.75, 10.00, 10.25)
	p := fx.pipeline(Config{}, map[string]string{"725;6": "Tour of Duty Ticket"})

	outcome := p.ComputePrice(context.Background(), "725;6")
	if outcome.Emitted() {
		t.Fatal("item emitted with no reference quote at all")
	}
	if outcome.Fail.Stage != StageCheckBaseline {
		t.Errorf("failed at %q, want %q", outcome.Fail.Stage, StageCheckBaseline)
	}
}

func TestComputePriceExternalReferenceSuffices(t *testing.T) {
	fx := newFixture()
	fx.addListings("Tour of Duty Ticket", domain.SideBuy, 9.00, 9.25, 9.50)
	fx.addListings("Tour of Duty Ticket", domain.SideSell, 9.75, 10.00, 10.25)
	fx.external.quotes["725;6"] = extmarket.Quote{ItemID: "725;6", BuyMetal: 9, SellMetal: 10}
	p := fx.pipeline(Config{}, map[string]string{"725;6": "Tour of Duty Ticket"})

	outcome := p.ComputePrice(context.Background(), "725;6")
	if !outcome.Emitted() {
		t.Fatalf("item with external reference not emitted: %+v", outcome.Fail)
	}
}

func TestComputePriceDefiniteArticleRetry(t *testing.T) {
	fx := newFixture()
	fx.addListings("The Team Captain", domain.SideBuy, 20, 21, 22)
	fx.addListings("The Team Captain", domain.SideSell, 24, 25, 26)
	fx.baseline.quotes["378;6"] = baseline.Quote{
		ItemID: "378;6",
		Buy:    domain.Currency{Metal: 21},
		Sell:   domain.Currency{Metal: 25},
	}
	p := fx.pipeline(Config{}, map[string]string{"378;6": "Team Captain"})

	outcome := p.ComputePrice(context.Background(), "378;6")
	if !outcome.Emitted() {
		t.Fatalf("definite-article variant not retried: %+v", outcome.Fail)
	}
}

func TestComputePriceFallsBackToExternalMarket(t *testing.T) {
	fx := newFixture()
	// One listing: no tier applies.
	fx.addListings("Tour of Duty Ticket", domain.SideSell, 10)
	fx.baseline.quotes["725;6"] = baseline.Quote{
		ItemID: "725;6",
		Buy:    domain.Currency{Metal: 9},
		Sell:   domain.Currency{Metal: 10},
	}
	fx.external.quotes["725;6"] = extmarket.Quote{ItemID: "725;6", BuyMetal: 9.1, SellMetal: 9.9}
	p := fx.pipeline(Config{}, map[string]string{"725;6": "Tour of Duty Ticket"})

	outcome := p.ComputePrice(context.Background(), "725;6")
	if !outcome.Emitted() {
		t.Fatalf("external fallback not taken: %+v", outcome.Fail)
	}
	if outcome.Source != SourceExternal {
		t.Errorf("source = %q, want %q", outcome.Source, SourceExternal)
	}
}

func TestComputePriceBaselineFallbackIsOptIn(t *testing.T) {
	fx := newFixture()
	fx.addListings("Tour of Duty Ticket", domain.SideSell, 10)
	fx.baseline.quotes["725;6"] = baseline.Quote{
		ItemID: "725;6",
		Buy:    domain.Currency{Metal: 9},
		Sell:   domain.Currency{Metal: 10},
	}
	names := map[string]string{"725;6": "Tour of Duty Ticket"}

	outcome := fx.pipeline(Config{}, names).ComputePrice(context.Background(), "725;6")
	if outcome.Emitted() {
		t.Fatal("baseline emitted as a price without opt-in")
	}
	if outcome.Fail.Stage != StageExternalFallback {
		t.Errorf("failed at %q, want %q", outcome.Fail.Stage, StageExternalFallback)
	}

	outcome = fx.pipeline(Config{AllowBaselineFallback: true}, names).
		ComputePrice(context.Background(), "725;6")
	if !outcome.Emitted() {
		t.Fatalf("opted-in baseline fallback not taken: %+v", outcome.Fail)
	}
	if outcome.Source != SourceBaseline {
		t.Errorf("source = %q, want %q", outcome.Source, SourceBaseline)
	}
}

func TestRunPassUpdatesPivotFirst(t *testing.T) {
	fx := newFixture()
	fx.addListings("Mann Co. Supply Crate Key", domain.SideBuy, 67.5, 67.8, 68.0)
	fx.addListings("Mann Co. Supply Crate Key", domain.SideSell, 68.3, 68.5, 68.8)
	fx.baseline.quotes["5021;6"] = baseline.Quote{
		ItemID: "5021;6",
		Buy:    domain.Currency{Metal: 67},
		Sell:   domain.Currency{Metal: 69},
	}
	p := fx.pipeline(Config{KeyItemID: "5021;6"}, map[string]string{
		"5021;6": "Mann Co. Supply Crate Key",
	})

	outcomes := p.RunPass(context.Background(), []string{"5021;6"})
	if len(outcomes) != 1 || !outcomes[0].Emitted() {
		t.Fatalf("key item not emitted: %+v", outcomes)
	}
	if outcomes[0].Priced.Sell.Keys != 0 {
		t.Errorf("pivot item priced in keys: %+v", outcomes[0].Priced.Sell)
	}

	pivot := fx.pivot.Metal()
	if pivot < 68 || pivot > 69 {
		t.Errorf("pivot = %.2f, want the key's fresh sell price", pivot)
	}
}

func TestRunPassCollectsAllOutcomes(t *testing.T) {
	fx := newFixture()
	fx.addListings("Tour of Duty Ticket", domain.SideBuy, 9.00, 9.25, 9.50)
	fx.addListings("Tour of Duty Ticket", domain.SideSell, 9.75, 10.00, 10.25)
	fx.baseline.quotes["725;6"] = baseline.Quote{
		ItemID: "725;6",
		Buy:    domain.Currency{Metal: 9},
		Sell:   domain.Currency{Metal: 10},
	}
	p := fx.pipeline(Config{}, map[string]string{"725;6": "Tour of Duty Ticket"})

	// The unknown item must fail alone without taking the pass down.
	outcomes := p.RunPass(context.Background(), []string{"725;6", "999;6"})
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want one per item", len(outcomes))
	}
	var emitted, failed int
	for _, o := range outcomes {
		if o.Emitted() {
			emitted++
		} else {
			failed++
		}
	}
	if emitted != 1 || failed != 1 {
		t.Errorf("emitted=%d failed=%d, want 1 and 1", emitted, failed)
	}
}

func TestRunPassBatchesExternalCalls(t *testing.T) {
	fx := newFixture()
	// One listing each: no tier applies, both items need the external market
	// for the reference and the fallback.
	fx.addListings("Tour of Duty Ticket", domain.SideSell, 10)
	fx.addListings("Secret Saxton", domain.SideSell, 5)
	fx.external.quotes["725;6"] = extmarket.Quote{ItemID: "725;6", BuyMetal: 9.1, SellMetal: 9.9}
	fx.external.quotes["726;6"] = extmarket.Quote{ItemID: "726;6", BuyMetal: 4.5, SellMetal: 5.2}
	p := fx.pipeline(Config{}, map[string]string{
		"725;6": "Tour of Duty Ticket",
		"726;6": "Secret Saxton",
	})

	outcomes := p.RunPass(context.Background(), []string{"725;6", "726;6"})
	for _, o := range outcomes {
		if !o.Emitted() {
			t.Fatalf("item %s not emitted via external fallback: %+v", o.ItemID, o.Fail)
		}
		if o.Source != SourceExternal {
			t.Errorf("item %s source = %q, want %q", o.ItemID, o.Source, SourceExternal)
		}
	}
	if fx.external.batchCalls != 1 {
		t.Errorf("batched external fetches = %d, want exactly 1 per pass", fx.external.batchCalls)
	}
	if fx.external.singleCalls != 0 {
		t.Errorf("single external fetches = %d, want 0 during a pass", fx.external.singleCalls)
	}
}

func TestEmitRepairsInvertedQuote(t *testing.T) {
	fx := newFixture()
	p := fx.pipeline(Config{}, nil)

	priced, err := p.emit(context.Background(), "725;6", "Tour of Duty Ticket",
		candidate{buy: 10, sell: 9.5, source: SourceTier4}, 0)
	if err != nil {
		t.Fatal(err)
	}
	buy, sell := priced.Buy.Metal, priced.Sell.Metal
	if buy >= sell {
		t.Errorf("inverted quote not repaired: buy %.2f, sell %.2f", buy, sell)
	}
	if sell-buy < 0.1 {
		t.Errorf("forced margin too small: %.2f", sell-buy)
	}
}
