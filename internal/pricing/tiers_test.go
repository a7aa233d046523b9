package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/calebwaine/autopricer/internal/domain"
)

func testPipeline() *Pipeline {
	return NewPipeline(Config{}, Dependencies{}, nil)
}

func flatHistory(mid float64, n int) []domain.PriceHistoryEntry {
	now := time.Now()
	entries := make([]domain.PriceHistoryEntry, n)
	for i := range entries {
		entries[i] = domain.PriceHistoryEntry{
			BuyMetal:  mid,
			SellMetal: mid,
			Timestamp: now.Add(-time.Duration(i) * time.Hour),
		}
	}
	return entries
}

func TestTier2SynthesizesThinSide(t *testing.T) {
	p := testPipeline()

	c, err := p.tier2([]float64{10, 10, 10, 10, 10, 10}, []float64{12})
	if err != nil {
		t.Fatal(err)
	}
	if c.buy != 10 {
		t.Errorf("deep-side buy = %.2f, want 10", c.buy)
	}
	wantSell := 10 * (1 + p.cfg.SpreadOffset)
	if math.Abs(c.sell-wantSell) > 1e-9 {
		t.Errorf("synthesized sell = %.4f, want %.4f", c.sell, wantSell)
	}

	c, err = p.tier2([]float64{9}, []float64{12, 12, 12, 12, 12})
	if err != nil {
		t.Fatal(err)
	}
	if c.sell != 12 {
		t.Errorf("deep-side sell = %.2f, want 12", c.sell)
	}
	if c.buy >= 12 {
		t.Errorf("synthesized buy = %.2f, want below the sell estimate", c.buy)
	}
}

func TestTier3ProjectsTrend(t *testing.T) {
	p := testPipeline()
	now := time.Now()

	t.Run("flat history", func(t *testing.T) {
		c, err := p.tier3(flatHistory(10, 6), now)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(c.buy-10*(1-p.cfg.TrendMargin)) > 0.01 {
			t.Errorf("buy = %.4f, want symmetric margin below 10", c.buy)
		}
		if math.Abs(c.sell-10*(1+p.cfg.TrendMargin)) > 0.01 {
			t.Errorf("sell = %.4f, want symmetric margin above 10", c.sell)
		}
	})

	t.Run("rising history projects above the last sample", func(t *testing.T) {
		// Newest first, climbing 0.1 metal per hour.
		entries := make([]domain.PriceHistoryEntry, 6)
		for i := range entries {
			mid := 10 - 0.1*float64(i)
			entries[i] = domain.PriceHistoryEntry{
				BuyMetal:  mid,
				SellMetal: mid,
				Timestamp: now.Add(-time.Duration(i) * time.Hour),
			}
		}
		c, err := p.tier3(entries, now)
		if err != nil {
			t.Fatal(err)
		}
		mid := (c.buy + c.sell) / 2
		if mid < 9.9 {
			t.Errorf("projected mid = %.4f, want at least the newest sample", mid)
		}
	})

	t.Run("too little history", func(t *testing.T) {
		if _, err := p.tier3(flatHistory(10, 4), now); err == nil {
			t.Error("tier 3 accepted fewer than five history points")
		}
	})
}

func TestTier4SynthesizesMissingSide(t *testing.T) {
	p := testPipeline()

	c, err := p.tier4(nil, []float64{10, 10.2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.sell < 10 || c.sell > 10.2 {
		t.Errorf("sell = %.2f, want within the sample range", c.sell)
	}
	wantBuy := c.sell * p.cfg.BuyFromSellRatio
	if math.Abs(c.buy-wantBuy) > 1e-9 {
		t.Errorf("synthesized buy = %.4f, want %.4f", c.buy, wantBuy)
	}

	c, err = p.tier4([]float64{8, 8.2}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	wantSell := c.buy * p.cfg.SellFromBuyRatio
	if math.Abs(c.sell-wantSell) > 1e-9 {
		t.Errorf("synthesized sell = %.4f, want %.4f", c.sell, wantSell)
	}

	c, err = p.tier4(nil, nil, flatHistory(10, 3))
	if err != nil {
		t.Fatal(err)
	}
	if c.buy <= 0 || c.sell <= 0 || c.buy >= c.sell {
		t.Errorf("historical synthesis produced buy %.2f, sell %.2f", c.buy, c.sell)
	}

	if _, err := p.tier4(nil, nil, nil); err == nil {
		t.Error("tier 4 produced a price from nothing")
	}
}

func TestBounderClampsToStaticLimits(t *testing.T) {
	cfg := DefaultBoundsConfig()
	cfg.Items = map[string]ItemBounds{
		"725;6": {
			MinBuy:  domain.Currency{Metal: 9},
			MaxBuy:  domain.Currency{Metal: 9.5},
			MinSell: domain.Currency{Metal: 9.6},
			MaxSell: domain.Currency{Metal: 11},
		},
	}
	b := NewBounder(cfg, nil)

	c := b.Apply("725;6", "Unique", candidate{buy: 20, sell: 30}, nil, 6, 0, time.Now())
	if c.buy != 9.5 {
		t.Errorf("buy = %.2f, want clamped to 9.5", c.buy)
	}
	if c.sell != 11 {
		t.Errorf("sell = %.2f, want clamped to 11", c.sell)
	}

	c = b.Apply("725;6", "Unique", candidate{buy: 1, sell: 2}, nil, 6, 0, time.Now())
	if c.buy != 9 || c.sell != 9.6 {
		t.Errorf("floor clamp produced buy %.2f, sell %.2f", c.buy, c.sell)
	}

	// Unconfigured items pass through untouched.
	c = b.Apply("999;6", "Unique", candidate{buy: 20, sell: 30}, nil, 6, 0, time.Now())
	if c.buy != 20 || c.sell != 30 {
		t.Errorf("unconfigured item clamped: buy %.2f, sell %.2f", c.buy, c.sell)
	}
}

func TestBounderDynamicCorridor(t *testing.T) {
	b := NewBounder(DefaultBoundsConfig(), nil)
	history := flatHistory(10, 10)

	// A candidate far above stable history is pulled back into the corridor.
	c := b.Apply("725;6", "Unique", candidate{buy: 30, sell: 40}, history, 10, 0, time.Now())
	if c.buy > 12 || c.sell > 12 {
		t.Errorf("corridor did not rein in buy %.2f, sell %.2f", c.buy, c.sell)
	}

	// A candidate near the history center is left alone.
	c = b.Apply("725;6", "Unique", candidate{buy: 9.9, sell: 10.1}, history, 10, 0, time.Now())
	if math.Abs(c.buy-9.9) > 0.2 || math.Abs(c.sell-10.1) > 0.2 {
		t.Errorf("stable candidate moved: buy %.2f, sell %.2f", c.buy, c.sell)
	}
}
