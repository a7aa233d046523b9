package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/calebwaine/autopricer/internal/domain"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr(), PoolSize: 4})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEventBusRoundTrip(t *testing.T) {
	bus := NewEventBus(newTestClient(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.SubscribePrices(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	published := domain.PriceEvent{
		ID:     "evt-1",
		ItemID: "5021;6",
		Name:   "Mann Co. Supply Crate Key",
		Buy:    domain.Currency{Metal: 67.5},
		Sell:   domain.Currency{Metal: 68.1},
		Time:   time.Now().Unix(),
		Source: "tier1",
	}
	if err := bus.PublishPrice(ctx, published); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-events:
		if got.ID != published.ID || got.ItemID != published.ItemID {
			t.Errorf("received %+v, want the published event", got)
		}
		if got.Buy.Metal != 67.5 || got.Sell.Metal != 68.1 {
			t.Errorf("currencies did not survive the round trip: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the broadcast event")
	}

	// Cancelling the subscription context closes the channel.
	cancel()
	select {
	case _, open := <-events:
		if open {
			t.Error("event received after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancellation")
	}
}

func TestPriceListCacheRoundTrip(t *testing.T) {
	pc := NewPriceListCache(newTestClient(t))
	ctx := context.Background()

	item := domain.PricedItem{
		ItemID:    "725;6",
		ItemName:  "Tour of Duty Ticket",
		Buy:       domain.Currency{Metal: 9.11},
		Sell:      domain.Currency{Metal: 9.88},
		EmittedAt: time.Now(),
	}
	if err := pc.Put(ctx, item); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := pc.Get(ctx, "725;6")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ItemName != item.ItemName || got.Buy.Metal != 9.11 {
		t.Errorf("got %+v, want the stored item", got)
	}

	if _, err := pc.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing item error = %v, want ErrNotFound", err)
	}

	// Put replaces by id rather than appending.
	item.Sell.Metal = 10.11
	if err := pc.Put(ctx, item); err != nil {
		t.Fatalf("second put: %v", err)
	}
	all, err := pc.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("items = %d, want 1 after replace", len(all))
	}
	if all[0].Sell.Metal != 10.11 {
		t.Errorf("sell = %.2f, want the replaced value", all[0].Sell.Metal)
	}
}
