package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/calebwaine/autopricer/internal/domain"
)

type fakeListingStore struct {
	mu       sync.Mutex
	upserted []domain.Listing
	deleted  []string
}

func (f *fakeListingStore) GetListings(ctx context.Context, itemName string, side domain.Side) ([]domain.Listing, error) {
	return nil, nil
}

func (f *fakeListingStore) UpsertBatch(ctx context.Context, listings []domain.Listing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, listings...)
	return nil
}

func (f *fakeListingStore) Delete(ctx context.Context, ownerID, itemName string, side domain.Side) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, itemName)
	return "5021;6", nil
}

func (f *fakeListingStore) DeleteStale(ctx context.Context, stats []domain.ListingActivityStats) (int64, error) {
	return 0, nil
}

func (f *fakeListingStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserted)
}

type fakeStatsStore struct {
	mu        sync.Mutex
	refreshed []string
}

func (f *fakeStatsStore) Refresh(ctx context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, itemID)
	return nil
}

func (f *fakeStatsStore) Get(ctx context.Context, itemID string) (domain.ListingActivityStats, error) {
	return domain.ListingActivityStats{}, domain.ErrNotFound
}

func (f *fakeStatsStore) List(ctx context.Context) ([]domain.ListingActivityStats, error) {
	return nil, nil
}

type fakeResolver struct {
	known map[string]string
}

func (f *fakeResolver) ResolveID(ctx context.Context, name string) (string, error) {
	if id, ok := f.known[name]; ok {
		return id, nil
	}
	return "", domain.ErrUnresolvedItem
}

func newTestIngestor(cfg Config, store *fakeListingStore, stats *fakeStatsStore) *Ingestor {
	resolver := &fakeResolver{known: map[string]string{
		"Mann Co. Supply Crate Key": "5021;6",
		"Tour of Duty Ticket":       "725;6",
	}}
	batcher := NewBatcher(store, stats, time.Hour, nil)
	monitor := NewMonitor(time.Hour, time.Hour, nil)
	return NewIngestor(cfg, resolver, batcher, store, stats, monitor, nil)
}

func TestDecodeEvents(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		events, err := DecodeEvents([]byte(`{"event":"listing-update","payload":{"item":{"name":"x"},"intent":"sell","steamid":"1"}}`))
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 || events[0].Event != EventListingUpdate {
			t.Errorf("events = %+v, want one listing-update", events)
		}
	})

	t.Run("array batch", func(t *testing.T) {
		events, err := DecodeEvents([]byte(`[{"event":"listing-update","payload":{}},{"event":"listing-delete","payload":{}}]`))
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 {
			t.Errorf("got %d events, want 2", len(events))
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := DecodeEvents([]byte(`not json`)); err == nil {
			t.Error("expected error for malformed message")
		}
	})
}

func TestIngestorValidate(t *testing.T) {
	cfg := Config{
		BlockedAttributes: map[string]struct{}{"australium": {}},
		ExcludedSources:   map[string]struct{}{"76561199000000000": {}},
	}
	store := &fakeListingStore{}
	in := newTestIngestor(cfg, store, &fakeStatsStore{})
	ctx := context.Background()

	valid := Payload{
		Item:       Item{Name: "Mann Co. Supply Crate Key"},
		Currencies: domain.Currency{Metal: 68.11},
		Intent:     "sell",
		SteamID:    "76561198000000001",
	}

	tests := []struct {
		name   string
		mutate func(p Payload) Payload
		want   bool
	}{
		{"valid listing", func(p Payload) Payload { return p }, true},
		{"unknown item", func(p Payload) Payload { p.Item.Name = "Unheard Of Item"; return p }, false},
		{"bad intent", func(p Payload) Payload { p.Intent = "swap"; return p }, false},
		{"zero price", func(p Payload) Payload { p.Currencies = domain.Currency{}; return p }, false},
		{"negative metal", func(p Payload) Payload { p.Currencies.Metal = -1; return p }, false},
		{"spelled item", func(p Payload) Payload { p.Item.Spells = []string{"Exorcism"}; return p }, false},
		{"blocked attribute", func(p Payload) Payload {
			p.Item.Attributes = []Attribute{{Value: "australium"}}
			return p
		}, false},
		{"excluded source", func(p Payload) Payload { p.SteamID = "76561199000000000"; return p }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := in.validate(ctx, tt.mutate(valid))
			if ok != tt.want {
				t.Errorf("validate() = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestIngestorTouchedSet(t *testing.T) {
	store := &fakeListingStore{}
	in := newTestIngestor(Config{}, store, &fakeStatsStore{})
	ctx := context.Background()

	p := Payload{
		Item:       Item{Name: "Mann Co. Supply Crate Key"},
		Currencies: domain.Currency{Metal: 68.11},
		Intent:     "sell",
		SteamID:    "76561198000000001",
	}
	in.handleUpdate(ctx, p)
	in.handleUpdate(ctx, p) // same item twice

	touched := in.TakeTouched()
	if len(touched) != 1 || touched[0] != "5021;6" {
		t.Errorf("touched = %v, want exactly [5021;6]", touched)
	}
	if again := in.TakeTouched(); len(again) != 0 {
		t.Errorf("TakeTouched did not clear the set: %v", again)
	}
	if in.batcher.Pending() != 2 {
		t.Errorf("queue depth = %d, want 2", in.batcher.Pending())
	}
}

func TestBatcherFlush(t *testing.T) {
	store := &fakeListingStore{}
	stats := &fakeStatsStore{}
	b := NewBatcher(store, stats, time.Hour, nil)

	for i := 0; i < 3; i++ {
		b.Add(domain.Listing{ItemID: "5021;6", ItemName: "key", Side: domain.SideSell})
	}
	b.Flush(context.Background())

	if got := store.upsertCount(); got != 3 {
		t.Errorf("upserted = %d, want 3", got)
	}
	if b.Pending() != 0 {
		t.Errorf("queue not cleared after flush: %d", b.Pending())
	}

	// Empty flush is a no-op.
	b.Flush(context.Background())
	if got := store.upsertCount(); got != 3 {
		t.Errorf("empty flush wrote rows: %d", got)
	}
}

func TestMonitorStaleness(t *testing.T) {
	m := NewMonitor(time.Second, 50*time.Millisecond, nil)

	if m.stale() {
		t.Error("monitor stale before any connection")
	}

	m.SetConnected(true)
	m.Record()
	if m.stale() {
		t.Error("monitor stale immediately after a message")
	}

	time.Sleep(80 * time.Millisecond)
	if !m.stale() {
		t.Error("monitor not stale past the timeout")
	}

	m.SetConnected(false)
	if m.stale() {
		t.Error("disconnected monitor reported stale")
	}

	st := m.Stats()
	if st.MessageCount != 1 || st.IsConnected {
		t.Errorf("stats = %+v, want one message, disconnected", st)
	}
}
