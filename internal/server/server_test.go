package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/calebwaine/autopricer/internal/domain"
	"github.com/calebwaine/autopricer/internal/feed"
)

type staticPriceList struct {
	items []domain.PricedItem
}

func (s *staticPriceList) Put(ctx context.Context, item domain.PricedItem) error { return nil }

func (s *staticPriceList) Get(ctx context.Context, itemID string) (domain.PricedItem, error) {
	return domain.PricedItem{}, domain.ErrNotFound
}

func (s *staticPriceList) All(ctx context.Context) ([]domain.PricedItem, error) {
	return s.items, nil
}

func newTestServer(items []domain.PricedItem, connected bool) *Server {
	monitor := feed.NewMonitor(time.Hour, time.Hour, nil)
	monitor.SetConnected(connected)
	return New(Config{Port: 0}, monitor, &staticPriceList{items: items}, nil)
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("connected feed reports ok", func(t *testing.T) {
		s := newTestServer(nil, true)
		rec := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body struct {
			Status string     `json:"status"`
			Feed   feed.Stats `json:"feed"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Status != "ok" || !body.Feed.IsConnected {
			t.Errorf("body = %+v, want ok and connected", body)
		}
	})

	t.Run("disconnected feed reports degraded", func(t *testing.T) {
		s := newTestServer(nil, false)
		rec := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		var body struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Status != "degraded" {
			t.Errorf("status = %q, want degraded", body.Status)
		}
	})
}

func TestPriceListEndpoint(t *testing.T) {
	s := newTestServer([]domain.PricedItem{
		{ItemID: "5021;6", ItemName: "Mann Co. Supply Crate Key", Sell: domain.Currency{Metal: 68.11}},
	}, true)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pricelist", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Count int                 `json:"count"`
		Items []domain.PricedItem `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 || len(body.Items) != 1 || body.Items[0].ItemID != "5021;6" {
		t.Errorf("body = %+v, want the single seeded item", body)
	}
}
