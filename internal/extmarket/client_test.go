package extmarket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/calebwaine/autopricer/internal/domain"
)

func TestQuotesBatchesUnderQuota(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		id := strings.TrimPrefix(r.URL.Path, "/quote/")
		if id == "404;6" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"id":%q,"buy_metal":9.1,"sell_metal":9.9}`, id)
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:    srv.URL,
		BatchSize:  2,
		BatchDelay: 20 * time.Millisecond,
	}, nil, nil)

	started := time.Now()
	quotes, err := c.Quotes(context.Background(), []string{"1;6", "2;6", "404;6", "4;6", "5;6"})
	if err != nil {
		t.Fatal(err)
	}

	if len(quotes) != 4 {
		t.Errorf("quotes = %d, want 4 (failed item skipped)", len(quotes))
	}
	if _, ok := quotes["404;6"]; ok {
		t.Error("failed item present in result")
	}
	if got := requests.Load(); got != 5 {
		t.Errorf("upstream requests = %d, want one per item", got)
	}
	// Five items at batch size 2 means two inter-batch delays.
	if elapsed := time.Since(started); elapsed < 40*time.Millisecond {
		t.Errorf("elapsed %s, want at least two batch delays", elapsed)
	}
}

func TestQuoteRejectsEmptySides(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"1;6","buy_metal":0,"sell_metal":9.9}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil, nil)
	if _, err := c.Quote(context.Background(), "1;6"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("zero-side quote error = %v, want ErrNotFound", err)
	}
}
