// Package baseline is the client for the lower-trust reference price feed.
// The pipeline never emits a price without a sane baseline: a zero or missing
// quote fails the item rather than inventing a reference.
package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/calebwaine/autopricer/internal/domain"
)

// Quote is one baseline reference price for an item.
type Quote struct {
	ItemID string          `json:"id"`
	Buy    domain.Currency `json:"buy"`
	Sell   domain.Currency `json:"sell"`
}

// Client fetches and caches baseline quotes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewClient creates a baseline feed client.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(slog.String("component", "baseline")),
		quotes: make(map[string]Quote),
	}
}

// Refresh fetches the full baseline quote list and replaces the cache. It is
// driven by the scheduler; a failed refresh keeps the previous snapshot.
func (c *Client) Refresh(ctx context.Context) error {
	body, err := c.doGet(ctx, "/prices")
	if err != nil {
		return fmt.Errorf("baseline: refresh: %w", err)
	}

	var resp struct {
		Items []Quote `json:"items"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("baseline: decode prices: %w", err)
	}

	quotes := make(map[string]Quote, len(resp.Items))
	for _, q := range resp.Items {
		quotes[q.ItemID] = q
	}

	c.mu.Lock()
	c.quotes = quotes
	c.mu.Unlock()

	c.logger.Info("baseline refreshed", slog.Int("items", len(quotes)))
	return nil
}

// Quote returns the cached baseline quote for an item. A quote with a zero
// side is reported as unavailable, since a zero reference is as useless as a
// missing one.
func (c *Client) Quote(ctx context.Context, itemID string) (Quote, error) {
	c.mu.RLock()
	q, ok := c.quotes[itemID]
	c.mu.RUnlock()

	if !ok {
		// Cache miss: try a direct lookup before giving up.
		body, err := c.doGet(ctx, "/prices/"+url.PathEscape(itemID))
		if err != nil {
			return Quote{}, domain.ErrNoBaseline
		}
		if err := json.Unmarshal(body, &q); err != nil {
			return Quote{}, fmt.Errorf("baseline: decode quote %s: %w", itemID, err)
		}
		c.mu.Lock()
		c.quotes[itemID] = q
		c.mu.Unlock()
	}

	if q.Buy.IsZero() || q.Sell.IsZero() {
		return Quote{}, domain.ErrNoBaseline
	}
	return q, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
