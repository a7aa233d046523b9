// Package extmarket is the client for the secondary external market used as a
// pricing fallback. Calls run in small batches with an inter-batch delay and a
// sliding-window rate limit, because the upstream enforces a strict quota.
package extmarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/calebwaine/autopricer/internal/domain"
)

// rateLimitKey identifies this client's quota bucket in the limiter.
const rateLimitKey = "extmarket"

// Quote is one secondary-market price for an item, in scalar metal.
type Quote struct {
	ItemID    string  `json:"id"`
	BuyMetal  float64 `json:"buy_metal"`
	SellMetal float64 `json:"sell_metal"`
}

// Config bounds the client against the third-party quota.
type Config struct {
	BaseURL    string
	BatchSize  int
	BatchDelay time.Duration
	Limit      int
	Window     time.Duration
}

// Client fetches secondary-market quotes under the configured quota.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    domain.RateLimiter
	logger     *slog.Logger
}

// NewClient creates an external-market client.
func NewClient(cfg Config, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 2 * time.Second
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: limiter,
		logger:  logger.With(slog.String("component", "extmarket")),
	}
}

// Quote fetches a single item's secondary-market quote, waiting on the rate
// limiter first.
func (c *Client) Quote(ctx context.Context, itemID string) (Quote, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rateLimitKey, c.cfg.Limit, c.cfg.Window); err != nil {
			return Quote{}, fmt.Errorf("extmarket: quote %s: %w", itemID, err)
		}
	}

	body, err := c.doGet(ctx, "/quote/"+url.PathEscape(itemID))
	if err != nil {
		return Quote{}, fmt.Errorf("extmarket: quote %s: %w", itemID, err)
	}

	var q Quote
	if err := json.Unmarshal(body, &q); err != nil {
		return Quote{}, fmt.Errorf("extmarket: decode quote %s: %w", itemID, err)
	}
	if q.BuyMetal <= 0 || q.SellMetal <= 0 {
		return Quote{}, domain.ErrNotFound
	}
	return q, nil
}

// Quotes fetches quotes for many items in batches, sleeping between batches.
// Items that fail are skipped; the result holds whatever succeeded.
func (c *Client) Quotes(ctx context.Context, itemIDs []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(itemIDs))

	for start := 0; start < len(itemIDs); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(itemIDs) {
			end = len(itemIDs)
		}

		for _, id := range itemIDs[start:end] {
			q, err := c.Quote(ctx, id)
			if err != nil {
				c.logger.Debug("external quote unavailable",
					slog.String("item_id", id),
					slog.String("error", err.Error()),
				)
				continue
			}
			out[id] = q
		}

		if end < len(itemIDs) {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(c.cfg.BatchDelay):
			}
		}
	}
	return out, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
