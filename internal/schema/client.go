// Package schema is the client for the external item-schema service, which
// translates item names to stable item identifiers and back. The service is
// consumed as a black box; lookups are cached in-process so per-event
// validation stays off the network.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/calebwaine/autopricer/internal/domain"
)

// ItemAttributes are the canonical attributes the service reports for an id.
type ItemAttributes struct {
	Name        string `json:"name"`
	Defindex    int    `json:"defindex"`
	Quality     int    `json:"quality"`
	QualityName string `json:"quality_name"`
	Craftable   bool   `json:"craftable"`
}

// Client resolves item names and ids against the schema service.
type Client struct {
	baseURL    string
	httpClient *http.Client

	cacheTTL time.Duration
	mu       sync.RWMutex
	byName   map[string]cachedID
	byID     map[string]cachedAttrs
}

type cachedID struct {
	id      string
	expires time.Time
}

type cachedAttrs struct {
	attrs   ItemAttributes
	expires time.Time
}

// NewClient creates a schema client.
//
// baseURL is the schema service root; cacheTTL bounds how long resolved
// lookups are reused (zero means 24h).
func NewClient(baseURL string, cacheTTL time.Duration) *Client {
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cacheTTL: cacheTTL,
		byName:   make(map[string]cachedID),
		byID:     make(map[string]cachedAttrs),
	}
}

// ResolveID returns the stable item identifier for a name, or
// domain.ErrUnresolvedItem when the service does not know the name.
func (c *Client) ResolveID(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	cached, ok := c.byName[name]
	c.mu.RUnlock()
	if ok && time.Now().Before(cached.expires) {
		return cached.id, nil
	}

	body, err := c.doGet(ctx, "/schema/id?name="+url.QueryEscape(name))
	if err != nil {
		return "", fmt.Errorf("schema: resolve id for %q: %w", name, err)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("schema: decode id for %q: %w", name, err)
	}
	if resp.ID == "" {
		return "", domain.ErrUnresolvedItem
	}

	c.mu.Lock()
	c.byName[name] = cachedID{id: resp.ID, expires: time.Now().Add(c.cacheTTL)}
	c.mu.Unlock()
	return resp.ID, nil
}

// ResolveName returns the canonical attributes for an item id.
func (c *Client) ResolveName(ctx context.Context, id string) (ItemAttributes, error) {
	c.mu.RLock()
	cached, ok := c.byID[id]
	c.mu.RUnlock()
	if ok && time.Now().Before(cached.expires) {
		return cached.attrs, nil
	}

	body, err := c.doGet(ctx, "/schema/item?id="+url.QueryEscape(id))
	if err != nil {
		return ItemAttributes{}, fmt.Errorf("schema: resolve name for %q: %w", id, err)
	}

	var attrs ItemAttributes
	if err := json.Unmarshal(body, &attrs); err != nil {
		return ItemAttributes{}, fmt.Errorf("schema: decode item %q: %w", id, err)
	}
	if attrs.Name == "" {
		return ItemAttributes{}, domain.ErrUnresolvedItem
	}

	c.mu.Lock()
	c.byID[id] = cachedAttrs{attrs: attrs, expires: time.Now().Add(c.cacheTTL)}
	c.mu.Unlock()
	return attrs, nil
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

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrUnresolvedItem
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
