// Package imagecache looks up a representative image for a place name and
// remembers the answer, including "nothing found", for a while.
package imagecache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

type entry struct {
	url     string // empty when the lookup found nothing
	expires time.Time
}

// Cache memoises lookups by query. Entries expire after ttl.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

// NewCache creates a Cache whose entries live for ttl.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// Get returns the cached URL for q and whether a lookup was already attempted.
func (c *Cache) Get(q string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[normalizeQuery(q)]
	if !ok || !c.now().Before(e.expires) {
		return "", false
	}
	return e.url, true
}

// Put records the outcome of a lookup. An empty url records a miss.
func (c *Cache) Put(q, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[normalizeQuery(q)] = entry{url: url, expires: c.now().Add(c.ttl)}
}

// Evict drops expired entries and returns how many were removed.
func (c *Cache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Client resolves place names to image URLs through an HTTP lookup service,
// answering from the cache when it can.
type Client struct {
	endpoint string
	http     *http.Client
	cache    *Cache
	logger   *slog.Logger
}

// NewClient creates a Client for endpoint backed by cache.
func NewClient(endpoint string, cache *Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
		cache:    cache,
		logger:   logger,
	}
}

// Lookup returns an image URL for name, or "" when none is known. Failed
// lookups are cached as misses so the service is not asked again until
// the entry expires.
func (c *Client) Lookup(ctx context.Context, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", nil
	}
	if u, ok := c.cache.Get(name); ok {
		return u, nil
	}
	if c.endpoint == "" {
		c.cache.Put(name, "")
		return "", nil
	}

	u, err := c.fetch(ctx, name)
	if err != nil {
		c.logger.Warn("imagecache: lookup failed", slog.String("query", name), slog.String("error", err.Error()))
		c.cache.Put(name, "")
		return "", err
	}
	c.cache.Put(name, u)
	return u, nil
}

func (c *Client) fetch(ctx context.Context, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?q="+url.QueryEscape(name), nil)
	if err != nil {
		return "", fmt.Errorf("imagecache: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("imagecache: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("imagecache: status %d", resp.StatusCode)
	}
	var body struct {
		ImageURL string `json:"image_url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("imagecache: decode: %w", err)
	}
	return body.ImageURL, nil
}
