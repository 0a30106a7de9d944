// Package dedupe fronts the processed-URL ledger with an in-process LRU.
// The ledger is append-only, so positive answers never go stale and only
// those are cached.
package dedupe

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// DefaultSize is the number of canonical URLs kept in memory.
const DefaultSize = 50_000

// Cache is a scrape.DedupeRegistry that remembers recorded URLs.
type Cache struct {
	next scrape.DedupeRegistry
	seen *lru.Cache[string, struct{}]
}

// New wraps next. size <= 0 selects DefaultSize.
func New(next scrape.DedupeRegistry, size int) (*Cache, error) {
	if next == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if size <= 0 {
		size = DefaultSize
	}
	seen, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Cache{next: next, seen: seen}, nil
}

// IsProcessed answers from memory when possible and caches positive lookups.
func (c *Cache) IsProcessed(ctx context.Context, canonicalURL string) (bool, error) {
	if c.seen.Contains(canonicalURL) {
		return true, nil
	}
	ok, err := c.next.IsProcessed(ctx, canonicalURL)
	if err != nil {
		return false, err
	}
	if ok {
		c.seen.Add(canonicalURL, struct{}{})
	}
	return ok, nil
}

// Record writes through and caches the URL on success.
func (c *Cache) Record(ctx context.Context, canonicalURL string, status scrape.ProcessedStatus) error {
	if err := c.next.Record(ctx, canonicalURL, status); err != nil {
		return err
	}
	c.seen.Add(canonicalURL, struct{}{})
	return nil
}

// Len reports how many URLs are cached.
func (c *Cache) Len() int {
	return c.seen.Len()
}
