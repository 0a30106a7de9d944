// Package prompts caches prompt templates keyed by their typed description.
package prompts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// Required lists the templates the pipeline cannot run without.
var Required = []scrape.PromptKey{
	scrape.PromptClassifier,
	scrape.PromptCity,
	scrape.PromptGlobalIndustry,
}

// Catalog serves templates from memory and reloads them from the store once
// the refresh interval elapses. Concurrent reloads collapse into one query.
type Catalog struct {
	store    scrape.PromptStore
	clock    scrape.Clock
	interval time.Duration
	logger   *zap.Logger

	group singleflight.Group

	mu       sync.RWMutex
	byKey    map[scrape.PromptKey]scrape.PromptTemplate
	loadedAt time.Time
}

// New builds a catalog. interval <= 0 loads once and never refreshes.
func New(store scrape.PromptStore, clock scrape.Clock, interval time.Duration, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		store:    store,
		clock:    clock,
		interval: interval,
		logger:   logger.Named("prompts"),
	}
}

// Get returns the template for key, loading or refreshing the catalog as needed.
func (c *Catalog) Get(ctx context.Context, key scrape.PromptKey) (scrape.PromptTemplate, error) {
	if c.stale() {
		if err := c.Refresh(ctx); err != nil {
			c.mu.RLock()
			empty := c.byKey == nil
			c.mu.RUnlock()
			if empty {
				return scrape.PromptTemplate{}, err
			}
			c.logger.Warn("prompt refresh failed; serving cached templates", zap.Error(err))
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	tpl, ok := c.byKey[key]
	if !ok {
		return scrape.PromptTemplate{}, fmt.Errorf("prompt %q: %w", key, scrape.ErrNotFound)
	}
	return tpl, nil
}

// Refresh reloads every template from the store.
func (c *Catalog) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		templates, err := c.store.LoadPrompts(ctx)
		if err != nil {
			return nil, fmt.Errorf("load prompts: %w", err)
		}
		byKey := make(map[scrape.PromptKey]scrape.PromptTemplate, len(templates))
		for _, tpl := range templates {
			byKey[tpl.Key] = tpl
		}
		c.mu.Lock()
		c.byKey = byKey
		c.loadedAt = c.clock.Now()
		c.mu.Unlock()
		c.logger.Debug("prompts loaded", zap.Int("count", len(byKey)))
		return nil, nil
	})
	return err
}

// Validate reports the first required template missing from the catalog.
func (c *Catalog) Validate(ctx context.Context) error {
	for _, key := range Required {
		if _, err := c.Get(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.byKey == nil {
		return true
	}
	if c.interval <= 0 {
		return false
	}
	return c.clock.Now().Sub(c.loadedAt) >= c.interval
}
