package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// Store is an in-memory implementation of the dedupe registry, article,
// source, and prompt stores.
type Store struct {
	mu        sync.RWMutex
	clock     scrape.Clock
	processed map[string]scrape.ProcessedURL
	articles  map[int64]scrape.Article
	byURL     map[string]int64
	sources   map[int64]scrape.Source
	prompts   map[scrape.PromptKey]scrape.PromptTemplate
	nextID    int64
	// DueAfter is how long a source rests between scrapes.
	DueAfter time.Duration
}

// NewStore constructs an empty Store. A nil clock uses wall time.
func NewStore(clock scrape.Clock) *Store {
	return &Store{
		clock:     clock,
		processed: make(map[string]scrape.ProcessedURL),
		articles:  make(map[int64]scrape.Article),
		byURL:     make(map[string]int64),
		sources:   make(map[int64]scrape.Source),
		prompts:   make(map[scrape.PromptKey]scrape.PromptTemplate),
		DueAfter:  24 * time.Hour,
	}
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

// IsProcessed reports whether the canonical URL was recorded.
func (s *Store) IsProcessed(_ context.Context, canonicalURL string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.processed[canonicalURL]
	return ok, nil
}

// Record appends to the ledger; the first status wins.
func (s *Store) Record(_ context.Context, canonicalURL string, status scrape.ProcessedStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[canonicalURL]; ok {
		return nil
	}
	s.processed[canonicalURL] = scrape.ProcessedURL{URL: canonicalURL, Status: status, ProcessedAt: s.now()}
	return nil
}

// Processed returns the ledger entry for a URL.
func (s *Store) Processed(canonicalURL string) (scrape.ProcessedURL, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.processed[canonicalURL]
	return rec, ok
}

// Exists reports whether an article holds either URL.
func (s *Store) Exists(_ context.Context, url, canonicalURL string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, a := s.byURL[url]
	_, b := s.byURL[canonicalURL]
	return a || b, nil
}

// Insert stores an article, rejecting url or canonical collisions.
func (s *Store) Insert(_ context.Context, article scrape.Article) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byURL[article.URL]; ok {
		return 0, fmt.Errorf("insert article %s: %w", article.URL, scrape.ErrStoreConflict)
	}
	if _, ok := s.byURL[article.URLCanonical]; ok {
		return 0, fmt.Errorf("insert article %s: %w", article.URLCanonical, scrape.ErrStoreConflict)
	}
	s.nextID++
	article.ID = s.nextID
	article.CreatedAt = s.now()
	article.IsEmbedded = false
	article.VectorID = ""
	s.articles[article.ID] = article
	s.byURL[article.URL] = article.ID
	s.byURL[article.URLCanonical] = article.ID
	return article.ID, nil
}

// MarkEmbedded sets the vector id once.
func (s *Store) MarkEmbedded(_ context.Context, articleID int64, vectorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	article, ok := s.articles[articleID]
	if !ok || article.IsEmbedded {
		return nil
	}
	article.IsEmbedded = true
	article.VectorID = vectorID
	s.articles[articleID] = article
	return nil
}

// Articles returns stored articles ordered by id.
func (s *Store) Articles() []scrape.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.Article, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PutSource adds or replaces a source row.
func (s *Store) PutSource(src scrape.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID] = src
}

// GetSource loads a source by id.
func (s *Store) GetSource(_ context.Context, sourceID int64) (scrape.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return scrape.Source{}, fmt.Errorf("source %d: %w", sourceID, scrape.ErrNotFound)
	}
	return src, nil
}

// ClaimDue mirrors the Postgres selection: verified, processed sources whose
// scrape and enqueue stamps are unset or older than DueAfter, never-scraped first.
func (s *Store) ClaimDue(_ context.Context, limit int, query string, dryRun bool) ([]scrape.Source, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	cutoff := now.Add(-s.DueAfter)
	needle := strings.ToLower(query)
	var due []scrape.Source
	for _, src := range s.sources {
		if !src.Verified || !src.HasBeenProcessed {
			continue
		}
		if !staleOrUnset(src.LastScrapedAt, cutoff) || !staleOrUnset(src.LastEnqueuedAt, cutoff) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(src.Name), needle) {
			continue
		}
		due = append(due, src)
	}
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i].LastScrapedAt, due[j].LastScrapedAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}
	if dryRun {
		return due, nil
	}
	for i := range due {
		stamp := now
		due[i].LastEnqueuedAt = &stamp
		s.sources[due[i].ID] = due[i]
	}
	return due, nil
}

// MarkScraped stamps last_scraped_at.
func (s *Store) MarkScraped(_ context.Context, sourceID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return fmt.Errorf("source %d: %w", sourceID, scrape.ErrNotFound)
	}
	src.LastScrapedAt = &at
	s.sources[sourceID] = src
	return nil
}

// PutPrompt adds or replaces a prompt template.
func (s *Store) PutPrompt(tpl scrape.PromptTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts[tpl.Key] = tpl
}

// LoadPrompts returns every template.
func (s *Store) LoadPrompts(_ context.Context) ([]scrape.PromptTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.PromptTemplate, 0, len(s.prompts))
	for _, tpl := range s.prompts {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func staleOrUnset(at *time.Time, cutoff time.Time) bool {
	return at == nil || at.Before(cutoff)
}
