// Package pipeline holds the per-type job handlers run by workers.
package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/JakeFAU/headline-scraper/internal/extract/secondary"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// Handler runs one claimed job and returns its outcome counters.
type Handler interface {
	Handle(ctx context.Context, job scrape.Job) (scrape.JobCounters, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job scrape.Job) (scrape.JobCounters, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job scrape.Job) (scrape.JobCounters, error) {
	return f(ctx, job)
}

// Extractor produces content for a URL, rotating secondary keys from cursor.
type Extractor interface {
	Extract(ctx context.Context, url string, cursor secondary.KeyCursor) (scrape.Extraction, secondary.KeyCursor, error)
}

// Classifier routes article text to an audience.
type Classifier interface {
	Classify(ctx context.Context, title, text string) (scrape.Classification, error)
}

// Summarizer produces the tiered summaries for a routed article.
type Summarizer interface {
	Summarize(ctx context.Context, ext scrape.Extraction, cls scrape.Classification) (scrape.Summary, error)
}

// EmbedSubmitter schedules background embedding of a stored article.
type EmbedSubmitter interface {
	Submit(ctx context.Context, article scrape.Article)
}

// ArticleNotifier announces stored articles.
type ArticleNotifier interface {
	ArticleStored(ctx context.Context, article scrape.Article)
}

// LinkLister lists article links through the secondary extraction API.
type LinkLister interface {
	List(ctx context.Context, url string, cursor secondary.KeyCursor) ([]string, secondary.KeyCursor, error)
}

// KeyRing holds the secondary key cursor shared by the handlers of one
// process, so rotation continues across jobs.
type KeyRing struct {
	mu     sync.Mutex
	cursor secondary.KeyCursor
}

// NewKeyRing returns a ring starting at the first key.
func NewKeyRing() *KeyRing {
	return &KeyRing{}
}

// Cursor returns the current cursor.
func (r *KeyRing) Cursor() secondary.KeyCursor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Advance stores the cursor returned by the last secondary call.
func (r *KeyRing) Advance(next secondary.KeyCursor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = next
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
