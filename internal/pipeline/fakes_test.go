package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/headline-scraper/internal/extract/secondary"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time {
	return c.now
}

type fakeExtractor struct {
	mu      sync.Mutex
	ext     scrape.Extraction
	err     error
	next    secondary.KeyCursor
	calls   int
	cursors []secondary.KeyCursor
}

func (f *fakeExtractor) Extract(_ context.Context, url string, cursor secondary.KeyCursor) (scrape.Extraction, secondary.KeyCursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cursors = append(f.cursors, cursor)
	if f.err != nil {
		return scrape.Extraction{}, f.next, f.err
	}
	ext := f.ext
	ext.URL = url
	return ext, f.next, nil
}

type fakeClassifier struct {
	cls   scrape.Classification
	err   error
	calls int
}

func (f *fakeClassifier) Classify(context.Context, string, string) (scrape.Classification, error) {
	f.calls++
	return f.cls, f.err
}

type fakeSummarizer struct {
	summary scrape.Summary
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(context.Context, scrape.Extraction, scrape.Classification) (scrape.Summary, error) {
	f.calls++
	return f.summary, f.err
}

type fakeEmbedder struct {
	mu        sync.Mutex
	submitted []scrape.Article
}

func (f *fakeEmbedder) Submit(_ context.Context, article scrape.Article) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, article)
}

type fakeNotifier struct {
	stored []scrape.Article
}

func (f *fakeNotifier) ArticleStored(_ context.Context, article scrape.Article) {
	f.stored = append(f.stored, article)
}

type conflictStore struct {
	scrape.ArticleStore
}

func (conflictStore) Exists(context.Context, string, string) (bool, error) {
	return false, nil
}

func (conflictStore) Insert(context.Context, scrape.Article) (int64, error) {
	return 0, scrape.ErrStoreConflict
}

type fakeHarvester struct {
	links []string
	err   error
	calls int
}

func (f *fakeHarvester) Harvest(context.Context, string, int) ([]string, error) {
	f.calls++
	return f.links, f.err
}

type fakeLister struct {
	links   []string
	err     error
	next    secondary.KeyCursor
	cursors []secondary.KeyCursor
}

func (f *fakeLister) List(_ context.Context, _ string, cursor secondary.KeyCursor) ([]string, secondary.KeyCursor, error) {
	f.cursors = append(f.cursors, cursor)
	return f.links, f.next, f.err
}

func strPtr(s string) *string {
	return &s
}
