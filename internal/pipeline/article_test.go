package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/extract/secondary"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
	"github.com/JakeFAU/headline-scraper/internal/storage/memory"
)

const storyURL = "https://www.example.com/2024/05/council-approves-budget?utm_source=x"

type articleFixture struct {
	store      *memory.Store
	extractor  *fakeExtractor
	classifier *fakeClassifier
	summarizer *fakeSummarizer
	embedder   *fakeEmbedder
	notifier   *fakeNotifier
	handler    *ArticleHandler
}

func newArticleFixture(t *testing.T) *articleFixture {
	t.Helper()
	f := &articleFixture{
		store: memory.NewStore(fakeClock{now: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)}),
		extractor: &fakeExtractor{ext: scrape.Extraction{
			Title: "Council approves budget",
			Text:  "The city council approved the budget on Tuesday.",
			Via:   "primary",
		}},
		classifier: &fakeClassifier{cls: scrape.Classification{
			Label:    scrape.LabelCity,
			CitySlug: "springfield-il",
			Scope:    "[city:springfield-il]",
		}},
		summarizer: &fakeSummarizer{summary: scrape.Summary{
			Title:     "Springfield council approves budget",
			Short:     strPtr("short"),
			Medium:    strPtr("medium"),
			Long:      strPtr("long"),
			Topic:     "Budget",
			MainTopic: "Government",
			Subtopics: []string{"finance"},
		}},
		embedder: &fakeEmbedder{},
		notifier: &fakeNotifier{},
	}
	f.handler = NewArticleHandler(ArticleDeps{
		Registry:   f.store,
		Articles:   f.store,
		Extractor:  f.extractor,
		Classifier: f.classifier,
		Summarizer: f.summarizer,
		Embedder:   f.embedder,
		Notifier:   f.notifier,
	}, zap.NewNop())
	return f
}

func articleJob(t *testing.T, id int64, url string) scrape.Job {
	t.Helper()
	sourceID := int64(7)
	payload, err := scrape.MarshalPayload(scrape.ArticlePayload{URL: url, SourceID: &sourceID})
	require.NoError(t, err)
	return scrape.Job{ID: id, Type: scrape.JobTypeArticle, Payload: payload}
}

func TestArticleHandler_StoresArticle(t *testing.T) {
	t.Parallel()

	f := newArticleFixture(t)
	counters, err := f.handler.Handle(context.Background(), articleJob(t, 1, storyURL))
	require.NoError(t, err)
	require.Equal(t, scrape.JobCounters{ArticlesSaved: 1}, counters)

	articles := f.store.Articles()
	require.Len(t, articles, 1)
	got := articles[0]
	require.Equal(t, storyURL, got.URL)
	require.Equal(t, "https://example.com/2024/05/council-approves-budget", got.URLCanonical)
	require.Equal(t, "Springfield council approves budget", got.Title)
	require.Equal(t, "[city:springfield-il]", got.AudienceScope)
	require.Equal(t, "springfield-il", got.Location)
	require.Equal(t, []string{"finance"}, got.Subtopics)
	require.NotNil(t, got.SourceID)
	require.Equal(t, int64(7), *got.SourceID)

	rec, ok := f.store.Processed(got.URLCanonical)
	require.True(t, ok)
	require.Equal(t, scrape.ProcessedProcessed, rec.Status)

	require.Len(t, f.embedder.submitted, 1)
	require.Equal(t, got.ID, f.embedder.submitted[0].ID)
	require.Len(t, f.notifier.stored, 1)
}

func TestArticleHandler_SkipsRegisteredURL(t *testing.T) {
	t.Parallel()

	f := newArticleFixture(t)
	require.NoError(t, f.store.Record(context.Background(),
		"https://example.com/2024/05/council-approves-budget", scrape.ProcessedTrash))

	counters, err := f.handler.Handle(context.Background(), articleJob(t, 2, storyURL))
	require.NoError(t, err)
	require.Equal(t, scrape.JobCounters{}, counters)
	require.Zero(t, f.extractor.calls)
	require.Empty(t, f.store.Articles())
}

func TestArticleHandler_SkipsStoredArticle(t *testing.T) {
	t.Parallel()

	f := newArticleFixture(t)
	_, err := f.store.Insert(context.Background(), scrape.Article{
		URL:          "https://example.com/other-path",
		URLCanonical: "https://example.com/2024/05/council-approves-budget",
	})
	require.NoError(t, err)

	counters, err := f.handler.Handle(context.Background(), articleJob(t, 3, storyURL))
	require.NoError(t, err)
	require.Equal(t, scrape.JobCounters{}, counters)
	require.Zero(t, f.extractor.calls)
}

func TestArticleHandler_TrashRecordsURL(t *testing.T) {
	t.Parallel()

	f := newArticleFixture(t)
	f.classifier.cls = scrape.Classification{Label: scrape.LabelTrash}

	counters, err := f.handler.Handle(context.Background(), articleJob(t, 4, storyURL))
	require.NoError(t, err)
	require.Equal(t, scrape.JobCounters{}, counters)
	require.Zero(t, f.summarizer.calls)
	require.Empty(t, f.store.Articles())

	rec, ok := f.store.Processed("https://example.com/2024/05/council-approves-budget")
	require.True(t, ok)
	require.Equal(t, scrape.ProcessedTrash, rec.Status)
}

func TestArticleHandler_ExtractionFailureFailsJob(t *testing.T) {
	t.Parallel()

	f := newArticleFixture(t)
	f.extractor.err = scrape.ErrExtractionFailed

	_, err := f.handler.Handle(context.Background(), articleJob(t, 5, storyURL))
	require.ErrorIs(t, err, scrape.ErrExtractionFailed)
	require.Zero(t, f.classifier.calls)
	_, ok := f.store.Processed("https://example.com/2024/05/council-approves-budget")
	require.False(t, ok)
}

func TestArticleHandler_MalformedStagesFailJob(t *testing.T) {
	t.Parallel()

	f := newArticleFixture(t)
	f.classifier.err = scrape.ErrClassificationMalformed
	_, err := f.handler.Handle(context.Background(), articleJob(t, 6, storyURL))
	require.ErrorIs(t, err, scrape.ErrClassificationMalformed)

	f = newArticleFixture(t)
	f.summarizer.err = scrape.ErrSummaryMalformed
	_, err = f.handler.Handle(context.Background(), articleJob(t, 7, storyURL))
	require.ErrorIs(t, err, scrape.ErrSummaryMalformed)
	require.Empty(t, f.store.Articles())
}

func TestArticleHandler_StoreConflictIsSuccess(t *testing.T) {
	t.Parallel()

	f := newArticleFixture(t)
	handler := NewArticleHandler(ArticleDeps{
		Registry:   f.store,
		Articles:   conflictStore{},
		Extractor:  f.extractor,
		Classifier: f.classifier,
		Summarizer: f.summarizer,
		Embedder:   f.embedder,
	}, zap.NewNop())

	counters, err := handler.Handle(context.Background(), articleJob(t, 8, storyURL))
	require.NoError(t, err)
	require.Equal(t, scrape.JobCounters{}, counters)
	require.Empty(t, f.embedder.submitted)

	rec, ok := f.store.Processed("https://example.com/2024/05/council-approves-budget")
	require.True(t, ok)
	require.Equal(t, scrape.ProcessedProcessed, rec.Status)
}

func TestArticleHandler_InvalidURL(t *testing.T) {
	t.Parallel()

	f := newArticleFixture(t)
	_, err := f.handler.Handle(context.Background(), articleJob(t, 9, `{"url":"https://x.com"}`))
	require.ErrorIs(t, err, scrape.ErrInvalidURL)

	_, err = f.handler.Handle(context.Background(), articleJob(t, 10, ""))
	require.ErrorIs(t, err, scrape.ErrInvalidURL)
	require.Zero(t, f.extractor.calls)
}

func TestArticleHandler_CursorCarriesAcrossJobs(t *testing.T) {
	t.Parallel()

	f := newArticleFixture(t)
	f.extractor.err = errors.New("all keys exhausted")
	f.extractor.next = secondary.KeyCursor{Next: 2}

	_, err := f.handler.Handle(context.Background(), articleJob(t, 11, "https://example.com/a/story-one"))
	require.Error(t, err)
	_, err = f.handler.Handle(context.Background(), articleJob(t, 12, "https://example.com/a/story-two"))
	require.Error(t, err)

	require.Equal(t, []secondary.KeyCursor{{Next: 0}, {Next: 2}}, f.extractor.cursors)
}
