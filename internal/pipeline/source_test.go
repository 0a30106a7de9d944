package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/extract/secondary"
	queuemem "github.com/JakeFAU/headline-scraper/internal/queue/memory"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
	"github.com/JakeFAU/headline-scraper/internal/storage/memory"
)

var sourceNow = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

type sourceFixture struct {
	store     *memory.Store
	queue     *queuemem.Queue
	harvester *fakeHarvester
	lister    *fakeLister
	handler   *SourceHandler
}

func newSourceFixture(t *testing.T, cfg SourceConfig) *sourceFixture {
	t.Helper()
	clock := fakeClock{now: sourceNow}
	f := &sourceFixture{
		store:     memory.NewStore(clock),
		queue:     queuemem.NewQueue(clock),
		harvester: &fakeHarvester{},
		lister:    &fakeLister{},
	}
	f.store.PutSource(scrape.Source{ID: 3, Name: "Example Gazette", URL: "https://example.com/local"})
	f.handler = NewSourceHandler(SourceDeps{
		Sources:   f.store,
		Registry:  f.store,
		Queue:     f.queue,
		Harvester: f.harvester,
		Lister:    f.lister,
		Clock:     clock,
	}, cfg, zap.NewNop())
	return f
}

func sourceJob(t *testing.T, payload scrape.SourcePayload) scrape.Job {
	t.Helper()
	body, err := scrape.MarshalPayload(payload)
	require.NoError(t, err)
	return scrape.Job{ID: 20, Type: scrape.JobTypeSource, Payload: body}
}

func enqueuedURLs(t *testing.T, q *queuemem.Queue) []string {
	t.Helper()
	var urls []string
	for _, job := range q.Jobs() {
		require.Equal(t, scrape.JobTypeArticle, job.Type)
		var p scrape.ArticlePayload
		require.NoError(t, scrape.DecodePayload(job, &p))
		require.NotNil(t, p.SourceID)
		require.Equal(t, int64(3), *p.SourceID)
		urls = append(urls, p.URL)
	}
	return urls
}

func TestSourceHandler_EnqueuesAdmittedLinks(t *testing.T) {
	t.Parallel()

	f := newSourceFixture(t, SourceConfig{RequireSameRegion: true})
	f.harvester.links = []string{
		"https://example.com/2024/05/road-work-begins",
		"https://example.com/about",
		"https://cdn.example.com/photo.jpg",
		"https://elsewhere.org/2024/05/unrelated",
		"https://example.com/2024/05/road-work-begins?utm_source=feed",
		"https://example.com/2024/05/already-seen",
		"https://example.com/2024/05/library-reopens",
	}
	require.NoError(t, f.store.Record(context.Background(),
		"https://example.com/2024/05/already-seen", scrape.ProcessedProcessed))

	counters, err := f.handler.Handle(context.Background(), sourceJob(t, scrape.SourcePayload{SourceID: 3}))
	require.NoError(t, err)
	require.Equal(t, scrape.JobCounters{LinksFound: 7, LinksSkipped: 1, ArticlesSaved: 2}, counters)
	require.Equal(t, []string{
		"https://example.com/2024/05/road-work-begins",
		"https://example.com/2024/05/library-reopens",
	}, enqueuedURLs(t, f.queue))

	src, err := f.store.GetSource(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, src.LastScrapedAt)
	require.True(t, src.LastScrapedAt.Equal(sourceNow))
}

func TestSourceHandler_StopsAtLimit(t *testing.T) {
	t.Parallel()

	f := newSourceFixture(t, SourceConfig{})
	f.harvester.links = []string{
		"https://example.com/2024/05/one",
		"https://example.com/2024/05/two",
		"https://example.com/2024/05/three",
		"https://example.com/2024/05/four",
	}
	require.NoError(t, f.store.Record(context.Background(), "https://example.com/2024/05/one", scrape.ProcessedTrash))

	counters, err := f.handler.Handle(context.Background(), sourceJob(t, scrape.SourcePayload{SourceID: 3, Limit: 2}))
	require.NoError(t, err)
	require.Equal(t, 1, counters.LinksSkipped)
	require.Equal(t, 1, counters.ArticlesSaved)
	require.Equal(t, []string{"https://example.com/2024/05/two"}, enqueuedURLs(t, f.queue))
}

func TestSourceHandler_FallsBackToLister(t *testing.T) {
	t.Parallel()

	f := newSourceFixture(t, SourceConfig{})
	f.harvester.err = errors.New("403 forbidden")
	f.lister.links = []string{"https://example.com/2024/05/from-list"}
	f.lister.next = secondary.KeyCursor{Next: 1}

	counters, err := f.handler.Handle(context.Background(), sourceJob(t, scrape.SourcePayload{SourceID: 3}))
	require.NoError(t, err)
	require.Equal(t, 1, counters.ArticlesSaved)
	require.Equal(t, []secondary.KeyCursor{{}}, f.lister.cursors)
	require.Equal(t, secondary.KeyCursor{Next: 1}, f.handler.deps.Keys.Cursor())
}

func TestSourceHandler_CollectionFailureFailsJob(t *testing.T) {
	t.Parallel()

	f := newSourceFixture(t, SourceConfig{})
	f.harvester.err = errors.New("timeout")
	f.lister.err = scrape.ErrExtractionFailed

	_, err := f.handler.Handle(context.Background(), sourceJob(t, scrape.SourcePayload{SourceID: 3}))
	require.ErrorIs(t, err, scrape.ErrExtractionFailed)
	require.Empty(t, f.queue.Jobs())
}

func TestSourceHandler_UnknownSource(t *testing.T) {
	t.Parallel()

	f := newSourceFixture(t, SourceConfig{})
	_, err := f.handler.Handle(context.Background(), sourceJob(t, scrape.SourcePayload{SourceID: 99}))
	require.ErrorIs(t, err, scrape.ErrNotFound)
	require.Zero(t, f.harvester.calls)
}

func TestQueryURL(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://example.com/feed.xml", queryURL(" https://example.com/feed.xml "))
	require.Empty(t, queryURL("category=news"))
	require.Empty(t, queryURL("ftp://example.com/x"))
}
