package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Unix(1700000000, 0).UTC()

func TestStoreRecordFirstStatusWins(t *testing.T) {
	t.Parallel()

	s := NewStore(fixedClock{t: testNow})
	ctx := context.Background()
	require.NoError(t, s.Record(ctx, "example.com/a", scrape.ProcessedTrash))
	require.NoError(t, s.Record(ctx, "example.com/a", scrape.ProcessedProcessed))

	ok, err := s.IsProcessed(ctx, "example.com/a")
	require.NoError(t, err)
	require.True(t, ok)
	rec, _ := s.Processed("example.com/a")
	require.Equal(t, scrape.ProcessedTrash, rec.Status)
}

func TestStoreInsertRejectsCollisions(t *testing.T) {
	t.Parallel()

	s := NewStore(fixedClock{t: testNow})
	ctx := context.Background()
	id, err := s.Insert(ctx, scrape.Article{URL: "https://www.example.com/a/", URLCanonical: "https://example.com/a"})
	require.NoError(t, err)
	require.EqualValues(t, 1, id)

	_, err = s.Insert(ctx, scrape.Article{URL: "https://example.com/a?utm_source=x", URLCanonical: "https://example.com/a"})
	require.ErrorIs(t, err, scrape.ErrStoreConflict)

	exists, err := s.Exists(ctx, "https://www.example.com/a/", "")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestStoreMarkEmbeddedOnce(t *testing.T) {
	t.Parallel()

	s := NewStore(fixedClock{t: testNow})
	ctx := context.Background()
	id, err := s.Insert(ctx, scrape.Article{URL: "u", URLCanonical: "c"})
	require.NoError(t, err)
	require.NoError(t, s.MarkEmbedded(ctx, id, "article_1"))
	require.NoError(t, s.MarkEmbedded(ctx, id, "article_other"))

	articles := s.Articles()
	require.True(t, articles[0].IsEmbedded)
	require.Equal(t, "article_1", articles[0].VectorID)
}

func TestStoreClaimDue(t *testing.T) {
	t.Parallel()

	s := NewStore(fixedClock{t: testNow})
	recent := testNow.Add(-time.Hour)
	old := testNow.Add(-72 * time.Hour)
	older := testNow.Add(-96 * time.Hour)
	s.PutSource(scrape.Source{ID: 1, Name: "Austin Monitor", Verified: true, HasBeenProcessed: true, LastScrapedAt: &old})
	s.PutSource(scrape.Source{ID: 2, Name: "Austin Chronicle", Verified: true, HasBeenProcessed: true})
	s.PutSource(scrape.Source{ID: 3, Name: "Fresh", Verified: true, HasBeenProcessed: true, LastScrapedAt: &recent})
	s.PutSource(scrape.Source{ID: 4, Name: "Unverified", HasBeenProcessed: true})
	s.PutSource(scrape.Source{ID: 5, Name: "Enqueued", Verified: true, HasBeenProcessed: true, LastEnqueuedAt: &recent})
	s.PutSource(scrape.Source{ID: 6, Name: "Dallas News", Verified: true, HasBeenProcessed: true, LastScrapedAt: &older})
	ctx := context.Background()

	dry, err := s.ClaimDue(ctx, 10, "", true)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 6, 1}, sourceIDs(dry))
	require.Nil(t, dry[0].LastEnqueuedAt)

	filtered, err := s.ClaimDue(ctx, 10, "austin", false)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 1}, sourceIDs(filtered))

	again, err := s.ClaimDue(ctx, 10, "", false)
	require.NoError(t, err)
	require.Equal(t, []int64{6}, sourceIDs(again))
}

func TestStoreMarkScraped(t *testing.T) {
	t.Parallel()

	s := NewStore(fixedClock{t: testNow})
	ctx := context.Background()
	require.ErrorIs(t, s.MarkScraped(ctx, 1, testNow), scrape.ErrNotFound)
	s.PutSource(scrape.Source{ID: 1})
	require.NoError(t, s.MarkScraped(ctx, 1, testNow))
	src, err := s.GetSource(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, testNow, *src.LastScrapedAt)
}

func sourceIDs(sources []scrape.Source) []int64 {
	ids := make([]int64, 0, len(sources))
	for _, src := range sources {
		ids = append(ids, src.ID)
	}
	return ids
}
