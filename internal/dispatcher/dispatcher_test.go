package dispatcher

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/pipeline"
	queuemem "github.com/JakeFAU/headline-scraper/internal/queue/memory"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
	"github.com/JakeFAU/headline-scraper/internal/worker"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

type countingDrainer struct {
	waits atomic.Int32
}

func (d *countingDrainer) Wait() {
	d.waits.Add(1)
}

func TestDispatcherRunProcessesJobsAndDrains(t *testing.T) {
	t.Parallel()

	q := queuemem.NewQueue(nil)
	var handled atomic.Int32
	handlers := map[scrape.JobType]pipeline.Handler{
		scrape.JobTypeArticle: pipeline.HandlerFunc(func(context.Context, scrape.Job) (scrape.JobCounters, error) {
			handled.Add(1)
			return scrape.JobCounters{ArticlesSaved: 1}, nil
		}),
	}
	workers := []*worker.Worker{
		worker.New(q, handlers, worker.Config{ID: "w1", PollInterval: 5 * time.Millisecond}, zap.NewNop()),
		worker.New(q, handlers, worker.Config{ID: "w2", PollInterval: 5 * time.Millisecond}, zap.NewNop()),
	}
	for range 4 {
		_, err := q.Enqueue(context.Background(), scrape.JobTypeArticle, json.RawMessage(`{}`))
		require.NoError(t, err)
	}

	drain := &countingDrainer{}
	d := New(q, workers, drain, fixedClock{now: time.Now()}, Config{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return handled.Load() == 4 }, time.Second, 5*time.Millisecond)
	require.Zero(t, drain.waits.Load())
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
	require.Equal(t, int32(1), drain.waits.Load())
	for _, job := range q.Jobs() {
		require.Equal(t, scrape.JobStatusDone, job.Status)
	}
}

func TestDispatcherSweepFailsExpiredLeases(t *testing.T) {
	t.Parallel()

	claimedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := queuemem.NewQueue(fixedClock{now: claimedAt})
	stale, err := q.Enqueue(context.Background(), scrape.JobTypeSource, json.RawMessage(`{}`))
	require.NoError(t, err)
	queued, err := q.Enqueue(context.Background(), scrape.JobTypeSource, json.RawMessage(`{}`))
	require.NoError(t, err)
	job, err := q.Claim(context.Background(), "crashed-worker")
	require.NoError(t, err)
	require.Equal(t, stale, job.ID)

	d := New(q, nil, nil, fixedClock{now: claimedAt.Add(31 * time.Minute)}, Config{}, zap.NewNop())
	n, err := d.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := q.Status(context.Background(), stale)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusError, got.Status)
	require.Equal(t, scrape.LeaseExpiredMessage, got.ErrorMessage)

	got, err = q.Status(context.Background(), queued)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusQueued, got.Status)
}

func TestDispatcherSweepKeepsFreshLeases(t *testing.T) {
	t.Parallel()

	claimedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := queuemem.NewQueue(fixedClock{now: claimedAt})
	_, err := q.Enqueue(context.Background(), scrape.JobTypeArticle, json.RawMessage(`{}`))
	require.NoError(t, err)
	_, err = q.Claim(context.Background(), "busy-worker")
	require.NoError(t, err)

	d := New(q, nil, nil, fixedClock{now: claimedAt.Add(10 * time.Minute)}, Config{}, zap.NewNop())
	n, err := d.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}
