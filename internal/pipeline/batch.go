package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// DefaultBatchSize is the number of sources a batch job claims.
const DefaultBatchSize = 50

// BatchHandler claims due sources and enqueues one source job per source.
type BatchHandler struct {
	sources     scrape.SourceStore
	queue       scrape.JobQueue
	sourceLimit int
	logger      *zap.Logger
}

// NewBatchHandler builds the handler. sourceLimit is copied into every
// enqueued source payload; zero leaves the source job default in place.
func NewBatchHandler(sources scrape.SourceStore, queue scrape.JobQueue, sourceLimit int, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{
		sources:     sources,
		queue:       queue,
		sourceLimit: sourceLimit,
		logger:      logger.Named("batch"),
	}
}

// Handle runs one batch job. links_found reports the sources selected.
func (h *BatchHandler) Handle(ctx context.Context, job scrape.Job) (scrape.JobCounters, error) {
	var payload scrape.BatchPayload
	if err := scrape.DecodePayload(job, &payload); err != nil {
		return scrape.JobCounters{}, err
	}
	size := payload.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	selected, err := h.sources.ClaimDue(ctx, size, payload.Query, payload.DryRun)
	if err != nil {
		return scrape.JobCounters{}, fmt.Errorf("claim due sources: %w", err)
	}
	counters := scrape.JobCounters{LinksFound: len(selected)}
	logger := h.logger.With(zap.Int64("job_id", job.ID), zap.Bool("dry_run", payload.DryRun))
	if payload.DryRun {
		for _, src := range selected {
			logger.Info("dry run source", zap.Int64("source_id", src.ID), zap.String("name", src.Name))
		}
		return counters, nil
	}

	enqueued := 0
	for _, src := range selected {
		body, err := scrape.MarshalPayload(scrape.SourcePayload{SourceID: src.ID, Limit: h.sourceLimit})
		if err != nil {
			counters.Errors++
			continue
		}
		if _, err := h.queue.Enqueue(ctx, scrape.JobTypeSource, body); err != nil {
			counters.Errors++
			logger.Warn("enqueue source job failed", zap.Int64("source_id", src.ID), zap.Error(err))
			continue
		}
		enqueued++
	}
	if len(selected) > 0 && enqueued == 0 {
		return counters, fmt.Errorf("enqueue source jobs: all %d failed", len(selected))
	}
	logger.Info("batch processed", zap.Int("selected", len(selected)), zap.Int("enqueued", enqueued))
	return counters, nil
}
