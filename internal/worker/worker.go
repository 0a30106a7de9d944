// Package worker implements the job execution loop.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/metrics"
	"github.com/JakeFAU/headline-scraper/internal/pipeline"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
	"github.com/JakeFAU/headline-scraper/internal/telemetry"
)

// DefaultPollInterval is how long an idle worker sleeps before claiming again.
const DefaultPollInterval = 2 * time.Second

// Config controls Worker behavior.
type Config struct {
	ID           string
	PollInterval time.Duration
}

// Worker claims jobs and runs them through the handler for their type.
type Worker struct {
	queue    scrape.JobQueue
	handlers map[scrape.JobType]pipeline.Handler
	cfg      Config
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	queue scrape.JobQueue,
	handlers map[scrape.JobType]pipeline.Handler,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		handlers: handlers,
		cfg:      cfg,
		tracer:   telemetry.Tracer("worker"),
		logger:   logger.Named("worker").With(zap.String("worker_id", cfg.ID)),
	}
}

// Run blocks, claiming and processing jobs until the context finishes. Each
// job runs to completion before the next claim.
func (w *Worker) Run(ctx context.Context) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	for ctx.Err() == nil {
		job, err := w.queue.Claim(ctx, w.cfg.ID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue claim failed", zap.Error(err))
			w.idle(ctx)
			continue
		}
		if job == nil {
			w.idle(ctx)
			continue
		}
		w.logger.Debug("claimed job", zap.Int64("job_id", job.ID), zap.String("job_type", string(job.Type)))
		w.processJob(ctx, *job)
	}
}

func (w *Worker) idle(ctx context.Context) {
	timer := time.NewTimer(w.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *Worker) processJob(ctx context.Context, job scrape.Job) {
	start := time.Now()
	// A claimed job runs to completion even after shutdown begins; Run only
	// stops claiming. Stage timeouts inside the handler bound the run.
	ctx = context.WithoutCancel(ctx)
	ctx, span := telemetry.StartJob(ctx, w.tracer, job, w.cfg.ID)

	counters, err := w.runHandler(ctx, job)
	telemetry.EndJob(span, counters, err)

	writeCtx := ctx
	status := scrape.JobStatusDone
	if err != nil {
		status = scrape.JobStatusError
		w.logger.Warn("job failed",
			zap.Int64("job_id", job.ID),
			zap.String("job_type", string(job.Type)),
			zap.Error(err),
		)
		if failErr := w.queue.Fail(writeCtx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("fail job status update failed", zap.Int64("job_id", job.ID), zap.Error(failErr))
		}
	} else {
		if doneErr := w.queue.Complete(writeCtx, job.ID, counters); doneErr != nil {
			w.logger.Error("complete job status update failed", zap.Int64("job_id", job.ID), zap.Error(doneErr))
		}
		w.logger.Info("job done",
			zap.Int64("job_id", job.ID),
			zap.String("job_type", string(job.Type)),
			zap.Int("links_found", counters.LinksFound),
			zap.Int("links_skipped", counters.LinksSkipped),
			zap.Int("articles_saved", counters.ArticlesSaved),
			zap.Int("errors", counters.Errors),
		)
	}
	metrics.ObserveJob(string(job.Type), string(status), time.Since(start))
}

// runHandler dispatches the job and converts a handler panic into an error.
func (w *Worker) runHandler(ctx context.Context, job scrape.Job) (counters scrape.JobCounters, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job handler panicked",
				zap.Int64("job_id", job.ID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			counters = scrape.JobCounters{}
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	handler, ok := w.handlers[job.Type]
	if !ok || handler == nil {
		return scrape.JobCounters{}, fmt.Errorf("no handler for job type %q", job.Type)
	}
	return handler.Handle(ctx, job)
}
