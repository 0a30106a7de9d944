// Package dispatcher runs a pool of worker loops plus the stale-lease sweeper.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
	"github.com/JakeFAU/headline-scraper/internal/worker"
)

// Defaults for the sweeper.
const (
	DefaultLeaseTimeout  = 30 * time.Minute
	DefaultSweepInterval = 5 * time.Minute
)

// Drainer waits for background work started by jobs, such as embeddings.
type Drainer interface {
	Wait()
}

// Config controls the sweeper.
type Config struct {
	LeaseTimeout  time.Duration
	SweepInterval time.Duration
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   scrape.JobQueue
	workers []*worker.Worker
	drain   Drainer
	clock   scrape.Clock
	cfg     Config
	logger  *zap.Logger
}

// New creates a Dispatcher. drain may be nil.
func New(
	queue scrape.JobQueue,
	workers []*worker.Worker,
	drain Drainer,
	clock scrape.Clock,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = DefaultLeaseTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		drain:   drain,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.Named("dispatcher"),
	}
}

// Run starts all workers and the sweeper, then blocks until the context
// finishes. It returns after every loop exits and background work drains.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.sweepLoop(ctx)
	}()
	d.logger.Info("dispatcher started", zap.Int("workers", len(d.workers)))

	<-ctx.Done()
	wg.Wait()
	if d.drain != nil {
		d.logger.Info("waiting for background work")
		d.drain.Wait()
	}
	d.logger.Info("dispatcher stopped")
}

// Sweep fails jobs whose lease has expired.
func (d *Dispatcher) Sweep(ctx context.Context) (int64, error) {
	cutoff := d.clock.Now().Add(-d.cfg.LeaseTimeout)
	n, err := d.queue.SweepStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep stale jobs: %w", err)
	}
	if n > 0 {
		d.logger.Warn("failed stranded jobs", zap.Int64("jobs", n), zap.Time("claimed_before", cutoff))
	}
	return n, nil
}

func (d *Dispatcher) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		if _, err := d.Sweep(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("stale lease sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
