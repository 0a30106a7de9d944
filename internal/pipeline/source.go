package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/metrics"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
	"github.com/JakeFAU/headline-scraper/internal/urlfilter"
)

// DefaultSourceLimit caps the links a source job enqueues or skips.
const DefaultSourceLimit = 15

// SourceDeps are the collaborators of a SourceHandler. Lister is optional.
type SourceDeps struct {
	Sources   scrape.SourceStore
	Registry  scrape.DedupeRegistry
	Queue     scrape.JobQueue
	Harvester scrape.LinkHarvester
	Lister    LinkLister
	Clock     scrape.Clock
	Keys      *KeyRing
}

// SourceConfig tunes source jobs.
type SourceConfig struct {
	DefaultLimit      int
	RequireSameRegion bool
}

// SourceHandler harvests a source page and enqueues article jobs for new links.
type SourceHandler struct {
	deps   SourceDeps
	cfg    SourceConfig
	logger *zap.Logger
}

// NewSourceHandler builds the handler.
func NewSourceHandler(deps SourceDeps, cfg SourceConfig, logger *zap.Logger) *SourceHandler {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultSourceLimit
	}
	if deps.Keys == nil {
		deps.Keys = NewKeyRing()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SourceHandler{deps: deps, cfg: cfg, logger: logger.Named("source")}
}

// Handle runs one source job.
func (h *SourceHandler) Handle(ctx context.Context, job scrape.Job) (scrape.JobCounters, error) {
	var payload scrape.SourcePayload
	if err := scrape.DecodePayload(job, &payload); err != nil {
		return scrape.JobCounters{}, err
	}
	if payload.SourceID <= 0 {
		return scrape.JobCounters{}, fmt.Errorf("job %d: missing source_id", job.ID)
	}
	limit := payload.Limit
	if limit <= 0 {
		limit = h.cfg.DefaultLimit
	}

	src, err := h.deps.Sources.GetSource(ctx, payload.SourceID)
	if err != nil {
		return scrape.JobCounters{}, fmt.Errorf("load source %d: %w", payload.SourceID, err)
	}
	pageURL := firstNonEmpty(payload.URL, queryURL(payload.Query), src.URL)
	if pageURL == "" {
		return scrape.JobCounters{}, fmt.Errorf("source %d has no url", src.ID)
	}
	logger := h.logger.With(
		zap.Int64("job_id", job.ID),
		zap.Int64("source_id", src.ID),
		zap.String("url", pageURL),
	)

	links, err := h.collect(ctx, logger, pageURL)
	if err != nil {
		return scrape.JobCounters{}, err
	}

	counters := scrape.JobCounters{LinksFound: len(links)}
	regionSource := ""
	if h.cfg.RequireSameRegion {
		regionSource = pageURL
	}
	sourceID := src.ID
	seen := make(map[string]struct{}, len(links))
	for _, link := range links {
		if counters.ArticlesSaved+counters.LinksSkipped >= limit {
			logger.Debug("source link limit reached", zap.Int("limit", limit))
			break
		}
		if ctx.Err() != nil {
			return counters, fmt.Errorf("source job canceled: %w", ctx.Err())
		}
		canonical, err := urlfilter.Admit(regionSource, link)
		if err != nil {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}

		processed, err := h.deps.Registry.IsProcessed(ctx, canonical)
		if err != nil {
			counters.Errors++
			logger.Warn("processed url lookup failed", zap.String("link", canonical), zap.Error(err))
			continue
		}
		if processed {
			counters.LinksSkipped++
			metrics.ObserveArticle("already_processed")
			continue
		}

		body, err := scrape.MarshalPayload(scrape.ArticlePayload{URL: link, SourceID: &sourceID})
		if err != nil {
			counters.Errors++
			continue
		}
		if _, err := h.deps.Queue.Enqueue(ctx, scrape.JobTypeArticle, body); err != nil {
			counters.Errors++
			logger.Warn("enqueue article job failed", zap.String("link", link), zap.Error(err))
			continue
		}
		counters.ArticlesSaved++
	}

	if err := h.deps.Sources.MarkScraped(ctx, src.ID, h.now()); err != nil {
		logger.Warn("mark source scraped failed", zap.Error(err))
	}
	logger.Info("source processed",
		zap.Int("links_found", counters.LinksFound),
		zap.Int("enqueued", counters.ArticlesSaved),
		zap.Int("skipped", counters.LinksSkipped),
		zap.Int("errors", counters.Errors),
	)
	return counters, nil
}

// collect harvests every link on the page, falling back to the secondary list
// API when the harvest fails or finds nothing.
func (h *SourceHandler) collect(ctx context.Context, logger *zap.Logger, pageURL string) ([]string, error) {
	links, harvestErr := h.deps.Harvester.Harvest(ctx, pageURL, 0)
	if harvestErr == nil && len(links) > 0 {
		return links, nil
	}
	if harvestErr != nil {
		logger.Warn("link harvest failed", zap.Error(harvestErr))
	}
	if h.deps.Lister == nil || ctx.Err() != nil {
		if harvestErr != nil {
			return nil, fmt.Errorf("harvest links: %w", harvestErr)
		}
		return nil, nil
	}
	listed, next, err := h.deps.Lister.List(ctx, pageURL, h.deps.Keys.Cursor())
	h.deps.Keys.Advance(next)
	if err != nil {
		if harvestErr != nil {
			return nil, fmt.Errorf("harvest links: %w; list fallback: %w", harvestErr, err)
		}
		return nil, fmt.Errorf("list fallback: %w", err)
	}
	logger.Info("links listed by secondary api", zap.Int("links", len(listed)))
	return listed, nil
}

func (h *SourceHandler) now() time.Time {
	if h.deps.Clock == nil {
		return time.Now().UTC()
	}
	return h.deps.Clock.Now()
}

// queryURL returns q when it is an absolute http(s) URL.
func queryURL(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}
	u, err := url.Parse(q)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return q
}
