package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/metrics"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
	"github.com/JakeFAU/headline-scraper/internal/urlfilter"
)

// ArticleDeps are the collaborators of an ArticleHandler. Embedder and
// Notifier are optional.
type ArticleDeps struct {
	Registry   scrape.DedupeRegistry
	Articles   scrape.ArticleStore
	Extractor  Extractor
	Classifier Classifier
	Summarizer Summarizer
	Embedder   EmbedSubmitter
	Notifier   ArticleNotifier
	Keys       *KeyRing
}

// ArticleHandler runs the article pipeline: dedupe, extract, classify,
// summarize, store, then hand off to embedding.
type ArticleHandler struct {
	deps   ArticleDeps
	logger *zap.Logger
}

// NewArticleHandler builds the handler.
func NewArticleHandler(deps ArticleDeps, logger *zap.Logger) *ArticleHandler {
	if deps.Keys == nil {
		deps.Keys = NewKeyRing()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArticleHandler{deps: deps, logger: logger.Named("article")}
}

// Handle processes one article job. Duplicates and trash finish with zero
// counters; a stored article reports articles_saved=1.
func (h *ArticleHandler) Handle(ctx context.Context, job scrape.Job) (scrape.JobCounters, error) {
	var payload scrape.ArticlePayload
	if err := scrape.DecodePayload(job, &payload); err != nil {
		return scrape.JobCounters{}, err
	}
	if strings.TrimSpace(payload.URL) == "" {
		return scrape.JobCounters{}, fmt.Errorf("job %d: %w: missing url", job.ID, scrape.ErrInvalidURL)
	}
	canonical, err := urlfilter.Canonicalize(payload.URL)
	if err != nil {
		metrics.ObserveArticle("invalid")
		return scrape.JobCounters{}, err
	}
	logger := h.logger.With(zap.Int64("job_id", job.ID), zap.String("url", canonical))

	dup, err := h.isDuplicate(ctx, payload.URL, canonical)
	if err != nil {
		return scrape.JobCounters{}, err
	}
	if dup {
		metrics.ObserveArticle("duplicate")
		logger.Debug("article already processed")
		return scrape.JobCounters{}, nil
	}

	ext, err := h.extract(ctx, payload.URL)
	if err != nil {
		metrics.ObserveArticle("extraction_failed")
		return scrape.JobCounters{}, err
	}

	cls, err := h.deps.Classifier.Classify(ctx, ext.Title, ext.Text)
	if err != nil {
		metrics.ObserveArticle("classification_failed")
		return scrape.JobCounters{}, fmt.Errorf("classify: %w", err)
	}
	if cls.Label == scrape.LabelTrash {
		if err := h.deps.Registry.Record(ctx, canonical, scrape.ProcessedTrash); err != nil {
			return scrape.JobCounters{}, fmt.Errorf("record trash: %w", err)
		}
		metrics.ObserveArticle("trash")
		logger.Info("article classified as trash")
		return scrape.JobCounters{}, nil
	}

	summary, err := h.deps.Summarizer.Summarize(ctx, ext, cls)
	if err != nil {
		metrics.ObserveArticle("summary_failed")
		return scrape.JobCounters{}, fmt.Errorf("summarize: %w", err)
	}

	article := buildArticle(payload, canonical, ext, cls, summary)
	id, err := h.deps.Articles.Insert(ctx, article)
	if errors.Is(err, scrape.ErrStoreConflict) {
		h.recordProcessed(ctx, logger, canonical)
		metrics.ObserveArticle("conflict")
		logger.Info("article already stored")
		return scrape.JobCounters{}, nil
	}
	if err != nil {
		metrics.ObserveArticle("store_failed")
		return scrape.JobCounters{}, fmt.Errorf("insert article: %w", err)
	}
	article.ID = id
	h.recordProcessed(ctx, logger, canonical)

	if h.deps.Notifier != nil {
		h.deps.Notifier.ArticleStored(ctx, article)
	}
	if h.deps.Embedder != nil {
		h.deps.Embedder.Submit(ctx, article)
	}
	metrics.ObserveArticle("saved")
	logger.Info("article stored",
		zap.Int64("article_id", id),
		zap.String("scope", article.AudienceScope),
		zap.String("via", ext.Via),
	)
	return scrape.JobCounters{ArticlesSaved: 1}, nil
}

func (h *ArticleHandler) isDuplicate(ctx context.Context, url, canonical string) (bool, error) {
	seen, err := h.deps.Registry.IsProcessed(ctx, canonical)
	if err != nil {
		return false, fmt.Errorf("check processed url: %w", err)
	}
	if seen {
		return true, nil
	}
	exists, err := h.deps.Articles.Exists(ctx, url, canonical)
	if err != nil {
		return false, fmt.Errorf("check article exists: %w", err)
	}
	return exists, nil
}

func (h *ArticleHandler) extract(ctx context.Context, url string) (scrape.Extraction, error) {
	ext, next, err := h.deps.Extractor.Extract(ctx, url, h.deps.Keys.Cursor())
	h.deps.Keys.Advance(next)
	if err != nil {
		return scrape.Extraction{}, fmt.Errorf("extract: %w", err)
	}
	return ext, nil
}

// recordProcessed marks the URL after the article row exists. The article
// table still dedupes the URL if this write is lost.
func (h *ArticleHandler) recordProcessed(ctx context.Context, logger *zap.Logger, canonical string) {
	if err := h.deps.Registry.Record(ctx, canonical, scrape.ProcessedProcessed); err != nil {
		logger.Warn("record processed url failed", zap.Error(err))
	}
}

func buildArticle(
	payload scrape.ArticlePayload,
	canonical string,
	ext scrape.Extraction,
	cls scrape.Classification,
	summary scrape.Summary,
) scrape.Article {
	article := scrape.Article{
		URL:           payload.URL,
		URLCanonical:  canonical,
		Title:         firstNonEmpty(summary.Title, ext.Title),
		SummaryShort:  summary.Short,
		SummaryMedium: summary.Medium,
		SummaryLong:   summary.Long,
		AudienceScope: cls.Scope,
		Topic:         summary.Topic,
		MainTopic:     summary.MainTopic,
		Subtopics:     summary.Subtopics,
		Score:         summary.Score,
		DatePosted:    summary.Date,
		SourceID:      payload.SourceID,
	}
	if cls.Label == scrape.LabelCity {
		article.Location = cls.CitySlug
	}
	return article
}
