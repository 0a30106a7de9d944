// Package embedding embeds stored articles in the background under a
// process-wide concurrency cap.
package embedding

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/headline-scraper/internal/metrics"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// Defaults applied by New.
const (
	DefaultNamespace   = "articles"
	DefaultConcurrency = 5
	DefaultTimeout     = time.Minute
)

// Marker patches an article once its vector is stored.
type Marker interface {
	MarkEmbedded(ctx context.Context, articleID int64, vectorID string) error
}

// Config controls the service.
type Config struct {
	Enabled     bool
	Namespace   string
	Concurrency int64
	Timeout     time.Duration
}

// Service runs embeddings asynchronously.
type Service struct {
	cfg      Config
	embedder scrape.Embedder
	index    scrape.VectorIndex
	marker   Marker
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New builds a service. A disabled service accepts Submit calls and drops them.
func New(cfg Config, embedder scrape.Embedder, index scrape.VectorIndex, marker Marker, logger *zap.Logger) *Service {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if embedder == nil || index == nil || marker == nil {
		cfg.Enabled = false
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		embedder: embedder,
		index:    index,
		marker:   marker,
		sem:      semaphore.NewWeighted(cfg.Concurrency),
		logger:   logger.Named("embedding"),
	}
}

// Enabled reports whether Submit does any work.
func (s *Service) Enabled() bool {
	return s.cfg.Enabled
}

// Submit schedules article for embedding and returns immediately. The work
// outlives ctx's cancellation so a finished job does not abort its embedding.
func (s *Service) Submit(ctx context.Context, article scrape.Article) {
	if !s.cfg.Enabled {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.embed(context.WithoutCancel(ctx), article); err != nil {
			metrics.ObserveEmbedding("error")
			s.logger.Error("embedding failed",
				zap.Int64("article_id", article.ID),
				zap.String("url", article.URL),
				zap.Error(err),
			)
			return
		}
		metrics.ObserveEmbedding("ok")
	}()
}

// Wait blocks until every submitted embedding has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// embed waits for a slot without a deadline; the timeout covers only the
// calls made while the slot is held, so a backlog delays work instead of
// failing it.
func (s *Service) embed(ctx context.Context, article scrape.Article) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: waiting for slot: %v", scrape.ErrEmbeddingFailed, err)
	}
	defer s.sem.Release(1)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	metrics.IncEmbeddingsInFlight()
	defer metrics.DecEmbeddingsInFlight()

	vector, err := s.embedder.Embed(ctx, InputText(article))
	if err != nil {
		return fmt.Errorf("%w: %v", scrape.ErrEmbeddingFailed, err)
	}
	vectorID := VectorID(article.ID)
	if err := s.index.Upsert(ctx, s.cfg.Namespace, vectorID, vector, Metadata(article)); err != nil {
		return fmt.Errorf("%w: %v", scrape.ErrEmbeddingFailed, err)
	}
	if err := s.marker.MarkEmbedded(ctx, article.ID, vectorID); err != nil {
		return fmt.Errorf("%w: %v", scrape.ErrEmbeddingFailed, err)
	}
	return nil
}

// VectorID names the vector of an article.
func VectorID(articleID int64) string {
	return "article_" + strconv.FormatInt(articleID, 10)
}

// InputText composes the text sent to the embedding model.
func InputText(article scrape.Article) string {
	lines := []string{"[TITLE]: " + article.Title}
	if article.Location != "" {
		lines = append(lines, "[LOCATION]: "+article.Location)
	}
	if topics := Topics(article); len(topics) > 0 {
		lines = append(lines, "[TOPICS]: "+strings.Join(topics, ", "))
	}
	if article.SummaryShort != nil && *article.SummaryShort != "" {
		lines = append(lines, "[SUMMARY]: "+*article.SummaryShort)
	}
	return strings.Join(lines, "\n")
}

// Topics lists main topic, topic and subtopics without duplicates.
func Topics(article scrape.Article) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range append([]string{article.MainTopic, article.Topic}, article.Subtopics...) {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Metadata is stored next to the vector.
func Metadata(article scrape.Article) map[string]any {
	meta := map[string]any{
		"article_id":     strconv.FormatInt(article.ID, 10),
		"url":            article.URL,
		"title":          article.Title,
		"audience_scope": article.AudienceScope,
		"location":       article.Location,
		"topics":         Topics(article),
	}
	if article.SummaryShort != nil {
		meta["summary"] = *article.SummaryShort
	}
	if article.DatePosted != nil {
		meta["date_posted"] = article.DatePosted.UTC().Format(time.RFC3339)
	}
	return meta
}
