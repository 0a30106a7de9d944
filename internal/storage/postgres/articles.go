package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// Exists reports whether an article already holds the url or canonical url.
func (s *Store) Exists(ctx context.Context, url, canonicalURL string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM articles WHERE url = $1 OR url_canonical = $2)`,
		url, canonicalURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check article exists: %w", err)
	}
	return exists, nil
}

// Insert writes a new article. Unique collisions return scrape.ErrStoreConflict.
func (s *Store) Insert(ctx context.Context, article scrape.Article) (int64, error) {
	subtopics := article.Subtopics
	if subtopics == nil {
		subtopics = []string{}
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO articles (
	url,
	url_canonical,
	title,
	summary_short,
	summary_medium,
	summary_long,
	audience_scope,
	location,
	topic,
	main_topic,
	subtopics,
	score,
	date_posted,
	source_id,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING id`,
		article.URL,
		article.URLCanonical,
		article.Title,
		article.SummaryShort,
		article.SummaryMedium,
		article.SummaryLong,
		article.AudienceScope,
		article.Location,
		article.Topic,
		article.MainTopic,
		subtopics,
		article.Score,
		article.DatePosted,
		article.SourceID,
		s.now(),
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("insert article %s: %w", article.URLCanonical, scrape.ErrStoreConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}

// MarkEmbedded records the vector id once. Already embedded rows are left alone.
func (s *Store) MarkEmbedded(ctx context.Context, articleID int64, vectorID string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE articles
SET is_embedded = true, vector_id = $1
WHERE id = $2 AND is_embedded = false`, vectorID, articleID)
	if err != nil {
		return fmt.Errorf("mark article %d embedded: %w", articleID, err)
	}
	return nil
}
