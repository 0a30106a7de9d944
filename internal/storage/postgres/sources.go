package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var sourceColumns = []string{
	"id", "name", "url", "COALESCE(region, '')", "verified", "has_been_processed",
	"last_scraped_at", "last_enqueued_at",
}

// GetSource loads a single source row.
func (s *Store) GetSource(ctx context.Context, sourceID int64) (scrape.Source, error) {
	query, args, err := psql.Select(sourceColumns...).
		From("sources").
		Where(sq.Eq{"id": sourceID}).
		ToSql()
	if err != nil {
		return scrape.Source{}, fmt.Errorf("build source query: %w", err)
	}
	src, err := scanSource(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Source{}, fmt.Errorf("source %d: %w", sourceID, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.Source{}, fmt.Errorf("load source %d: %w", sourceID, err)
	}
	return src, nil
}

// ClaimDue selects up to limit sources that are due for scraping. Unless
// dryRun is set the selected rows are locked, skipping rows other workers
// hold, and stamped with last_enqueued_at so concurrent batches pick
// disjoint sets.
func (s *Store) ClaimDue(ctx context.Context, limit int, query string, dryRun bool) ([]scrape.Source, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := s.now()
	cutoff := now.Add(-s.DueAfter)
	due := psql.Select().
		From("sources").
		Where(sq.Eq{"verified": true, "has_been_processed": true}).
		Where(sq.Or{sq.Eq{"last_scraped_at": nil}, sq.Lt{"last_scraped_at": cutoff}}).
		Where(sq.Or{sq.Eq{"last_enqueued_at": nil}, sq.Lt{"last_enqueued_at": cutoff}}).
		OrderBy("last_scraped_at ASC NULLS FIRST", "id").
		Limit(uint64(limit))
	if query != "" {
		due = due.Where(sq.ILike{"name": containsPattern(query)})
	}

	var (
		sqlText string
		args    []any
		err     error
	)
	if dryRun {
		sqlText, args, err = due.Columns(sourceColumns...).ToSql()
	} else {
		var inner string
		inner, args, err = due.Columns("id").Suffix("FOR UPDATE SKIP LOCKED").ToSql()
		sqlText = fmt.Sprintf(`
WITH due AS (%s)
UPDATE sources AS s
SET last_enqueued_at = $%d
FROM due
WHERE s.id = due.id
RETURNING s.id, s.name, s.url, COALESCE(s.region, ''), s.verified, s.has_been_processed, s.last_scraped_at, s.last_enqueued_at`,
			inner, len(args)+1)
		args = append(args, now)
	}
	if err != nil {
		return nil, fmt.Errorf("build due sources query: %w", err)
	}

	rows, err := s.pool.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("claim due sources: %w", err)
	}
	defer rows.Close()
	var out []scrape.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

// MarkScraped stamps last_scraped_at.
func (s *Store) MarkScraped(ctx context.Context, sourceID int64, at time.Time) error {
	query, args, err := psql.Update("sources").
		Set("last_scraped_at", at).
		Where(sq.Eq{"id": sourceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark scraped query: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("mark source %d scraped: %w", sourceID, err)
	}
	return nil
}

func scanSource(row pgx.Row) (scrape.Source, error) {
	var (
		src          scrape.Source
		lastScraped  *time.Time
		lastEnqueued *time.Time
	)
	if err := row.Scan(
		&src.ID, &src.Name, &src.URL, &src.Region, &src.Verified, &src.HasBeenProcessed,
		&lastScraped, &lastEnqueued,
	); err != nil {
		return scrape.Source{}, err
	}
	src.LastScrapedAt = lastScraped
	src.LastEnqueuedAt = lastEnqueued
	return src, nil
}

// likeEscaper escapes LIKE metacharacters using backslash, the default
// escape character in Postgres.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// containsPattern matches query as a literal substring.
func containsPattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}
