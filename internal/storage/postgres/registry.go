package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// IsProcessed reports whether the canonical URL is in the ledger under any status.
func (s *Store) IsProcessed(ctx context.Context, canonicalURL string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_urls WHERE url = $1)`, canonicalURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed url: %w", err)
	}
	return exists, nil
}

// Record appends the URL to the ledger. Existing entries are left untouched.
func (s *Store) Record(ctx context.Context, canonicalURL string, status scrape.ProcessedStatus) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO processed_urls (url, status, processed_at)
VALUES ($1, $2, $3)
ON CONFLICT (url) DO NOTHING`, canonicalURL, string(status), s.now())
	if err != nil {
		return fmt.Errorf("record processed url: %w", err)
	}
	return nil
}
