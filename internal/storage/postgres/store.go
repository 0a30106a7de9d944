// Package postgres provides Postgres-backed persistence for the dedupe ledger,
// articles, sources, and prompt templates.
package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JakeFAU/headline-scraper/internal/database"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

const uniqueViolation = "23505"

// Store groups the Postgres-backed repositories over one pool.
type Store struct {
	pool  database.Pool
	clock scrape.Clock
	// DueAfter is how long a source rests between scrapes before a batch claims it again.
	DueAfter time.Duration
}

// New builds a store over the provided pool. A nil clock uses wall time.
func New(pool database.Pool, clock scrape.Clock) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool, clock: clock, DueAfter: 24 * time.Hour}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
