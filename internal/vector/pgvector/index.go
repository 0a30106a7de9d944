// Package pgvector stores embeddings in a Postgres table using the pgvector extension.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/JakeFAU/headline-scraper/internal/database"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// DefaultTable holds vectors keyed by (namespace, vector_id).
const DefaultTable = "article_vectors"

// Index implements scrape.VectorIndex.
type Index struct {
	pool      database.Pool
	table     string
	dimension int
	clock     scrape.Clock
}

// New builds an index over table. dimension <= 0 skips the length check.
func New(pool database.Pool, table string, dimension int, clock scrape.Clock) (*Index, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !database.ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid vector table name %q", table)
	}
	return &Index{pool: pool, table: table, dimension: dimension, clock: clock}, nil
}

// Upsert inserts or replaces the vector stored under (namespace, vectorID).
func (i *Index) Upsert(ctx context.Context, namespace, vectorID string, vector []float32, metadata map[string]any) error {
	if namespace == "" || vectorID == "" {
		return fmt.Errorf("namespace and vector id are required")
	}
	if i.dimension > 0 && len(vector) != i.dimension {
		return fmt.Errorf("vector %s has %d dimensions, want %d", vectorID, len(vector), i.dimension)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode vector metadata: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (namespace, vector_id, embedding, metadata, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (namespace, vector_id)
DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at`, i.table)
	if _, err := i.pool.Exec(ctx, query, namespace, vectorID, pgvector.NewVector(vector), meta, i.now()); err != nil {
		return fmt.Errorf("upsert vector %s/%s: %w", namespace, vectorID, err)
	}
	return nil
}

func (i *Index) now() time.Time {
	if i.clock == nil {
		return time.Now().UTC()
	}
	return i.clock.Now().UTC()
}
