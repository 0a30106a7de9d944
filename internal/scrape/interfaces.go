package scrape

import (
	"context"
	"encoding/json"
	"time"
)

// JobQueue is the durable, lease-based job backlog.
type JobQueue interface {
	Enqueue(ctx context.Context, jobType JobType, payload json.RawMessage) (int64, error)
	// Claim hands the oldest queued job to exactly one caller. It returns nil when the queue is empty.
	Claim(ctx context.Context, workerID string) (*Job, error)
	Complete(ctx context.Context, jobID int64, counters JobCounters) error
	Fail(ctx context.Context, jobID int64, message string) error
	Status(ctx context.Context, jobID int64) (Job, error)
	// SweepStale fails in-progress jobs claimed before the cutoff and returns how many were swept.
	SweepStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	Resubmit(ctx context.Context, jobID int64) (int64, error)
}

// DedupeRegistry is the append-only ledger of resolved canonical URLs.
type DedupeRegistry interface {
	IsProcessed(ctx context.Context, canonicalURL string) (bool, error)
	Record(ctx context.Context, canonicalURL string, status ProcessedStatus) error
}

// ArticleStore persists finished articles.
type ArticleStore interface {
	Exists(ctx context.Context, url, canonicalURL string) (bool, error)
	// Insert returns ErrStoreConflict when url or url_canonical already exists.
	Insert(ctx context.Context, article Article) (int64, error)
	MarkEmbedded(ctx context.Context, articleID int64, vectorID string) error
}

// SourceStore reads and claims news sources.
type SourceStore interface {
	GetSource(ctx context.Context, sourceID int64) (Source, error)
	ClaimDue(ctx context.Context, limit int, query string, dryRun bool) ([]Source, error)
	MarkScraped(ctx context.Context, sourceID int64, at time.Time) error
}

// PromptStore loads prompt templates.
type PromptStore interface {
	LoadPrompts(ctx context.Context) ([]PromptTemplate, error)
}

// RenderResult is the output of a page render.
type RenderResult struct {
	URL        string
	StatusCode int
	HTML       string
	Duration   time.Duration
}

// Renderer renders a page with JavaScript executed.
type Renderer interface {
	Render(ctx context.Context, url string) (RenderResult, error)
}

// LinkHarvester collects candidate article links from a source page.
type LinkHarvester interface {
	Harvest(ctx context.Context, pageURL string, limit int) ([]string, error)
}

// GenerateRequest is a single-turn LLM call.
type GenerateRequest struct {
	Model  string
	System string
	Prompt string
}

// TextGenerator sends a prompt to an LLM and returns its text.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex stores vectors keyed by id inside a namespace.
type VectorIndex interface {
	Upsert(ctx context.Context, namespace, vectorID string, vector []float32, metadata map[string]any) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces worker identities.
type IDGenerator interface {
	NewID() (string, error)
}
