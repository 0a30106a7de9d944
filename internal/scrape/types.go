// Package scrape defines core types shared across the scrape pipeline.
package scrape

import (
	"encoding/json"
	"time"
)

// JobType selects the handler a worker runs for a job.
type JobType string

// Job types accepted by the queue.
const (
	JobTypeArticle JobType = "article"
	JobTypeSource  JobType = "source"
	JobTypeBatch   JobType = "batch"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeArticle, JobTypeSource, JobTypeBatch:
		return true
	default:
		return false
	}
}

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// LeaseExpiredMessage is recorded on jobs failed by the stale-lease sweep.
const LeaseExpiredMessage = "lease expired"

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// JobCounters tracks per-job outcome stats.
type JobCounters struct {
	LinksFound    int `json:"links_found"`
	LinksSkipped  int `json:"links_skipped"`
	ArticlesSaved int `json:"articles_saved"`
	Errors        int `json:"errors"`
}

// Job is a queued unit of work.
type Job struct {
	ID           int64           `json:"id"`
	Type         JobType         `json:"job_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       JobStatus       `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Counters     JobCounters     `json:"counters"`
	ClaimedBy    string          `json:"claimed_by,omitempty"`
	ClaimedAt    *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ArticlePayload is the payload of an article job.
type ArticlePayload struct {
	URL      string `json:"url"`
	SourceID *int64 `json:"source_id,omitempty"`
}

// SourcePayload is the payload of a source job.
type SourcePayload struct {
	SourceID int64  `json:"source_id"`
	URL      string `json:"url,omitempty"`
	Query    string `json:"query,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// BatchPayload is the payload of a batch job.
type BatchPayload struct {
	BatchSize int    `json:"batch_size,omitempty"`
	Query     string `json:"query,omitempty"`
	DryRun    bool   `json:"dry_run,omitempty"`
}

// ProcessedStatus records how a canonical URL was resolved.
type ProcessedStatus string

// Processed URL outcomes.
const (
	ProcessedTrash     ProcessedStatus = "trash"
	ProcessedProcessed ProcessedStatus = "processed"
)

// ProcessedURL is an entry of the append-only dedupe ledger.
type ProcessedURL struct {
	URL         string          `json:"url"`
	Status      ProcessedStatus `json:"status"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// Article is a finished, persisted article.
type Article struct {
	ID            int64      `json:"id"`
	URL           string     `json:"url"`
	URLCanonical  string     `json:"url_canonical"`
	Title         string     `json:"title,omitempty"`
	SummaryShort  *string    `json:"summary_short,omitempty"`
	SummaryMedium *string    `json:"summary_medium,omitempty"`
	SummaryLong   *string    `json:"summary_long,omitempty"`
	AudienceScope string     `json:"audience_scope"`
	Location      string     `json:"location,omitempty"`
	Topic         string     `json:"topic,omitempty"`
	MainTopic     string     `json:"main_topic,omitempty"`
	Subtopics     []string   `json:"subtopics,omitempty"`
	Score         *float64   `json:"score,omitempty"`
	DatePosted    *time.Time `json:"date_posted,omitempty"`
	SourceID      *int64     `json:"source_id,omitempty"`
	IsEmbedded    bool       `json:"is_embedded"`
	VectorID      string     `json:"vector_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Source is a news source page that source jobs harvest links from.
type Source struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	URL              string     `json:"url"`
	Region           string     `json:"region,omitempty"`
	Verified         bool       `json:"verified"`
	HasBeenProcessed bool       `json:"has_been_processed"`
	LastScrapedAt    *time.Time `json:"last_scraped_at,omitempty"`
	LastEnqueuedAt   *time.Time `json:"last_enqueued_at,omitempty"`
}

// Extraction is the content recovered from a page.
type Extraction struct {
	URL      string
	Title    string
	Text     string
	Markdown string
	HTML     string
	Date     *time.Time
	Metadata map[string]string
	Via      string
}

// AudienceLabel is the classifier's routing label.
type AudienceLabel string

// Classifier labels.
const (
	LabelCity     AudienceLabel = "city"
	LabelGlobal   AudienceLabel = "global"
	LabelIndustry AudienceLabel = "industry"
	LabelTrash    AudienceLabel = "trash"
)

// Classification is the routed classifier result.
type Classification struct {
	Label        AudienceLabel
	CitySlug     string
	IndustrySlug string
	Scope        string
}

// Summary carries the tiered summaries and extracted fields for an article.
type Summary struct {
	Title     string
	Short     *string
	Medium    *string
	Long      *string
	Topic     string
	MainTopic string
	Subtopics []string
	Score     *float64
	Date      *time.Time
}

// PromptKey names a prompt template.
type PromptKey string

// Prompt templates used by the pipeline.
const (
	PromptClassifier     PromptKey = "classifier"
	PromptCity           PromptKey = "city_prompt"
	PromptGlobalIndustry PromptKey = "global_industry_prompt"
)

// PromptTemplate is a prompt row keyed by description.
type PromptTemplate struct {
	Key    PromptKey `json:"description"`
	Prompt string    `json:"prompt"`
	Model  string    `json:"model"`
}

// ArticleEvent is published after an article is stored.
type ArticleEvent struct {
	ArticleID     int64     `json:"article_id"`
	URL           string    `json:"url"`
	AudienceScope string    `json:"audience_scope"`
	StoredAt      time.Time `json:"stored_at"`
}
