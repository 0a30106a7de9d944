// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Backend names accepted by the queue, archive, and notify sections.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPubSub   = "pubsub"
	BackendNone     = "none"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	DB        DBConfig        `mapstructure:"db"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Prompts   PromptsConfig   `mapstructure:"prompts"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	JobsTable       string        `mapstructure:"jobs_table"`
}

// QueueConfig selects the job backlog and its lease policy.
type QueueConfig struct {
	Backend       string        `mapstructure:"backend"`
	LeaseTimeout  time.Duration `mapstructure:"lease_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// WorkerConfig governs the worker loops and job defaults.
type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	SourceLimit       int           `mapstructure:"source_limit"`
	RequireSameRegion bool          `mapstructure:"require_same_region"`
	DedupeCacheSize   int           `mapstructure:"dedupe_cache_size"`
}

// ExtractConfig configures rendering, link harvesting, and the secondary extractor.
type ExtractConfig struct {
	MinTextLength int             `mapstructure:"min_text_length"`
	Render        RenderConfig    `mapstructure:"render"`
	Harvest       HarvestConfig   `mapstructure:"harvest"`
	Secondary     SecondaryConfig `mapstructure:"secondary"`
}

// RenderConfig configures the headless renderer.
type RenderConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	ExecPath          string        `mapstructure:"exec_path"`
}

// HarvestConfig configures the source link collector.
type HarvestConfig struct {
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RespectRobots bool          `mapstructure:"respect_robots"`
}

// SecondaryConfig configures the key-rotating extraction API.
type SecondaryConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Keys    []string      `mapstructure:"keys"`
	Timeout time.Duration `mapstructure:"timeout"`
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
}

// LLMConfig holds provider credentials and models.
type LLMConfig struct {
	DefaultModel string          `mapstructure:"default_model"`
	Gemini       GeminiConfig    `mapstructure:"gemini"`
	Anthropic    AnthropicConfig `mapstructure:"anthropic"`
}

// GeminiConfig configures the genai client used for generation and embeddings.
type GeminiConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	EmbedModel     string  `mapstructure:"embed_model"`
	EmbedDimension int     `mapstructure:"embed_dimension"`
	Temperature    float32 `mapstructure:"temperature"`
	BaseURL        string  `mapstructure:"base_url"`
}

// AnthropicConfig configures the Claude client.
type AnthropicConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	BaseURL   string `mapstructure:"base_url"`
}

// PromptsConfig controls the prompt catalog cache.
type PromptsConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// EmbeddingConfig controls the background embedding subsystem.
type EmbeddingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Concurrency int64         `mapstructure:"concurrency"`
	Namespace   string        `mapstructure:"namespace"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Table       string        `mapstructure:"table"`
}

// ArchiveConfig selects where raw HTML snapshots go.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig selects the article event publisher.
type NotifyConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HEADLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Extract.Secondary.Keys = splitKeys(cfg.Extract.Secondary.Keys)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", time.Hour)
	v.SetDefault("db.jobs_table", "scrape_jobs")
	v.SetDefault("queue.backend", BackendPostgres)
	v.SetDefault("queue.lease_timeout", 30*time.Minute)
	v.SetDefault("queue.sweep_interval", 5*time.Minute)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.poll_interval", 2*time.Second)
	v.SetDefault("worker.source_limit", 15)
	v.SetDefault("worker.require_same_region", true)
	v.SetDefault("worker.dedupe_cache_size", 10000)
	v.SetDefault("extract.min_text_length", 200)
	v.SetDefault("extract.render.enabled", true)
	v.SetDefault("extract.render.max_parallel", 2)
	v.SetDefault("extract.render.navigation_timeout", 3*time.Second)
	v.SetDefault("extract.render.user_agent", "headline-scraper/0.1")
	v.SetDefault("extract.harvest.user_agent", "headline-scraper/0.1")
	v.SetDefault("extract.harvest.timeout", 15*time.Second)
	v.SetDefault("extract.harvest.respect_robots", false)
	v.SetDefault("extract.secondary.base_url", "https://api.diffbot.com")
	v.SetDefault("extract.secondary.keys", []string{})
	v.SetDefault("extract.secondary.timeout", 12*time.Second)
	v.SetDefault("extract.secondary.rps", 1.0)
	v.SetDefault("extract.secondary.burst", 2)
	v.SetDefault("llm.default_model", "gemini-2.0-flash")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", "gemini-2.0-flash")
	v.SetDefault("llm.gemini.embed_model", "text-embedding-004")
	v.SetDefault("llm.gemini.embed_dimension", 768)
	v.SetDefault("llm.gemini.temperature", 0.3)
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.anthropic.max_tokens", 4096)
	v.SetDefault("prompts.refresh_interval", 5*time.Minute)
	v.SetDefault("embedding.enabled", true)
	v.SetDefault("embedding.concurrency", 5)
	v.SetDefault("embedding.namespace", "articles")
	v.SetDefault("embedding.timeout", time.Minute)
	v.SetDefault("embedding.table", "article_vectors")
	v.SetDefault("archive.backend", BackendNone)
	v.SetDefault("archive.local_dir", "archive")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "raw")
	v.SetDefault("notify.backend", BackendNone)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "articles-stored")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "headline-scraper")
	v.SetDefault("telemetry.sample_ratio", 0.1)
}

// splitKeys accepts keys from YAML lists or a comma-separated env value.
func splitKeys(raw []string) []string {
	var keys []string
	for _, entry := range raw {
		for _, k := range strings.Split(entry, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Queue.Backend {
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres queue")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("queue.backend %q must be postgres or memory", c.Queue.Backend)
	}
	if c.Queue.LeaseTimeout <= 0 || c.Queue.SweepInterval <= 0 {
		return fmt.Errorf("queue.lease_timeout and queue.sweep_interval must be > 0")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be > 0")
	}
	if c.Extract.Render.Enabled && c.Extract.Render.MaxParallel <= 0 {
		return fmt.Errorf("extract.render.max_parallel must be > 0 when rendering is enabled")
	}
	if c.Embedding.Enabled && c.Embedding.Concurrency <= 0 {
		return fmt.Errorf("embedding.concurrency must be > 0 when embedding is enabled")
	}
	switch c.Archive.Backend {
	case BackendNone, BackendMemory, BackendLocal:
	case BackendGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	switch c.Notify.Backend {
	case BackendNone, BackendMemory:
	case BackendPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic are required for pubsub")
		}
	default:
		return fmt.Errorf("notify.backend %q is not supported", c.Notify.Backend)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

// SecondaryEnabled reports whether any secondary extraction key is configured.
func (c Config) SecondaryEnabled() bool {
	return len(c.Extract.Secondary.Keys) > 0
}
