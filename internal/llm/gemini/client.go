// Package gemini adapts the Gemini API to the text generation and embedding interfaces.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// Defaults applied by New.
const (
	DefaultModel          = "gemini-2.0-flash"
	DefaultEmbedModel     = "text-embedding-004"
	DefaultEmbedDimension = 768
	DefaultTemperature    = 0.3
)

// Config controls the Gemini client.
type Config struct {
	APIKey         string
	Model          string
	EmbedModel     string
	EmbedDimension int
	Temperature    float32
	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL string
}

// Client wraps genai.Client.
type Client struct {
	cfg    Config
	client *genai.Client
}

// New creates a Gemini API client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.EmbedDimension <= 0 {
		cfg.EmbedDimension = DefaultEmbedDimension
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{cfg: cfg, client: client}, nil
}

// Generate runs a single-turn prompt.
func (c *Client) Generate(ctx context.Context, req scrape.GenerateRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{genai.NewPartFromText(req.Prompt)},
	}}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.cfg.Temperature),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	return text, nil
}

// Embed returns the embedding of text at the configured dimension.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(c.cfg.EmbedDimension)
	result, err := c.client.Models.EmbedContent(ctx, c.cfg.EmbedModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: &dim},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if result == nil || len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty embedding")
	}
	values := result.Embeddings[0].Values
	if len(values) != c.cfg.EmbedDimension {
		return nil, fmt.Errorf("gemini embed: dimension %d, want %d", len(values), c.cfg.EmbedDimension)
	}
	return values, nil
}
