// Package classify routes an article to its audience using an LLM label.
package classify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/llm"
	"github.com/JakeFAU/headline-scraper/internal/prompts"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// Defaults for classifier input.
const (
	DefaultMinTextLength = 50
	maxPromptText        = 1000
	systemPrompt         = "You are a content classifier assistant that responds with valid JSON only."
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// PromptSource looks up prompt templates.
type PromptSource interface {
	Get(ctx context.Context, key scrape.PromptKey) (scrape.PromptTemplate, error)
}

// Classifier labels articles.
type Classifier struct {
	gen     scrape.TextGenerator
	prompts PromptSource
	minText int
	logger  *zap.Logger
}

// New builds a classifier.
func New(gen scrape.TextGenerator, prompts PromptSource, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		gen:     gen,
		prompts: prompts,
		minText: DefaultMinTextLength,
		logger:  logger.Named("classify"),
	}
}

type answer struct {
	Label        string `json:"label"`
	CitySlug     string `json:"city_slug"`
	IndustrySlug string `json:"industry_slug"`
}

// Classify labels the article and derives its audience scope. Text too short
// to judge is trash without calling the model.
func (c *Classifier) Classify(ctx context.Context, title, text string) (scrape.Classification, error) {
	if len(strings.TrimSpace(text)) < c.minText {
		c.logger.Debug("text below classification minimum; marking trash", zap.Int("text_len", len(text)))
		return scrape.Classification{Label: scrape.LabelTrash}, nil
	}
	tpl, err := c.prompts.Get(ctx, scrape.PromptClassifier)
	if err != nil {
		return scrape.Classification{}, fmt.Errorf("classifier prompt: %w", err)
	}
	prompt := prompts.Render(tpl.Prompt, map[string]string{
		"title": title,
		"text":  prompts.Truncate(text, maxPromptText),
	})
	raw, err := c.gen.Generate(ctx, scrape.GenerateRequest{
		Model:  tpl.Model,
		System: systemPrompt,
		Prompt: prompt,
	})
	if err != nil {
		return scrape.Classification{}, fmt.Errorf("classify: %w", err)
	}
	return Route(raw)
}

// Route parses a raw model answer into a classification.
func Route(raw string) (scrape.Classification, error) {
	var a answer
	if err := llm.DecodeObject(raw, &a); err != nil {
		return scrape.Classification{}, fmt.Errorf("%w: %v", scrape.ErrClassificationMalformed, err)
	}
	label := scrape.AudienceLabel(strings.ToLower(strings.TrimSpace(a.Label)))
	out := scrape.Classification{Label: label}
	switch label {
	case scrape.LabelTrash:
	case scrape.LabelGlobal:
		out.Scope = "[global]"
	case scrape.LabelCity:
		slug := Slugify(a.CitySlug)
		if slug == "" {
			return scrape.Classification{}, fmt.Errorf("%w: city label without city_slug", scrape.ErrClassificationMalformed)
		}
		out.CitySlug = strings.TrimSpace(a.CitySlug)
		out.Scope = "[city:" + slug + "]"
	case scrape.LabelIndustry:
		slug := Slugify(a.IndustrySlug)
		if slug == "" {
			return scrape.Classification{}, fmt.Errorf("%w: industry label without industry_slug", scrape.ErrClassificationMalformed)
		}
		out.IndustrySlug = strings.TrimSpace(a.IndustrySlug)
		out.Scope = "[industry:" + slug + "]"
	default:
		return scrape.Classification{}, fmt.Errorf("%w: unknown label %q", scrape.ErrClassificationMalformed, a.Label)
	}
	return out, nil
}

// Slugify lowercases s and joins its alphanumeric runs with hyphens.
func Slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}
