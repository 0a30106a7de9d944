// Package summarize produces the tiered summaries and extracted fields of an article.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/llm"
	"github.com/JakeFAU/headline-scraper/internal/prompts"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

const (
	maxPromptMarkdown = 4000
	systemPrompt      = "You analyze news articles and provide structured summaries and metadata. Always respond with valid JSON."
)

// PromptSource looks up prompt templates.
type PromptSource interface {
	Get(ctx context.Context, key scrape.PromptKey) (scrape.PromptTemplate, error)
}

// Summarizer asks the model for summaries sized to the audience.
type Summarizer struct {
	gen     scrape.TextGenerator
	prompts PromptSource
	clock   scrape.Clock
	logger  *zap.Logger
}

// New builds a summarizer.
func New(gen scrape.TextGenerator, prompts PromptSource, clock scrape.Clock, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{gen: gen, prompts: prompts, clock: clock, logger: logger.Named("summarize")}
}

type response struct {
	Score         json.RawMessage `json:"score"`
	ShortSummary  string          `json:"short_summary"`
	MediumSummary string          `json:"medium_summary"`
	LongSummary   string          `json:"long_summary"`
	Title         string          `json:"title"`
	Topic         string          `json:"topic"`
	Date          string          `json:"date"`
	MainTopic     string          `json:"main_topic"`
	Subtopics     json.RawMessage `json:"subtopics"`
}

// Summarize runs the prompt for cls's audience. City articles get three
// tiers; global and industry articles get only the short tier.
func (s *Summarizer) Summarize(ctx context.Context, ext scrape.Extraction, cls scrape.Classification) (scrape.Summary, error) {
	var key scrape.PromptKey
	switch cls.Label {
	case scrape.LabelCity:
		key = scrape.PromptCity
	case scrape.LabelGlobal, scrape.LabelIndustry:
		key = scrape.PromptGlobalIndustry
	default:
		return scrape.Summary{}, fmt.Errorf("%w: no summary for label %q", scrape.ErrSummaryMalformed, cls.Label)
	}
	tpl, err := s.prompts.Get(ctx, key)
	if err != nil {
		return scrape.Summary{}, fmt.Errorf("summary prompt: %w", err)
	}
	body := ext.Markdown
	if body == "" {
		body = ext.Text
	}
	prompt := prompts.Render(tpl.Prompt, map[string]string{
		"title":    ext.Title,
		"url":      ext.URL,
		"markdown": prompts.Truncate(body, maxPromptMarkdown),
		"metadata": metadataString(ext.Metadata),
	})
	raw, err := s.gen.Generate(ctx, scrape.GenerateRequest{Model: tpl.Model, System: systemPrompt, Prompt: prompt})
	if err != nil {
		return scrape.Summary{}, fmt.Errorf("summarize: %w", err)
	}

	var resp response
	if err := llm.DecodeObject(raw, &resp); err != nil {
		return scrape.Summary{}, fmt.Errorf("%w: %v", scrape.ErrSummaryMalformed, err)
	}
	short := strings.TrimSpace(resp.ShortSummary)
	if short == "" {
		return scrape.Summary{}, fmt.Errorf("%w: missing short_summary", scrape.ErrSummaryMalformed)
	}

	out := scrape.Summary{
		Title:     firstNonEmpty(resp.Title, ext.Title),
		Short:     &short,
		Topic:     strings.TrimSpace(resp.Topic),
		MainTopic: strings.TrimSpace(resp.MainTopic),
		Subtopics: parseSubtopics(resp.Subtopics),
		Score:     parseScore(resp.Score),
		Date:      ResolveDate(s.clock.Now(), ext, resp.Date),
	}
	if cls.Label == scrape.LabelCity {
		out.Medium = optional(resp.MediumSummary)
		out.Long = optional(resp.LongSummary)
	}
	if out.Date == nil {
		s.logger.Debug("no publication date recovered", zap.String("url", ext.URL))
	}
	return out, nil
}

func metadataString(meta map[string]string) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+": "+meta[k])
	}
	return strings.Join(lines, "\n")
}

func parseScore(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &n
		}
	}
	return nil
}

func parseSubtopics(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var joined string
		if err := json.Unmarshal(raw, &joined); err != nil {
			return []string{}
		}
		list = strings.Split(joined, ",")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
