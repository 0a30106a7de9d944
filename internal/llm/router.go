// Package llm routes prompt calls to the provider named by the model and
// decodes the JSON answers the pipeline asks for.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// Provider prefixes recognized in model names.
const (
	ProviderGemini = "gemini"
	ProviderClaude = "claude"
)

// Router implements scrape.TextGenerator by dispatching on the model prefix.
type Router struct {
	providers    map[string]scrape.TextGenerator
	defaultModel string
}

// NewRouter builds a router; defaultModel is used when a request names no model.
func NewRouter(defaultModel string) *Router {
	return &Router{
		providers:    make(map[string]scrape.TextGenerator),
		defaultModel: defaultModel,
	}
}

// Register binds a provider to a model prefix. A nil generator is ignored.
func (r *Router) Register(prefix string, gen scrape.TextGenerator) {
	if gen == nil {
		return
	}
	r.providers[strings.ToLower(prefix)] = gen
}

// Generate sends req to the provider whose prefix matches the model.
func (r *Router) Generate(ctx context.Context, req scrape.GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Model) == "" {
		req.Model = r.defaultModel
	}
	if req.Model == "" {
		return "", fmt.Errorf("llm: no model given and no default configured")
	}
	model := strings.ToLower(req.Model)
	for prefix, gen := range r.providers {
		if strings.HasPrefix(model, prefix) {
			return gen.Generate(ctx, req)
		}
	}
	return "", fmt.Errorf("llm: no provider configured for model %q", req.Model)
}
