package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// LoadPrompts reads every prompt template.
func (s *Store) LoadPrompts(ctx context.Context) ([]scrape.PromptTemplate, error) {
	rows, err := s.pool.Query(ctx, `SELECT description, prompt, COALESCE(model, '') FROM prompts`)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	defer rows.Close()
	var out []scrape.PromptTemplate
	for rows.Next() {
		var (
			key string
			tpl scrape.PromptTemplate
		)
		if err := rows.Scan(&key, &tpl.Prompt, &tpl.Model); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		tpl.Key = scrape.PromptKey(key)
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prompts: %w", err)
	}
	return out, nil
}
