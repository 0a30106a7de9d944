package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

type stubPrompts map[scrape.PromptKey]scrape.PromptTemplate

func (s stubPrompts) Get(_ context.Context, key scrape.PromptKey) (scrape.PromptTemplate, error) {
	tpl, ok := s[key]
	if !ok {
		return scrape.PromptTemplate{}, scrape.ErrNotFound
	}
	return tpl, nil
}

type stubGenerator struct {
	answer string
	err    error
	calls  int
	last   scrape.GenerateRequest
}

func (s *stubGenerator) Generate(_ context.Context, req scrape.GenerateRequest) (string, error) {
	s.calls++
	s.last = req
	return s.answer, s.err
}

var catalog = stubPrompts{
	scrape.PromptClassifier: {Key: scrape.PromptClassifier, Prompt: "Title: {title}\nText: {text}", Model: "gemini-2.0-flash"},
}

var longText = strings.Repeat("Residents packed city hall for the zoning vote. ", 40)

func TestClassifyRoutes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		answer string
		want   scrape.Classification
	}{
		{"Global", `{"label":"global"}`, scrape.Classification{Label: scrape.LabelGlobal, Scope: "[global]"}},
		{"City", "```json\n{\"label\":\"city\",\"city_slug\":\"Seattle, WA\"}\n```",
			scrape.Classification{Label: scrape.LabelCity, CitySlug: "Seattle, WA", Scope: "[city:seattle-wa]"}},
		{"Industry", `{"label":"Industry","industry_slug":"FinTech"}`,
			scrape.Classification{Label: scrape.LabelIndustry, IndustrySlug: "FinTech", Scope: "[industry:fintech]"}},
		{"Trash", `{"label":"trash"}`, scrape.Classification{Label: scrape.LabelTrash}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gen := &stubGenerator{answer: tc.answer}
			got, err := New(gen, catalog, nil).Classify(context.Background(), "Zoning vote", longText)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			require.Equal(t, "gemini-2.0-flash", gen.last.Model)
			require.Contains(t, gen.last.Prompt, "Title: Zoning vote")
			require.LessOrEqual(t, len(gen.last.Prompt), len("Title: Zoning vote\nText: ")+maxPromptText)
		})
	}
}

func TestClassifyMalformed(t *testing.T) {
	t.Parallel()
	for _, answer := range []string{
		`{"label":"city"}`,
		`{"label":"industry","industry_slug":"  "}`,
		`{"label":"sports"}`,
		`I think this is a city article`,
	} {
		gen := &stubGenerator{answer: answer}
		_, err := New(gen, catalog, nil).Classify(context.Background(), "t", longText)
		require.ErrorIs(t, err, scrape.ErrClassificationMalformed, answer)
	}
}

func TestClassifyShortTextIsTrash(t *testing.T) {
	t.Parallel()
	gen := &stubGenerator{answer: `{"label":"global"}`}
	got, err := New(gen, catalog, nil).Classify(context.Background(), "t", "Too short to judge.")
	require.NoError(t, err)
	require.Equal(t, scrape.LabelTrash, got.Label)
	require.Zero(t, gen.calls)
}

func TestClassifyErrors(t *testing.T) {
	t.Parallel()
	_, err := New(&stubGenerator{}, stubPrompts{}, nil).Classify(context.Background(), "t", longText)
	require.ErrorIs(t, err, scrape.ErrNotFound)

	_, err = New(&stubGenerator{err: errors.New("quota")}, catalog, nil).Classify(context.Background(), "t", longText)
	require.ErrorContains(t, err, "quota")
	require.NotErrorIs(t, err, scrape.ErrClassificationMalformed)
}

func TestSlugify(t *testing.T) {
	t.Parallel()
	require.Equal(t, "san-jose-ca", Slugify("  San Jose, CA "))
	require.Equal(t, "new-york-ny", Slugify("New York -- NY"))
	require.Empty(t, Slugify("!!!"))
}
