package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

type echoGenerator struct {
	name string
	last scrape.GenerateRequest
}

func (e *echoGenerator) Generate(_ context.Context, req scrape.GenerateRequest) (string, error) {
	e.last = req
	return e.name, nil
}

func TestRouterDispatchesByPrefix(t *testing.T) {
	t.Parallel()
	g := &echoGenerator{name: "gemini"}
	c := &echoGenerator{name: "claude"}
	r := NewRouter("gemini-2.0-flash")
	r.Register(ProviderGemini, g)
	r.Register(ProviderClaude, c)
	r.Register("ignored", nil)

	out, err := r.Generate(context.Background(), scrape.GenerateRequest{Model: "Claude-3-5-haiku", Prompt: "p"})
	require.NoError(t, err)
	require.Equal(t, "claude", out)

	out, err = r.Generate(context.Background(), scrape.GenerateRequest{Prompt: "p"})
	require.NoError(t, err)
	require.Equal(t, "gemini", out)
	require.Equal(t, "gemini-2.0-flash", g.last.Model)
}

func TestRouterErrors(t *testing.T) {
	t.Parallel()
	r := NewRouter("")
	_, err := r.Generate(context.Background(), scrape.GenerateRequest{Prompt: "p"})
	require.Error(t, err)

	r.Register(ProviderGemini, &echoGenerator{})
	_, err = r.Generate(context.Background(), scrape.GenerateRequest{Model: "gpt-4o"})
	require.ErrorContains(t, err, "no provider")
}

func TestStripCodeFences(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
		"```json {\"a\":1}```":    `{"a":1}`,
	}
	for in, want := range cases {
		require.Equal(t, want, StripCodeFences(in), in)
	}
}

func TestDecodeObject(t *testing.T) {
	t.Parallel()
	var out struct {
		Label string `json:"label"`
	}
	require.NoError(t, DecodeObject("Sure! Here you go:\n```json\n{\"label\": \"city\"}\n```", &out))
	require.Equal(t, "city", out.Label)

	require.Error(t, DecodeObject("no json here", &out))
	require.Error(t, DecodeObject("{not json}", &out))
}
