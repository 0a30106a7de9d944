package urlfilter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "http://example.com", "http://example.com"},
		{"scheme case", "HTTP://example.com", "http://example.com"},
		{"host case", "http://EXAMPLE.com", "http://example.com"},
		{"www stripped", "http://www.example.com", "http://example.com"},
		{"trailing slash", "http://example.com/", "http://example.com"},
		{"path kept", "http://example.com/path/to/page", "http://example.com/path/to/page"},
		{"tracking dropped", "http://example.com?utm_source=test", "http://example.com"},
		{"regular params kept", "http://example.com?id=123", "http://example.com?id=123"},
		{"fragment dropped", "http://example.com#section", "http://example.com"},
		{"combined", "HTTP://WWW.EXAMPLE.COM/page/?utm_source=test#section", "http://example.com/page"},
		{"markdown link", "[Budget vote](https://www.example.com/news/budget-vote).", "https://example.com/news/budget-vote"},
		{"markdown link with parens", "[t](https://example.com/foo_(bar))", "https://example.com/foo_(bar)"},
		{"parens kept", "https://en.example.org/wiki/Mercury_(planet)", "https://en.example.org/wiki/Mercury_(planet)"},
		{"unbalanced paren trimmed", "https://example.com/story) said the mayor", "https://example.com/story"},
		{"quoted", `"https://example.com/story"`, "https://example.com/story"},
		{"trailing prose", "https://example.com/story and more text", "https://example.com/story"},
		{"trailing punctuation", "https://example.com/story),", "https://example.com/story"},
		{"escaped slashes", `https:\/\/example.com\/story`, "https://example.com/story"},
		{"escaped ampersand", `https://example.com/story?a=1\u0026b=2`, "https://example.com/story?a=1&b=2"},
		{"percent decoded", "https://example.com/caf%C3%A9", "https://example.com/caf%C3%A9"},
		{"stray percent kept", "https://example.com/100%real", "https://example.com/100%25real"},
		{"query sorted", "https://example.com/a?b=2&a=1&a=0", "https://example.com/a?a=0&a=1&b=2"},
		{"default port", "https://example.com:443/x", "https://example.com/x"},
		{"custom port", "http://example.com:8080/x", "http://example.com:8080/x"},
		{"fbclid dropped", "https://example.com/x?fbclid=abc&id=7", "https://example.com/x?id=7"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Canonicalize(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestCanonicalizeRejects(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"   ",
		`{"url":"https://example.com/story"}`,
		`https://example.com/a","title":"x`,
		`https:\/\/example.com\/a\"}`,
		"ftp://example.com/file",
		"example.com/story",
		"mailto:news@example.com",
		"https:///nohost",
	}
	for _, in := range inputs {
		_, err := Canonicalize(in)
		require.ErrorIs(t, err, scrape.ErrInvalidURL, "input %q", in)
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTP://WWW.EXAMPLE.COM/page/?utm_source=test#section",
		"https://example.com/caf%C3%A9?z=1&a=2",
		"https://example.com/100%real",
		"https://example.com/a%2Fb/c",
		"https://example.com/search?q=a+b&q=c%20d",
		"[t](https://example.com/x/y/).",
		"[t](https://example.com/foo_(bar)).",
		"http://example.com:8080/x?flag",
		"https://example.com/path with space",
	}
	for _, in := range inputs {
		once, err := Canonicalize(in)
		require.NoError(t, err, "input %q", in)
		twice, err := Canonicalize(once)
		require.NoError(t, err, "input %q", once)
		require.Equal(t, once, twice, "input %q", in)
	}
}

func TestCanonicalizeNeverReturnsContamination(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`https://example.com/story" target="_blank`,
		"https://example.com/story 'quoted'",
		`"https://example.com/story"}`,
		`https://example.com/story","next":"https://example.com/other`,
		"https://example.com/story\tnext",
	}
	for _, in := range inputs {
		got, err := Canonicalize(in)
		if err != nil {
			require.ErrorIs(t, err, scrape.ErrInvalidURL)
			continue
		}
		require.True(t, strings.HasPrefix(got, "http://") || strings.HasPrefix(got, "https://"), got)
		require.NotContains(t, got, " ")
		require.NotContains(t, got, `"`)
		require.NotContains(t, got, "'")
		for _, frag := range jsonFragments {
			require.NotContains(t, got, frag)
		}
	}
}
