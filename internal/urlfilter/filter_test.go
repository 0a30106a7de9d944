package urlfilter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

func TestShouldSkip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		skip bool
	}{
		{"https://example.com/", true},
		{"https://example.com", true},
		{"https://example.com/#section", true},
		{"https://example.com?page=1", true},
		{"https://example.com/news", true},
		{"https://example.com/sports", true},
		{"https://example.com/live", true},
		{"https://cdn.example.com/photo.jpg", true},
		{"https://images.example.com/news/story", true},
		{"https://static.example.com/news", true},
		{"https://photos.example.com/gallery", true},
		{"https://example.com/article.mp4", true},
		{"https://example.com/article.ogg", true},
		{"https://example.com/archive.rar", true},
		{"https://example.com/doc.xlsx", true},
		{"https://example.com/news/story?print=true", true},
		{"https://example.com/news/story?share=facebook", true},
		{"https://example.com/news/story?action=edit", true},
		{"https://example.com/news/story?format=pdf", true},
		{"https://example.gov/city-government", true},
		{"https://cityofseattle.gov/city-news", true},
		{"https://cityofseattle.gov/city-news/", true},
		{"https://cityofseattle.gov/departments", true},
		{"https://cityofseattle.gov/city-council", true},
		{"https://cityofseattle.gov/departments/parks", true},
		{"https://cityofseattle.gov/city-news/budget?id=2", true},
		{"https://example.com/sharer/facebook", true},
		{"https://facebook.com/sharer", true},
		{"https://example.com/share?url=test", true},
		{"https://linkedin.com/sharing", true},
		{"https://example.com/careers", true},
		{"https://example.com/advertise", true},
		{"https://example.com/about", true},
		{"https://example.com/privacy", true},
		{"https://example.com/contact", true},
		{"https://example.com/tag/politics", true},
		{"https://example.com/legal/terms", true},
		{"https://example.com/admin/login", true},
		{"::not a url", true},

		{"https://example.gov/city-news/budget-vote-2025", false},
		{"https://cityofseattle.gov/city-news/budget-approved-2024", false},
		{"https://example.com/civicalerts.aspx?id=1", false},
		{"https://example.com/CivicAlerts.aspx?AID=42", false},
		{"https://campaign-archive.com/newsletter", false},
		{"https://us5.campaign-archive.com/?u=abc&id=def", false},
		{"https://example.com/news/article-title", false},
		{"https://example.com/sports/team-wins-championship", false},
		{"https://example.com/politics/election-results", false},
		{"https://example.com/business/company-merger", false},
		{"https://example.com/shares-rise-on-earnings", false},
		{"https://example.gov/news/2025/03/council-approves-budget", false},
	}

	for _, tc := range tests {
		require.Equal(t, tc.skip, ShouldSkip(tc.url), "ShouldSkip(%q)", tc.url)
	}
}

func TestSameRegion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source    string
		candidate string
		want      bool
	}{
		{"https://seattletimes.com", "https://seattletimes.com/news/x", true},
		{"https://www.seattletimes.com/", "https://projects.seattletimes.com/2025/x", true},
		{"https://seattle-times.com", "https://kiro7.com/news/seattle-budget", true},
		{"https://seattle-times.com", "https://example.com/news/portland", false},
		{"https://city-news.com", "https://other.com/city-news/story", false},
		{"https://example.com", "::bad", false},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, SameRegion(tc.source, tc.candidate), "SameRegion(%q, %q)", tc.source, tc.candidate)
	}
}

func TestAdmit(t *testing.T) {
	t.Parallel()

	got, err := Admit("https://www.example.com", "[story](https://www.example.com/news/council-vote?utm_medium=x)")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/news/council-vote", got)

	_, err = Admit("", `{"url":"x"}`)
	require.ErrorIs(t, err, scrape.ErrInvalidURL)

	_, err = Admit("", "https://example.com/news")
	require.ErrorIs(t, err, scrape.ErrAdmissionRejected)

	_, err = Admit("https://seattle-times.com", "https://example.com/news/portland-vote")
	require.ErrorIs(t, err, scrape.ErrAdmissionRejected)

	got, err = Admit("", "https://example.com/news/portland-vote")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/news/portland-vote", got)
}

func TestHostMatcher(t *testing.T) {
	t.Parallel()

	m := newHostMatcher("Example.com", "*.cdn.net", ".ads.org", "")
	require.True(t, m.Match("example.com"))
	require.False(t, m.Match("sub.example.com"))
	require.True(t, m.Match("cdn.net"))
	require.True(t, m.Match("img.cdn.net"))
	require.True(t, m.Match("ADS.ORG"))
	require.False(t, m.Match(""))

	var nilMatcher *hostMatcher
	require.False(t, nilMatcher.Match("example.com"))
}
