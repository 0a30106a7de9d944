// Package urlfilter canonicalizes discovered links and decides which are worth a job.
package urlfilter

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

var (
	jsonFragments = []string{`{"`, `"}`, `","`}

	unescaper = strings.NewReplacer(
		`\/`, `/`,
		`\"`, `"`,
		`\u0026`, `&`,
		`\u003d`, `=`,
		`&amp;`, `&`,
	)

	// net/url escapes these sub-delimiters in paths; links keep them literal.
	pathSubDelims = strings.NewReplacer("%21", "!", "%28", "(", "%29", ")", "%2A", "*")

	strayPercent = regexp.MustCompile(`%([^0-9A-Fa-f]|[0-9A-Fa-f][^0-9A-Fa-f]|[0-9A-Fa-f]?$)`)

	trackingParams = map[string]struct{}{
		"fbclid": {},
		"gclid":  {},
		"_ga":    {},
		"ref":    {},
		"source": {},
	}
)

// Canonicalize normalizes a raw link, possibly wrapped in markdown or JSON
// noise, into the canonical form used as the dedupe key.
func Canonicalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", scrape.ErrInvalidURL)
	}
	s = unwrapMarkdown(s)
	s = strings.Trim(s, "\"'`")
	s = unescaper.Replace(s)
	for _, frag := range jsonFragments {
		if strings.Contains(s, frag) {
			return "", fmt.Errorf("%w: json fragment in %q", scrape.ErrInvalidURL, raw)
		}
	}
	if i := strings.IndexAny(s, " \t\r\n\"'`"); i >= 0 {
		s = s[:i]
	}
	s = trimTrailingPunct(s)
	s = strayPercent.ReplaceAllStringFunc(s, func(m string) string {
		return "%25" + m[1:]
	})

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", scrape.ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme in %q", scrape.ErrInvalidURL, raw)
	}
	if u.Opaque != "" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host in %q", scrape.ErrInvalidURL, raw)
	}

	u.Host = canonicalHost(u)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = pathSubDelims.Replace((&url.URL{Path: u.Path}).EscapedPath())
	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false
	u.RawQuery = canonicalQuery(u.RawQuery)
	return u.String(), nil
}

// unwrapMarkdown returns the target of a "[text](target)" link. Parentheses
// inside the target are kept when balanced.
func unwrapMarkdown(s string) string {
	idx := strings.Index(s, "](")
	if idx < 0 {
		return s
	}
	rest := s[idx+2:]
	depth := 0
	for i, r := range rest {
		switch r {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return rest[:i]
			}
			depth--
		}
	}
	return rest
}

// trimTrailingPunct drops sentence punctuation after a link. A closing
// parenthesis is dropped only when it has no opening partner in the link.
func trimTrailingPunct(s string) string {
	for s != "" {
		switch last := s[len(s)-1]; {
		case last == ')' && strings.Count(s, "(") >= strings.Count(s, ")"):
			return s
		case strings.IndexByte(")]},.", last) >= 0:
			s = s[:len(s)-1]
		default:
			return s
		}
	}
	return s
}

func canonicalHost(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	port := u.Port()
	switch {
	case port == "":
	case u.Scheme == "http" && port == "80":
	case u.Scheme == "https" && port == "443":
	default:
		return host + ":" + port
	}
	return host
}

func canonicalQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	for key := range values {
		lower := strings.ToLower(key)
		if _, ok := trackingParams[lower]; ok || strings.HasPrefix(lower, "utm_") {
			values.Del(key)
			continue
		}
		sort.Strings(values[key])
	}
	return values.Encode()
}
