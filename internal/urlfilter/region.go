package urlfilter

import (
	"net/url"
	"strings"
)

var regionStopwords = map[string]struct{}{
	"news": {}, "city": {}, "county": {}, "daily": {}, "times": {},
	"post": {}, "herald": {}, "online": {}, "press": {}, "journal": {},
	"tribune": {}, "gazette": {}, "today": {}, "local": {}, "media": {},
	"radio": {}, "www2": {}, "blog": {},
}

// SameRegion reports whether a candidate link belongs to the same region as
// the source page: identical hosts, identical second-level domain and TLD, or
// a distinctive token of the source host appearing in the candidate URL.
func SameRegion(sourceURL, candidateURL string) bool {
	src := hostOf(sourceURL)
	cand := hostOf(candidateURL)
	if src == "" || cand == "" {
		return false
	}
	if src == cand {
		return true
	}
	if registrableDomain(src) == registrableDomain(cand) {
		return true
	}
	lowered := strings.ToLower(candidateURL)
	for _, token := range regionTokens(src) {
		if strings.Contains(lowered, token) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func registrableDomain(host string) string {
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

func regionTokens(host string) []string {
	labels := strings.Split(host, ".")
	if len(labels) > 1 {
		labels = labels[:len(labels)-1]
	}
	var tokens []string
	for _, label := range labels {
		for _, token := range strings.Split(label, "-") {
			if len(token) <= 3 {
				continue
			}
			if _, stop := regionStopwords[token]; stop {
				continue
			}
			tokens = append(tokens, token)
		}
	}
	return tokens
}
