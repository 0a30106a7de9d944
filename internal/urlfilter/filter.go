package urlfilter

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	sectionIndexes = map[string]struct{}{
		"/news":     {},
		"/sports":   {},
		"/weather":  {},
		"/shows":    {},
		"/about":    {},
		"/contact":  {},
		"/search":   {},
		"/tag":      {},
		"/category": {},
		"/live":     {},
	}

	nonArticlePrefixes = []string{
		"/search", "/tag", "/tags", "/category", "/categories",
		"/author", "/authors", "/careers", "/jobs", "/advertise",
		"/advertising", "/privacy", "/privacy-policy", "/terms",
		"/terms-of-service", "/legal", "/admin", "/wp-admin",
		"/wp-login.php", "/login", "/signin", "/register", "/subscribe",
		"/account", "/feed", "/rss", "/sitemap", "/cookie-policy",
	}

	nonArticleQueryKeys = []string{"print", "share", "page", "action", "format", "replytocom"}

	staticHostPrefixes = []string{
		"images.", "img.", "cdn.", "static.", "photos.", "media.",
		"assets.", "video.", "videos.",
	}

	assetExtension = regexp.MustCompile(`\.(jpe?g|png|gif|svg|webp|ico|bmp|tiff?|avif|` +
		`mp4|m4v|mov|avi|wmv|webm|mkv|flv|` +
		`mp3|wav|ogg|m4a|aac|flac|` +
		`pdf|docx?|xlsx?|pptx?|csv|txt|rtf|odt|` +
		`css|js|json|xml|rss|` +
		`zip|rar|7z|gz|tgz|tar|exe|dmg|apk)$`)

	socialHosts = newHostMatcher(
		".facebook.com", ".twitter.com", ".x.com", ".instagram.com",
		".linkedin.com", ".youtube.com", ".tiktok.com", ".pinterest.com",
	)

	sharePathPrefixes = []string{"/sharer", "/share", "/sharing", "/intent/tweet", "/intent/post"}

	newsletterArchiveHosts = []string{"campaign-archive", "list-manage.com", "mailchi.mp"}

	govNavigationSections = map[string]struct{}{
		"departments": {}, "department": {}, "government": {}, "city-government": {},
		"city-council": {}, "council": {}, "services": {}, "residents": {},
		"business": {}, "visitors": {}, "city-news": {}, "news": {},
		"calendar": {}, "events": {}, "directory": {}, "agendas": {},
	}

	govNewsArticle = regexp.MustCompile(`^/city-news/[^/]+(/[^/]+)*$`)
)

// ShouldSkip reports whether a canonical URL is not worth scheduling.
func ShouldSkip(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return true
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.TrimRight(strings.ToLower(u.EscapedPath()), "/")

	if alwaysAllowed(host, path) {
		return false
	}

	switch {
	case path == "":
		return true
	case isSectionIndex(path):
		return true
	case isGovNavigation(host, path, u.RawQuery):
		return true
	case isStaticHost(host):
		return true
	case assetExtension.MatchString(path):
		return true
	case hasPathPrefix(path, nonArticlePrefixes):
		return true
	case hasNonArticleQuery(u.RawQuery):
		return true
	case isSocialShare(host, path):
		return true
	}
	return false
}

func alwaysAllowed(host, path string) bool {
	if strings.Contains(path, "civicalerts.aspx") {
		return true
	}
	for _, archive := range newsletterArchiveHosts {
		if strings.Contains(host, archive) {
			return true
		}
	}
	return false
}

func isSectionIndex(path string) bool {
	_, ok := sectionIndexes[path]
	return ok
}

// isGovNavigation flags bare navigation pages on .gov hosts. Article pages
// under /city-news/ without a query string are never flagged.
func isGovNavigation(host, path, rawQuery string) bool {
	if !strings.HasSuffix(host, ".gov") && !strings.Contains(host, ".gov.") {
		return false
	}
	if rawQuery == "" && govNewsArticle.MatchString(path) {
		return false
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 1 {
		return true
	}
	_, nav := govNavigationSections[segments[0]]
	return nav && len(segments) <= 2
}

func isStaticHost(host string) bool {
	for _, prefix := range staticHostPrefixes {
		if strings.HasPrefix(host, prefix) {
			return true
		}
	}
	return false
}

func hasPathPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

func hasNonArticleQuery(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	lower := strings.ToLower(rawQuery)
	for _, part := range strings.Split(lower, "&") {
		for _, key := range nonArticleQueryKeys {
			if strings.HasPrefix(part, key+"=") {
				return true
			}
		}
	}
	return false
}

func isSocialShare(host, path string) bool {
	if socialHosts.Match(host) {
		return true
	}
	return hasPathPrefix(path, sharePathPrefixes)
}
