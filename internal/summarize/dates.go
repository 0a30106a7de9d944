package summarize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// MetadataDateFields are checked in order before any other date signal.
var MetadataDateFields = []string{
	"article:published_time",
	"og:published_time",
	"date",
	"pubdate",
	"published",
	"publication_date",
	"datePublished",
	"article:modified_time",
	"og:updated_time",
	"last-modified",
	"modified",
}

var (
	relativeAgo  = regexp.MustCompile(`(\d+)\s*(minute|min|hour|hr|day|week)s?\s+ago`)
	datePrefixes = regexp.MustCompile(`(?i)^(published|posted|updated|date)(\s+on)?\s*:?\s*`)
)

// ResolveDate picks the publication date: metadata fields first, then the
// extractor's own date, then the date string the model reported. A candidate
// outside [now-10y, now+1d] is ignored.
func ResolveDate(now time.Time, ext scrape.Extraction, reported string) *time.Time {
	for _, field := range MetadataDateFields {
		raw := strings.TrimSpace(ext.Metadata[field])
		if raw == "" {
			continue
		}
		if ts, err := dateparse.ParseIn(raw, time.UTC); err == nil && inWindow(now, ts) {
			return utcPtr(ts)
		}
	}
	if ext.Date != nil && inWindow(now, *ext.Date) {
		return utcPtr(*ext.Date)
	}
	if ts, ok := ParseDateString(now, reported); ok {
		return utcPtr(ts)
	}
	return nil
}

// ParseDateString understands absolute dates and simple relative phrases such
// as "3 hours ago", "yesterday" and "today".
func ParseDateString(now time.Time, s string) (time.Time, bool) {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	lower := strings.ToLower(s)
	if lower == "" || strings.Contains(lower, "not found") {
		return time.Time{}, false
	}

	var ts time.Time
	switch m := relativeAgo.FindStringSubmatch(lower); {
	case m != nil:
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		ts = now.Add(-time.Duration(n) * unitOf(m[2]))
	case strings.Contains(lower, "yesterday"):
		ts = now.AddDate(0, 0, -1)
	case strings.Contains(lower, "today"):
		y, mo, d := now.UTC().Date()
		ts = time.Date(y, mo, d, 12, 0, 0, 0, time.UTC)
	default:
		parsed, err := dateparse.ParseIn(datePrefixes.ReplaceAllString(s, ""), time.UTC)
		if err != nil {
			return time.Time{}, false
		}
		ts = parsed
	}
	if !inWindow(now, ts) {
		return time.Time{}, false
	}
	return ts.UTC(), true
}

func unitOf(word string) time.Duration {
	switch word {
	case "minute", "min":
		return time.Minute
	case "hour", "hr":
		return time.Hour
	case "day":
		return 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

func inWindow(now, ts time.Time) bool {
	return !ts.Before(now.AddDate(-10, 0, 0)) && !ts.After(now.Add(24*time.Hour))
}

func utcPtr(ts time.Time) *time.Time {
	ts = ts.UTC()
	return &ts
}
