// Package extract turns a rendered page into clean article content, falling
// back to the secondary extraction API when the primary path fails.
package extract

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// DefaultMinTextLength is the shortest body accepted from the primary path.
const DefaultMinTextLength = 200

// Primary marks extractions produced from the rendered page.
const Primary = "primary"

var dateSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="article:published_time"]`, "content"},
	{`meta[property="og:published_time"]`, "content"},
	{`time[datetime]`, "datetime"},
	{`meta[name="date"]`, "content"},
	{`meta[name="pubdate"]`, "content"},
}

// Readability extracts the article body from raw HTML.
type Readability struct {
	minText  int
	stripper *bluemonday.Policy
}

// NewReadability builds an extractor; minText <= 0 uses DefaultMinTextLength.
func NewReadability(minText int) *Readability {
	if minText <= 0 {
		minText = DefaultMinTextLength
	}
	return &Readability{minText: minText, stripper: bluemonday.StrictPolicy()}
}

// Parse extracts title, text, markdown, metadata and an on-page date.
func (r *Readability) Parse(pageURL, rawHTML string) (scrape.Extraction, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return scrape.Extraction{}, fmt.Errorf("%w: %v", scrape.ErrInvalidURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return scrape.Extraction{}, fmt.Errorf("parse html: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), base)
	if err != nil {
		return scrape.Extraction{}, fmt.Errorf("readability: %w", err)
	}
	var textBuf, htmlBuf strings.Builder
	if err := article.RenderText(&textBuf); err != nil {
		return scrape.Extraction{}, fmt.Errorf("render text: %w", err)
	}
	if err := article.RenderHTML(&htmlBuf); err != nil {
		return scrape.Extraction{}, fmt.Errorf("render html: %w", err)
	}

	text := r.PlainText(textBuf.String())
	if len(text) < r.minText {
		return scrape.Extraction{}, fmt.Errorf("extracted text too short: %d < %d chars", len(text), r.minText)
	}

	content := htmlBuf.String()
	markdown, err := md.NewConverter(base.Scheme+"://"+base.Host, true, nil).ConvertString(content)
	if err != nil {
		markdown = text
	}

	return scrape.Extraction{
		URL:      pageURL,
		Title:    pageTitle(doc),
		Text:     text,
		Markdown: strings.TrimSpace(markdown),
		HTML:     rawHTML,
		Date:     pageDate(doc),
		Metadata: metaTags(doc),
		Via:      Primary,
	}, nil
}

// PlainText strips any residual markup and collapses whitespace.
func (r *Readability) PlainText(s string) string {
	clean := html.UnescapeString(r.stripper.Sanitize(s))
	return strings.Join(strings.Fields(clean), " ")
}

func pageTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func metaTags(doc *goquery.Document) map[string]string {
	meta := make(map[string]string)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok || strings.TrimSpace(content) == "" {
			return
		}
		key := s.AttrOr("name", "")
		if key == "" {
			key = s.AttrOr("property", "")
		}
		if key == "" {
			key = s.AttrOr("itemprop", "")
		}
		if key == "" {
			return
		}
		if _, seen := meta[key]; !seen {
			meta[key] = strings.TrimSpace(content)
		}
	})
	return meta
}

func pageDate(doc *goquery.Document) *time.Time {
	for _, ds := range dateSelectors {
		raw, ok := doc.Find(ds.selector).First().Attr(ds.attr)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		ts, err := dateparse.ParseAny(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		ts = ts.UTC()
		return &ts
	}
	return nil
}
