// Package collyfetcher harvests candidate article links from source pages and feeds.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/mmcdole/gofeed"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Harvester implements scrape.LinkHarvester with colly. HTML pages yield
// their anchors and og:url; RSS, Atom, and JSON feeds yield item links.
type Harvester struct {
	cfg           Config
	client        *http.Client
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnHTML(string, colly.HTMLCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Harvester.
func New(cfg Config) *Harvester {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	transport := newHTTPTransport()
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(transport)
	return &Harvester{
		cfg:           cfg,
		client:        &http.Client{Transport: transport, Timeout: cfg.Timeout},
		baseCollector: c,
	}
}

// Harvest visits pageURL and returns up to limit unique absolute links in
// document order. limit <= 0 returns every link.
func (h *Harvester) Harvest(ctx context.Context, pageURL string, limit int) ([]string, error) {
	if looksLikeFeedURL(pageURL) {
		return h.harvestFeed(ctx, pageURL, limit)
	}
	links := newLinkSet(limit)
	var fetchErr error
	collector := h.buildCollector(ctx)
	h.configureCollectorHooks(collector, links, &fetchErr)

	if err := h.runCollector(ctx, collector, pageURL, &fetchErr); err != nil {
		return nil, err
	}
	return links.list(), nil
}

func (h *Harvester) buildCollector(ctx context.Context) *colly.Collector {
	collector := h.baseCollector.Clone()
	collector.Context = ctx
	if h.cfg.UserAgent != "" {
		collector.UserAgent = h.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !h.cfg.RespectRobots
	collector.SetRequestTimeout(h.cfg.Timeout)
	return collector
}

func (h *Harvester) configureCollectorHooks(hooks collectorHooks, links *linkSet, fetchErr *error) {
	hooks.OnHTML("a[href]", func(e *colly.HTMLElement) {
		links.add(e.Request.AbsoluteURL(e.Attr("href")))
	})
	hooks.OnHTML(`meta[property="og:url"]`, func(e *colly.HTMLElement) {
		links.add(e.Request.AbsoluteURL(e.Attr("content")))
	})
	hooks.OnResponse(func(r *colly.Response) {
		if !isFeed(r.Headers.Get("Content-Type"), r.Body) {
			return
		}
		items, err := FeedLinks(string(r.Body))
		if err != nil {
			*fetchErr = err
			return
		}
		for _, link := range items {
			links.add(r.Request.AbsoluteURL(link))
		}
	})
	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (h *Harvester) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("harvest canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("harvest %s: %w", url, *fetchErr)
		}
		return nil
	}
}

func (h *Harvester) harvestFeed(ctx context.Context, feedURL string, limit int) ([]string, error) {
	fp := gofeed.NewParser()
	fp.Client = h.client
	if h.cfg.UserAgent != "" {
		fp.UserAgent = h.cfg.UserAgent
	}
	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	links := newLinkSet(limit)
	for _, link := range itemLinks(feed) {
		links.add(link)
	}
	return links.list(), nil
}

// FeedLinks parses an RSS, Atom, or JSON feed body and returns item links.
func FeedLinks(body string) ([]string, error) {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return itemLinks(feed), nil
}

func itemLinks(feed *gofeed.Feed) []string {
	links := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		switch {
		case item.Link != "":
			links = append(links, item.Link)
		case len(item.Links) > 0:
			links = append(links, item.Links[0])
		}
	}
	return links
}

func looksLikeFeedURL(raw string) bool {
	lower := strings.ToLower(raw)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	lower = strings.TrimRight(lower, "/")
	return strings.HasSuffix(lower, ".rss") || strings.HasSuffix(lower, ".xml") ||
		strings.HasSuffix(lower, "/feed") || strings.HasSuffix(lower, "/rss") ||
		strings.HasSuffix(lower, ".atom")
}

func isFeed(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") || strings.Contains(ct, "feed+json") {
		return true
	}
	if !strings.Contains(ct, "xml") {
		return false
	}
	head := bytes.ToLower(body[:min(len(body), 512)])
	return bytes.Contains(head, []byte("<rss")) || bytes.Contains(head, []byte("<feed")) ||
		bytes.Contains(head, []byte("<rdf:rdf"))
}

type linkSet struct {
	mu    sync.Mutex
	limit int
	seen  map[string]struct{}
	order []string
}

func newLinkSet(limit int) *linkSet {
	return &linkSet{limit: limit, seen: make(map[string]struct{})}
}

func (s *linkSet) add(link string) {
	link = strings.TrimSpace(link)
	if link == "" || strings.HasPrefix(link, "javascript:") || strings.HasPrefix(link, "mailto:") {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && len(s.order) >= s.limit {
		return
	}
	if _, ok := s.seen[link]; ok {
		return
	}
	s.seen[link] = struct{}{}
	s.order = append(s.order, link)
}

func (s *linkSet) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
