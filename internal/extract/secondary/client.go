// Package secondary talks to a Diffbot-compatible extraction API, rotating
// across a pool of API keys.
package secondary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/metrics"
	"github.com/JakeFAU/headline-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// Defaults applied by New.
const (
	DefaultBaseURL = "https://api.diffbot.com"
	DefaultTimeout = 12 * time.Second
	Via            = "secondary"

	maxBodyBytes = 8 << 20
)

// errKeyRejected marks a response that condemns the key rather than the page.
var errKeyRejected = errors.New("key rejected")

// KeyCursor remembers where the next attempt starts in the key pool.
type KeyCursor struct {
	Next int
}

// Config controls the client.
type Config struct {
	BaseURL string
	Keys    []string
	Timeout time.Duration
	// RPS and Burst pace each key locally; RPS <= 0 disables pacing.
	RPS   float64
	Burst int
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
}

// Client calls the article and list endpoints.
type Client struct {
	baseURL  *url.URL
	keys     []string
	http     *http.Client
	limiter  *ratelimit.Limiter
	stripper *bluemonday.Policy
	logger   *zap.Logger
}

// New validates cfg and builds a client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("secondary base url %q is invalid", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	keys := make([]string, 0, len(cfg.Keys))
	for _, k := range cfg.Keys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return &Client{
		baseURL:  base,
		keys:     keys,
		http:     httpClient,
		limiter:  ratelimit.New(ratelimit.Config{RPS: cfg.RPS, Burst: cfg.Burst}),
		stripper: bluemonday.StrictPolicy(),
		logger:   logger.Named("secondary"),
	}, nil
}

// Enabled reports whether any key is configured.
func (c *Client) Enabled() bool {
	return len(c.keys) > 0
}

type articleObject struct {
	Title string         `json:"title"`
	Text  string         `json:"text"`
	HTML  string         `json:"html"`
	Date  string         `json:"date"`
	Meta  map[string]any `json:"meta"`
}

type listItem struct {
	Link  string     `json:"link"`
	Items []listItem `json:"items"`
}

type apiResponse struct {
	Objects   json.RawMessage `json:"objects"`
	NextPages []string        `json:"nextPages"`
	Error     string          `json:"error"`
}

// Extract fetches pageURL through the article endpoint. The attempt starts at
// cursor.Next and walks the key pool once; keys over quota are skipped.
func (c *Client) Extract(ctx context.Context, pageURL string, cursor KeyCursor) (scrape.Extraction, KeyCursor, error) {
	var ext scrape.Extraction
	next, err := c.rotate(ctx, cursor, func(key string) error {
		resp, err := c.call(ctx, "/v3/article", key, pageURL)
		if err != nil {
			return err
		}
		var objects []articleObject
		if len(resp.Objects) > 0 {
			if err := json.Unmarshal(resp.Objects, &objects); err != nil {
				return fmt.Errorf("decode article objects: %w", err)
			}
		}
		if len(objects) == 0 {
			return fmt.Errorf("no article objects returned for %s", pageURL)
		}
		ext = c.toExtraction(pageURL, objects[0])
		return nil
	})
	return ext, next, err
}

// List fetches candidate links for a source page through the list endpoint.
func (c *Client) List(ctx context.Context, pageURL string, cursor KeyCursor) ([]string, KeyCursor, error) {
	var links []string
	next, err := c.rotate(ctx, cursor, func(key string) error {
		resp, err := c.call(ctx, "/v3/list", key, pageURL)
		if err != nil {
			return err
		}
		var items []listItem
		if len(resp.Objects) > 0 {
			if err := json.Unmarshal(resp.Objects, &items); err != nil {
				return fmt.Errorf("decode list objects: %w", err)
			}
		}
		links = flattenLinks(items, resp.NextPages)
		return nil
	})
	return links, next, err
}

func (c *Client) rotate(ctx context.Context, cursor KeyCursor, attempt func(key string) error) (KeyCursor, error) {
	n := len(c.keys)
	if n == 0 {
		return cursor, fmt.Errorf("%w: no secondary keys configured", scrape.ErrExtractionFailed)
	}
	start := cursor.Next % n
	if start < 0 {
		start += n
	}
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		next := KeyCursor{Next: (idx + 1) % n}
		key := c.keys[idx]
		if !c.limiter.Allow(key) {
			metrics.ObserveSecondaryRequest("throttled")
			continue
		}
		err := attempt(key)
		switch {
		case err == nil:
			metrics.ObserveSecondaryRequest("ok")
			return next, nil
		case errors.Is(err, errKeyRejected):
			metrics.ObserveSecondaryRequest("quota")
			c.logger.Warn("secondary key skipped", zap.Int("key_index", idx), zap.Error(err))
			continue
		default:
			metrics.ObserveSecondaryRequest("error")
			return next, fmt.Errorf("%w: %v", scrape.ErrExtractionFailed, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return cursor, fmt.Errorf("%w: %v", scrape.ErrExtractionFailed, err)
	}
	return KeyCursor{Next: start}, fmt.Errorf("%w: all %d secondary keys exhausted", scrape.ErrExtractionFailed, n)
}

func (c *Client) call(ctx context.Context, path, key, pageURL string) (apiResponse, error) {
	var out apiResponse
	endpoint := *c.baseURL
	endpoint.Path += path
	q := url.Values{}
	q.Set("token", key)
	q.Set("url", pageURL)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return out, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return out, fmt.Errorf("request %s: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return out, fmt.Errorf("%w: quota exceeded", errKeyRejected)
	case http.StatusUnauthorized, http.StatusForbidden:
		return out, fmt.Errorf("%w: status %d", errKeyRejected, resp.StatusCode)
	default:
		return out, fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return out, fmt.Errorf("read %s body: %w", path, err)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode %s body: %w", path, err)
	}
	if out.Error != "" {
		return out, fmt.Errorf("%s error: %s", path, out.Error)
	}
	return out, nil
}

func (c *Client) toExtraction(pageURL string, obj articleObject) scrape.Extraction {
	ext := scrape.Extraction{
		URL:      pageURL,
		Title:    strings.TrimSpace(obj.Title),
		Text:     strings.Join(strings.Fields(html.UnescapeString(c.stripper.Sanitize(obj.Text))), " "),
		HTML:     obj.HTML,
		Metadata: flattenMeta(obj.Meta),
		Via:      Via,
	}
	if obj.HTML != "" {
		converter := md.NewConverter(pageURL, true, nil)
		if markdown, err := converter.ConvertString(obj.HTML); err == nil {
			ext.Markdown = strings.TrimSpace(markdown)
		}
	}
	if ext.Markdown == "" {
		ext.Markdown = ext.Text
	}
	if obj.Date != "" {
		if ts, err := dateparse.ParseAny(obj.Date); err == nil {
			ts = ts.UTC()
			ext.Date = &ts
		}
	}
	return ext
}

func flattenMeta(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64, bool:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

func flattenLinks(items []listItem, nextPages []string) []string {
	var links []string
	var walk func([]listItem)
	walk = func(items []listItem) {
		for _, it := range items {
			if it.Link != "" {
				links = append(links, it.Link)
			}
			walk(it.Items)
		}
	}
	walk(items)
	return append(links, nextPages...)
}
