package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/extract/secondary"
	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

// ArchiveURIKey is the metadata key holding the raw snapshot location.
const ArchiveURIKey = "archive_uri"

// Fallback is the secondary extraction API.
type Fallback interface {
	Extract(ctx context.Context, url string, cursor secondary.KeyCursor) (scrape.Extraction, secondary.KeyCursor, error)
}

// Archiver stores raw HTML snapshots.
type Archiver interface {
	Archive(ctx context.Context, html []byte) (string, error)
}

// Pipeline runs primary extraction and falls back when it fails.
type Pipeline struct {
	renderer scrape.Renderer
	reader   *Readability
	fallback Fallback
	archiver Archiver
	logger   *zap.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithFallback sets the secondary extractor.
func WithFallback(f Fallback) Option {
	return func(p *Pipeline) {
		p.fallback = f
	}
}

// WithArchiver snapshots raw HTML of successful extractions.
func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) {
		p.archiver = a
	}
}

// NewPipeline wires the extraction stages.
func NewPipeline(renderer scrape.Renderer, reader *Readability, logger *zap.Logger, opts ...Option) *Pipeline {
	if reader == nil {
		reader = NewReadability(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		renderer: renderer,
		reader:   reader,
		logger:   logger.Named("extract"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extract returns the article content for url. The cursor is passed to the
// fallback and returned advanced; it is returned unchanged when the primary path wins.
func (p *Pipeline) Extract(ctx context.Context, url string, cursor secondary.KeyCursor) (scrape.Extraction, secondary.KeyCursor, error) {
	ext, primaryErr := p.primary(ctx, url)
	if primaryErr == nil {
		p.archive(ctx, &ext)
		return ext, cursor, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return scrape.Extraction{}, cursor, fmt.Errorf("%w: %v", scrape.ErrExtractionFailed, ctxErr)
	}
	p.logger.Info("primary extraction failed, trying fallback",
		zap.String("url", url),
		zap.Error(primaryErr),
	)
	if p.fallback == nil {
		return scrape.Extraction{}, cursor, fmt.Errorf("%w: %v", scrape.ErrExtractionFailed, primaryErr)
	}

	ext, next, err := p.fallback.Extract(ctx, url, cursor)
	if err != nil {
		if !errors.Is(err, scrape.ErrExtractionFailed) {
			err = fmt.Errorf("%w: %v", scrape.ErrExtractionFailed, err)
		}
		return scrape.Extraction{}, next, fmt.Errorf("primary: %v; fallback: %w", primaryErr, err)
	}
	if ext.URL == "" {
		ext.URL = url
	}
	p.archive(ctx, &ext)
	return ext, next, nil
}

func (p *Pipeline) primary(ctx context.Context, url string) (scrape.Extraction, error) {
	if p.renderer == nil {
		return scrape.Extraction{}, errors.New("no renderer configured")
	}
	res, err := p.renderer.Render(ctx, url)
	if err != nil {
		return scrape.Extraction{}, err
	}
	if res.StatusCode != http.StatusOK {
		return scrape.Extraction{}, fmt.Errorf("render %s: status %d", url, res.StatusCode)
	}
	ext, err := p.reader.Parse(url, res.HTML)
	if err != nil {
		return scrape.Extraction{}, err
	}
	p.logger.Debug("primary extraction succeeded",
		zap.String("url", url),
		zap.Duration("render_duration", res.Duration),
		zap.Int("text_len", len(ext.Text)),
	)
	return ext, nil
}

func (p *Pipeline) archive(ctx context.Context, ext *scrape.Extraction) {
	if p.archiver == nil || ext.HTML == "" {
		return
	}
	uri, err := p.archiver.Archive(ctx, []byte(ext.HTML))
	if err != nil {
		p.logger.Warn("archive snapshot failed", zap.String("url", ext.URL), zap.Error(err))
		return
	}
	if ext.Metadata == nil {
		ext.Metadata = make(map[string]string)
	}
	ext.Metadata[ArchiveURIKey] = uri
}
