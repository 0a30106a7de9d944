// Package archive snapshots raw article HTML into a blob store, keyed by content hash.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
)

const contentType = "text/html; charset=utf-8"

// Archiver writes HTML snapshots.
type Archiver struct {
	store scrape.BlobStore
}

// New wraps a blob store.
func New(store scrape.BlobStore) *Archiver {
	return &Archiver{store: store}
}

// Key returns the object path for data: raw/<first two hex chars>/<sha256>.html.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	return "raw/" + digest[:2] + "/" + digest + ".html"
}

// Archive stores html and returns its URI. Identical content maps to the same object.
func (a *Archiver) Archive(ctx context.Context, html []byte) (string, error) {
	if len(html) == 0 {
		return "", fmt.Errorf("archive: empty document")
	}
	uri, err := a.store.PutObject(ctx, Key(html), contentType, html)
	if err != nil {
		return "", fmt.Errorf("archive snapshot: %w", err)
	}
	return uri, nil
}
