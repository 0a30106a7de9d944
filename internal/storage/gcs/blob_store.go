// Package gcs archives raw pages to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// Archive keys are content hashes, so an existing object already holds the
// same bytes and is never rewritten.
const immutableCacheControl = "public, max-age=31536000, immutable"

// Config names the bucket and an optional key prefix.
type Config struct {
	Bucket string
	Prefix string
}

// BlobStore writes content-addressed objects into one bucket.
type BlobStore struct {
	client *storage.Client
	name   string
	prefix string
}

// New returns a BlobStore bound to cfg.Bucket.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("gcs: nil client")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs: bucket is required")
	}
	return &BlobStore{
		client: client,
		name:   cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName maps an archive key to its object name under the prefix.
func (s *BlobStore) ObjectName(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// URI is the gs:// location of the object holding key.
func (s *BlobStore) URI(key string) string {
	return "gs://" + s.name + "/" + s.ObjectName(key)
}

// PutObject uploads data unless an object with the same key exists. Either
// way the returned URI points at the archived copy.
func (s *BlobStore) PutObject(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("gcs: empty object key")
	}
	obj := s.client.Bucket(s.name).Object(s.ObjectName(key)).If(storage.Conditions{DoesNotExist: true})

	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = immutableCacheControl
	// Pages are small; a zero chunk size sends them in a single request.
	w.ChunkSize = 0

	_, writeErr := w.Write(data)
	closeErr := w.Close()
	switch {
	case writeErr != nil:
		return "", fmt.Errorf("gcs: write %s: %w", key, writeErr)
	case alreadyArchived(closeErr):
		return s.URI(key), nil
	case closeErr != nil:
		return "", fmt.Errorf("gcs: finalize %s: %w", key, closeErr)
	}
	return s.URI(key), nil
}

// alreadyArchived reports whether err is the precondition failure GCS returns
// when the object exists.
func alreadyArchived(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}
