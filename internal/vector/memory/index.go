// Package memory keeps vectors in process for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Entry is a stored vector.
type Entry struct {
	Vector   []float32
	Metadata map[string]any
}

// Index implements scrape.VectorIndex with a map.
type Index struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty index.
func New() *Index {
	return &Index{entries: make(map[string]Entry)}
}

// Upsert stores or replaces a vector.
func (i *Index) Upsert(_ context.Context, namespace, vectorID string, vector []float32, metadata map[string]any) error {
	if namespace == "" || vectorID == "" {
		return fmt.Errorf("namespace and vector id are required")
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries[namespace+"/"+vectorID] = Entry{
		Vector:   append([]float32(nil), vector...),
		Metadata: metadata,
	}
	return nil
}

// Get returns a stored vector.
func (i *Index) Get(namespace, vectorID string) (Entry, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	e, ok := i.entries[namespace+"/"+vectorID]
	return e, ok
}

// Len reports how many vectors are stored.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}
