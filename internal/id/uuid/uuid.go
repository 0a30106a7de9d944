// Package uuid generates worker identities stamped on claimed jobs.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUIDv7 strings, optionally prefixed with a host label.
type Generator struct {
	prefix string
}

// New returns a generator. A non-empty prefix is joined to each id with "-".
func New(prefix string) *Generator {
	return &Generator{prefix: prefix}
}

// NewID returns a UUIDv7 string, time-ordered so worker ids sort by start time.
func (g *Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	if g.prefix == "" {
		return id.String(), nil
	}
	return g.prefix + "-" + id.String(), nil
}
