// Package uuid generates fetch run identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements archive.IDGenerator with time-ordered UUIDv7 values,
// so run IDs sort by start time.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
