package store

import (
	"context"
	"errors"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
)

var (
	// ErrNotFound signals that no pagination state exists for the domain.
	ErrNotFound = errors.New("pagination state not found")
	// ErrDomainMismatch signals that persisted state belongs to another domain.
	ErrDomainMismatch = errors.New("persisted domain differs from requested domain")
)

// RecordStore persists one PaginationState per domain. Only the paginator
// writes, so implementations need no locking beyond single-writer use.
type RecordStore interface {
	// Load returns the state for domain, ErrNotFound, or ErrDomainMismatch.
	Load(ctx context.Context, domain string) (archive.PaginationState, error)
	// Save atomically replaces the persisted state for state.Domain.
	Save(ctx context.Context, state archive.PaginationState) error
}
