package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
	"github.com/JakeFAU/wayback-fetcher/internal/store"
)

// RecordStore keeps one JSON document per domain under a base directory.
type RecordStore struct {
	dir string
}

// NewRecordStore creates the directory if needed and returns a store rooted there.
func NewRecordStore(dir string) (*RecordStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return &RecordStore{dir: dir}, nil
}

// Path returns the file backing domain.
func (s *RecordStore) Path(domain string) string {
	return filepath.Join(s.dir, url.PathEscape(strings.ReplaceAll(domain, "/", "_")))
}

// Load reads the state for domain.
func (s *RecordStore) Load(ctx context.Context, domain string) (archive.PaginationState, error) {
	if err := ctx.Err(); err != nil {
		return archive.PaginationState{}, fmt.Errorf("context canceled: %w", err)
	}
	path := s.Path(domain)
	// #nosec G304 -- path is derived from the escaped domain inside the state dir.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return archive.PaginationState{}, fmt.Errorf("load %s: %w", domain, store.ErrNotFound)
		}
		return archive.PaginationState{}, fmt.Errorf("read state %s: %w", path, err)
	}
	var state archive.PaginationState
	if err := json.Unmarshal(data, &state); err != nil {
		return archive.PaginationState{}, fmt.Errorf("decode state %s: %w", path, err)
	}
	if state.Domain != domain {
		return archive.PaginationState{}, fmt.Errorf("load %s (found %q): %w", domain, state.Domain, store.ErrDomainMismatch)
	}
	return state, nil
}

// Save overwrites the state file for state.Domain.
func (s *RecordStore) Save(ctx context.Context, state archive.PaginationState) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if state.Domain == "" {
		return fmt.Errorf("state domain is required")
	}
	if state.Records == nil {
		state.Records = []archive.IndexRecord{}
	}
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return writeFileAtomic(s.Path(state.Domain), payload)
}
